// Package vault keeps exchange API secrets encrypted at rest and exposes
// them, decrypted, to the rest of the process only after a verified master
// password. The vault exclusively owns the decrypted cache; every read
// returns a copy.
package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kolibri-trade/kolibri/internal/scheduler"
	"github.com/kolibri-trade/kolibri/internal/secrets/crypt"
	"github.com/kolibri-trade/kolibri/pkg/errors"
)

// PasswordVerificationWord is the fixed literal encrypted into the password
// verification record. The value is kept for compatibility with secret files
// written by earlier clients.
const PasswordVerificationWord = "HummingBot"

const (
	// DefaultBatchTimeout bounds one full decrypt-all pass scheduled at login.
	DefaultBatchTimeout = 30 * time.Second

	// DefaultFileTimeout bounds the work spent on any single secret file
	// inside the batch, so one pathological file cannot exhaust the batch
	// deadline on its own.
	DefaultFileTimeout = 5 * time.Second
)

// SecretBundle is the decrypted set of named credential fields for one
// connector.
type SecretBundle map[string]string

func (b SecretBundle) clone() SecretBundle {
	out := make(SecretBundle, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Field is one attribute of a connector configuration being saved.
type Field struct {
	Name      string
	Value     string
	Sensitive bool
}

// ConnectorConfig is the input to SaveSecret: the connector name plus its
// attributes in declaration order.
type ConnectorConfig struct {
	Connector string
	Fields    []Field
}

// Diagnostic records a single-connector failure during a decrypt-all pass.
type Diagnostic struct {
	Connector string
	Err       error
}

// Config adjusts vault behavior; zero values use the defaults above.
type Config struct {
	BatchTimeout time.Duration
	FileTimeout  time.Duration
	// EncryptOptions are applied to every encryption performed by the active
	// key manager (tests lower the KDF work factor this way).
	EncryptOptions []crypt.Option
}

// Vault is the process-wide credential vault. Construct one per process with
// New and share it by reference.
type Vault struct {
	logger       *zap.Logger
	store        Store
	sched        *scheduler.Scheduler
	batchTimeout time.Duration
	fileTimeout  time.Duration
	encryptOpts  []crypt.Option

	mu         sync.RWMutex
	keyManager *crypt.KeyManager
	secrets    map[string]SecretBundle

	// passMu serializes decrypt-all passes so a waiter woken by one pass
	// never observes the cleared cache of another.
	passMu sync.Mutex
	done   *event
}

// New creates a locked vault. No secrets are readable until Login succeeds.
func New(logger *zap.Logger, store Store, sched *scheduler.Scheduler, cfg Config) *Vault {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.FileTimeout <= 0 {
		cfg.FileTimeout = DefaultFileTimeout
	}
	return &Vault{
		logger:       logger,
		store:        store,
		sched:        sched,
		batchTimeout: cfg.BatchTimeout,
		fileTimeout:  cfg.FileTimeout,
		encryptOpts:  cfg.EncryptOptions,
		secrets:      map[string]SecretBundle{},
		done:         newEvent(),
	}
}

// IsFirstRun reports whether no password has been set yet.
func (v *Vault) IsFirstRun() (bool, error) {
	_, err := v.store.ReadVerification()
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// Login verifies password against the stored verification record. On first
// run the record is bootstrapped with this password. Success installs the key
// manager and schedules a full decrypt-all pass in the background; a wrong
// password returns (false, nil) with vault state unchanged.
func (v *Vault) Login(ctx context.Context, password string) (bool, error) {
	manager := crypt.NewKeyManager(password, v.encryptOpts...)

	stored, err := v.store.ReadVerification()
	switch {
	case errors.Is(err, errors.ErrNotFound):
		encrypted, err := manager.EncryptValue(PasswordVerificationWord, PasswordVerificationWord)
		if err != nil {
			return false, err
		}
		if err := v.store.WriteVerification(encrypted); err != nil {
			return false, err
		}
	case err != nil:
		return false, err
	default:
		word, err := manager.DecryptValue(PasswordVerificationWord, stored)
		if err != nil {
			if errors.IsIntegrity(err) {
				// Wrong password or corrupted record; the distinction is
				// logged for diagnostics but never surfaced to the user.
				v.logger.Debug("password verification failed", zap.Error(err))
				return false, nil
			}
			return false, err
		}
		if word != PasswordVerificationWord {
			return false, nil
		}
	}

	v.mu.Lock()
	v.keyManager = manager
	v.secrets = map[string]SecretBundle{}
	v.mu.Unlock()
	v.done.Clear()

	pending := v.sched.Submit(func(ctx context.Context) (any, error) {
		diags, err := v.DecryptAll(ctx)
		return diags, err
	}, v.batchTimeout, "All connector secrets decryption failed.")
	go func() {
		if result, err := pending.Wait(context.Background()); err != nil {
			v.logger.Error("background secrets decryption failed", zap.Error(err))
			// The pass may never have run (full queue, stopped scheduler);
			// release waiters rather than leaving them blocked forever.
			v.done.Set()
		} else if diags, ok := result.([]Diagnostic); ok {
			for _, d := range diags {
				v.logger.Warn("connector secrets unavailable",
					zap.String("connector", d.Connector), zap.Error(d.Err))
			}
		}
	}()
	return true, nil
}

// DecryptAll clears the cache and completion signal, decrypts every secret
// file on disk with the active key manager, then republishes the completion
// signal. Single-file failures are isolated into the returned diagnostics;
// those connectors are simply absent from the cache. The call is idempotent.
func (v *Vault) DecryptAll(ctx context.Context) ([]Diagnostic, error) {
	v.mu.RLock()
	manager := v.keyManager
	v.mu.RUnlock()
	if manager == nil {
		return nil, fmt.Errorf("vault is locked: no successful login yet")
	}

	v.passMu.Lock()
	defer v.passMu.Unlock()

	v.done.Clear()
	v.mu.Lock()
	v.secrets = map[string]SecretBundle{}
	v.mu.Unlock()

	names, err := v.store.List()
	if err != nil {
		v.done.Set()
		return nil, err
	}

	started := time.Now()
	var diags []Diagnostic
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			v.done.Set()
			return diags, err
		}
		fileCtx, cancel := context.WithTimeout(ctx, v.fileTimeout)
		bundle, err := v.decryptConnector(fileCtx, manager, name)
		cancel()
		if err != nil {
			diags = append(diags, Diagnostic{Connector: name, Err: err})
			continue
		}
		v.mu.Lock()
		v.secrets[name] = bundle
		v.mu.Unlock()
	}

	v.done.Set()
	v.logger.Info("secrets decryption pass finished",
		zap.Int("connectors", len(names)),
		zap.Int("failures", len(diags)),
		zap.Duration("elapsed", time.Since(started)))
	return diags, nil
}

// decryptConnector decrypts one connector's secret file. Values that parse
// as a version-3 envelope are decrypted; anything else is a plaintext field
// and passes through unchanged.
func (v *Vault) decryptConnector(ctx context.Context, manager *crypt.KeyManager, name string) (SecretBundle, error) {
	fields, err := v.store.Read(name)
	if err != nil {
		return nil, err
	}
	bundle := make(SecretBundle, len(fields))
	for attr, value := range fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if payload, err := crypt.DecodeHex(value); err != nil || payload.Crypto.Cipher == "" {
			bundle[attr] = value
			continue
		}
		decrypted, err := manager.DecryptValue(attr, value)
		if err != nil {
			return nil, err
		}
		bundle[attr] = decrypted
	}
	return bundle, nil
}

// WaitUntilDecryptionDone suspends the caller until the current decrypt-all
// pass completes. Returns immediately if decryption already finished.
func (v *Vault) WaitUntilDecryptionDone(ctx context.Context) error {
	return v.done.Wait(ctx)
}

// IsDecryptionDone reports whether the completion signal is currently set.
func (v *Vault) IsDecryptionDone() bool {
	return v.done.IsSet()
}

// SecretsFor returns a copy of one connector's decrypted secret bundle.
func (v *Vault) SecretsFor(connector string) (SecretBundle, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	bundle, ok := v.secrets[connector]
	if !ok {
		return nil, false
	}
	return bundle.clone(), true
}

// AllSecrets returns a copy of the full decrypted cache.
func (v *Vault) AllSecrets() map[string]SecretBundle {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]SecretBundle, len(v.secrets))
	for name, bundle := range v.secrets {
		out[name] = bundle.clone()
	}
	return out
}

// AnySecrets reports whether at least one connector has decrypted secrets.
func (v *Vault) AnySecrets() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.secrets) > 0
}

// HasSecretFile reports whether a secret file exists on disk for connector.
func (v *Vault) HasSecretFile(connector string) (bool, error) {
	_, err := v.store.Read(connector)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SaveSecret encrypts the sensitive fields of config with the active key
// manager, persists them, and updates the cache entry. Cache and disk never
// observably diverge once this returns.
func (v *Vault) SaveSecret(config ConnectorConfig) error {
	v.mu.RLock()
	manager := v.keyManager
	v.mu.RUnlock()
	if manager == nil {
		return fmt.Errorf("vault is locked: no successful login yet")
	}

	stored := make(map[string]string, len(config.Fields))
	bundle := make(SecretBundle, len(config.Fields))
	for _, f := range config.Fields {
		bundle[f.Name] = f.Value
		if f.Sensitive {
			encrypted, err := manager.EncryptValue(f.Name, f.Value)
			if err != nil {
				return err
			}
			stored[f.Name] = encrypted
		} else {
			stored[f.Name] = f.Value
		}
	}

	if err := v.store.Write(config.Connector, stored); err != nil {
		return err
	}
	v.mu.Lock()
	v.secrets[config.Connector] = bundle
	v.mu.Unlock()
	return nil
}

// RemoveSecret deletes the connector's secret file (tolerating absence) and
// evicts its cache entry.
func (v *Vault) RemoveSecret(connector string) error {
	if err := v.store.Remove(connector); err != nil {
		return err
	}
	v.mu.Lock()
	delete(v.secrets, connector)
	v.mu.Unlock()
	return nil
}
