package vault_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kolibri-trade/kolibri/internal/scheduler"
	"github.com/kolibri-trade/kolibri/internal/secrets/crypt"
	"github.com/kolibri-trade/kolibri/internal/secrets/vault"
)

const testWorkFactor = 16

func newTestVault(t *testing.T, root string) *vault.Vault {
	t.Helper()
	store, err := vault.NewFileStore(root)
	require.NoError(t, err)
	sched := scheduler.New(zap.NewNop(), scheduler.Config{CallInterval: time.Millisecond})
	t.Cleanup(sched.Stop)
	return vault.New(zap.NewNop(), store, sched, vault.Config{
		EncryptOptions: []crypt.Option{crypt.WithWorkFactor(testWorkFactor)},
	})
}

func waitDone(t *testing.T, v *vault.Vault) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, v.WaitUntilDecryptionDone(ctx))
}

func TestFirstRunLoginBootstrapsVerification(t *testing.T) {
	root := t.TempDir()
	v := newTestVault(t, root)

	first, err := v.IsFirstRun()
	require.NoError(t, err)
	assert.True(t, first)

	ok, err := v.Login(context.Background(), "pw1")
	require.NoError(t, err)
	assert.True(t, ok)

	first, err = v.IsFirstRun()
	require.NoError(t, err)
	assert.False(t, first)

	// A second process instance against the same conf dir: wrong password
	// is rejected, right password accepted.
	other := newTestVault(t, root)
	ok, err = other.Login(context.Background(), "pw2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = other.Login(context.Background(), "pw1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSaveSecretRoundTrip(t *testing.T) {
	root := t.TempDir()
	v := newTestVault(t, root)
	ok, err := v.Login(context.Background(), "pw")
	require.NoError(t, err)
	require.True(t, ok)
	waitDone(t, v)

	cfg := vault.ConnectorConfig{
		Connector: "binance",
		Fields: []vault.Field{
			{Name: "connector", Value: "binance"},
			{Name: "binance_api_key", Value: "API-KEY", Sensitive: true},
			{Name: "binance_api_secret", Value: "API-SECRET", Sensitive: true},
		},
	}
	require.NoError(t, v.SaveSecret(cfg))

	// Sensitive plaintext must not appear on disk.
	raw, err := os.ReadFile(filepath.Join(root, "connectors", "binance.yml"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "API-KEY")
	assert.NotContains(t, string(raw), "API-SECRET")
	assert.Contains(t, string(raw), "binance")

	// Cache reflects the save immediately.
	bundle, found := v.SecretsFor("binance")
	require.True(t, found)
	assert.Equal(t, "API-KEY", bundle["binance_api_key"])

	// A fresh vault over the same files recovers the same bundle.
	reopened := newTestVault(t, root)
	ok, err = reopened.Login(context.Background(), "pw")
	require.NoError(t, err)
	require.True(t, ok)
	waitDone(t, reopened)

	bundle, found = reopened.SecretsFor("binance")
	require.True(t, found)
	assert.Equal(t, "API-KEY", bundle["binance_api_key"])
	assert.Equal(t, "API-SECRET", bundle["binance_api_secret"])
	assert.Equal(t, "binance", bundle["connector"])
}

func TestDecryptAllIdempotent(t *testing.T) {
	root := t.TempDir()
	v := newTestVault(t, root)
	ok, err := v.Login(context.Background(), "pw")
	require.NoError(t, err)
	require.True(t, ok)
	waitDone(t, v)

	require.NoError(t, v.SaveSecret(vault.ConnectorConfig{
		Connector: "kucoin",
		Fields:    []vault.Field{{Name: "kucoin_api_key", Value: "k", Sensitive: true}},
	}))

	diags, err := v.DecryptAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diags)
	first := v.AllSecrets()

	diags, err = v.DecryptAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, first, v.AllSecrets())
	assert.True(t, v.IsDecryptionDone())
}

func TestDecryptAllIsolatesCorruptFile(t *testing.T) {
	root := t.TempDir()
	v := newTestVault(t, root)
	ok, err := v.Login(context.Background(), "pw")
	require.NoError(t, err)
	require.True(t, ok)
	waitDone(t, v)

	require.NoError(t, v.SaveSecret(vault.ConnectorConfig{
		Connector: "gate_io",
		Fields:    []vault.Field{{Name: "gate_io_api_key", Value: "g", Sensitive: true}},
	}))

	// A file encrypted under a different password fails its MAC check but
	// must not abort the pass.
	foreign := crypt.NewKeyManager("other-password", crypt.WithWorkFactor(testWorkFactor))
	encrypted, err := foreign.EncryptValue("bybit_api_key", "b")
	require.NoError(t, err)
	store, err := vault.NewFileStore(root)
	require.NoError(t, err)
	require.NoError(t, store.Write("bybit", map[string]string{"bybit_api_key": encrypted}))

	diags, err := v.DecryptAll(context.Background())
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "bybit", diags[0].Connector)

	_, found := v.SecretsFor("bybit")
	assert.False(t, found)
	bundle, found := v.SecretsFor("gate_io")
	require.True(t, found)
	assert.Equal(t, "g", bundle["gate_io_api_key"])
	assert.True(t, v.IsDecryptionDone())
}

func TestSecretsForReturnsCopy(t *testing.T) {
	root := t.TempDir()
	v := newTestVault(t, root)
	ok, err := v.Login(context.Background(), "pw")
	require.NoError(t, err)
	require.True(t, ok)
	waitDone(t, v)

	require.NoError(t, v.SaveSecret(vault.ConnectorConfig{
		Connector: "binance",
		Fields:    []vault.Field{{Name: "binance_api_key", Value: "original", Sensitive: true}},
	}))

	bundle, found := v.SecretsFor("binance")
	require.True(t, found)
	bundle["binance_api_key"] = "mutated"

	again, _ := v.SecretsFor("binance")
	assert.Equal(t, "original", again["binance_api_key"])

	all := v.AllSecrets()
	all["binance"]["binance_api_key"] = "mutated"
	again, _ = v.SecretsFor("binance")
	assert.Equal(t, "original", again["binance_api_key"])
}

func TestRemoveSecret(t *testing.T) {
	root := t.TempDir()
	v := newTestVault(t, root)
	ok, err := v.Login(context.Background(), "pw")
	require.NoError(t, err)
	require.True(t, ok)
	waitDone(t, v)

	require.NoError(t, v.SaveSecret(vault.ConnectorConfig{
		Connector: "binance",
		Fields:    []vault.Field{{Name: "binance_api_key", Value: "k", Sensitive: true}},
	}))
	exists, err := v.HasSecretFile("binance")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, v.RemoveSecret("binance"))
	_, found := v.SecretsFor("binance")
	assert.False(t, found)
	exists, err = v.HasSecretFile("binance")
	require.NoError(t, err)
	assert.False(t, exists)

	// Removing an already-absent secret is not an error.
	require.NoError(t, v.RemoveSecret("binance"))
}

func TestLockedVaultRejectsOperations(t *testing.T) {
	v := newTestVault(t, t.TempDir())

	_, err := v.DecryptAll(context.Background())
	assert.Error(t, err)

	err = v.SaveSecret(vault.ConnectorConfig{Connector: "binance"})
	assert.Error(t, err)
}

func TestLoginSchedulesBackgroundDecryption(t *testing.T) {
	root := t.TempDir()

	// Seed a secret file with a first vault.
	seed := newTestVault(t, root)
	ok, err := seed.Login(context.Background(), "pw")
	require.NoError(t, err)
	require.True(t, ok)
	waitDone(t, seed)
	require.NoError(t, seed.SaveSecret(vault.ConnectorConfig{
		Connector: "binance",
		Fields:    []vault.Field{{Name: "binance_api_key", Value: "k", Sensitive: true}},
	}))

	// Login alone must eventually populate the cache without an explicit
	// DecryptAll call.
	v := newTestVault(t, root)
	ok, err = v.Login(context.Background(), "pw")
	require.NoError(t, err)
	require.True(t, ok)
	waitDone(t, v)

	bundle, found := v.SecretsFor("binance")
	require.True(t, found)
	assert.Equal(t, "k", bundle["binance_api_key"])
}

func TestLoginReleasesWaitersWhenSchedulerRejects(t *testing.T) {
	root := t.TempDir()
	store, err := vault.NewFileStore(root)
	require.NoError(t, err)
	sched := scheduler.New(zap.NewNop(), scheduler.Config{CallInterval: time.Millisecond, QueueSize: 1})
	t.Cleanup(sched.Stop)
	v := vault.New(zap.NewNop(), store, sched, vault.Config{
		EncryptOptions: []crypt.Option{crypt.WithWorkFactor(testWorkFactor)},
	})

	// Pin the dispatch loop and fill the single queue slot so the decrypt
	// pass scheduled by Login is rejected outright.
	started := make(chan struct{})
	release := make(chan struct{})
	blocker := sched.Submit(func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	}, time.Minute, "blocker")
	<-started
	filler := sched.Submit(func(ctx context.Context) (any, error) { return nil, nil }, time.Minute, "filler")

	ok, err := v.Login(context.Background(), "pw")
	require.NoError(t, err)
	require.True(t, ok)

	// The rejected pass must still release waiters instead of leaving them
	// blocked until their context dies.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, v.WaitUntilDecryptionDone(ctx))

	close(release)
	_, _ = blocker.Wait(context.Background())
	_, _ = filler.Wait(context.Background())
}

// countingStore tracks how many Read calls overlap in time.
type countingStore struct {
	vault.Store
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (s *countingStore) Read(name string) (map[string]string, error) {
	s.mu.Lock()
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.mu.Unlock()
	time.Sleep(2 * time.Millisecond)
	fields, err := s.Store.Read(name)
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return fields, err
}

func (s *countingStore) maxConcurrentReads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

func TestConcurrentDecryptAllPassesSerialize(t *testing.T) {
	root := t.TempDir()
	seed := newTestVault(t, root)
	ok, err := seed.Login(context.Background(), "pw")
	require.NoError(t, err)
	require.True(t, ok)
	waitDone(t, seed)
	for _, name := range []string{"binance", "kucoin", "gate_io"} {
		require.NoError(t, seed.SaveSecret(vault.ConnectorConfig{
			Connector: name,
			Fields:    []vault.Field{{Name: name + "_api_key", Value: "k", Sensitive: true}},
		}))
	}

	inner, err := vault.NewFileStore(root)
	require.NoError(t, err)
	store := &countingStore{Store: inner}
	sched := scheduler.New(zap.NewNop(), scheduler.Config{CallInterval: time.Millisecond})
	t.Cleanup(sched.Stop)
	v := vault.New(zap.NewNop(), store, sched, vault.Config{
		EncryptOptions: []crypt.Option{crypt.WithWorkFactor(testWorkFactor)},
	})
	ok, err = v.Login(context.Background(), "pw")
	require.NoError(t, err)
	require.True(t, ok)

	// Several passes at once, plus the one Login scheduled: they must run
	// one at a time, never interleaving their cache rebuilds.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			diags, err := v.DecryptAll(context.Background())
			assert.NoError(t, err)
			assert.Empty(t, diags)
		}()
	}
	wg.Wait()
	waitDone(t, v)

	assert.Equal(t, 1, store.maxConcurrentReads())
	assert.Len(t, v.AllSecrets(), 3)
}
