package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kolibri-trade/kolibri/pkg/errors"
)

const (
	connectorsDirName    = "connectors"
	secretFileSuffix     = ".yml"
	verificationFileName = ".password_verification"
)

// Store abstracts the secret-file layout so the vault can be tested against
// an in-memory implementation and composed with whatever conf directory the
// client uses.
type Store interface {
	// List returns the connector names that have a secret file, sorted.
	List() ([]string, error)
	// Read returns the raw field map of one connector's secret file.
	// Missing files return errors.ErrNotFound.
	Read(connector string) (map[string]string, error)
	// Write persists the raw field map for one connector.
	Write(connector string, fields map[string]string) error
	// Remove deletes a connector's secret file, tolerating absence.
	Remove(connector string) error
	// ReadVerification returns the stored password verification value, or
	// errors.ErrNotFound when no password has been set yet.
	ReadVerification() (string, error)
	// WriteVerification stores the password verification value.
	WriteVerification(value string) error
}

// FileStore is the on-disk Store rooted at the client conf directory:
// <root>/connectors/<name>.yml per connector plus <root>/.password_verification.
type FileStore struct {
	root string
}

// NewFileStore creates the store and its connectors directory.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(root, connectorsDirName), 0o700); err != nil {
		return nil, fmt.Errorf("creating connectors directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) secretPath(connector string) string {
	return filepath.Join(s.root, connectorsDirName, connector+secretFileSuffix)
}

func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, connectorsDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing secret files: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), secretFileSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), secretFileSuffix))
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) Read(connector string) (map[string]string, error) {
	raw, err := os.ReadFile(s.secretPath(connector))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("reading secret file for %q: %w", connector, err)
	}
	fields := map[string]string{}
	if err := yaml.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parsing secret file for %q: %w", connector, err)
	}
	return fields, nil
}

func (s *FileStore) Write(connector string, fields map[string]string) error {
	raw, err := yaml.Marshal(fields)
	if err != nil {
		return fmt.Errorf("serializing secret file for %q: %w", connector, err)
	}
	if err := os.WriteFile(s.secretPath(connector), raw, 0o600); err != nil {
		return fmt.Errorf("writing secret file for %q: %w", connector, err)
	}
	return nil
}

func (s *FileStore) Remove(connector string) error {
	if err := os.Remove(s.secretPath(connector)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing secret file for %q: %w", connector, err)
	}
	return nil
}

func (s *FileStore) ReadVerification() (string, error) {
	raw, err := os.ReadFile(filepath.Join(s.root, verificationFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.ErrNotFound
		}
		return "", fmt.Errorf("reading password verification file: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s *FileStore) WriteVerification(value string) error {
	path := filepath.Join(s.root, verificationFileName)
	if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
		return fmt.Errorf("writing password verification file: %w", err)
	}
	return nil
}
