package crypt

import (
	"fmt"

	"github.com/kolibri-trade/kolibri/pkg/errors"
)

// KeyManager binds a master password to the envelope codec. The password it
// holds is whatever the user typed at login; whether it is correct is only
// established by decrypting the password verification record.
type KeyManager struct {
	password []byte
	opts     []Option
}

// NewKeyManager creates a key manager for the given password. Options are
// applied to every Encrypt call (tests lower the work factor this way).
func NewKeyManager(password string, opts ...Option) *KeyManager {
	return &KeyManager{password: []byte(password), opts: opts}
}

// EncryptValue encrypts a single secret attribute value into its hex-encoded
// envelope form.
func (m *KeyManager) EncryptValue(attr, value string) (string, error) {
	if len(m.password) == 0 {
		return "", fmt.Errorf("could not encrypt secret attribute %q: no password was provided", attr)
	}
	payload, err := Encrypt([]byte(value), m.password, m.opts...)
	if err != nil {
		return "", fmt.Errorf("encrypting secret attribute %q: %w", attr, err)
	}
	return EncodeHex(payload)
}

// DecryptValue decrypts a hex-encoded envelope back to the attribute value.
// A MAC mismatch surfaces as an IntegrityError naming the attribute.
func (m *KeyManager) DecryptValue(attr, value string) (string, error) {
	if len(m.password) == 0 {
		return "", fmt.Errorf("could not decrypt secret attribute %q: no password was provided", attr)
	}
	payload, err := DecodeHex(value)
	if err != nil {
		return "", err
	}
	plaintext, err := Decrypt(payload, m.password)
	if err != nil {
		if errors.IsIntegrity(err) {
			return "", &errors.IntegrityError{Attr: attr}
		}
		return "", err
	}
	return string(plaintext), nil
}
