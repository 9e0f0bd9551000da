// Package crypt implements the encrypted envelope used for exchange API
// secrets at rest. The on-disk format is a hex-encoded version-3 keystore
// JSON document (AES-128-CTR, PBKDF2 or scrypt key derivation, Keccak-256
// MAC), kept byte-compatible with previously written secret files.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	"github.com/kolibri-trade/kolibri/pkg/errors"
)

// KDF selects the key derivation algorithm recorded in the envelope.
type KDF string

const (
	KDFPBKDF2 KDF = "pbkdf2"
	KDFScrypt KDF = "scrypt"
)

const (
	// DKLen is the derived key length. The first half keys the cipher, the
	// second half keys the MAC.
	DKLen = 32

	saltLen = 16
	ivLen   = 16

	// Default work factors for each KDF.
	DefaultPBKDF2Iterations = 1000000
	DefaultScryptN          = 262144

	scryptR = 8
	scryptP = 1

	cipherName = "aes-128-ctr"
	version    = 3
)

// EncryptedPayload is the JSON envelope stored (hex-encoded) on disk.
type EncryptedPayload struct {
	Crypto  CryptoJSON `json:"crypto"`
	Version int        `json:"version"`
	Alias   string     `json:"alias"`
}

// CryptoJSON carries the cipher output and the KDF parameters needed to
// re-derive the key at decryption time.
type CryptoJSON struct {
	Cipher       string       `json:"cipher"`
	CipherParams CipherParams `json:"cipherparams"`
	Ciphertext   string       `json:"ciphertext"`
	KDF          string       `json:"kdf"`
	KDFParams    KDFParams    `json:"kdfparams"`
	MAC          string       `json:"mac"`
}

// CipherParams holds the hex-encoded CTR initial counter value.
type CipherParams struct {
	IV string `json:"iv"`
}

// KDFParams is the union of PBKDF2 and scrypt parameter sets; the zero
// fields of the unused algorithm are omitted from the JSON.
type KDFParams struct {
	C     int    `json:"c,omitempty"`
	DKLen int    `json:"dklen"`
	PRF   string `json:"prf,omitempty"`
	N     int    `json:"n,omitempty"`
	R     int    `json:"r,omitempty"`
	P     int    `json:"p,omitempty"`
	Salt  string `json:"salt"`
}

// DeriveKey derives a DKLen-byte key from password and salt. It is
// deterministic: identical inputs always yield identical output.
func DeriveKey(password, salt []byte, kdf KDF, workFactor int) ([]byte, error) {
	switch kdf {
	case KDFPBKDF2:
		if workFactor <= 0 {
			workFactor = DefaultPBKDF2Iterations
		}
		return pbkdf2.Key(password, salt, workFactor, DKLen, sha256.New), nil
	case KDFScrypt:
		if workFactor <= 0 {
			workFactor = DefaultScryptN
		}
		return scrypt.Key(password, salt, workFactor, scryptR, scryptP, DKLen)
	default:
		return nil, fmt.Errorf("unsupported KDF %q", kdf)
	}
}

// Option adjusts Encrypt behavior.
type Option func(*encryptOptions)

type encryptOptions struct {
	kdf        KDF
	workFactor int
}

// WithKDF selects the key derivation algorithm (default PBKDF2).
func WithKDF(kdf KDF) Option {
	return func(o *encryptOptions) { o.kdf = kdf }
}

// WithWorkFactor overrides the KDF work factor (iteration count for PBKDF2,
// N for scrypt). Intended for tests; production uses the defaults.
func WithWorkFactor(wf int) Option {
	return func(o *encryptOptions) { o.workFactor = wf }
}

// Encrypt encrypts plaintext under password with a fresh random salt and IV.
// The MAC is computed over derivedKey[16:32] || ciphertext so any tampering
// with the stored ciphertext is detected before decryption.
func Encrypt(plaintext, password []byte, opts ...Option) (*EncryptedPayload, error) {
	o := encryptOptions{kdf: KDFPBKDF2}
	for _, opt := range opts {
		opt(&o)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("salt generation failed: %w", err)
	}

	derivedKey, err := DeriveKey(password, salt, o.kdf, o.workFactor)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("iv generation failed: %w", err)
	}

	ciphertext, err := aesCTR(derivedKey[:16], iv, plaintext)
	if err != nil {
		return nil, err
	}
	mac := ethcrypto.Keccak256(derivedKey[16:32], ciphertext)

	kdfParams := KDFParams{
		DKLen: DKLen,
		Salt:  hex.EncodeToString(salt),
	}
	switch o.kdf {
	case KDFPBKDF2:
		kdfParams.C = o.workFactor
		if kdfParams.C <= 0 {
			kdfParams.C = DefaultPBKDF2Iterations
		}
		kdfParams.PRF = "hmac-sha256"
	case KDFScrypt:
		kdfParams.N = o.workFactor
		if kdfParams.N <= 0 {
			kdfParams.N = DefaultScryptN
		}
		kdfParams.R = scryptR
		kdfParams.P = scryptP
	}

	return &EncryptedPayload{
		Crypto: CryptoJSON{
			Cipher:       cipherName,
			CipherParams: CipherParams{IV: encodeIV(iv)},
			Ciphertext:   hex.EncodeToString(ciphertext),
			KDF:          string(o.kdf),
			KDFParams:    kdfParams,
			MAC:          hex.EncodeToString(mac),
		},
		Version: version,
		Alias:   "",
	}, nil
}

// Decrypt re-derives the key from the payload's own KDF parameters, verifies
// the MAC and only then decrypts. It returns an IntegrityError on MAC
// mismatch without revealing whether the password was wrong or the file
// corrupted.
func Decrypt(payload *EncryptedPayload, password []byte) ([]byte, error) {
	if payload.Version != version {
		return nil, fmt.Errorf("unsupported keyfile version %d", payload.Version)
	}
	if payload.Crypto.Cipher != cipherName {
		return nil, fmt.Errorf("unsupported cipher %q", payload.Crypto.Cipher)
	}

	salt, err := hex.DecodeString(payload.Crypto.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("malformed salt: %w", err)
	}
	ciphertext, err := hex.DecodeString(payload.Crypto.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("malformed ciphertext: %w", err)
	}
	storedMAC, err := hex.DecodeString(payload.Crypto.MAC)
	if err != nil {
		return nil, fmt.Errorf("malformed mac: %w", err)
	}
	iv, err := decodeIV(payload.Crypto.CipherParams.IV)
	if err != nil {
		return nil, fmt.Errorf("malformed iv: %w", err)
	}

	params := payload.Crypto.KDFParams
	var derivedKey []byte
	switch KDF(payload.Crypto.KDF) {
	case KDFPBKDF2:
		if params.PRF != "" && params.PRF != "hmac-sha256" {
			return nil, fmt.Errorf("unsupported PRF %q", params.PRF)
		}
		c := params.C
		if c <= 0 {
			c = DefaultPBKDF2Iterations
		}
		derivedKey = pbkdf2.Key(password, salt, c, DKLen, sha256.New)
	case KDFScrypt:
		r, p := params.R, params.P
		if r == 0 {
			r = scryptR
		}
		if p == 0 {
			p = scryptP
		}
		derivedKey, err = scrypt.Key(password, salt, params.N, r, p, DKLen)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported KDF %q", payload.Crypto.KDF)
	}
	return verifyAndDecrypt(derivedKey, iv, ciphertext, storedMAC)
}

func verifyAndDecrypt(derivedKey, iv, ciphertext, storedMAC []byte) ([]byte, error) {
	mac := ethcrypto.Keccak256(derivedKey[16:32], ciphertext)
	if subtle.ConstantTimeCompare(mac, storedMAC) != 1 {
		return nil, &errors.IntegrityError{}
	}
	return aesCTR(derivedKey[:16], iv, ciphertext)
}

func aesCTR(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher creation failed: %w", err)
	}
	out := make([]byte, len(data))
	cipher.NewCTR(block, iv).XORKeyStream(out, data)
	return out, nil
}

// encodeIV writes the IV the way legacy files do: as the hex form of a
// big-endian integer, leading zero bytes stripped.
func encodeIV(iv []byte) string {
	i := 0
	for i < len(iv)-1 && iv[i] == 0 {
		i++
	}
	return hex.EncodeToString(iv[i:])
}

// decodeIV left-pads the stored value back to the 16-byte CTR counter.
func decodeIV(s string) ([]byte, error) {
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) > ivLen {
		return nil, fmt.Errorf("iv longer than %d bytes", ivLen)
	}
	iv := make([]byte, ivLen)
	copy(iv[ivLen-len(raw):], raw)
	return iv, nil
}

// EncodeHex serializes the payload to the hex-encoded JSON form stored on
// disk.
func EncodeHex(payload *EncryptedPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("envelope serialization failed: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// DecodeHex parses the hex-encoded JSON form back into a payload.
func DecodeHex(value string) (*EncryptedPayload, error) {
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("malformed secret value: %w", err)
	}
	var payload EncryptedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	return &payload, nil
}
