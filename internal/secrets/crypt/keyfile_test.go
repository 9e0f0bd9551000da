package crypt_test

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolibri-trade/kolibri/internal/secrets/crypt"
	"github.com/kolibri-trade/kolibri/pkg/errors"
)

// Work factors are lowered throughout so the suite stays fast; the envelope
// records whatever was used, so decryption is unaffected.
const testWorkFactor = 16

func testOpts(kdf crypt.KDF) []crypt.Option {
	return []crypt.Option{crypt.WithKDF(kdf), crypt.WithWorkFactor(testWorkFactor)}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	for _, kdf := range []crypt.KDF{crypt.KDFPBKDF2, crypt.KDFScrypt} {
		t.Run(string(kdf), func(t *testing.T) {
			plaintext := []byte("super-secret-api-key")
			password := []byte("hunter2")

			payload, err := crypt.Encrypt(plaintext, password, testOpts(kdf)...)
			require.NoError(t, err)

			decrypted, err := crypt.Decrypt(payload, password)
			require.NoError(t, err)
			assert.Equal(t, plaintext, decrypted)
		})
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	payload, err := crypt.Encrypt([]byte("payload"), []byte("right"), testOpts(crypt.KDFPBKDF2)...)
	require.NoError(t, err)

	_, err = crypt.Decrypt(payload, []byte("wrong"))
	require.Error(t, err)
	assert.True(t, errors.IsIntegrity(err), "wrong password must surface as an integrity failure, got %v", err)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	password := []byte("pw")
	payload, err := crypt.Encrypt([]byte("tamper-target"), password, testOpts(crypt.KDFPBKDF2)...)
	require.NoError(t, err)

	raw, err := hex.DecodeString(payload.Crypto.Ciphertext)
	require.NoError(t, err)

	// Flip one bit at a time; every position must be caught by the MAC.
	for i := range raw {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[i] ^= 0x01

		tampered := *payload
		tampered.Crypto.Ciphertext = hex.EncodeToString(mutated)
		_, err := crypt.Decrypt(&tampered, password)
		assert.True(t, errors.IsIntegrity(err), "bit flip at byte %d not detected", i)
	}
}

func TestDecryptTamperedMAC(t *testing.T) {
	password := []byte("pw")
	payload, err := crypt.Encrypt([]byte("tamper-target"), password, testOpts(crypt.KDFPBKDF2)...)
	require.NoError(t, err)

	raw, err := hex.DecodeString(payload.Crypto.MAC)
	require.NoError(t, err)
	raw[0] ^= 0x80
	payload.Crypto.MAC = hex.EncodeToString(raw)

	_, err = crypt.Decrypt(payload, password)
	assert.True(t, errors.IsIntegrity(err))
}

func TestEncryptFreshSaltAndCiphertext(t *testing.T) {
	plaintext := []byte("same plaintext")
	password := []byte("same password")

	first, err := crypt.Encrypt(plaintext, password, testOpts(crypt.KDFPBKDF2)...)
	require.NoError(t, err)
	second, err := crypt.Encrypt(plaintext, password, testOpts(crypt.KDFPBKDF2)...)
	require.NoError(t, err)

	assert.NotEqual(t, first.Crypto.KDFParams.Salt, second.Crypto.KDFParams.Salt)
	assert.NotEqual(t, first.Crypto.Ciphertext, second.Crypto.Ciphertext)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	a, err := crypt.DeriveKey([]byte("pw"), salt, crypt.KDFPBKDF2, testWorkFactor)
	require.NoError(t, err)
	b, err := crypt.DeriveKey([]byte("pw"), salt, crypt.KDFPBKDF2, testWorkFactor)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, crypt.DKLen)

	c, err := crypt.DeriveKey([]byte("pw"), salt, crypt.KDFScrypt, testWorkFactor)
	require.NoError(t, err)
	assert.Len(t, c, crypt.DKLen)
	assert.NotEqual(t, a, c)
}

func TestDeriveKeyUnknownAlgorithm(t *testing.T) {
	_, err := crypt.DeriveKey([]byte("pw"), []byte("salt"), crypt.KDF("argon2"), 1)
	assert.Error(t, err)
}

func TestEnvelopeLayout(t *testing.T) {
	payload, err := crypt.Encrypt([]byte("x"), []byte("pw"), testOpts(crypt.KDFPBKDF2)...)
	require.NoError(t, err)

	assert.Equal(t, "aes-128-ctr", payload.Crypto.Cipher)
	assert.Equal(t, 3, payload.Version)
	assert.Equal(t, "", payload.Alias)
	assert.Equal(t, "pbkdf2", payload.Crypto.KDF)
	assert.Equal(t, "hmac-sha256", payload.Crypto.KDFParams.PRF)
	assert.Equal(t, crypt.DKLen, payload.Crypto.KDFParams.DKLen)
	assert.Equal(t, testWorkFactor, payload.Crypto.KDFParams.C)
	// PBKDF2 envelopes must not leak scrypt fields.
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"n":`)
	assert.NotContains(t, string(raw), `"r":`)

	scryptPayload, err := crypt.Encrypt([]byte("x"), []byte("pw"), testOpts(crypt.KDFScrypt)...)
	require.NoError(t, err)
	assert.Equal(t, "scrypt", scryptPayload.Crypto.KDF)
	assert.Equal(t, testWorkFactor, scryptPayload.Crypto.KDFParams.N)
	assert.Zero(t, scryptPayload.Crypto.KDFParams.C)
}

func TestHexEncodingRoundTrip(t *testing.T) {
	payload, err := crypt.Encrypt([]byte("value"), []byte("pw"), testOpts(crypt.KDFScrypt)...)
	require.NoError(t, err)

	encoded, err := crypt.EncodeHex(payload)
	require.NoError(t, err)
	decoded, err := crypt.DecodeHex(encoded)
	require.NoError(t, err)

	plaintext, err := crypt.Decrypt(decoded, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, "value", string(plaintext))
}

func TestDecodeHexMalformed(t *testing.T) {
	_, err := crypt.DecodeHex("not hex at all")
	assert.Error(t, err)

	_, err = crypt.DecodeHex(hex.EncodeToString([]byte("{not json")))
	assert.Error(t, err)
}

func TestShortIVRoundTrip(t *testing.T) {
	// Legacy writers strip leading zero bytes from the IV; keep encrypting
	// until we hit one and confirm it still round-trips.
	password := []byte("pw")
	for i := 0; i < 512; i++ {
		payload, err := crypt.Encrypt([]byte("short-iv"), password, testOpts(crypt.KDFPBKDF2)...)
		require.NoError(t, err)
		if len(payload.Crypto.CipherParams.IV) == 32 {
			continue
		}
		decrypted, err := crypt.Decrypt(payload, password)
		require.NoError(t, err)
		assert.Equal(t, "short-iv", string(decrypted))
		return
	}
	t.Skip("no short IV produced in 512 attempts")
}

func TestKeyManagerValueRoundTrip(t *testing.T) {
	m := crypt.NewKeyManager("pw", crypt.WithWorkFactor(testWorkFactor))

	encrypted, err := m.EncryptValue("binance_api_key", "ABCDEF")
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "ABCDEF")

	decrypted, err := m.DecryptValue("binance_api_key", encrypted)
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF", decrypted)
}

func TestKeyManagerWrongPassword(t *testing.T) {
	m := crypt.NewKeyManager("pw1", crypt.WithWorkFactor(testWorkFactor))
	encrypted, err := m.EncryptValue("attr", "value")
	require.NoError(t, err)

	other := crypt.NewKeyManager("pw2", crypt.WithWorkFactor(testWorkFactor))
	_, err = other.DecryptValue("attr", encrypted)
	require.Error(t, err)
	assert.True(t, errors.IsIntegrity(err))
}

func TestKeyManagerNoPassword(t *testing.T) {
	m := crypt.NewKeyManager("")
	_, err := m.EncryptValue("attr", "value")
	assert.Error(t, err)
	_, err = m.DecryptValue("attr", "00")
	assert.Error(t, err)
}
