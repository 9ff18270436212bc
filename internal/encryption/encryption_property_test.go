package encryption

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestProperty_EncryptDecrypt_RoundTrip tests that encryption is reversible
// *For any* non-empty API key and secret, Decrypt(Encrypt(key)) SHALL return the key.
func TestProperty_EncryptDecrypt_RoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		secret := rapid.StringMatching(`[a-zA-Z0-9]{8,80}`).Draw(rt, "secret")
		key := rapid.StringMatching(`sk-[a-zA-Z0-9_-]{1,120}`).Draw(rt, "key")

		enc := New(secret)
		sealed, err := enc.Encrypt(key)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}

		if strings.Count(sealed, ":") != 2 {
			t.Fatalf("PROPERTY VIOLATION: envelope must have three segments, got %q", sealed)
		}
		if strings.Contains(sealed, key) {
			t.Fatal("PROPERTY VIOLATION: envelope leaks the plaintext")
		}

		plain, err := enc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if plain != key {
			t.Fatalf("PROPERTY VIOLATION: round trip returned %q, want %q", plain, key)
		}
	})
}

// TestProperty_Encrypt_UniqueIV tests that every encryption uses a fresh IV
func TestProperty_Encrypt_UniqueIV(t *testing.T) {
	enc := New("unit-test-secret")
	rapid.Check(t, func(rt *rapid.T) {
		key := rapid.StringMatching(`[a-z]{12,40}`).Draw(rt, "key")
		a, err := enc.Encrypt(key)
		require.NoError(t, err)
		b, err := enc.Encrypt(key)
		require.NoError(t, err)
		if a == b {
			t.Fatal("PROPERTY VIOLATION: two encryptions of the same key must differ")
		}
	})
}

func TestDeriveKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	t.Run("hex secret is decoded", func(t *testing.T) {
		assert.Equal(t, raw, deriveKey(hex.EncodeToString(raw)))
	})

	t.Run("base64 secret is decoded", func(t *testing.T) {
		secret := base64.StdEncoding.EncodeToString(raw)
		require.Len(t, secret, 44)
		assert.Equal(t, raw, deriveKey(secret))
	})

	t.Run("other secrets are hashed", func(t *testing.T) {
		sum := sha256.Sum256([]byte("correct horse battery staple"))
		assert.Equal(t, sum[:], deriveKey("correct horse battery staple"))
	})
}

func TestDecrypt_Errors(t *testing.T) {
	enc := New("unit-test-secret")

	_, err := enc.Decrypt("")
	assert.ErrorIs(t, err, ErrEmptyCiphertext)

	_, err = enc.Decrypt("only:two")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	sealed, err := enc.Encrypt("sk-ant-api03-abcdefghijkl")
	require.NoError(t, err)

	_, err = New("another-secret").Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = enc.Encrypt("")
	assert.True(t, errors.Is(err, ErrEmptyPlaintext))
}

func TestDecryptOrPlain(t *testing.T) {
	enc := New("unit-test-secret")
	sealed, err := enc.Encrypt("gsk_live_key_1234567890")
	require.NoError(t, err)

	assert.Equal(t, "gsk_live_key_1234567890", enc.DecryptOrPlain(sealed))
	assert.Equal(t, "plain-dev-key", enc.DecryptOrPlain("plain-dev-key"))
	assert.Equal(t, sealed, New("").DecryptOrPlain(sealed))
}

func TestEncryptOrPlain_Unconfigured(t *testing.T) {
	enc := New("")
	assert.False(t, enc.Configured())

	stored, err := enc.EncryptOrPlain("sk-plain")
	require.NoError(t, err)
	assert.Equal(t, "sk-plain", stored)

	_, err = enc.Encrypt("sk-plain")
	assert.ErrorIs(t, err, ErrEncryptionFailed)
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "***", MaskAPIKey(""))
	assert.Equal(t, "***", MaskAPIKey("short-key"))
	assert.Equal(t, "sk-ant-***...wxyz", MaskAPIKey("sk-ant-REDACTED"))
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, key, 64)

	enc := New(key)
	assert.True(t, enc.Configured())
	decoded, _ := hex.DecodeString(key)
	assert.Equal(t, decoded, enc.key)
}
