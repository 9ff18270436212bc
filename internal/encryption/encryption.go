// Package encryption stores provider API keys at rest with AES-256-GCM.
//
// The envelope is "base64(iv):base64(tag):base64(ciphertext)" with a 16 byte IV,
// which keeps keys written by earlier deployments readable.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	ivLength  = 16
	tagLength = 16
	keyLength = 32
)

var (
	ErrNotConfigured    = errors.New("AI_KEY_ENCRYPTION_SECRET is not configured")
	ErrEmptyPlaintext   = errors.New("cannot encrypt empty API key")
	ErrEmptyCiphertext  = errors.New("cannot decrypt empty data")
	ErrInvalidFormat    = errors.New("invalid encrypted data format")
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

var hexKey = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Encryptor encrypts and decrypts API keys with a key derived from the configured secret.
// A zero-secret Encryptor is valid and reports Configured() == false.
type Encryptor struct {
	key []byte
}

// New derives the AES-256 key from secret. An empty secret yields an unconfigured Encryptor.
func New(secret string) *Encryptor {
	if secret == "" {
		return &Encryptor{}
	}
	return &Encryptor{key: deriveKey(secret)}
}

func deriveKey(secret string) []byte {
	if hexKey.MatchString(secret) {
		if key, err := hex.DecodeString(secret); err == nil {
			return key
		}
	}

	if len(secret) == 44 && strings.HasSuffix(secret, "=") {
		if key, err := base64.StdEncoding.DecodeString(secret); err == nil && len(key) == keyLength {
			return key
		}
	}

	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Configured reports whether a secret was provided.
func (e *Encryptor) Configured() bool {
	return len(e.key) == keyLength
}

func (e *Encryptor) gcm() (cipher.AEAD, error) {
	if !e.Configured() {
		return nil, ErrNotConfigured
	}
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivLength)
}

// Encrypt seals plaintext into the iv:tag:ciphertext envelope.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	gcm, err := e.gcm()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	iv := make([]byte, ivLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagLength], sealed[len(sealed)-tagLength:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(iv),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ct),
	}, ":"), nil
}

// Decrypt opens an envelope produced by Encrypt.
func (e *Encryptor) Decrypt(data string) (string, error) {
	if data == "" {
		return "", ErrEmptyCiphertext
	}

	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return "", ErrInvalidFormat
	}

	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(iv) != ivLength {
		return "", fmt.Errorf("%w: bad iv", ErrInvalidFormat)
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(tag) != tagLength {
		return "", fmt.Errorf("%w: bad auth tag", ErrInvalidFormat)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext", ErrInvalidFormat)
	}

	gcm, err := e.gcm()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	plaintext, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

// DecryptOrPlain returns the decrypted key, or the stored value unchanged when
// encryption is not configured or the value does not decrypt (plain keys in development).
func (e *Encryptor) DecryptOrPlain(stored string) string {
	if stored == "" || !e.Configured() {
		return stored
	}
	plain, err := e.Decrypt(stored)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to decrypt API key, using as-is")
		return stored
	}
	return plain
}

// EncryptOrPlain encrypts key when a secret is configured and stores it as-is otherwise.
func (e *Encryptor) EncryptOrPlain(key string) (string, error) {
	if !e.Configured() {
		return key, nil
	}
	return e.Encrypt(key)
}

// MaskAPIKey shows the first 7 and last 4 characters of a key.
func MaskAPIKey(key string) string {
	if len(key) < 12 {
		return "***"
	}
	return key[:7] + "***..." + key[len(key)-4:]
}

// GenerateKey returns a fresh 32 byte secret, hex encoded.
func GenerateKey() (string, error) {
	buf := make([]byte, keyLength)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
