// Package envelope seals secrets (OAuth tokens, client secrets) for storage.
//
// An envelope is three colon separated hex segments: a random 16-byte IV, the 16-byte
// GCM authentication tag, and the ciphertext. The AES-256 key is the SHA-256 digest of
// the configured secret.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// MinSecretLength is the shortest secret accepted for sealing.
	MinSecretLength = 32

	ivSize    = 16
	tagSize   = 16
	separator = ":"
)

var (
	// ErrKeyMissing means the configured secret is absent or too short.
	ErrKeyMissing = errors.New("envelope: encryption secret missing or shorter than 32 characters")
	// ErrEmptyPlaintext is returned when asked to seal an empty value.
	ErrEmptyPlaintext = errors.New("envelope: empty plaintext")
	// ErrMalformedEnvelope means the value is not iv:tag:ciphertext.
	ErrMalformedEnvelope = errors.New("envelope: malformed envelope")
	// ErrReconnectRequired means authentication failed: the secret rotated or the data was
	// tampered with. Only a fresh authorization can recover from it.
	ErrReconnectRequired = errors.New("envelope: authentication failed, reconnect required")
)

// Encrypt seals plaintext with secret.
func Encrypt(plaintext, secret string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}
	gcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("envelope: generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, separator), nil
}

// Decrypt opens an envelope produced by Encrypt.
func Decrypt(envelope, secret string) (string, error) {
	parts := strings.Split(envelope, separator)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", fmt.Errorf("%w: expected 3 non-empty segments", ErrMalformedEnvelope)
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", fmt.Errorf("%w: iv must be %d bytes", ErrMalformedEnvelope, ivSize)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: tag must be %d bytes", ErrMalformedEnvelope, tagSize)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not hex", ErrMalformedEnvelope)
	}

	gcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrReconnectRequired
	}
	return string(plaintext), nil
}

// IsEnvelope reports whether value looks sealed. Values without the delimiter are
// legacy plaintext written before encryption was introduced.
func IsEnvelope(value string) bool {
	return strings.Contains(value, separator)
}

// Open returns the plaintext of value, passing legacy plaintext through unchanged.
func Open(value, secret string) (string, error) {
	if value == "" || !IsEnvelope(value) {
		return value, nil
	}
	return Decrypt(value, secret)
}

// IsReconnectRequired reports whether err can only be resolved by re-authorizing.
func IsReconnectRequired(err error) bool {
	return errors.Is(err, ErrReconnectRequired)
}

func newGCM(secret string) (cipher.AEAD, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrKeyMissing
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("envelope: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("envelope: gcm: %w", err)
	}
	return gcm, nil
}
