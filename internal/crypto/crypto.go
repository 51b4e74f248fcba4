// Package crypto provides field-level encryption for locally persisted data.
// Uses AES-256-GCM for authenticated encryption with a key derived from the
// active session, so records written under one account are unreadable once
// another account signs in.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrInvalidCiphertext is returned when decryption fails.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrInvalidKey is returned when the key is invalid.
	ErrInvalidKey = errors.New("invalid key")
)

const (
	keySalt       = "notehub-local-store"
	keyIterations = 4096
	keyLength     = 32
)

// DeriveUserKey derives a 32-byte encryption key from the authenticated
// user id and session token. The same (userID, token) pair always yields
// the same key.
func DeriveUserKey(userID int64, token string) []byte {
	secret := fmt.Sprintf("%d:%s", userID, token)
	return pbkdf2.Key([]byte(secret), []byte(keySalt), keyIterations, keyLength, sha256.New)
}

// Cipher encrypts and decrypts string fields under a fixed key.
type Cipher struct {
	key []byte
}

// NewCipher creates a Cipher. The key must be non-empty; callers normally
// pass the output of DeriveUserKey.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) == 0 {
		return nil, ErrInvalidKey
	}
	return &Cipher{key: key}, nil
}

// EncryptString encrypts a string to a base64-encoded string.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	return Encrypt([]byte(plaintext), c.key)
}

// DecryptString decrypts a base64-encoded string produced by EncryptString.
func (c *Cipher) DecryptString(ciphertext string) (string, error) {
	plaintext, err := Decrypt(ciphertext, c.key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Encrypt encrypts plaintext using AES-256-GCM.
// The key is hashed with SHA-256 so any key length is accepted.
func Encrypt(plaintext, key []byte) (string, error) {
	derivedKey := sha256.Sum256(key)

	block, err := aes.NewCipher(derivedKey[:])
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	// Generate a random nonce
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	// Encrypt and authenticate
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)

	// Encode as base64 for storage
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts ciphertext that was encrypted with Encrypt.
func Decrypt(ciphertext string, key []byte) ([]byte, error) {
	derivedKey := sha256.Sum256(key)

	// Decode base64
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(derivedKey[:])
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	// Check minimum length
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	// Extract nonce and ciphertext
	nonce, cipherData := data[:nonceSize], data[nonceSize:]

	// Decrypt and verify
	plaintext, err := gcm.Open(nil, nonce, cipherData, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	return plaintext, nil
}
