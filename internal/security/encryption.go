// Package security holds at-rest protection for stored secrets.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	encPrefix = "enc:"
	saltSize  = 16
)

// TokenCipher encrypts short secrets with AES-256-GCM under a key derived
// from a passphrase via Argon2id. Each value carries its salt, so values
// written by earlier processes stay readable.
type TokenCipher struct {
	mu         sync.Mutex
	passphrase []byte
	salt       []byte            // salt used for new values
	keys       map[string][]byte // derived key by salt
}

// NewTokenCipher creates a cipher from a passphrase.
// Returns error if passphrase is empty.
func NewTokenCipher(passphrase string) (*TokenCipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	c := &TokenCipher{
		passphrase: []byte(passphrase),
		salt:       salt,
		keys:       make(map[string][]byte),
	}
	c.keys[string(salt)] = deriveContentKey(c.passphrase, salt)
	return c, nil
}

// Encrypt returns "enc:" + base64(salt + nonce + ciphertext). The empty
// string is returned unchanged.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	c.mu.Lock()
	salt := c.salt
	c.mu.Unlock()

	gcm, err := c.gcm(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Values without the "enc:" prefix are returned
// as-is, so rows written before encryption was enabled still load.
func (c *TokenCipher) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	if len(data) < saltSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	gcm, err := c.gcm(data[:saltSize])
	if err != nil {
		return "", err
	}
	data = data[saltSize:]

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted checks if a string has the "enc:" prefix.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, encPrefix)
}

// Zeroize clears the passphrase and derived keys from memory. Call on shutdown.
func (c *TokenCipher) Zeroize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.passphrase {
		c.passphrase[i] = 0
	}
	for salt, key := range c.keys {
		for i := range key {
			key[i] = 0
		}
		delete(c.keys, salt)
	}
}

func (c *TokenCipher) gcm(salt []byte) (cipher.AEAD, error) {
	c.mu.Lock()
	key, ok := c.keys[string(salt)]
	if !ok {
		key = deriveContentKey(c.passphrase, salt)
		c.keys[string(salt)] = key
	}
	c.mu.Unlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveContentKey uses Argon2id to derive a 32-byte key.
func deriveContentKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}
