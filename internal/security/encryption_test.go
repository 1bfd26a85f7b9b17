package security

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"
)

func TestTokenCipherRoundTrip(t *testing.T) {
	c, err := NewTokenCipher("test-passphrase")
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}
	defer c.Zeroize()

	plaintext := "ya29.a0AfH6SMBx-token"
	ciphertext, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if ciphertext == plaintext {
		t.Error("ciphertext should differ from plaintext")
	}
	if !IsEncrypted(ciphertext) {
		t.Error("IsEncrypted should return true for encrypted text")
	}

	decrypted, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("Decrypt = %q, want %q", decrypted, plaintext)
	}
}

func TestTokenCipherDifferentCiphertextPerCall(t *testing.T) {
	c, err := NewTokenCipher("passphrase")
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}

	c1, _ := c.Encrypt("same input")
	c2, _ := c.Encrypt("same input")

	if c1 == c2 {
		t.Error("two encryptions of same plaintext should produce different ciphertext")
	}
}

func TestTokenCipherEmptyAndPlaintextPassthrough(t *testing.T) {
	c, err := NewTokenCipher("passphrase")
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}

	enc, err := c.Encrypt("")
	if err != nil || enc != "" {
		t.Errorf("Encrypt(\"\") = %q, %v; want empty", enc, err)
	}

	plain := "legacy-token"
	got, err := c.Decrypt(plain)
	if err != nil {
		t.Fatalf("Decrypt plaintext: %v", err)
	}
	if got != plain {
		t.Errorf("Decrypt = %q, want %q", got, plain)
	}
}

func TestTokenCipherReadableByNewInstance(t *testing.T) {
	first, err := NewTokenCipher("shared")
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}
	enc, err := first.Encrypt("refresh-token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// A restarted process derives a fresh salt but must still read old values.
	second, err := NewTokenCipher("shared")
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}
	got, err := second.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != "refresh-token" {
		t.Errorf("Decrypt = %q", got)
	}
}

func TestTokenCipherWrongPassphrase(t *testing.T) {
	a, _ := NewTokenCipher("right")
	b, _ := NewTokenCipher("wrong")

	enc, err := a.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := b.Decrypt(enc); err == nil {
		t.Error("expected error decrypting with the wrong passphrase")
	}
}

func TestTokenCipherMalformed(t *testing.T) {
	c, _ := NewTokenCipher("passphrase")

	tests := []struct {
		name  string
		value string
	}{
		{"bad base64", "enc:!!!"},
		{"shorter than salt", "enc:" + base64.StdEncoding.EncodeToString([]byte("short"))},
		{"no nonce", "enc:" + base64.StdEncoding.EncodeToString(make([]byte, saltSize+3))},
		{"tampered", "enc:" + base64.StdEncoding.EncodeToString(make([]byte, saltSize+40))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Decrypt(tt.value); err == nil {
				t.Errorf("Decrypt(%q) should fail", tt.value)
			}
		})
	}
}

func TestNewTokenCipherEmptyPassphrase(t *testing.T) {
	if _, err := NewTokenCipher(""); err == nil {
		t.Error("expected error for empty passphrase")
	}
}

func TestTokenCipherConcurrent(t *testing.T) {
	c, err := NewTokenCipher("concurrent")
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			enc, err := c.Encrypt("token")
			if err != nil {
				errs <- err
				return
			}
			if _, err := c.Decrypt(enc); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestIsEncrypted(t *testing.T) {
	if IsEncrypted("plain") {
		t.Error("plain text reported as encrypted")
	}
	if !IsEncrypted("enc:" + strings.Repeat("A", 8)) {
		t.Error("prefixed value not reported as encrypted")
	}
}
