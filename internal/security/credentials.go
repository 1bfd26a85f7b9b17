package security

import (
	"context"
	"fmt"

	"secretary-ai/internal/domain"
)

// EncryptedCredentialStore encrypts OAuth tokens before they reach the
// underlying store and decrypts them on the way out.
type EncryptedCredentialStore struct {
	inner  domain.CredentialStore
	cipher *TokenCipher
}

// NewEncryptedCredentialStore wraps inner.
func NewEncryptedCredentialStore(inner domain.CredentialStore, c *TokenCipher) *EncryptedCredentialStore {
	return &EncryptedCredentialStore{inner: inner, cipher: c}
}

// GetCredentials loads and decrypts a user's tokens. A token that cannot be
// decrypted is reported as an error rather than returned garbled.
func (s *EncryptedCredentialStore) GetCredentials(ctx context.Context, userID string) (*domain.CalendarCredentials, error) {
	creds, err := s.inner.GetCredentials(ctx, userID)
	if err != nil || creds == nil {
		return creds, err
	}
	out := *creds
	if out.AccessToken, err = s.cipher.Decrypt(creds.AccessToken); err != nil {
		return nil, domain.NewDomainError("credentials.decrypt", domain.ErrDecryption, fmt.Sprintf("access token for %s: %v", userID, err))
	}
	if out.RefreshToken, err = s.cipher.Decrypt(creds.RefreshToken); err != nil {
		return nil, domain.NewDomainError("credentials.decrypt", domain.ErrDecryption, fmt.Sprintf("refresh token for %s: %v", userID, err))
	}
	return &out, nil
}

// SaveCredentials encrypts the tokens and stores them. c is not modified.
func (s *EncryptedCredentialStore) SaveCredentials(ctx context.Context, c *domain.CalendarCredentials) error {
	enc := *c
	var err error
	if enc.AccessToken, err = s.cipher.Encrypt(c.AccessToken); err != nil {
		return domain.NewDomainError("credentials.encrypt", domain.ErrEncryption, err.Error())
	}
	if enc.RefreshToken, err = s.cipher.Encrypt(c.RefreshToken); err != nil {
		return domain.NewDomainError("credentials.encrypt", domain.ErrEncryption, err.Error())
	}
	return s.inner.SaveCredentials(ctx, &enc)
}

// DeleteCredentials removes a user's tokens.
func (s *EncryptedCredentialStore) DeleteCredentials(ctx context.Context, userID string) error {
	return s.inner.DeleteCredentials(ctx, userID)
}
