// Package auth issues and verifies the opaque API keys that scope every
// schedule to its owner.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/journalpost/internal/models"
	"gorm.io/gorm"
)

var ErrUnauthorized = errors.New("invalid or missing API key")

const keyPrefix = "je"

// Service issues API keys of the form je_<keyID>_<secret>. Only a bcrypt
// hash of the secret half is stored; the keyID half is the lookup handle.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Issue creates a new user and returns the plaintext API key. The key is
// shown exactly once; it cannot be recovered afterwards.
func (s *Service) Issue(ctx context.Context) (*models.User, string, error) {
	keyID, err := randomHex(8)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate key id: %w", err)
	}
	secret, err := randomHex(24)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate key secret: %w", err)
	}

	user := &models.User{
		ID:       uuid.NewString(),
		KeyID:    keyID,
		IsActive: true,
	}
	if err := user.SetKeySecret(secret); err != nil {
		return nil, "", fmt.Errorf("failed to hash key secret: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	return user, fmt.Sprintf("%s_%s_%s", keyPrefix, keyID, secret), nil
}

// Verify resolves a presented key to its owner, or ErrUnauthorized.
func (s *Service) Verify(ctx context.Context, presented string) (*models.User, error) {
	parts := strings.Split(presented, "_")
	if len(parts) != 3 || parts[0] != keyPrefix {
		return nil, ErrUnauthorized
	}
	keyID, secret := parts[1], parts[2]

	var user models.User
	err := s.db.WithContext(ctx).Where("key_id = ?", keyID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up key: %w", err)
	}
	if !user.IsActive || !user.CheckKeySecret(secret) {
		return nil, ErrUnauthorized
	}
	return &user, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
