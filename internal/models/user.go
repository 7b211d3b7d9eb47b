package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is the owner of schedules, identified solely by an API key. KeyID is
// the public lookup prefix embedded in the key; KeyHash is a bcrypt hash of
// the key's secret half, so the plaintext key is never persisted.
type User struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	KeyID     string    `gorm:"uniqueIndex;not null" json:"-"`
	KeyHash   string    `gorm:"not null" json:"-"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) SetKeySecret(secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.KeyHash = string(hash)
	return nil
}

func (u *User) CheckKeySecret(secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.KeyHash), []byte(secret)) == nil
}
