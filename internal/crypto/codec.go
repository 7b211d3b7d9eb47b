// Package crypto seals entry snapshots with a key derived from a
// user-supplied passphrase. The passphrase itself is never persisted; the
// envelope carries the salt needed to re-derive the key, and callers may
// retain the derived key for unattended decryption.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// ErrDecryption marks an authentication failure: wrong passphrase or
// corrupted ciphertext. It is terminal and must never be retried with the
// same inputs.
var ErrDecryption = errors.New("decryption failed: wrong passphrase or corrupted ciphertext")

const (
	saltSize   = 16
	keySize    = 32
	iterations = 210_000
)

// Envelope is one sealed payload: AES-256-GCM ciphertext plus the salt and
// nonce required to open it again.
type Envelope struct {
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
}

// DeriveKey stretches a passphrase into an AES-256 key via PBKDF2-SHA256.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)
}

// Encrypt seals plaintext under a fresh salt and nonce. The derived key is
// returned alongside the envelope so the caller can store it for unattended
// decryption later.
func Encrypt(plaintext []byte, passphrase string) (*Envelope, []byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := DeriveKey(passphrase, salt)
	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	env := &Envelope{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}
	return env, key, nil
}

// Decrypt re-derives the key from the passphrase and the envelope's salt and
// opens the ciphertext.
func Decrypt(env *Envelope, passphrase string) ([]byte, error) {
	return DecryptWithKey(env, DeriveKey(passphrase, env.Salt))
}

// DecryptWithKey opens the envelope with an already-derived key.
func DecryptWithKey(env *Envelope, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, ErrDecryption
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return aead, nil
}
