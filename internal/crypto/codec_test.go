package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	tests := []struct {
		name       string
		plaintext  string
		passphrase string
	}{
		{"short text", "hello journal", "correct horse battery staple"},
		{"empty plaintext", "", "p"},
		{"unicode", "Тайный дневник 日記", "鍵となる言葉"},
		{"large body", string(make([]byte, 1<<20)), "long-passphrase-for-a-large-snapshot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, key, err := Encrypt([]byte(tt.plaintext), tt.passphrase)
			require.NoError(t, err)
			require.NotEmpty(t, env.Salt)
			require.NotEmpty(t, env.Nonce)
			require.Len(t, key, keySize)

			got, err := Decrypt(env, tt.passphrase)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, string(got))

			got, err = DecryptWithKey(env, key)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, string(got))
		})
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	env, _, err := Encrypt([]byte("private entries"), "right")
	require.NoError(t, err)

	_, err = Decrypt(env, "wrong")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptCorruptedCiphertext(t *testing.T) {
	env, _, err := Encrypt([]byte("private entries"), "pass")
	require.NoError(t, err)

	env.Ciphertext[0] ^= 0xFF
	_, err = Decrypt(env, "pass")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptBadNonce(t *testing.T) {
	env, _, err := Encrypt([]byte("private entries"), "pass")
	require.NoError(t, err)

	env.Nonce = env.Nonce[:len(env.Nonce)-1]
	_, err = Decrypt(env, "pass")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	assert.Equal(t, DeriveKey("pass", salt), DeriveKey("pass", salt))
	assert.NotEqual(t, DeriveKey("pass", salt), DeriveKey("pass2", salt))
}
