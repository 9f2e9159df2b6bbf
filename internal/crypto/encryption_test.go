package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewEncryptor(t *testing.T) {
	t.Run("valid 32-byte key", func(t *testing.T) {
		encryptor, err := NewEncryptor(testKey(t))
		require.NoError(t, err)
		require.NotNil(t, encryptor)
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := NewEncryptor("not-valid-base64!!!")
		assert.Error(t, err)
	})

	t.Run("wrong key length", func(t *testing.T) {
		key := make([]byte, 16)
		_, err := NewEncryptor(base64.StdEncoding.EncodeToString(key))
		assert.Error(t, err)
	})
}

func TestEncryptDecrypt(t *testing.T) {
	encryptor, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	testCases := []struct {
		name      string
		plaintext string
	}{
		{"simple secret", "app-password-123"},
		{"complex secret", "P@ssw0rd!#$%^&*()"},
		{"empty string", ""},
		{"unicode", "пароль密码🔐"},
		{"long token", "ya29.a0AfH6SMB-very-long-oauth-access-token-with-many-characters-to-test-longer-plaintexts"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ciphertext, err := encryptor.Encrypt(tc.plaintext)
			require.NoError(t, err)
			require.NotEmpty(t, ciphertext)

			decrypted, err := encryptor.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, decrypted)
		})
	}
}

func TestEncryptProducesDifferentCiphertext(t *testing.T) {
	encryptor, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	plaintext := "same secret"

	ciphertext1, err := encryptor.Encrypt(plaintext)
	require.NoError(t, err)
	ciphertext2, err := encryptor.Encrypt(plaintext)
	require.NoError(t, err)

	assert.NotEqual(t, string(ciphertext1), string(ciphertext2),
		"random nonce should make repeated encryptions differ")

	decrypted1, err := encryptor.Decrypt(ciphertext1)
	require.NoError(t, err)
	decrypted2, err := encryptor.Decrypt(ciphertext2)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted1)
	assert.Equal(t, plaintext, decrypted2)
}

func TestDecryptInvalidCiphertext(t *testing.T) {
	encryptor, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	t.Run("too short", func(t *testing.T) {
		_, err := encryptor.Decrypt([]byte("short"))
		assert.Error(t, err)
	})

	t.Run("corrupted data", func(t *testing.T) {
		ciphertext, err := encryptor.Encrypt("test")
		require.NoError(t, err)
		ciphertext[len(ciphertext)-1] ^= 0xFF

		_, err = encryptor.Decrypt(ciphertext)
		assert.Error(t, err)
	})
}

func TestChannelConfigRoundTrip(t *testing.T) {
	encryptor, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	cfg := &models.ChannelConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-token",
		Hostname:     "imap.example.com",
		Port:         993,
		Username:     "alice@example.com",
		Password:     "app-password",
		UseTLS:       true,
		Mailbox:      "INBOX",
		UserGoals:    []string{"triage recruiter mail quickly"},
	}

	blob, err := encryptor.EncryptConfig(cfg)
	require.NoError(t, err)

	got, err := encryptor.DecryptConfig(blob)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestDecryptConfigWrongKey(t *testing.T) {
	encryptor, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	otherKey := make([]byte, 32)
	for i := range otherKey {
		otherKey[i] = byte(255 - i)
	}
	other, err := NewEncryptor(base64.StdEncoding.EncodeToString(otherKey))
	require.NoError(t, err)

	blob, err := encryptor.EncryptConfig(&models.ChannelConfig{Password: "secret"})
	require.NoError(t, err)

	_, err = other.DecryptConfig(blob)
	assert.Error(t, err)
}
