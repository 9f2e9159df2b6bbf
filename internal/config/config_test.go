package config

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	t.Setenv("AIHUB_ENV", "test")
	t.Setenv("AIHUB_ENCRYPTION_KEY_BASE64", key)
	t.Setenv("AIHUB_DB_PASSWORD", "secret")
}

func TestNewDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "localhost", cfg.DBHost)
	assert.Equal(t, "5432", cfg.DBPort)
	assert.Equal(t, "aihub", cfg.DBUsername)
	assert.Equal(t, "aihub", cfg.DBName)
	assert.Equal(t, "8080", cfg.Port)

	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 5, cfg.SyncMaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.SyncBackoffBase)

	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, 4, cfg.AIWorkers)
	assert.Equal(t, 3, cfg.AIMaxAttempts)
	assert.Equal(t, 8000, cfg.AITokenBudget)
	assert.Equal(t, 10*time.Minute, cfg.AIReaperTimeout)
}

func TestNewOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AIHUB_SYNC_INTERVAL", "90s")
	t.Setenv("AIHUB_AI_WORKERS", "8")
	t.Setenv("AIHUB_AI_TOKEN_BUDGET", "2000")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.SyncInterval)
	assert.Equal(t, 8, cfg.AIWorkers)
	assert.Equal(t, 2000, cfg.AITokenBudget)
}

func TestValidate(t *testing.T) {
	t.Run("missing encryption key", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("AIHUB_ENCRYPTION_KEY_BASE64", "")

		_, err := New()
		assert.Error(t, err)
	})

	t.Run("missing db password", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("AIHUB_DB_PASSWORD", "")

		_, err := New()
		assert.Error(t, err)
	})

	t.Run("invalid attempt counts", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("AIHUB_SYNC_MAX_ATTEMPTS", "0")

		_, err := New()
		assert.Error(t, err)
	})
}

func TestGetDatabaseURL(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.internal",
		DBPort:     "5433",
		DBUsername: "svc",
		DBPassword: "pw",
		DBName:     "aihub",
		DBSSLMode:  "require",
	}
	assert.Equal(t, "postgres://svc:pw@db.internal:5433/aihub?sslmode=require", cfg.GetDatabaseURL())
}
