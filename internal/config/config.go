package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	DBHost              string
	DBPort              string
	DBUsername          string
	DBPassword          string
	DBName              string
	DBSSLMode           string
	Port                string
	Timezone            string

	// Sync orchestration
	SyncInterval    time.Duration
	SyncMaxAttempts int
	SyncBackoffBase time.Duration

	// AI processing
	OpenAIKey       string
	OpenAIModel     string
	AIWorkers       int
	AIMaxAttempts   int
	AITokenBudget   int
	AIBackoffBase   time.Duration
	AIReaperTimeout time.Duration
}

func New() (*Config, error) {
	env := os.Getenv("AIHUB_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: os.Getenv("AIHUB_ENCRYPTION_KEY_BASE64"),
		DBHost:              getEnvOrDefault("AIHUB_DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("AIHUB_DB_PORT", "5432"),
		DBUsername:          getEnvOrDefault("AIHUB_DB_USER", "aihub"),
		DBPassword:          os.Getenv("AIHUB_DB_PASSWORD"),
		DBName:              getEnvOrDefault("AIHUB_DB_NAME", "aihub"),
		DBSSLMode:           getEnvOrDefault("AIHUB_DB_SSLMODE", "disable"),
		Port:                getEnvOrDefault("PORT", "8080"),
		Timezone:            getEnvOrDefault("TZ", "UTC"),

		SyncInterval:    getEnvDuration("AIHUB_SYNC_INTERVAL", 5*time.Minute),
		SyncMaxAttempts: getEnvInt("AIHUB_SYNC_MAX_ATTEMPTS", 5),
		SyncBackoffBase: getEnvDuration("AIHUB_SYNC_BACKOFF_BASE", 30*time.Second),

		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     getEnvOrDefault("AIHUB_OPENAI_MODEL", "gpt-4o-mini"),
		AIWorkers:       getEnvInt("AIHUB_AI_WORKERS", 4),
		AIMaxAttempts:   getEnvInt("AIHUB_AI_MAX_ATTEMPTS", 3),
		AITokenBudget:   getEnvInt("AIHUB_AI_TOKEN_BUDGET", 8000),
		AIBackoffBase:   getEnvDuration("AIHUB_AI_BACKOFF_BASE", 15*time.Second),
		AIReaperTimeout: getEnvDuration("AIHUB_AI_REAPER_TIMEOUT", 10*time.Minute),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("AIHUB_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("AIHUB_DB_PASSWORD is required")
	}

	if c.SyncMaxAttempts < 1 {
		return fmt.Errorf("AIHUB_SYNC_MAX_ATTEMPTS must be at least 1")
	}

	if c.AIMaxAttempts < 1 {
		return fmt.Errorf("AIHUB_AI_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
