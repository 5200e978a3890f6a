package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	DatabaseURL       string
	AppHost           string
	JWTSecret         string
	RedisURL          string
	SnapshotTTL       time.Duration
	KafkaBrokers      string
	KafkaTopic        string
	SheetsID          string
	SheetsRange       string
	SheetsCredentials string
	ScanSuccessDelay  time.Duration
	ScanRejectDelay   time.Duration
	LogLevel          zapcore.Level
	LogFormat         string
	MigrationsDir     string
	Version           string
}

// LoadEnvFile loads .env without overriding variables already set in the
// environment. A missing file is not an error.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the configuration from the environment. Required variables are
// checked by the commands that need them, see RequireDatabase and RequireAuth.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		AppHost:       getEnv("APP_HOST", ":8080"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RedisURL:      os.Getenv("REDIS_URL"),
		KafkaBrokers:  strings.TrimSpace(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "qc.submissions"),
		SheetsID:      os.Getenv("SHEETS_SPREADSHEET_ID"),
		SheetsRange:   getEnv("SHEETS_RANGE", "Submissions!A1"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		Version:       getEnv("APP_VERSION", "1.0.0"),
	}

	var err error
	if cfg.ScanSuccessDelay, err = getDuration("SCAN_SUCCESS_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.ScanRejectDelay, err = getDuration("SCAN_REJECT_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.SnapshotTTL, err = getDuration("SNAPSHOT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	if cfg.SheetsID != "" {
		cfg.SheetsCredentials = os.Getenv("GOOGLE_SHEETS_CREDENTIALS_JSON")
		if cfg.SheetsCredentials == "" {
			return nil, fmt.Errorf("GOOGLE_SHEETS_CREDENTIALS_JSON is required when SHEETS_SPREADSHEET_ID is set")
		}
	}

	level, err := zapcore.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: expected console or json", cfg.LogFormat)
	}

	return cfg, nil
}

func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	return nil
}

func (c *Config) RequireAuth() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
