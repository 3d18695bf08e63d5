// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds every setting the server, the sync job and the CLI need.
type Config struct {
	AppEnv   string `env:"APP_ENV,default=development"`
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`

	DBUser     string `env:"DB_USER,default=root"`
	DBPassword string `env:"DB_PASSWORD"`
	DBHost     string `env:"DB_HOST,default=127.0.0.1"`
	DBPort     string `env:"DB_PORT,default=3306"`
	DBName     string `env:"DB_NAME,default=creatortent"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL,default=24h"`

	// EncryptionKey is the hex encoded 32 byte AES key used for stored email credentials.
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	PublicBaseURL string `env:"PUBLIC_BASE_URL,default=http://localhost:3000"`
	APIBaseURL    string `env:"API_BASE_URL,default=http://localhost:8080"`

	GoogleClientID        string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret    string `env:"GOOGLE_CLIENT_SECRET"`
	MicrosoftClientID     string `env:"MICROSOFT_CLIENT_ID"`
	MicrosoftClientSecret string `env:"MICROSOFT_CLIENT_SECRET"`
	YahooClientID         string `env:"YAHOO_CLIENT_ID"`
	YahooClientSecret     string `env:"YAHOO_CLIENT_SECRET"`

	GeminiAPIKey        string `env:"GEMINI_API_KEY"`
	GeminiModel         string `env:"GEMINI_MODEL,default=gemini-2.0-flash"`
	AIRequestsPerMinute int    `env:"AI_REQUESTS_PER_MINUTE,default=30"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	SyncSchedule    string        `env:"SYNC_SCHEDULE,default=@every 10m"`
	SyncLookback    time.Duration `env:"SYNC_LOOKBACK,default=168h"`
	SyncConcurrency int           `env:"SYNC_CONCURRENCY,default=4"`

	RateLimitRPS   int `env:"RATE_LIMIT_RPS,default=10"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST,default=20"`
}

// Load reads .env (when present) into the process environment and decodes Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if _, err := c.EncryptionKeyBytes(); err != nil {
		return err
	}
	if c.SyncConcurrency < 1 {
		return errors.New("SYNC_CONCURRENCY must be at least 1")
	}
	return nil
}

// EncryptionKeyBytes decodes EncryptionKey.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// DSN builds the MySQL data source name.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true&clientFoundRows=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
