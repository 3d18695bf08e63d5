package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ENCRYPTION_KEY", testKey)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, "@every 10m", cfg.SyncSchedule)
	assert.Equal(t, 4, cfg.SyncConcurrency)
	assert.False(t, cfg.IsProduction())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"missing secret", Config{EncryptionKey: testKey, SyncConcurrency: 1}, "JWT_SECRET"},
		{"bad hex", Config{JWTSecret: "s", EncryptionKey: "zz", SyncConcurrency: 1}, "hex"},
		{"short key", Config{JWTSecret: "s", EncryptionKey: "0011", SyncConcurrency: 1}, "32 bytes"},
		{"zero concurrency", Config{JWTSecret: "s", EncryptionKey: testKey}, "SYNC_CONCURRENCY"},
		{"ok", Config{JWTSecret: "s", EncryptionKey: testKey, SyncConcurrency: 2}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: "3306", DBName: "tents"}
	assert.Equal(t, "u:p@tcp(db:3306)/tents?parseTime=true&multiStatements=true&clientFoundRows=true", cfg.DSN())
}
