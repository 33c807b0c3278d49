package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONGREGATION_ADDR", "CONGREGATION_ENV", "CONGREGATION_BACKEND", "CONGREGATION_DB_PATH",
		"SUPABASE_URL", "SUPABASE_ANON_KEY", "CONGREGATION_JWT_SECRET", "CONGREGATION_CSRF_KEY",
		"CONGREGATION_SLOW_QUERY_MS", "CONGREGATION_SLOW_REQUEST_MS", "CONGREGATION_RATE_LIMIT",
		"CONGREGATION_LOG_LEVEL", "CONGREGATION_LOG_FORMAT", "CONGREGATION_SCHEMA_DSN",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "congregation.db", cfg.Database.Path)
	assert.Equal(t, 50*time.Millisecond, cfg.Database.SlowQuery)
	assert.Equal(t, 200*time.Millisecond, cfg.HTTP.SlowRequest)
	assert.Equal(t, 10, cfg.HTTP.RateLimit)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_SupabaseRequiresURLAndKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONGREGATION_BACKEND", "supabase")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("SUPABASE_URL", "https://abc.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://abc.supabase.co", cfg.Supabase.URL)
}

func TestLoad_RejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"slow query", "CONGREGATION_SLOW_QUERY_MS", "fast"},
		{"rate limit", "CONGREGATION_RATE_LIMIT", "0"},
		{"log level", "CONGREGATION_LOG_LEVEL", "loud"},
		{"csrf key", "CONGREGATION_CSRF_KEY", "abcd"},
		{"backend", "CONGREGATION_BACKEND", "mysql"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONGREGATION_ENV", "production")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("CONGREGATION_CSRF_KEY", strings.Repeat("ab", 32))
	_, err = Load()
	require.Error(t, err, "jwt secret still missing")

	t.Setenv("CONGREGATION_JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.Auth.CSRFKey, 32)
}

func TestEnsureSecrets_FillsMissing(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.EnsureSecrets())
	assert.Len(t, cfg.Auth.CSRFKey, 32)
	assert.Len(t, cfg.Auth.JWTSecret, 64)
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := Config{Auth: AuthConfig{JWTSecret: "hunter2"}}
	assert.NotContains(t, cfg.String(), "hunter2")
}
