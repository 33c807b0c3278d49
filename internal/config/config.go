package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted in CONGREGATION_BACKEND.
const (
	BackendSQLite   = "sqlite"
	BackendSupabase = "supabase"
)

// Config holds all application configuration.
type Config struct {
	Addr      string
	Env       string
	Backend   string
	PublicURL string

	Database DatabaseConfig
	Supabase SupabaseConfig
	Auth     AuthConfig
	Email    EmailConfig
	HTTP     HTTPConfig
	Log      LogConfig

	// SchemaDSN points schema changes at a Postgres database directly
	// instead of the hosted execute-ddl function.
	SchemaDSN string
}

// DatabaseConfig contains settings of the self-hosted SQLite backend.
type DatabaseConfig struct {
	Path      string
	SlowQuery time.Duration
}

// SupabaseConfig contains settings of the hosted backend.
type SupabaseConfig struct {
	URL     string
	AnonKey string
}

// AuthConfig contains session and token settings.
type AuthConfig struct {
	JWTSecret     string
	CSRFKey       []byte
	AdminEmail    string
	AdminPassword string
}

// EmailConfig contains outgoing mail settings.
type EmailConfig struct {
	ResendKey string
	From      string
}

// HTTPConfig contains request handling settings.
type HTTPConfig struct {
	RateLimit   int // requests per second per client
	SlowRequest time.Duration
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  slog.Level
	Format string // "text" or "json"
}

// Load reads an optional .env file and then the environment.
// PRE: none
// POST: returns a Config with defaults applied, or an error for malformed values
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:      getEnv("CONGREGATION_ADDR", ":8080"),
		Env:       getEnv("CONGREGATION_ENV", "development"),
		Backend:   strings.ToLower(getEnv("CONGREGATION_BACKEND", BackendSQLite)),
		PublicURL: strings.TrimRight(getEnv("CONGREGATION_PUBLIC_URL", "http://localhost:8080"), "/"),
		Database: DatabaseConfig{
			Path: getEnv("CONGREGATION_DB_PATH", "congregation.db"),
		},
		Supabase: SupabaseConfig{
			URL:     strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
			AnonKey: os.Getenv("SUPABASE_ANON_KEY"),
		},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("CONGREGATION_JWT_SECRET"),
			AdminEmail:    getEnv("CONGREGATION_ADMIN_EMAIL", "admin@church.local"),
			AdminPassword: os.Getenv("CONGREGATION_ADMIN_PASSWORD"),
		},
		Email: EmailConfig{
			ResendKey: os.Getenv("CONGREGATION_RESEND_KEY"),
			From:      getEnv("CONGREGATION_EMAIL_FROM", "Church Members <noreply@church.local>"),
		},
		Log: LogConfig{
			Format: strings.ToLower(getEnv("CONGREGATION_LOG_FORMAT", "text")),
		},
		SchemaDSN: os.Getenv("CONGREGATION_SCHEMA_DSN"),
	}

	slowQueryMs, err := getEnvInt("CONGREGATION_SLOW_QUERY_MS", 50)
	if err != nil {
		return Config{}, err
	}
	cfg.Database.SlowQuery = time.Duration(slowQueryMs) * time.Millisecond

	slowRequestMs, err := getEnvInt("CONGREGATION_SLOW_REQUEST_MS", 200)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.SlowRequest = time.Duration(slowRequestMs) * time.Millisecond

	if cfg.HTTP.RateLimit, err = getEnvInt("CONGREGATION_RATE_LIMIT", 10); err != nil {
		return Config{}, err
	}

	if err := cfg.Log.Level.UnmarshalText([]byte(getEnv("CONGREGATION_LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid CONGREGATION_LOG_LEVEL: %w", err)
	}

	if keyHex := os.Getenv("CONGREGATION_CSRF_KEY"); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return Config{}, errors.New("CONGREGATION_CSRF_KEY must be 64 hex characters (32 bytes)")
		}
		cfg.Auth.CSRFKey = key
	}

	return cfg, cfg.Validate()
}

// IsProduction reports whether the service runs with production safeguards.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks cross-field requirements.
// PRE: Config was populated by Load or by hand in tests
// POST: returns nil if the configuration is usable
// INVARIANT: production requires explicit secrets; the hosted backend requires its URL and key
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
	case BackendSupabase:
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			return errors.New("SUPABASE_URL and SUPABASE_ANON_KEY are required for the supabase backend")
		}
	default:
		return fmt.Errorf("unknown CONGREGATION_BACKEND %q", c.Backend)
	}
	if c.HTTP.RateLimit < 1 {
		return errors.New("CONGREGATION_RATE_LIMIT must be positive")
	}
	if c.IsProduction() {
		if len(c.Auth.CSRFKey) == 0 {
			return errors.New("CONGREGATION_CSRF_KEY is required in production")
		}
		if c.Backend == BackendSQLite && c.Auth.JWTSecret == "" {
			return errors.New("CONGREGATION_JWT_SECRET is required in production")
		}
	}
	return nil
}

// EnsureSecrets fills missing development secrets with random values.
// Sessions and tokens signed with them do not survive a restart.
func (c *Config) EnsureSecrets() error {
	if len(c.Auth.CSRFKey) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("generate csrf key: %w", err)
		}
		c.Auth.CSRFKey = key
		slog.Warn("config_event", "event", "random_csrf_key")
	}
	if c.Auth.JWTSecret == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
		c.Auth.JWTSecret = hex.EncodeToString(secret)
		slog.Warn("config_event", "event", "random_jwt_secret")
	}
	return nil
}

// String masks secrets.
func (c Config) String() string {
	return fmt.Sprintf("Config{Addr: %s, Env: %s, Backend: %s, DB: %s, Supabase: %s, Secrets: ***}",
		c.Addr, c.Env, c.Backend, c.Database.Path, c.Supabase.URL)
}

func getEnv(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return n, nil
}
