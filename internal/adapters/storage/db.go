package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
)

// SQLite's lower() folds ASCII only; directory search needs Cyrillic too.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("unicode_lower", 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return strings.ToLower(v), nil
			case []byte:
				return strings.ToLower(string(v)), nil
			}
			return args[0], nil
		})
}

// Open opens the SQLite database with WAL mode, foreign keys and a busy timeout.
// PRE: path is a writable file path or ":memory:"
// POST: returns a pinged connection pool
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	maxConns := 25
	if path == ":memory:" {
		// every connection would get its own empty database
		dsn = ":memory:?_pragma=foreign_keys(ON)"
		maxConns = 1
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return db, nil
}

// schema mirrors the hosted backend's public tables plus the auth tables
// the self-hosted provider needs.
const schema = `
CREATE TABLE IF NOT EXISTS statuses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS ministry_types (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS home_groups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS deacons (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	full_name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS members (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	last_name TEXT NOT NULL,
	first_name TEXT NOT NULL,
	middle_name TEXT,
	birth_date TEXT,
	baptism_date TEXT,
	phone TEXT,
	street TEXT,
	building TEXT,
	apartment TEXT,
	notes TEXT,
	status_id INTEGER REFERENCES statuses(id) ON DELETE SET NULL,
	ministry_type_id INTEGER REFERENCES ministry_types(id) ON DELETE SET NULL,
	home_group_id INTEGER REFERENCES home_groups(id) ON DELETE SET NULL,
	deacon_id INTEGER REFERENCES deacons(id) ON DELETE SET NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	CHECK (baptism_date IS NULL OR birth_date IS NULL OR baptism_date >= birth_date)
);

CREATE INDEX IF NOT EXISTS idx_members_last_name ON members(last_name);

CREATE TABLE IF NOT EXISTS identities (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	confirmed_at TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS auth_tokens (
	token TEXT PRIMARY KEY,
	identity_id TEXT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
	purpose TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	used INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS auth_sessions (
	id TEXT PRIMARY KEY,
	identity_id TEXT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
	expires_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'viewer' CHECK (role IN ('viewer', 'editor', 'superadmin')),
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	category TEXT NOT NULL,
	action TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);
`

// Migrate creates every table that does not exist yet.
// PRE: db is a valid database connection
// POST: All tables and indexes exist
func Migrate(ctx context.Context, db SQLDB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// TimeLayout is the storage format of timestamps.
const TimeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// NullString maps "" to NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// NullInt64 maps nil to NULL.
func NullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// Int64Ptr maps NULL to nil.
func Int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// ParseTime accepts the timestamp formats found in stored rows.
func ParseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		t, err := time.Parse(f, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time: %s", s)
}
