// Package schema runs administrator-supplied DDL against a database.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq" // postgres driver for CONGREGATION_SCHEMA_DSN
)

// ErrEmptyStatement is returned for blank input.
var ErrEmptyStatement = errors.New("empty SQL statement")

// Executor runs one schema statement.
type Executor interface {
	ExecuteDDL(ctx context.Context, statement string) error
}

// execer is the subset of *sql.DB the executor needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLExecutor executes statements directly on a database connection.
// Statements run exactly as written; authorization is the caller's job.
type SQLExecutor struct {
	db      execer
	dialect string
}

var _ Executor = (*SQLExecutor)(nil)

// NewSQLExecutor wraps an open database. dialect is used for logging only.
func NewSQLExecutor(db execer, dialect string) *SQLExecutor {
	return &SQLExecutor{db: db, dialect: dialect}
}

// OpenPostgres connects to dsn with lib/pq.
// PRE: dsn is a postgres:// URL or key=value string
// POST: returns a pinged connection pool
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	return db, nil
}

// ExecuteDDL runs statement.
// POST: returns ErrEmptyStatement for blank input; database errors are wrapped
func (e *SQLExecutor) ExecuteDDL(ctx context.Context, statement string) error {
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return ErrEmptyStatement
	}
	start := time.Now()
	if _, err := e.db.ExecContext(ctx, statement); err != nil {
		slog.Warn("schema_event", "event", "ddl_failed", "dialect", e.dialect, "error", err)
		return fmt.Errorf("execute statement: %w", err)
	}
	slog.Info("schema_event", "event", "ddl_executed", "dialect", e.dialect,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0)
	return nil
}
