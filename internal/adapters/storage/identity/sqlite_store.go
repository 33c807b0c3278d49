package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"congregation/internal/adapters/storage"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new identity store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Create persists a new identity.
// PRE: Email is normalized, PasswordHash is a bcrypt hash
// POST: Returns ErrDuplicateEmail when the email is taken
func (s *SQLiteStore) Create(ctx context.Context, v Identity) error {
	var confirmed any
	if v.ConfirmedAt != nil {
		confirmed = v.ConfirmedAt.UTC().Format(storage.TimeLayout)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO identities (id, email, password_hash, confirmed_at, created_at) VALUES (?, ?, ?, ?, ?)",
		v.ID, v.Email, v.PasswordHash, confirmed, v.CreatedAt.UTC().Format(storage.TimeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

// GetByEmail retrieves an identity by email.
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (Identity, error) {
	return s.get(ctx, "email", email)
}

// GetByID retrieves an identity by id.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (Identity, error) {
	return s.get(ctx, "id", id)
}

func (s *SQLiteStore) get(ctx context.Context, col, val string) (Identity, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, confirmed_at, created_at FROM identities WHERE "+col+" = ?", val)
	var v Identity
	var confirmed sql.NullString
	var created string
	err := row.Scan(&v.ID, &v.Email, &v.PasswordHash, &confirmed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, err
	}
	if confirmed.Valid {
		if t, err := storage.ParseTime(confirmed.String); err == nil {
			v.ConfirmedAt = &t
		}
	}
	v.CreatedAt, _ = storage.ParseTime(created)
	return v, nil
}

// SetPassword replaces the stored hash.
func (s *SQLiteStore) SetPassword(ctx context.Context, id, hash string) error {
	return s.updateOne(ctx, "UPDATE identities SET password_hash = ? WHERE id = ?", hash, id)
}

// Confirm marks the email verified.
func (s *SQLiteStore) Confirm(ctx context.Context, id string, at time.Time) error {
	return s.updateOne(ctx, "UPDATE identities SET confirmed_at = ? WHERE id = ?", at.UTC().Format(storage.TimeLayout), id)
}

func (s *SQLiteStore) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveToken persists a one-time token.
func (s *SQLiteStore) SaveToken(ctx context.Context, t Token) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO auth_tokens (token, identity_id, purpose, expires_at) VALUES (?, ?, ?, ?)",
		t.Token, t.IdentityID, t.Purpose, t.ExpiresAt.UTC().Format(storage.TimeLayout))
	return err
}

// ConsumeToken marks a token used and returns it.
// INVARIANT: a token is consumed at most once
func (s *SQLiteStore) ConsumeToken(ctx context.Context, token, purpose string, now time.Time) (Token, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Token{}, err
	}
	defer tx.Rollback()

	var t Token
	var expires string
	err = tx.QueryRowContext(ctx,
		"SELECT token, identity_id, purpose, expires_at FROM auth_tokens WHERE token = ? AND used = 0", token).
		Scan(&t.Token, &t.IdentityID, &t.Purpose, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrTokenInvalid
	}
	if err != nil {
		return Token{}, err
	}
	t.ExpiresAt, _ = storage.ParseTime(expires)
	if t.Purpose != purpose || !now.Before(t.ExpiresAt) {
		return Token{}, ErrTokenInvalid
	}
	if _, err := tx.ExecContext(ctx, "UPDATE auth_tokens SET used = 1 WHERE token = ?", token); err != nil {
		return Token{}, err
	}
	return t, tx.Commit()
}

// CreateSession records an issued access token id.
func (s *SQLiteStore) CreateSession(ctx context.Context, id, identityID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO auth_sessions (id, identity_id, expires_at) VALUES (?, ?, ?)",
		id, identityID, expiresAt.UTC().Format(storage.TimeLayout))
	return err
}

// SessionActive reports whether the session exists and has not expired.
func (s *SQLiteStore) SessionActive(ctx context.Context, id string, now time.Time) (bool, error) {
	var expires string
	err := s.db.QueryRowContext(ctx, "SELECT expires_at FROM auth_sessions WHERE id = ?", id).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	exp, err := storage.ParseTime(expires)
	if err != nil {
		return false, err
	}
	return now.Before(exp), nil
}

// DeleteSession revokes a session. Deleting an unknown session is not an error.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM auth_sessions WHERE id = ?", id)
	return err
}
