// Package identity stores credentials, one-time tokens and sessions for the
// self-hosted auth provider.
package identity

import (
	"context"
	"errors"
	"time"
)

// Token purposes.
const (
	PurposeConfirm = "confirm"
	PurposeReset   = "reset"
)

var (
	ErrNotFound       = errors.New("identity not found")
	ErrDuplicateEmail = errors.New("identity email already registered")
	ErrTokenInvalid   = errors.New("token is invalid or expired")
)

// Identity is a credential record.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	ConfirmedAt  *time.Time
	CreatedAt    time.Time
}

// Confirmed reports whether the email address has been verified.
func (i Identity) Confirmed() bool {
	return i.ConfirmedAt != nil
}

// Token is a single-use emailed token.
type Token struct {
	Token      string
	IdentityID string
	Purpose    string
	ExpiresAt  time.Time
}

// Store persists identities, tokens and sessions.
type Store interface {
	Create(ctx context.Context, value Identity) error
	GetByEmail(ctx context.Context, email string) (Identity, error)
	GetByID(ctx context.Context, id string) (Identity, error)
	SetPassword(ctx context.Context, id, hash string) error
	Confirm(ctx context.Context, id string, at time.Time) error

	SaveToken(ctx context.Context, t Token) error
	// ConsumeToken marks a token used and returns it.
	// POST: returns ErrTokenInvalid for unknown, used, expired or wrong-purpose tokens
	ConsumeToken(ctx context.Context, token, purpose string, now time.Time) (Token, error)

	CreateSession(ctx context.Context, id, identityID string, expiresAt time.Time) error
	SessionActive(ctx context.Context, id string, now time.Time) (bool, error)
	DeleteSession(ctx context.Context, id string) error
}

var _ Store = (*SQLiteStore)(nil)
