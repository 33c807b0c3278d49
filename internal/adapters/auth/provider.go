// Package auth defines the identity provider contract and the self-hosted
// implementation used with the SQLite backend.
package auth

import (
	"context"
	"errors"
	"time"
)

// Provider errors. Messages match the hosted backend's wording so callers
// can treat both implementations alike.
var (
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrAlreadyRegistered  = errors.New("User already registered")
	ErrEmailNotConfirmed  = errors.New("Email not confirmed")
	ErrInvalidToken       = errors.New("Token has expired or is invalid")
)

// Identity is the authenticated subject behind an access token.
type Identity struct {
	ID    string
	Email string
}

// Session is the result of a successful sign-in.
// RefreshToken is empty when the provider does not issue one.
type Session struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Email        string
	ExpiresAt    time.Time
}

// Provider authenticates users.
type Provider interface {
	// SignUp registers credentials. redirectURL is where the confirmation link lands.
	SignUp(ctx context.Context, email, password, redirectURL string) error
	// SignIn exchanges credentials for an access token.
	// POST: returns ErrInvalidCredentials for unknown email or wrong password
	SignIn(ctx context.Context, email, password string) (Session, error)
	// SignOut revokes the access token.
	SignOut(ctx context.Context, accessToken string) error
	// GetUser resolves an access token to its identity.
	GetUser(ctx context.Context, accessToken string) (Identity, error)
	// RequestPasswordReset emails a recovery link to redirectURL.
	// POST: succeeds for unknown addresses too
	RequestPasswordReset(ctx context.Context, email, redirectURL string) error
	// UpdatePassword completes a recovery.
	UpdatePassword(ctx context.Context, recoveryToken, newPassword string) error
}

// EmailConfirmer is implemented by providers that confirm addresses themselves.
type EmailConfirmer interface {
	ConfirmEmail(ctx context.Context, token string) error
}

// TokenRefresher is implemented by providers whose access tokens expire
// before the server session does.
type TokenRefresher interface {
	// Refresh exchanges a refresh token for a new session.
	// POST: an unknown or used refresh token yields ErrInvalidToken
	Refresh(ctx context.Context, refreshToken string) (Session, error)
}
