package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"congregation/internal/adapters/auth"
)

// AuthProvider implements auth.Provider against GoTrue.
type AuthProvider struct {
	c   *Client
	now func() time.Time
}

var _ auth.Provider = (*AuthProvider)(nil)

// NewAuthProvider creates a GoTrue-backed provider.
func NewAuthProvider(c *Client) *AuthProvider {
	return &AuthProvider{c: c, now: time.Now}
}

type goTrueUser struct {
	ID         string           `json:"id"`
	Email      string           `json:"email"`
	Identities []map[string]any `json:"identities"`
}

// mapAuthError translates GoTrue messages into provider errors.
func mapAuthError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == "invalid_credentials" || strings.Contains(msg, "invalid login credentials"):
		return auth.ErrInvalidCredentials
	case apiErr.Code == "email_not_confirmed" || strings.Contains(msg, "email not confirmed"):
		return auth.ErrEmailNotConfirmed
	case apiErr.Code == "user_already_exists" || strings.Contains(msg, "already registered"):
		return auth.ErrAlreadyRegistered
	case apiErr.Status == http.StatusUnauthorized || strings.Contains(msg, "expired") || strings.Contains(msg, "invalid jwt"):
		return auth.ErrInvalidToken
	}
	return err
}

// SignUp registers credentials; GoTrue emails the confirmation link.
// POST: an existing confirmed address yields ErrAlreadyRegistered
func (p *AuthProvider) SignUp(ctx context.Context, email, password, redirectURL string) error {
	q := url.Values{}
	if redirectURL != "" {
		q.Set("redirect_to", redirectURL)
	}
	var u goTrueUser
	err := p.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		query:  q,
		body:   map[string]string{"email": email, "password": password},
		token:  p.c.anonKey,
	}, &u)
	if err != nil {
		return mapAuthError(err)
	}
	// With email enumeration protection GoTrue answers a repeated signup
	// with a user that has no identities.
	if u.Identities != nil && len(u.Identities) == 0 {
		return auth.ErrAlreadyRegistered
	}
	return nil
}

type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	User         goTrueUser `json:"user"`
}

var _ auth.TokenRefresher = (*AuthProvider)(nil)

func (p *AuthProvider) session(tr tokenResponse) (auth.Session, error) {
	if tr.AccessToken == "" {
		return auth.Session{}, fmt.Errorf("token response without access token")
	}
	return auth.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		UserID:       tr.User.ID,
		Email:        tr.User.Email,
		ExpiresAt:    p.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

// SignIn uses the password grant.
func (p *AuthProvider) SignIn(ctx context.Context, email, password string) (auth.Session, error) {
	var tr tokenResponse
	err := p.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
		token:  p.c.anonKey,
	}, &tr)
	if err != nil {
		return auth.Session{}, mapAuthError(err)
	}
	return p.session(tr)
}

// Refresh uses the refresh_token grant. GoTrue rotates the refresh token on
// every use, so the returned session carries a new one.
func (p *AuthProvider) Refresh(ctx context.Context, refreshToken string) (auth.Session, error) {
	if refreshToken == "" {
		return auth.Session{}, auth.ErrInvalidToken
	}
	var tr tokenResponse
	err := p.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
		token:  p.c.anonKey,
	}, &tr)
	if err != nil {
		err = mapAuthError(err)
		if IsStatus(err, http.StatusBadRequest) {
			return auth.Session{}, auth.ErrInvalidToken
		}
		return auth.Session{}, err
	}
	return p.session(tr)
}

// SignOut revokes the session behind accessToken. An already invalid token is not an error.
func (p *AuthProvider) SignOut(ctx context.Context, accessToken string) error {
	err := p.c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/logout", token: accessToken}, nil)
	if err != nil && !errors.Is(mapAuthError(err), auth.ErrInvalidToken) && !IsStatus(err, http.StatusNotFound) {
		return err
	}
	return nil
}

// GetUser resolves an access token.
func (p *AuthProvider) GetUser(ctx context.Context, accessToken string) (auth.Identity, error) {
	if accessToken == "" {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	var u goTrueUser
	if err := p.c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", token: accessToken}, &u); err != nil {
		return auth.Identity{}, mapAuthError(err)
	}
	return auth.Identity{ID: u.ID, Email: u.Email}, nil
}

// RequestPasswordReset asks GoTrue to email a recovery link.
func (p *AuthProvider) RequestPasswordReset(ctx context.Context, email, redirectURL string) error {
	q := url.Values{}
	if redirectURL != "" {
		q.Set("redirect_to", redirectURL)
	}
	err := p.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		query:  q,
		body:   map[string]string{"email": email},
		token:  p.c.anonKey,
	}, nil)
	return mapAuthError(err)
}

// UpdatePassword sets a new password using the recovery session token.
func (p *AuthProvider) UpdatePassword(ctx context.Context, recoveryToken, newPassword string) error {
	if recoveryToken == "" {
		return auth.ErrInvalidToken
	}
	err := p.c.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/v1/user",
		body:   map[string]string{"password": newPassword},
		token:  recoveryToken,
	}, nil)
	return mapAuthError(err)
}
