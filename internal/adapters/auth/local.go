package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"congregation/internal/adapters/email"
	"congregation/internal/adapters/storage/identity"
)

// Token lifetimes of the self-hosted provider.
const (
	DefaultSessionTTL = 24 * time.Hour
	ConfirmTokenTTL   = 24 * time.Hour
	ResetTokenTTL     = time.Hour
)

const issuer = "congregation"

// dummyHash keeps sign-in timing uniform for unknown emails.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("congregation-timing"), bcrypt.DefaultCost)

// LocalProviderConfig configures a LocalProvider.
type LocalProviderConfig struct {
	Secret     []byte        // HS256 signing key
	SessionTTL time.Duration // access token lifetime
	// RequireConfirmation blocks sign-in until the emailed link is followed.
	RequireConfirmation bool
}

// LocalProvider authenticates against the identities table with bcrypt
// hashes and issues HS256 access tokens whose jti is tracked for revocation.
type LocalProvider struct {
	store  identity.Store
	sender email.Sender
	cfg    LocalProviderConfig
	now    func() time.Time
}

var (
	_ Provider       = (*LocalProvider)(nil)
	_ EmailConfirmer = (*LocalProvider)(nil)
)

// NewLocalProvider creates the self-hosted provider.
// PRE: len(cfg.Secret) >= 32
func NewLocalProvider(store identity.Store, sender email.Sender, cfg LocalProviderConfig) *LocalProvider {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &LocalProvider{store: store, sender: sender, cfg: cfg, now: time.Now}
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SignUp registers credentials.
// POST: returns ErrAlreadyRegistered for a taken email; when confirmation is
// required a link to redirectURL is emailed, otherwise the identity is confirmed
func (p *LocalProvider) SignUp(ctx context.Context, addr, password, redirectURL string) error {
	addr = normalize(addr)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := p.now().UTC()
	v := identity.Identity{
		ID:           uuid.New().String(),
		Email:        addr,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}
	if !p.cfg.RequireConfirmation {
		v.ConfirmedAt = &now
	}
	if err := p.store.Create(ctx, v); err != nil {
		if errors.Is(err, identity.ErrDuplicateEmail) {
			return ErrAlreadyRegistered
		}
		return err
	}
	slog.Info("auth_event", "event", "identity_created", "email", addr, "confirmed", v.ConfirmedAt != nil)

	if !p.cfg.RequireConfirmation {
		return nil
	}
	link, err := p.issueToken(ctx, v.ID, identity.PurposeConfirm, ConfirmTokenTTL, redirectURL)
	if err != nil {
		return err
	}
	req, err := email.ConfirmationEmail(addr, link)
	if err != nil {
		return err
	}
	_, err = p.sender.Send(ctx, req)
	return err
}

// ConfirmEmail consumes a confirmation token.
func (p *LocalProvider) ConfirmEmail(ctx context.Context, token string) error {
	t, err := p.store.ConsumeToken(ctx, token, identity.PurposeConfirm, p.now())
	if err != nil {
		if errors.Is(err, identity.ErrTokenInvalid) {
			return ErrInvalidToken
		}
		return err
	}
	if err := p.store.Confirm(ctx, t.IdentityID, p.now()); err != nil {
		return err
	}
	slog.Info("auth_event", "event", "email_confirmed", "identity_id", t.IdentityID)
	return nil
}

// SignIn verifies credentials and issues an access token.
func (p *LocalProvider) SignIn(ctx context.Context, addr, password string) (Session, error) {
	v, err := p.store.GetByEmail(ctx, normalize(addr))
	if errors.Is(err, identity.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(v.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	if p.cfg.RequireConfirmation && !v.Confirmed() {
		return Session{}, ErrEmailNotConfirmed
	}
	return p.issueSession(ctx, v)
}

func (p *LocalProvider) issueSession(ctx context.Context, v identity.Identity) (Session, error) {
	now := p.now()
	expires := now.Add(p.cfg.SessionTTL)
	jti := uuid.New().String()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: v.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   v.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := tok.SignedString(p.cfg.Secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	if err := p.store.CreateSession(ctx, jti, v.ID, expires); err != nil {
		return Session{}, fmt.Errorf("record session: %w", err)
	}
	return Session{AccessToken: signed, UserID: v.ID, Email: v.Email, ExpiresAt: expires}, nil
}

func (p *LocalProvider) parse(accessToken string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(accessToken, c, func(t *jwt.Token) (any, error) {
		return p.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if c.Subject == "" || c.ID == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// SignOut revokes the token's session. Invalid tokens are ignored.
func (p *LocalProvider) SignOut(ctx context.Context, accessToken string) error {
	c, err := p.parse(accessToken)
	if err != nil {
		return nil
	}
	return p.store.DeleteSession(ctx, c.ID)
}

// GetUser resolves an access token whose session is still active.
func (p *LocalProvider) GetUser(ctx context.Context, accessToken string) (Identity, error) {
	c, err := p.parse(accessToken)
	if err != nil {
		return Identity{}, err
	}
	active, err := p.store.SessionActive(ctx, c.ID, p.now())
	if err != nil {
		return Identity{}, err
	}
	if !active {
		return Identity{}, ErrInvalidToken
	}
	return Identity{ID: c.Subject, Email: c.Email}, nil
}

// RequestPasswordReset emails a reset link when the address is registered.
func (p *LocalProvider) RequestPasswordReset(ctx context.Context, addr, redirectURL string) error {
	v, err := p.store.GetByEmail(ctx, normalize(addr))
	if errors.Is(err, identity.ErrNotFound) {
		slog.Info("auth_event", "event", "reset_unknown_email")
		return nil
	}
	if err != nil {
		return err
	}
	link, err := p.issueToken(ctx, v.ID, identity.PurposeReset, ResetTokenTTL, redirectURL)
	if err != nil {
		return err
	}
	req, err := email.PasswordResetEmail(v.Email, link)
	if err != nil {
		return err
	}
	if _, err := p.sender.Send(ctx, req); err != nil {
		return err
	}
	slog.Info("auth_event", "event", "reset_requested", "identity_id", v.ID)
	return nil
}

// UpdatePassword sets a new password using a reset token.
// POST: the token cannot be used again
func (p *LocalProvider) UpdatePassword(ctx context.Context, recoveryToken, newPassword string) error {
	t, err := p.store.ConsumeToken(ctx, recoveryToken, identity.PurposeReset, p.now())
	if err != nil {
		if errors.Is(err, identity.ErrTokenInvalid) {
			return ErrInvalidToken
		}
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := p.store.SetPassword(ctx, t.IdentityID, string(hash)); err != nil {
		return err
	}
	slog.Info("auth_event", "event", "password_updated", "identity_id", t.IdentityID)
	return nil
}

// EnsureIdentity returns the identity for addr, creating a confirmed one
// with password when it does not exist. Used for seeding.
func (p *LocalProvider) EnsureIdentity(ctx context.Context, addr, password string) (Identity, bool, error) {
	addr = normalize(addr)
	v, err := p.store.GetByEmail(ctx, addr)
	if err == nil {
		return Identity{ID: v.ID, Email: v.Email}, false, nil
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return Identity{}, false, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, false, fmt.Errorf("hash password: %w", err)
	}
	now := p.now().UTC()
	v = identity.Identity{ID: uuid.New().String(), Email: addr, PasswordHash: string(hash), ConfirmedAt: &now, CreatedAt: now}
	if err := p.store.Create(ctx, v); err != nil {
		return Identity{}, false, err
	}
	return Identity{ID: v.ID, Email: v.Email}, true, nil
}

func (p *LocalProvider) issueToken(ctx context.Context, identityID, purpose string, ttl time.Duration, redirectURL string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	err = p.store.SaveToken(ctx, identity.Token{
		Token:      token,
		IdentityID: identityID,
		Purpose:    purpose,
		ExpiresAt:  p.now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("save token: %w", err)
	}
	return withToken(redirectURL, token)
}

func withToken(redirectURL, token string) (string, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("invalid redirect url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// generateToken returns 32 random bytes, hex encoded.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
