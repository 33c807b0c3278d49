package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"congregation/internal/adapters/auth"
	"congregation/internal/domain/account"
)

// AuthProviderForSignIn defines the provider calls needed by SignIn.
type AuthProviderForSignIn interface {
	SignIn(ctx context.Context, email, password string) (auth.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// RoleStoreForSignIn resolves and creates role records.
type RoleStoreForSignIn interface {
	GetRole(ctx context.Context, userID string) (account.Role, error)
	Insert(ctx context.Context, u account.User) error
}

// AuthCounter counts authentication events.
type AuthCounter interface {
	CountAuth(event string)
}

// SignInInput carries the sign-in form.
type SignInInput struct {
	Email    string
	Password string
}

// SignInResult carries the session to persist and where to send the user.
type SignInResult struct {
	Session    auth.Session
	Role       account.Role
	RedirectTo string
}

// SignInDeps holds dependencies for SignIn.
type SignInDeps struct {
	Auth    AuthProviderForSignIn
	Users   RoleStoreForSignIn
	Metrics AuthCounter
}

// ErrWrongCredentials is shown for an unknown email or a wrong password.
var ErrWrongCredentials = errors.New("Неправильний email або пароль")

// ExecuteSignIn authenticates, resolves the role and picks the landing page.
// PRE: none
// POST: on success the caller holds a session and a role record exists;
// on any failure after authentication the provider session is signed out
// INVARIANT: a missing role record is created as viewer
func ExecuteSignIn(ctx context.Context, input SignInInput, deps SignInDeps) (SignInResult, error) {
	creds := account.Credentials{Email: input.Email, Password: input.Password}
	if err := creds.ValidateSignIn(); err != nil {
		return SignInResult{}, err
	}
	email := creds.NormalizedEmail()

	sess, err := deps.Auth.SignIn(ctx, email, input.Password)
	if err != nil {
		count(deps.Metrics, "login_failed")
		if errors.Is(err, auth.ErrInvalidCredentials) {
			slog.Info("auth_event", "event", "login_failed", "email", email, "reason", "invalid_credentials")
			return SignInResult{}, ErrWrongCredentials
		}
		slog.Info("auth_event", "event", "login_failed", "email", email, "reason", err.Error())
		return SignInResult{}, err
	}

	// role lookups run as the freshly authenticated user
	ctx = auth.WithAccessToken(ctx, sess.AccessToken)

	role, err := deps.Users.GetRole(ctx, sess.UserID)
	switch {
	case errors.Is(err, account.ErrNoRole):
		role = account.RoleViewer
		u := account.User{ID: sess.UserID, Email: sess.Email, Role: role}
		if u.Email == "" {
			u.Email = email
		}
		if err := deps.Users.Insert(ctx, u); err != nil {
			return SignInResult{}, abortSignIn(ctx, deps, sess, fmt.Errorf("Помилка додавання користувача: %w", err))
		}
		slog.Info("auth_event", "event", "role_created", "user_id", sess.UserID, "role", role)
	case err != nil:
		return SignInResult{}, abortSignIn(ctx, deps, sess, fmt.Errorf("Помилка отримання ролі: %w", err))
	}

	count(deps.Metrics, "login_success")
	slog.Info("auth_event", "event", "login_success", "email", email, "role", role)
	return SignInResult{Session: sess, Role: role, RedirectTo: role.HomePath()}, nil
}

func abortSignIn(ctx context.Context, deps SignInDeps, sess auth.Session, cause error) error {
	if err := deps.Auth.SignOut(ctx, sess.AccessToken); err != nil {
		slog.Warn("auth_event", "event", "signout_failed", "user_id", sess.UserID, "error", err)
	}
	count(deps.Metrics, "login_aborted")
	slog.Warn("auth_event", "event", "login_aborted", "user_id", sess.UserID, "error", cause)
	return cause
}

func count(c AuthCounter, event string) {
	if c != nil {
		c.CountAuth(event)
	}
}

// AuthProviderForSignOut revokes sessions.
type AuthProviderForSignOut interface {
	SignOut(ctx context.Context, accessToken string) error
}

// SignOutDeps holds dependencies for SignOut.
type SignOutDeps struct {
	Auth    AuthProviderForSignOut
	Metrics AuthCounter
}

// ExecuteSignOut revokes the provider session. The caller drops its own session regardless.
func ExecuteSignOut(ctx context.Context, accessToken string, deps SignOutDeps) error {
	if accessToken == "" {
		return nil
	}
	if err := deps.Auth.SignOut(ctx, accessToken); err != nil {
		slog.Warn("auth_event", "event", "signout_failed", "error", err)
		return err
	}
	count(deps.Metrics, "logout")
	slog.Info("auth_event", "event", "logout")
	return nil
}
