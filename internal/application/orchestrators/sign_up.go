package orchestrators

import (
	"context"
	"errors"
	"log/slog"

	"congregation/internal/adapters/auth"
	"congregation/internal/domain/account"
)

// AuthProviderForSignUp registers credentials.
type AuthProviderForSignUp interface {
	SignUp(ctx context.Context, email, password, redirectURL string) error
}

// SignUpInput carries the sign-up form.
type SignUpInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	// RedirectURL is where the confirmation link should land.
	RedirectURL string
}

// SignUpDeps holds dependencies for SignUp.
type SignUpDeps struct {
	Auth    AuthProviderForSignUp
	Metrics AuthCounter
}

// SignUpNotice is flashed on the sign-in page after registration.
const SignUpNotice = "Перевірте пошту для підтвердження реєстрації."

// ErrEmailTaken is returned when the address is already registered.
var ErrEmailTaken = errors.New("Цей email уже зареєстровано. Спробуйте увійти.")

// ExecuteSignUp validates the form and registers the credentials.
// PRE: none
// POST: nothing reaches the provider unless the form is valid
func ExecuteSignUp(ctx context.Context, input SignUpInput, deps SignUpDeps) error {
	creds := account.Credentials{Email: input.Email, Password: input.Password, ConfirmPassword: input.ConfirmPassword}
	if err := creds.ValidateSignUp(); err != nil {
		return err
	}
	email := creds.NormalizedEmail()
	if err := deps.Auth.SignUp(ctx, email, input.Password, input.RedirectURL); err != nil {
		if errors.Is(err, auth.ErrAlreadyRegistered) {
			slog.Info("auth_event", "event", "signup_duplicate", "email", email)
			return ErrEmailTaken
		}
		slog.Warn("auth_event", "event", "signup_failed", "email", email, "error", err)
		return err
	}
	count(deps.Metrics, "signup")
	slog.Info("auth_event", "event", "signup", "email", email)
	return nil
}
