package orchestrators

import (
	"context"
	"errors"
	"log/slog"

	"congregation/internal/adapters/auth"
	"congregation/internal/domain/account"
)

// AuthProviderForReset defines the recovery calls.
type AuthProviderForReset interface {
	RequestPasswordReset(ctx context.Context, email, redirectURL string) error
	UpdatePassword(ctx context.Context, recoveryToken, newPassword string) error
}

// PasswordResetDeps holds dependencies for both reset steps.
type PasswordResetDeps struct {
	Auth    AuthProviderForReset
	Metrics AuthCounter
}

// RequestPasswordResetInput carries the reset request form.
type RequestPasswordResetInput struct {
	Email       string
	RedirectURL string
}

// ResetRequestedNotice is shown after any well-formed reset request.
const ResetRequestedNotice = "Якщо такий email зареєстровано, ми надіслали посилання для відновлення пароля."

// ErrResetLinkInvalid is returned when the recovery token is rejected.
var ErrResetLinkInvalid = errors.New("Посилання для відновлення недійсне або застаріле")

// ExecuteRequestPasswordReset asks the provider to email a recovery link.
// POST: returns nil for any well-formed email, whether or not it is registered
func ExecuteRequestPasswordReset(ctx context.Context, input RequestPasswordResetInput, deps PasswordResetDeps) error {
	if err := account.ValidateEmail(input.Email); err != nil {
		return err
	}
	email := account.Credentials{Email: input.Email}.NormalizedEmail()
	if err := deps.Auth.RequestPasswordReset(ctx, email, input.RedirectURL); err != nil {
		slog.Warn("auth_event", "event", "reset_request_failed", "email", email, "error", err)
		return nil
	}
	count(deps.Metrics, "reset_requested")
	slog.Info("auth_event", "event", "reset_requested", "email", email)
	return nil
}

// UpdatePasswordInput carries the new-password form.
type UpdatePasswordInput struct {
	Token           string
	Password        string
	ConfirmPassword string
}

// ExecuteUpdatePassword completes a recovery.
// PRE: Token came from the emailed link
// POST: ErrResetLinkInvalid for an unknown, used or expired token
func ExecuteUpdatePassword(ctx context.Context, input UpdatePasswordInput, deps PasswordResetDeps) error {
	if input.Token == "" {
		return ErrResetLinkInvalid
	}
	if len(input.Password) < account.MinPasswordLength {
		return account.ErrPasswordTooShort
	}
	if input.Password != input.ConfirmPassword {
		return account.ErrPasswordMismatch
	}
	if err := deps.Auth.UpdatePassword(ctx, input.Token, input.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			slog.Info("auth_event", "event", "reset_rejected", "reason", "invalid_token")
			return ErrResetLinkInvalid
		}
		return err
	}
	count(deps.Metrics, "password_reset")
	slog.Info("auth_event", "event", "password_reset")
	return nil
}
