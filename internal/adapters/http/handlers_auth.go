package web

import (
	"errors"
	"log/slog"
	"net/http"

	"congregation/internal/adapters/auth"
	"congregation/internal/adapters/http/middleware"
	"congregation/internal/application/orchestrators"
	"congregation/internal/domain/account"
)

// Notices shown on the sign-in page after a redirect.
var loginNotices = map[string]string{
	"signup":    orchestrators.SignUpNotice,
	"confirmed": "Email підтверджено. Тепер ви можете увійти.",
	"password":  "Пароль змінено. Увійдіть з новим паролем.",
}

// handleLoginPage handles GET /login
func handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetSessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/members", http.StatusSeeOther)
		return
	}
	renderTemplate(w, r, "login.html", map[string]any{
		"Notice": loginNotices[r.URL.Query().Get("notice")],
	})
}

// handleLogin handles POST /login
func handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	input := orchestrators.SignInInput{
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}
	deps := orchestrators.SignInDeps{
		Auth:    authProvider,
		Users:   stores.UserStore,
		Metrics: appMetrics,
	}

	result, err := orchestrators.ExecuteSignIn(r.Context(), input, deps)
	if err != nil {
		renderPage(w, r, http.StatusUnprocessableEntity, "login.html", map[string]any{
			"Email": input.Email,
			"Error": err.Error(),
		})
		return
	}

	// The server session exists only once the role is known.
	token, err := sessions.Start(result.Session)
	if err != nil {
		internalError(w, err)
		return
	}
	middleware.SetSessionCookie(w, token)
	http.Redirect(w, r, result.RedirectTo, http.StatusSeeOther)
}

// handleLogout handles POST /logout
func handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		if sess, ok := sessions.Get(token); ok {
			deps := orchestrators.SignOutDeps{Auth: authProvider, Metrics: appMetrics}
			// The local session is dropped even when the provider call fails.
			_ = orchestrators.ExecuteSignOut(r.Context(), sess.AccessToken, deps)
		}
		sessions.Delete(token)
	}
	middleware.ClearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// handleSignUpPage handles GET /signup
func handleSignUpPage(w http.ResponseWriter, r *http.Request) {
	renderTemplate(w, r, "signup.html", map[string]any{})
}

// handleSignUp handles POST /signup
func handleSignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	input := orchestrators.SignUpInput{
		Email:           r.FormValue("email"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirm_password"),
		RedirectURL:     absoluteURL(r, "/auth/confirm"),
	}
	deps := orchestrators.SignUpDeps{Auth: authProvider, Metrics: appMetrics}

	if err := orchestrators.ExecuteSignUp(r.Context(), input, deps); err != nil {
		renderPage(w, r, http.StatusUnprocessableEntity, "signup.html", map[string]any{
			"Email": input.Email,
			"Error": err.Error(),
		})
		return
	}
	http.Redirect(w, r, "/login?notice=signup", http.StatusSeeOther)
}

// handleConfirmEmail handles GET /auth/confirm, the landing page of the confirmation link.
// Hosted providers confirm before redirecting here and send no token.
func handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	confirmer, ok := authProvider.(auth.EmailConfirmer)
	if token == "" || !ok {
		http.Redirect(w, r, "/login?notice=confirmed", http.StatusSeeOther)
		return
	}
	if err := confirmer.ConfirmEmail(r.Context(), token); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			renderPage(w, r, http.StatusUnprocessableEntity, "login.html", map[string]any{
				"Error": "Посилання для підтвердження недійсне або застаріле",
			})
			return
		}
		internalError(w, err)
		return
	}
	appMetrics.CountAuth("email_confirmed")
	http.Redirect(w, r, "/login?notice=confirmed", http.StatusSeeOther)
}

// handleResetPasswordPage handles GET /reset-password
func handleResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	renderTemplate(w, r, "reset_password.html", map[string]any{})
}

// handleResetPassword handles POST /reset-password
func handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	input := orchestrators.RequestPasswordResetInput{
		Email:       r.FormValue("email"),
		RedirectURL: absoluteURL(r, "/update-password"),
	}
	deps := orchestrators.PasswordResetDeps{Auth: authProvider, Metrics: appMetrics}

	if err := orchestrators.ExecuteRequestPasswordReset(r.Context(), input, deps); err != nil {
		renderPage(w, r, http.StatusUnprocessableEntity, "reset_password.html", map[string]any{
			"Email": input.Email,
			"Error": err.Error(),
		})
		return
	}
	renderTemplate(w, r, "reset_password.html", map[string]any{
		"Notice": orchestrators.ResetRequestedNotice,
	})
}

// handleUpdatePasswordPage handles GET /update-password.
// The self-hosted provider passes the token as ?token=; the hosted one puts
// it in the URL fragment, which static/recovery.js copies into the form.
func handleUpdatePasswordPage(w http.ResponseWriter, r *http.Request) {
	renderTemplate(w, r, "update_password.html", map[string]any{
		"Token": r.URL.Query().Get("token"),
	})
}

// handleUpdatePassword handles POST /update-password
func handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	input := orchestrators.UpdatePasswordInput{
		Token:           r.FormValue("token"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirm_password"),
	}
	deps := orchestrators.PasswordResetDeps{Auth: authProvider, Metrics: appMetrics}

	if err := orchestrators.ExecuteUpdatePassword(r.Context(), input, deps); err != nil {
		if !isPasswordFormError(err) {
			slog.Error("auth_event", "event", "password_update_failed", "error", err)
		}
		renderPage(w, r, http.StatusUnprocessableEntity, "update_password.html", map[string]any{
			"Token": input.Token,
			"Error": err.Error(),
		})
		return
	}
	http.Redirect(w, r, "/login?notice=password", http.StatusSeeOther)
}

func isPasswordFormError(err error) bool {
	return errors.Is(err, orchestrators.ErrResetLinkInvalid) ||
		errors.Is(err, account.ErrPasswordTooShort) ||
		errors.Is(err, account.ErrPasswordMismatch)
}
