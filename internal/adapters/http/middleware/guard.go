package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"congregation/internal/adapters/auth"
	"congregation/internal/domain/access"
	"congregation/internal/domain/account"
)

// IdentityResolver resolves an access token to its subject.
type IdentityResolver interface {
	GetUser(ctx context.Context, accessToken string) (auth.Identity, error)
}

// RoleResolver fetches the caller's role.
// The access token of the caller is available via auth.AccessToken(ctx).
type RoleResolver interface {
	GetRole(ctx context.Context, userID string) (account.Role, error)
}

// RefreshMargin is how close to expiry an access token is refreshed.
const RefreshMargin = time.Minute

// GuardDeps holds what Guard consults on every request.
// Refresher is nil when the provider's tokens live as long as the session.
type GuardDeps struct {
	Sessions   *SessionStore
	Identities IdentityResolver
	Roles      RoleResolver
	Refresher  auth.TokenRefresher
}

// Guard admits a request only when the caller's current role satisfies req.
// PRE: LoadSession ran earlier in the chain
// POST: no session, a failed refresh, a rejected token or a failed role lookup
// drops the session and redirects to /login;
// a role that req does not allow redirects to /members; otherwise the
// Principal is in the request context
// INVARIANT: the role is re-read on every request, so a revoked role applies
// on the next navigation
func Guard(req access.Requirement, deps GuardDeps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := GetSessionFromContext(r.Context())
			if !ok {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			sess, err := refreshIfExpiring(r, sess, deps)
			if err != nil {
				slog.Info("auth_event", "event", "refresh_failed", "user_id", sess.UserID, "error", err)
				dropSession(w, r, deps.Sessions)
				return
			}

			ident, err := deps.Identities.GetUser(r.Context(), sess.AccessToken)
			if err != nil {
				slog.Info("auth_event", "event", "session_rejected", "user_id", sess.UserID, "error", err)
				dropSession(w, r, deps.Sessions)
				return
			}

			ctx := auth.WithAccessToken(r.Context(), sess.AccessToken)
			role, err := deps.Roles.GetRole(ctx, ident.ID)
			if err != nil {
				slog.Warn("auth_event", "event", "role_lookup_failed", "user_id", ident.ID, "error", err)
				dropSession(w, r, deps.Sessions)
				return
			}

			if !req.Allows(role) {
				slog.Warn("auth_denied",
					"user_id", ident.ID,
					"role", string(role),
					"requires", req.String(),
					"path", r.URL.Path,
				)
				http.Redirect(w, r, "/members", http.StatusSeeOther)
				return
			}

			ctx = ContextWithPrincipal(ctx, Principal{UserID: ident.ID, Email: ident.Email, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// dropSession ends the caller's session and sends them to /login.
func dropSession(w http.ResponseWriter, r *http.Request, sessions *SessionStore) {
	if token := SessionToken(r); token != "" {
		sessions.Delete(token)
	}
	ClearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// refreshIfExpiring swaps an access token that expires within RefreshMargin
// for a fresh one and stores it on the session.
func refreshIfExpiring(r *http.Request, sess Session, deps GuardDeps) (Session, error) {
	if deps.Refresher == nil || sess.RefreshToken == "" || sess.ExpiresAt.IsZero() {
		return sess, nil
	}
	if deps.Sessions.now().Add(RefreshMargin).Before(sess.ExpiresAt) {
		return sess, nil
	}
	fresh, err := deps.Refresher.Refresh(r.Context(), sess.RefreshToken)
	if err != nil {
		return sess, err
	}
	sess.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		sess.RefreshToken = fresh.RefreshToken
	}
	sess.ExpiresAt = fresh.ExpiresAt
	deps.Sessions.Update(SessionToken(r), sess)
	slog.Info("auth_event", "event", "token_refreshed", "user_id", sess.UserID)
	return sess, nil
}
