package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"congregation/internal/adapters/auth"
	"congregation/internal/domain/account"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const (
	sessionContextKey   contextKey = "session"
	principalContextKey contextKey = "principal"
)

// SessionTTL is how long a server session lives without re-authentication.
const SessionTTL = 24 * time.Hour

// Session binds a browser cookie to the provider's access token.
// RefreshToken and ExpiresAt are zero for providers whose tokens outlive the session.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Principal is the caller as resolved by Guard on the current request.
type Principal struct {
	UserID string
	Email  string
	Role   account.Role
}

// SessionStore is an in-memory session store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// Create stores a new session and returns the cookie token.
// PRE: userID and accessToken are non-empty
// POST: Session is stored, token is returned
func (ss *SessionStore) Create(userID, email, accessToken string) (string, error) {
	return ss.Start(auth.Session{UserID: userID, Email: email, AccessToken: accessToken})
}

// Start stores the session of a provider sign-in, including its refresh token.
// POST: Session is stored, token is returned
func (ss *SessionStore) Start(s auth.Session) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[token] = Session{
		UserID:       s.UserID,
		Email:        s.Email,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
		CreatedAt:    ss.now(),
	}
	return token, nil
}

// Update replaces the provider tokens of an existing session.
// POST: returns false when token names no session; CreatedAt is unchanged
func (ss *SessionStore) Update(token string, sess Session) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	cur, ok := ss.sessions[token]
	if !ok {
		return false
	}
	cur.AccessToken = sess.AccessToken
	cur.RefreshToken = sess.RefreshToken
	cur.ExpiresAt = sess.ExpiresAt
	ss.sessions[token] = cur
	return true
}

// Get retrieves a session by token.
// PRE: token is non-empty
// POST: Returns session if present and not expired; expired sessions are dropped
func (ss *SessionStore) Get(token string) (Session, bool) {
	ss.mu.RLock()
	session, ok := ss.sessions[token]
	ss.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	if ss.now().Sub(session.CreatedAt) > SessionTTL {
		ss.Delete(token)
		return Session{}, false
	}
	return session, true
}

// Delete removes a session by token.
// POST: Session with given token is removed
func (ss *SessionStore) Delete(token string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, token)
}

// Len returns the number of stored sessions.
func (ss *SessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

const sessionCookieName = "congregation_session"

// SecureCookies marks session cookies Secure. Set in production.
var SecureCookies = false

// LoadSession returns middleware that extracts the session from the cookie and puts it in context.
// It does NOT block unauthenticated requests; use Guard for that.
func LoadSession(sessions *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := SessionToken(r); token != "" {
				if session, ok := sessions.Get(token); ok {
					r = r.WithContext(ContextWithSession(r.Context(), session))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionToken returns the session cookie value, or "".
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// GetSessionFromContext extracts the session from the request context.
func GetSessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(Session)
	return session, ok
}

// ContextWithSession returns a context with the given session set.
func ContextWithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// GetPrincipal extracts the principal stored by Guard.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

// ContextWithPrincipal returns a context with the given principal set.
// Intended for Guard and for tests.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   int(SessionTTL / time.Second),
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
