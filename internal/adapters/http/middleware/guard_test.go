package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"congregation/internal/adapters/auth"
	"congregation/internal/domain/access"
	"congregation/internal/domain/account"
)

type stubIdentities struct {
	byToken map[string]auth.Identity
}

func (s stubIdentities) GetUser(_ context.Context, token string) (auth.Identity, error) {
	if id, ok := s.byToken[token]; ok {
		return id, nil
	}
	return auth.Identity{}, auth.ErrInvalidToken
}

type stubRoles struct {
	roles     map[string]account.Role
	err       error
	seenToken string
}

func (s *stubRoles) GetRole(ctx context.Context, userID string) (account.Role, error) {
	s.seenToken = auth.AccessToken(ctx)
	if s.err != nil {
		return "", s.err
	}
	r, ok := s.roles[userID]
	if !ok {
		return "", account.ErrNoRole
	}
	return r, nil
}

// guardFixture wires a session store holding one session per role.
type guardFixture struct {
	sessions *SessionStore
	roles    *stubRoles
	cookies  map[account.Role]string
	deps     GuardDeps
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	f := &guardFixture{
		sessions: NewSessionStore(),
		roles:    &stubRoles{roles: map[string]account.Role{}},
		cookies:  map[account.Role]string{},
	}
	idents := stubIdentities{byToken: map[string]auth.Identity{}}
	for _, role := range account.ValidRoles {
		userID := "u-" + string(role)
		accessToken := "at-" + string(role)
		idents.byToken[accessToken] = auth.Identity{ID: userID, Email: string(role) + "@church.test"}
		f.roles.roles[userID] = role
		cookie, err := f.sessions.Create(userID, string(role)+"@church.test", accessToken)
		if err != nil {
			t.Fatalf("Create session: %v", err)
		}
		f.cookies[role] = cookie
	}
	f.deps = GuardDeps{Sessions: f.sessions, Identities: idents, Roles: f.roles}
	return f
}

func (f *guardFixture) serve(req access.Requirement, cookie string) (*httptest.ResponseRecorder, *Principal) {
	var seen *Principal
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := GetPrincipal(r.Context()); ok {
			seen = &p
		}
		w.WriteHeader(http.StatusOK)
	})
	h := Chain(inner, Guard(req, f.deps), LoadSession(f.sessions))

	r := httptest.NewRequest("GET", "/admin", nil)
	if cookie != "" {
		r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: cookie})
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr, seen
}

func TestGuard_EditorOnSuperadminRouteRedirectsToMembers(t *testing.T) {
	f := newGuardFixture(t)
	rr, seen := f.serve(access.AdminConsole, f.cookies[account.RoleEditor])

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status=%d want 303", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/members" {
		t.Errorf("Location=%q want /members", loc)
	}
	if seen != nil {
		t.Error("protected handler must not run")
	}
}

func TestGuard_NoSessionRedirectsToLogin(t *testing.T) {
	f := newGuardFixture(t)
	rr, _ := f.serve(access.ViewDirectory, "")
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Errorf("status=%d location=%q want 303 /login", rr.Code, rr.Header().Get("Location"))
	}
}

func TestGuard_UnknownCookieRedirectsToLogin(t *testing.T) {
	f := newGuardFixture(t)
	rr, _ := f.serve(access.ViewDirectory, "forged")
	if rr.Header().Get("Location") != "/login" {
		t.Errorf("Location=%q want /login", rr.Header().Get("Location"))
	}
}

func TestGuard_RoleLookupErrorNeverFailsOpen(t *testing.T) {
	f := newGuardFixture(t)
	f.roles.err = errors.New("rpc down")
	rr, seen := f.serve(access.ViewDirectory, f.cookies[account.RoleSuperadmin])
	if rr.Header().Get("Location") != "/login" {
		t.Errorf("Location=%q want /login", rr.Header().Get("Location"))
	}
	if seen != nil {
		t.Error("handler ran despite role lookup failure")
	}
}

func TestGuard_RoleLookupErrorDropsSession(t *testing.T) {
	f := newGuardFixture(t)
	delete(f.roles.roles, "u-viewer")
	cookie := f.cookies[account.RoleViewer]

	rr, _ := f.serve(access.ViewDirectory, cookie)

	if rr.Header().Get("Location") != "/login" {
		t.Errorf("Location=%q want /login", rr.Header().Get("Location"))
	}
	if _, ok := f.sessions.Get(cookie); ok {
		t.Error("session survived a failed role lookup")
	}
	if !clearsSessionCookie(rr) {
		t.Error("session cookie was not cleared")
	}
}

func clearsSessionCookie(rr *httptest.ResponseRecorder) bool {
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookieName && c.MaxAge < 0 {
			return true
		}
	}
	return false
}

type stubRefresher struct {
	fresh auth.Session
	err   error
	calls int
	seen  string
}

func (s *stubRefresher) Refresh(_ context.Context, refreshToken string) (auth.Session, error) {
	s.calls++
	s.seen = refreshToken
	return s.fresh, s.err
}

// refreshFixture adds an editor session whose access token expires at expires.
func refreshFixture(t *testing.T, expires time.Time, rf *stubRefresher) (*guardFixture, string) {
	t.Helper()
	f := newGuardFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.sessions.now = func() time.Time { return now }
	cookie, err := f.sessions.Start(auth.Session{
		UserID:       "u-editor",
		Email:        "editor@church.test",
		AccessToken:  "at-stale",
		RefreshToken: "rt-1",
		ExpiresAt:    expires,
	})
	if err != nil {
		t.Fatalf("Start session: %v", err)
	}
	idents := f.deps.Identities.(stubIdentities)
	idents.byToken["at-stale"] = auth.Identity{ID: "u-editor", Email: "editor@church.test"}
	idents.byToken["at-fresh"] = auth.Identity{ID: "u-editor", Email: "editor@church.test"}
	f.deps.Refresher = rf
	return f, cookie
}

func TestGuard_RefreshesExpiringToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rf := &stubRefresher{fresh: auth.Session{AccessToken: "at-fresh", RefreshToken: "rt-2", ExpiresAt: now.Add(time.Hour)}}
	f, cookie := refreshFixture(t, now.Add(30*time.Second), rf)

	rr, seen := f.serve(access.ViewDirectory, cookie)

	if rr.Code != http.StatusOK || seen == nil {
		t.Fatalf("status=%d want 200 after refresh", rr.Code)
	}
	if rf.seen != "rt-1" {
		t.Errorf("refresh token sent=%q want rt-1", rf.seen)
	}
	if f.roles.seenToken != "at-fresh" {
		t.Errorf("role lookup token=%q want at-fresh", f.roles.seenToken)
	}
	sess, _ := f.sessions.Get(cookie)
	if sess.AccessToken != "at-fresh" || sess.RefreshToken != "rt-2" || !sess.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("stored session=%+v want refreshed tokens", sess)
	}
}

func TestGuard_FreshTokenIsNotRefreshed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rf := &stubRefresher{}
	f, cookie := refreshFixture(t, now.Add(time.Hour), rf)

	rr, _ := f.serve(access.ViewDirectory, cookie)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	if rf.calls != 0 {
		t.Errorf("refresh calls=%d want 0", rf.calls)
	}
}

func TestGuard_FailedRefreshDropsSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rf := &stubRefresher{err: auth.ErrInvalidToken}
	f, cookie := refreshFixture(t, now.Add(-time.Minute), rf)

	rr, seen := f.serve(access.ViewDirectory, cookie)

	if rr.Header().Get("Location") != "/login" || seen != nil {
		t.Errorf("Location=%q want /login without reaching the handler", rr.Header().Get("Location"))
	}
	if _, ok := f.sessions.Get(cookie); ok {
		t.Error("session survived a failed refresh")
	}
}

func TestGuard_RejectedTokenDropsSession(t *testing.T) {
	f := newGuardFixture(t)
	cookie, _ := f.sessions.Create("u-x", "x@church.test", "revoked")
	before := f.sessions.Len()

	rr, _ := f.serve(access.ViewDirectory, cookie)

	if rr.Header().Get("Location") != "/login" {
		t.Errorf("Location=%q want /login", rr.Header().Get("Location"))
	}
	if f.sessions.Len() != before-1 {
		t.Errorf("sessions=%d want %d", f.sessions.Len(), before-1)
	}
}

func TestGuard_AllowedRolesReachHandler(t *testing.T) {
	tests := []struct {
		name string
		req  access.Requirement
		role account.Role
		want bool
	}{
		{"viewer on directory", access.ViewDirectory, account.RoleViewer, true},
		{"viewer on edit", access.EditMembers, account.RoleViewer, false},
		{"editor on edit", access.EditMembers, account.RoleEditor, true},
		{"superadmin on edit", access.EditMembers, account.RoleSuperadmin, true},
		{"superadmin on admin", access.AdminConsole, account.RoleSuperadmin, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGuardFixture(t)
			rr, seen := f.serve(tt.req, f.cookies[tt.role])
			if got := rr.Code == http.StatusOK; got != tt.want {
				t.Fatalf("allowed=%v want %v (status %d)", got, tt.want, rr.Code)
			}
			if tt.want && (seen == nil || seen.Role != tt.role) {
				t.Errorf("principal=%+v want role %s", seen, tt.role)
			}
		})
	}
}

func TestGuard_RoleRevokedMidSession(t *testing.T) {
	f := newGuardFixture(t)
	cookie := f.cookies[account.RoleSuperadmin]
	if rr, _ := f.serve(access.AdminConsole, cookie); rr.Code != http.StatusOK {
		t.Fatalf("first request status=%d", rr.Code)
	}
	f.roles.roles["u-superadmin"] = account.RoleViewer
	rr, _ := f.serve(access.AdminConsole, cookie)
	if rr.Header().Get("Location") != "/members" {
		t.Errorf("Location=%q want /members after demotion", rr.Header().Get("Location"))
	}
}

func TestGuard_RoleLookupCarriesAccessToken(t *testing.T) {
	f := newGuardFixture(t)
	f.serve(access.ViewDirectory, f.cookies[account.RoleEditor])
	if f.roles.seenToken != "at-editor" {
		t.Errorf("role lookup token=%q want at-editor", f.roles.seenToken)
	}
}
