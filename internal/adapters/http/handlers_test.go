package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"congregation/internal/adapters/auth"
	"congregation/internal/adapters/http/middleware"
	"congregation/internal/adapters/realtime"
	"congregation/internal/adapters/schema"
	"congregation/internal/adapters/storage"
	accountStore "congregation/internal/adapters/storage/account"
	auditStore "congregation/internal/adapters/storage/audit"
	lookupStore "congregation/internal/adapters/storage/lookup"
	memberStore "congregation/internal/adapters/storage/member"
	"congregation/internal/domain/account"
	"congregation/internal/domain/filter"
	"congregation/internal/domain/member"
)

// --- Stub identity provider ---

// stubProvider resolves access tokens from a fixed table.
type stubProvider struct {
	identities map[string]auth.Identity
}

func (p *stubProvider) SignUp(context.Context, string, string, string) error { return nil }
func (p *stubProvider) SignIn(context.Context, string, string) (auth.Session, error) {
	return auth.Session{}, auth.ErrInvalidCredentials
}
func (p *stubProvider) SignOut(context.Context, string) error { return nil }
func (p *stubProvider) GetUser(_ context.Context, token string) (auth.Identity, error) {
	if id, ok := p.identities[token]; ok {
		return id, nil
	}
	return auth.Identity{}, auth.ErrInvalidToken
}
func (p *stubProvider) RequestPasswordReset(context.Context, string, string) error { return nil }
func (p *stubProvider) UpdatePassword(context.Context, string, string) error      { return nil }

// fixture is a fully wired mux over an in-memory database with one
// signed-in session per role.
type fixture struct {
	handler http.Handler
	db      storage.SQLDB
	broker  *realtime.Broker
	cookies map[account.Role]*http.Cookie
}

var testUsers = []account.User{
	{ID: "u-viewer", Email: "viewer@example.com", Role: account.RoleViewer},
	{ID: "u-editor", Email: "editor@example.com", Role: account.RoleEditor},
	{ID: "u-admin", Email: "admin@example.com", Role: account.RoleSuperadmin},
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := accountStore.NewSQLiteStore(db)
	provider := &stubProvider{identities: map[string]auth.Identity{}}
	for _, u := range testUsers {
		if err := users.Insert(ctx, u); err != nil {
			t.Fatalf("insert user: %v", err)
		}
		provider.identities["token-"+u.ID] = auth.Identity{ID: u.ID, Email: u.Email}
	}

	f := &fixture{db: db, broker: realtime.NewBroker(), cookies: map[account.Role]*http.Cookie{}}
	t.Cleanup(f.broker.Close)
	f.handler = NewMux(Options{
		Stores: &Stores{
			MemberStore: memberStore.NewSQLiteStore(db),
			LookupStore: lookupStore.NewSQLiteStore(db),
			UserStore:   users,
			AuditStore:  auditStore.NewSQLiteStore(db),
		},
		Auth:         provider,
		Schema:       schema.NewSQLExecutor(db, "sqlite"),
		Broker:       f.broker,
		CSRFKey:      bytes.Repeat([]byte("k"), 32),
		RateLimit:    1000,
		RefreshDelay: 10 * time.Millisecond,
	})

	for _, u := range testUsers {
		token, err := sessions.Create(u.ID, u.Email, "token-"+u.ID)
		if err != nil {
			t.Fatalf("create session: %v", err)
		}
		rec := httptest.NewRecorder()
		middleware.SetSessionCookie(rec, token)
		f.cookies[u.Role] = rec.Result().Cookies()[0]
	}
	return f
}

func (f *fixture) get(t *testing.T, role account.Role, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if c, ok := f.cookies[role]; ok {
		req.AddCookie(c)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seedMembers(t *testing.T) {
	t.Helper()
	_, err := f.db.ExecContext(context.Background(), `
		INSERT INTO members (last_name, first_name, birth_date, baptism_date, street, notes) VALUES
			('Коваль', 'Олег', '1980-03-01', '2000-06-01', 'Шевченка', '**Хор**'),
			('Бондар', 'Ірина', '1995-07-12', '2010-08-15', 'Франка', '')`)
	if err != nil {
		t.Fatalf("seed members: %v", err)
	}
}

// postForm calls h directly with principal p in the context.
func postForm(h http.HandlerFunc, target string, form url.Values, p middleware.Principal) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(middleware.ContextWithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

var editorPrincipal = middleware.Principal{UserID: "u-editor", Email: "editor@example.com", Role: account.RoleEditor}

// --- Routing and guards ---

func TestUnmatchedPathRedirectsToLogin(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, account.RoleSuperadmin, "/no/such/page")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("status=%d location=%q want 303 /login", rec.Code, rec.Header().Get("Location"))
	}
}

func TestAnonymousDirectoryRedirectsToLogin(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "", "/members")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("status=%d location=%q want 303 /login", rec.Code, rec.Header().Get("Location"))
	}
}

func TestRoleGates(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		role   account.Role
		path   string
		status int
	}{
		{account.RoleViewer, "/members", http.StatusOK},
		{account.RoleViewer, "/members/new", http.StatusSeeOther},
		{account.RoleEditor, "/members/new", http.StatusOK},
		{account.RoleEditor, "/admin", http.StatusSeeOther},
		{account.RoleEditor, "/metrics", http.StatusSeeOther},
		{account.RoleSuperadmin, "/admin", http.StatusOK},
		{account.RoleSuperadmin, "/admin/users", http.StatusOK},
	}
	for _, tt := range tests {
		rec := f.get(t, tt.role, tt.path)
		if rec.Code != tt.status {
			t.Errorf("%s %s: status=%d want %d", tt.role, tt.path, rec.Code, tt.status)
		}
		if tt.status == http.StatusSeeOther && rec.Header().Get("Location") != "/members" {
			t.Errorf("%s %s: location=%q want /members", tt.role, tt.path, rec.Header().Get("Location"))
		}
	}
}

func TestLoginPageRedirectsSignedInUser(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, account.RoleViewer, "/login")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/members" {
		t.Errorf("status=%d location=%q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestMissingRoleRecordEndsAtLoginPage(t *testing.T) {
	f := newFixture(t)
	if _, err := f.db.ExecContext(context.Background(), `DELETE FROM users WHERE id = 'u-viewer'`); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	target := "/members"
	for hop := 0; hop < 5; hop++ {
		rec := f.get(t, account.RoleViewer, target)
		if rec.Code == http.StatusOK {
			if target != "/login" {
				t.Errorf("landed on %s want /login", target)
			}
			return
		}
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("GET %s status=%d", target, rec.Code)
		}
		target = rec.Header().Get("Location")
	}
	t.Fatal("redirects never reached the sign-in page")
}

// --- Directory ---

func TestDirectoryPageRendersMembers(t *testing.T) {
	f := newFixture(t)
	f.seedMembers(t)
	rec := f.get(t, account.RoleEditor, "/members")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Коваль", "Бондар", "<strong>Хор</strong>", "/members/1/edit", `data-debounce-ms="500"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestDirectoryViewerSeesNoEditLinks(t *testing.T) {
	f := newFixture(t)
	f.seedMembers(t)
	body := f.get(t, account.RoleViewer, "/members").Body.String()
	if strings.Contains(body, "/edit") {
		t.Error("viewer page contains edit links")
	}
}

func TestDirectoryJSONEchoesSeq(t *testing.T) {
	f := newFixture(t)
	f.seedMembers(t)
	rec := f.get(t, account.RoleViewer, "/members?format=json&seq=7&street=%D1%88%D0%B5%D0%B2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Request-Seq"); got != "7" {
		t.Errorf("X-Request-Seq=%q want 7", got)
	}
	var body directoryJSON
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Seq != 7 || body.Count != 1 || body.Entries[0].LastName != "Коваль" {
		t.Errorf("body=%+v", body)
	}
	if !strings.Contains(body.Query, "street=") {
		t.Errorf("query=%q want street filter kept", body.Query)
	}
}

func TestDirectoryJSONReportsRejectedYear(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, account.RoleViewer, "/members?format=json&birth_from=abc")
	var body directoryJSON
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Rejected["birth_from"] == "" {
		t.Errorf("rejected=%v want birth_from", body.Rejected)
	}
}

func TestDirectoryJSONRejectedYearKeepsPreviousBound(t *testing.T) {
	timeNow = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { timeNow = time.Now }()
	f := newFixture(t)
	f.seedMembers(t)
	if _, err := f.db.ExecContext(context.Background(), `
		INSERT INTO members (last_name, first_name, birth_date, baptism_date)
		VALUES ('Майбутній', 'Іван', '2999-01-01', '2000-01-01')`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	prev := filter.Default(2026).Values()
	q := filter.Default(2026).Values()
	q.Set(filter.ParamBirthTo, "3000")
	q.Set(filter.ParamPrevious, prev.Encode())
	q.Set("format", "json")
	rec := f.get(t, account.RoleViewer, "/members?"+q.Encode())

	var body directoryJSON
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Rejected[filter.ParamBirthTo] == "" {
		t.Errorf("rejected=%v want birth_to", body.Rejected)
	}
	kept, _ := url.ParseQuery(body.Query)
	if got := kept.Get(filter.ParamBirthTo); got != "2026" {
		t.Errorf("query birth_to=%q want previous bound 2026", got)
	}
	if body.Count != 2 {
		t.Errorf("count=%d want 2 (member born 2999 stays filtered out)", body.Count)
	}
}

// --- Export ---

func TestExportCSV(t *testing.T) {
	f := newFixture(t)
	f.seedMembers(t)
	timeNow = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { timeNow = time.Now }()

	rec := f.get(t, account.RoleViewer, "/members/export?export=csv&columns=last_name&columns=first_name&sort=last_name")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want 200 body=%s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "members_export_2024-05-01.csv") {
		t.Errorf("Content-Disposition=%q", cd)
	}
	body := rec.Body.String()
	if strings.Index(body, "Бондар") > strings.Index(body, "Коваль") {
		t.Errorf("rows not in directory order: %q", body)
	}
}

func TestExportXLSX(t *testing.T) {
	f := newFixture(t)
	f.seedMembers(t)
	rec := f.get(t, account.RoleViewer, "/members/export?export=xlsx&columns=last_name")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rec.Code)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("xlsx body is not a zip archive")
	}
}

func TestExportValidationDownloadsNothing(t *testing.T) {
	f := newFixture(t)
	f.seedMembers(t)
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"no columns", "/members/export?export=csv", "Виберіть хоча б один стовпець"},
		{"no rows", "/members/export?export=json&columns=last_name&street=nowhere", "Немає даних для завантаження"},
		{"print no rows", "/members/export?export=print&columns=last_name&street=nowhere", "Немає даних для друку"},
		{"unknown format", "/members/export?export=pdf&columns=last_name", "Невідомий формат файлу"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, account.RoleViewer, tt.target, "Accept", "application/json")
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status=%d want 422", rec.Code)
			}
			if rec.Header().Get("Content-Disposition") != "" {
				t.Error("validation failure sent an attachment")
			}
			var body map[string]string
			json.NewDecoder(rec.Body).Decode(&body)
			if body["error"] != tt.want {
				t.Errorf("error=%q want %q", body["error"], tt.want)
			}
		})
	}
}

func TestExportErrorRerendersDirectory(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, account.RoleViewer, "/members/export?export=csv")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `id="export-error"`) {
		t.Error("directory page does not show the export error")
	}
}

// --- Member forms ---

func TestSaveMember_InvalidFormKeepsValues(t *testing.T) {
	newFixture(t)
	form := url.Values{
		member.FieldLastName:  {"К"},
		member.FieldFirstName: {"Олег"},
		member.FieldPhone:     {"12"},
	}
	rec := postForm(handleSaveMember, "/members/new", form, editorPrincipal)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d want 422", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `value="Олег"`) {
		t.Error("submitted first name not retained")
	}
	if strings.Count(body, `class="error"`) < 2 {
		t.Errorf("want field errors for last_name and phone, body=%s", body)
	}
}

func TestSaveMember_ValidRedirects(t *testing.T) {
	f := newFixture(t)
	form := url.Values{
		member.FieldLastName:  {"Коваль"},
		member.FieldFirstName: {"Олег"},
	}
	rec := postForm(handleSaveMember, "/members/new", form, editorPrincipal)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/members" {
		t.Fatalf("status=%d location=%q", rec.Code, rec.Header().Get("Location"))
	}
	var n int
	f.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM members`).Scan(&n)
	if n != 1 {
		t.Errorf("members=%d want 1", n)
	}
}

func TestEditMissingMemberIs404(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, account.RoleEditor, "/members/999/edit")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status=%d want 404", rec.Code)
	}
}

// --- Admin ---

func TestAssignRole_WritesAuditAndRedirects(t *testing.T) {
	f := newFixture(t)
	admin := middleware.Principal{UserID: "u-admin", Email: "admin@example.com", Role: account.RoleSuperadmin}
	rec := postForm(handleAssignRole, "/admin/roles", url.Values{"user_id": {"u-viewer"}, "role": {"editor"}}, admin)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/admin?ok=role" {
		t.Fatalf("status=%d location=%q", rec.Code, rec.Header().Get("Location"))
	}
	role, err := stores.UserStore.GetRole(context.Background(), "u-viewer")
	if err != nil || role != account.RoleEditor {
		t.Errorf("role=%q err=%v want editor", role, err)
	}
	var n int
	f.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM audit_logs`).Scan(&n)
	if n != 1 {
		t.Errorf("audit entries=%d want 1", n)
	}
}

func TestAssignRole_InvalidRoleRerenders(t *testing.T) {
	newFixture(t)
	admin := middleware.Principal{UserID: "u-admin", Role: account.RoleSuperadmin}
	rec := postForm(handleAssignRole, "/admin/roles", url.Values{"user_id": {"u-viewer"}, "role": {"owner"}}, admin)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status=%d want 422", rec.Code)
	}
}

func TestAddColumn_RejectsBadName(t *testing.T) {
	newFixture(t)
	admin := middleware.Principal{UserID: "u-admin", Role: account.RoleSuperadmin}
	rec := postForm(handleAddColumn, "/admin/columns", url.Values{"column_name": {"1; DROP"}, "column_type": {"text"}}, admin)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status=%d want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `value="1; DROP"`) {
		t.Error("submitted column name not retained")
	}
}

// streamRecorder is a ResponseWriter safe to read while the handler writes.
type streamRecorder struct {
	mu     sync.Mutex
	header http.Header
	buf    bytes.Buffer
	status int
}

func (s *streamRecorder) Header() http.Header { return s.header }
func (s *streamRecorder) WriteHeader(code int) {
	s.mu.Lock()
	s.status = code
	s.mu.Unlock()
}
func (s *streamRecorder) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}
func (s *streamRecorder) Flush() {}
func (s *streamRecorder) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAdminEvents_CoalescesAndUnsubscribes(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/admin/events", nil).WithContext(ctx)
	rec := &streamRecorder{header: http.Header{}}

	done := make(chan struct{})
	go func() {
		handleAdminEvents(rec, req)
		close(done)
	}()

	waitFor(t, "subscription", func() bool { return f.broker.Subscribers(realtime.TopicUsers) == 1 })
	for range 5 {
		f.broker.Publish(realtime.TopicUsers)
	}
	waitFor(t, "refresh event", func() bool { return strings.Contains(rec.String(), "event: refresh") })
	time.Sleep(50 * time.Millisecond)
	if n := strings.Count(rec.String(), "event: refresh"); n != 1 {
		t.Errorf("refresh events=%d want 1 for one burst", n)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after the client left")
	}
	if n := f.broker.Subscribers(realtime.TopicUsers); n != 0 {
		t.Errorf("subscribers=%d want 0 after disconnect", n)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type=%q", ct)
	}
}

func TestUserListFragmentHasNoLayout(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, account.RoleSuperadmin, "/admin/users")
	body := rec.Body.String()
	if strings.Contains(body, "<html") {
		t.Error("fragment rendered with layout")
	}
	if !strings.Contains(body, "viewer@example.com") {
		t.Error("fragment missing users")
	}
}

func TestMetricsEndpointForAdmin(t *testing.T) {
	f := newFixture(t)
	f.get(t, account.RoleViewer, "/members")
	rec := f.get(t, account.RoleSuperadmin, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rec.Code)
	}
	b, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(b), `route="/members"`) {
		t.Error("request histogram missing /members route label")
	}
}

func TestRenderMarkdownEscapesRawHTML(t *testing.T) {
	got := string(renderMarkdown("<script>alert(1)</script> **ok**"))
	if strings.Contains(got, "<script>") {
		t.Errorf("raw HTML passed through: %q", got)
	}
	if !strings.Contains(got, "<strong>ok</strong>") {
		t.Errorf("markdown not rendered: %q", got)
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	internalError(rec, errors.New("db password is hunter2"))
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "hunter2") {
		t.Errorf("status=%d body=%q", rec.Code, rec.Body.String())
	}
}
