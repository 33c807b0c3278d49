package web

import (
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"congregation/internal/adapters/auth"
	"congregation/internal/adapters/http/middleware"
	"congregation/internal/adapters/metrics"
	"congregation/internal/adapters/realtime"
	"congregation/internal/adapters/schema"
	accountStore "congregation/internal/adapters/storage/account"
	auditStore "congregation/internal/adapters/storage/audit"
	lookupStore "congregation/internal/adapters/storage/lookup"
	memberStore "congregation/internal/adapters/storage/member"
	"congregation/internal/domain/access"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Stores holds all storage dependencies.
type Stores struct {
	MemberStore memberStore.Store
	LookupStore lookupStore.Store
	UserStore   accountStore.Store
	AuditStore  auditStore.Store
}

// Options configures NewMux.
type Options struct {
	Stores  *Stores
	Auth    auth.Provider
	Schema  schema.Executor
	Broker  *realtime.Broker
	Metrics *metrics.Metrics

	// CSRFKey is the 32-byte gorilla/csrf secret.
	CSRFKey        []byte
	TrustedOrigins []string
	// PublicURL is the externally visible base URL used in emailed links.
	PublicURL     string
	SecureCookies bool

	RateLimit   float64 // requests per second per IP
	RateBurst   int
	SlowRequest time.Duration
	// RefreshDelay coalesces realtime notifications on the admin stream.
	RefreshDelay time.Duration
}

// Global stores instance (set by NewMux)
var stores *Stores

// Global session store instance
var sessions *middleware.SessionStore

var (
	authProvider   auth.Provider
	schemaExecutor schema.Executor
	broker         *realtime.Broker
	appMetrics     *metrics.Metrics
	publicURL      string
	refreshDelay   time.Duration
)

// DefaultRateLimit is the per-IP request rate when Options.RateLimit is unset.
const DefaultRateLimit = 20

// NewMux wires HTTP handlers for the app.
// PRE: opts.Stores, opts.Auth, opts.Schema are set; len(opts.CSRFKey) == 32
func NewMux(opts Options) http.Handler {
	stores = opts.Stores
	authProvider = opts.Auth
	schemaExecutor = opts.Schema
	broker = opts.Broker
	if broker == nil {
		broker = realtime.NewBroker()
	}
	appMetrics = opts.Metrics
	if appMetrics == nil {
		appMetrics = metrics.New()
	}
	publicURL = opts.PublicURL
	refreshDelay = opts.RefreshDelay
	if refreshDelay <= 0 {
		refreshDelay = realtime.DefaultDebounce
	}
	sessions = middleware.NewSessionStore()
	middleware.SecureCookies = opts.SecureCookies

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Timing(appMetrics, opts.SlowRequest))
	registerRoutes(r)

	rateLimit := opts.RateLimit
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = int(rateLimit) * 2
	}
	limiter := middleware.NewRateLimiter(rateLimit, burst)

	// Outermost last: SecurityHeaders -> RateLimit -> CSRF -> LoadSession -> router
	return middleware.Chain(r,
		middleware.LoadSession(sessions),
		middleware.CSRF(opts.CSRFKey, opts.TrustedOrigins),
		middleware.RateLimit(limiter),
		middleware.SecurityHeaders,
	)
}

func registerRoutes(r chi.Router) {
	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/members", http.StatusSeeOther)
	})
	r.Get("/login", handleLoginPage)
	r.Post("/login", handleLogin)
	r.Get("/signup", handleSignUpPage)
	r.Post("/signup", handleSignUp)
	r.Get("/auth/confirm", handleConfirmEmail)
	r.Get("/reset-password", handleResetPasswordPage)
	r.Post("/reset-password", handleResetPassword)
	r.Get("/update-password", handleUpdatePasswordPage)
	r.Post("/update-password", handleUpdatePassword)
	r.Post("/logout", handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(guard(access.ViewDirectory))
		r.Get("/members", handleDirectory)
		r.Get("/members/export", handleExport)
	})

	r.Group(func(r chi.Router) {
		r.Use(guard(access.EditMembers))
		r.Get("/members/new", handleMemberFormPage)
		r.Post("/members/new", handleSaveMember)
		r.Get("/members/{id}/edit", handleMemberFormPage)
		r.Post("/members/{id}/edit", handleSaveMember)
		r.Get("/members/{id}/delete", handleDeleteMemberPage)
		r.Post("/members/{id}/delete", handleDeleteMember)
	})

	r.Group(func(r chi.Router) {
		r.Use(guard(access.AdminConsole))
		r.Get("/admin", handleAdminConsole)
		r.Post("/admin/roles", handleAssignRole)
		r.Post("/admin/schema", handleSchemaChange)
		r.Post("/admin/columns", handleAddColumn)
		r.Post("/admin/import", handleImportMembers)
		r.Get("/admin/users", handleUserListFragment)
		r.Get("/admin/events", handleAdminEvents)
		r.Method(http.MethodGet, "/metrics", appMetrics.Handler())
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
}

func guard(req access.Requirement) func(http.Handler) http.Handler {
	deps := middleware.GuardDeps{
		Sessions:   sessions,
		Identities: authProvider,
		Roles:      stores.UserStore,
	}
	if rf, ok := authProvider.(auth.TokenRefresher); ok {
		deps.Refresher = rf
	}
	return middleware.Guard(req, deps)
}
