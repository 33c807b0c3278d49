package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"congregation/internal/adapters/auth"
	emailPkg "congregation/internal/adapters/email"
	web "congregation/internal/adapters/http"
	"congregation/internal/adapters/metrics"
	"congregation/internal/adapters/realtime"
	"congregation/internal/adapters/schema"
	"congregation/internal/adapters/storage"
	accountStore "congregation/internal/adapters/storage/account"
	auditStore "congregation/internal/adapters/storage/audit"
	identityStore "congregation/internal/adapters/storage/identity"
	lookupStore "congregation/internal/adapters/storage/lookup"
	memberStore "congregation/internal/adapters/storage/member"
	"congregation/internal/adapters/supabase"
	"congregation/internal/application/orchestrators"
	"congregation/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// backend is everything NewMux needs from a storage and identity backend.
type backend struct {
	stores   *web.Stores
	provider auth.Provider
	schema   schema.Executor
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_event", "event", "load_failed", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	if err := cfg.EnsureSecrets(); err != nil {
		slog.Error("config_event", "event", "secrets_failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	var be backend
	switch cfg.Backend {
	case config.BackendSupabase:
		be = openSupabase(cfg)
	default:
		be, err = openSQLite(ctx, cfg, m)
	}
	if err != nil {
		slog.Error("startup_failed", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer be.close()

	// A direct Postgres connection takes over schema changes from the backend default.
	if cfg.SchemaDSN != "" {
		pg, err := schema.OpenPostgres(ctx, cfg.SchemaDSN)
		if err != nil {
			slog.Error("startup_failed", "component", "schema", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		be.schema = schema.NewSQLExecutor(pg, "postgres")
	}

	broker := realtime.NewBroker()
	defer broker.Close()

	handler := web.NewMux(web.Options{
		Stores:        be.stores,
		Auth:          be.provider,
		Schema:        be.schema,
		Broker:        broker,
		Metrics:       m,
		CSRFKey:       cfg.Auth.CSRFKey,
		PublicURL:     cfg.PublicURL,
		SecureCookies: cfg.IsProduction(),
		RateLimit:     float64(cfg.HTTP.RateLimit),
		SlowRequest:   cfg.HTTP.SlowRequest,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("server_starting", "version", version, "addr", cfg.Addr, "env", cfg.Env, "backend", cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("server_stopping")

	// Open event streams end when the broker closes.
	broker.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server_shutdown_failed", "error", err)
	}
	slog.Info("server_stopped")
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

// openSQLite opens, migrates and seeds the self-hosted database.
func openSQLite(ctx context.Context, cfg config.Config, m *metrics.Metrics) (backend, error) {
	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return backend{}, err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		db.Close()
		return backend{}, err
	}
	timedDB := storage.NewTimedDB(db, cfg.Database.SlowQuery, m)

	var sender emailPkg.Sender = emailPkg.NewNoopSender()
	if cfg.Email.ResendKey != "" {
		sender = emailPkg.NewResendSender(cfg.Email.ResendKey, cfg.Email.From)
		slog.Info("email_event", "event", "sender_configured", "sender", "resend")
	} else if cfg.IsProduction() {
		slog.Warn("email_event", "event", "delivery_disabled", "reason", "CONGREGATION_RESEND_KEY is not set")
	}

	provider := auth.NewLocalProvider(identityStore.NewSQLiteStore(timedDB), sender, auth.LocalProviderConfig{
		Secret:              []byte(cfg.Auth.JWTSecret),
		RequireConfirmation: cfg.Email.ResendKey != "",
	})
	stores := &web.Stores{
		MemberStore: memberStore.NewSQLiteStore(timedDB),
		LookupStore: lookupStore.NewSQLiteStore(timedDB),
		UserStore:   accountStore.NewSQLiteStore(timedDB),
		AuditStore:  auditStore.NewSQLiteStore(timedDB),
	}

	if err := orchestrators.ExecuteSeedLookups(ctx, stores.LookupStore); err != nil {
		db.Close()
		return backend{}, err
	}
	if cfg.Auth.AdminPassword != "" {
		err := orchestrators.ExecuteSeedAdmin(ctx, orchestrators.SeedAdminInput{
			Email:    cfg.Auth.AdminEmail,
			Password: cfg.Auth.AdminPassword,
		}, orchestrators.SeedAdminDeps{Identities: provider, UserStore: stores.UserStore})
		if err != nil {
			db.Close()
			return backend{}, err
		}
	} else {
		slog.Warn("seed_event", "event", "admin_skipped", "reason", "CONGREGATION_ADMIN_PASSWORD is not set")
	}

	return backend{
		stores:   stores,
		provider: provider,
		schema:   schema.NewSQLExecutor(timedDB, "sqlite"),
		close:    func() { db.Close() },
	}, nil
}

// openSupabase wires the hosted backend. Every call carries the caller's
// access token so row-level security applies.
func openSupabase(cfg config.Config) backend {
	client := supabase.New(cfg.Supabase.URL, cfg.Supabase.AnonKey, &http.Client{Timeout: 30 * time.Second})
	return backend{
		stores: &web.Stores{
			MemberStore: supabase.NewMemberStore(client),
			LookupStore: supabase.NewLookupStore(client),
			UserStore:   supabase.NewUserStore(client),
			AuditStore:  supabase.NewAuditStore(client),
		},
		provider: supabase.NewAuthProvider(client),
		schema:   supabase.NewDDLExecutor(client),
		close:    func() {},
	}
}
