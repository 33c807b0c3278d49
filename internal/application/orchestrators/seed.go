package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"congregation/internal/adapters/auth"
	"congregation/internal/domain/account"
	"congregation/internal/domain/lookup"
)

// IdentityEnsurer creates credentials unless they already exist.
type IdentityEnsurer interface {
	EnsureIdentity(ctx context.Context, email, password string) (auth.Identity, bool, error)
}

// UserStoreForSeed defines the store interface needed by SeedAdmin.
type UserStoreForSeed interface {
	GetByID(ctx context.Context, id string) (account.User, error)
	Insert(ctx context.Context, u account.User) error
	UpdateRole(ctx context.Context, userID string, role account.Role) error
}

// SeedAdminInput names the bootstrap superadmin.
type SeedAdminInput struct {
	Email    string
	Password string
}

// SeedAdminDeps holds stores needed for admin seeding.
type SeedAdminDeps struct {
	Identities IdentityEnsurer
	UserStore  UserStoreForSeed
}

// ExecuteSeedAdmin makes sure the configured address can sign in as superadmin.
// PRE: the self-hosted provider is in use
// POST: an identity and a superadmin role record exist; an existing password is left unchanged
func ExecuteSeedAdmin(ctx context.Context, input SeedAdminInput, deps SeedAdminDeps) error {
	creds := account.Credentials{Email: input.Email, Password: input.Password}
	if err := creds.ValidateSignIn(); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	ident, created, err := deps.Identities.EnsureIdentity(ctx, creds.NormalizedEmail(), input.Password)
	if err != nil {
		return fmt.Errorf("seed admin identity: %w", err)
	}

	u, err := deps.UserStore.GetByID(ctx, ident.ID)
	switch {
	case errors.Is(err, account.ErrUserNotFound):
		u = account.User{ID: ident.ID, Email: ident.Email, Role: account.RoleSuperadmin}
		if err := deps.UserStore.Insert(ctx, u); err != nil {
			return fmt.Errorf("seed admin role: %w", err)
		}
	case err != nil:
		return fmt.Errorf("seed admin role: %w", err)
	case u.Role != account.RoleSuperadmin:
		if err := deps.UserStore.UpdateRole(ctx, ident.ID, account.RoleSuperadmin); err != nil {
			return fmt.Errorf("seed admin role: %w", err)
		}
	}
	slog.Info("seed_event", "event", "admin_ready", "email", ident.Email, "created", created)
	return nil
}

// LookupCreator inserts reference rows idempotently.
type LookupCreator interface {
	Create(ctx context.Context, kind lookup.Kind, name string) (int64, error)
}

// DefaultLookups are the reference rows of a fresh self-hosted database.
var DefaultLookups = map[lookup.Kind][]string{
	lookup.KindStatus:       {"Член церкви", "Кандидат", "Гість"},
	lookup.KindMinistryType: {"Прославлення", "Дитяче служіння", "Молодіжне служіння"},
	lookup.KindHomeGroup:    {"Центр"},
}

// ExecuteSeedLookups inserts DefaultLookups; rows that exist are left alone.
func ExecuteSeedLookups(ctx context.Context, store LookupCreator) error {
	n := 0
	for _, kind := range lookup.Kinds {
		for _, name := range DefaultLookups[kind] {
			if _, err := store.Create(ctx, kind, name); err != nil {
				return fmt.Errorf("seed %s %q: %w", kind, name, err)
			}
			n++
		}
	}
	slog.Info("seed_event", "event", "lookups_ready", "rows", n)
	return nil
}
