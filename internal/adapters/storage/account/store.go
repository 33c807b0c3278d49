package account

import (
	"context"

	domain "congregation/internal/domain/account"
)

// Store persists role records, one per authenticated identity.
type Store interface {
	// GetRole returns the stored role.
	// POST: returns domain.ErrNoRole when the user has no record
	GetRole(ctx context.Context, userID string) (domain.Role, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	Insert(ctx context.Context, value domain.User) error
	// UpdateRole returns domain.ErrUserNotFound when no record matched.
	UpdateRole(ctx context.Context, userID string, role domain.Role) error
	List(ctx context.Context) ([]domain.User, error)
}

var _ Store = (*SQLiteStore)(nil)
