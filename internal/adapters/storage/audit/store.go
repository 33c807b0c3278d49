package audit

import (
	"context"

	domain "congregation/internal/domain/audit"
)

// DefaultLimit caps the audit log shown in the admin console.
const DefaultLimit = 100

// Store defines the interface for audit log persistence.
type Store interface {
	// Append persists an entry.
	// PRE: entry is valid
	// POST: Entry is persisted; entries are never updated
	Append(ctx context.Context, entry domain.Entry) error

	// List returns the newest entries first with the actor email resolved.
	// PRE: limit > 0
	List(ctx context.Context, limit int) ([]domain.Entry, error)
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
