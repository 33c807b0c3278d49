package lookup

import (
	"context"

	domain "congregation/internal/domain/lookup"
)

// Store reads and seeds the four reference tables.
type Store interface {
	// List returns all rows of one table ordered by name.
	// PRE: kind is valid
	List(ctx context.Context, kind domain.Kind) ([]domain.Lookup, error)

	// FindIDByName returns the id of the row whose name matches exactly.
	// POST: returns nil, nil when no row matches
	FindIDByName(ctx context.Context, kind domain.Kind, name string) (*int64, error)

	// Create inserts a row and returns its id; an existing name returns the existing id.
	Create(ctx context.Context, kind domain.Kind, name string) (int64, error)
}

var _ Store = (*SQLiteStore)(nil)
