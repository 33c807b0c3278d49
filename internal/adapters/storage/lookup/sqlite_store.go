package lookup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"congregation/internal/adapters/storage"
	domain "congregation/internal/domain/lookup"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new lookup store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// List returns all rows of one table ordered by name.
func (s *SQLiteStore) List(ctx context.Context, kind domain.Kind) ([]domain.Lookup, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT id, %[1]s FROM %[2]s ORDER BY %[1]s", kind.NameColumn(), kind.Table())
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Table(), err)
	}
	defer rows.Close()

	results := []domain.Lookup{}
	for rows.Next() {
		var l domain.Lookup
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, err
		}
		results = append(results, l)
	}
	return results, rows.Err()
}

// FindIDByName returns the id of the row whose name matches exactly.
// PRE: kind is valid
// POST: returns nil, nil when no row matches
func (s *SQLiteStore) FindIDByName(ctx context.Context, kind domain.Kind, name string) (*int64, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", kind.Table(), kind.NameColumn())
	var id int64
	err := s.db.QueryRowContext(ctx, query, domain.NormalizeName(name)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", kind.Table(), err)
	}
	return &id, nil
}

// Create inserts a row, or returns the id of the existing row with that name.
// PRE: kind is valid, name is non-empty
// POST: exactly one row named name exists
func (s *SQLiteStore) Create(ctx context.Context, kind domain.Kind, name string) (int64, error) {
	if err := kind.Validate(); err != nil {
		return 0, err
	}
	name = domain.NormalizeName(name)
	if name == "" {
		return 0, errors.New("lookup name is required")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?) ON CONFLICT DO NOTHING", kind.Table(), kind.NameColumn())
	if _, err := s.db.ExecContext(ctx, query, name); err != nil {
		return 0, fmt.Errorf("create %s: %w", kind.Table(), err)
	}
	id, err := s.FindIDByName(ctx, kind, name)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, fmt.Errorf("create %s: row vanished", kind.Table())
	}
	return *id, nil
}
