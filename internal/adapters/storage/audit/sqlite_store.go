package audit

import (
	"context"
	"fmt"

	"congregation/internal/adapters/storage"
	domain "congregation/internal/domain/audit"
)

// SQLiteStore implements the audit Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new audit log store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Append persists an entry.
// PRE: entry is valid
// POST: Entry is persisted
func (s *SQLiteStore) Append(ctx context.Context, entry domain.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, category, action, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.ActorID, string(entry.Category), entry.Description,
		entry.CreatedAt.UTC().Format(storage.TimeLayout))
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// List returns the newest entries first.
// PRE: limit > 0
// POST: ActorEmail is empty for actors without a users row
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]domain.Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.user_id, COALESCE(u.email, ''), a.category, a.action, a.created_at
		 FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id
		 ORDER BY a.created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var e domain.Entry
		var category, createdAt string
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorEmail, &category, &e.Description, &createdAt); err != nil {
			return nil, err
		}
		e.Category = domain.Category(category)
		e.CreatedAt, _ = storage.ParseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
