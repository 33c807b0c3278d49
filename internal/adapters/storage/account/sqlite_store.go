package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"congregation/internal/adapters/storage"
	domain "congregation/internal/domain/account"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new AccountStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetRole returns the stored role of a user.
// PRE: userID is non-empty
// POST: Returns domain.ErrNoRole when no users row exists
func (s *SQLiteStore) GetRole(ctx context.Context, userID string) (domain.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx, "SELECT role FROM users WHERE id = ?", userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNoRole
	}
	if err != nil {
		return "", fmt.Errorf("get role: %w", err)
	}
	return domain.ParseRole(role)
}

// GetByID retrieves a User by its ID.
// PRE: id is non-empty
// POST: Returns the entity or domain.ErrUserNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, email, role, created_at FROM users WHERE id = ?", id)
	entity, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return entity, err
}

// Insert creates the role record of a user.
// PRE: entity has been validated
// POST: Record is persisted; an existing record for the id is left unchanged
func (s *SQLiteStore) Insert(ctx context.Context, entity domain.User) error {
	createdAt := entity.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, role, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING",
		entity.ID, entity.Email, string(entity.Role), createdAt.Format(storage.TimeLayout))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdateRole changes the role of an existing user.
// PRE: role is one of domain.ValidRoles
// POST: Returns domain.ErrUserNotFound when no record matched
func (s *SQLiteStore) UpdateRole(ctx context.Context, userID string, role domain.Role) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET role = ? WHERE id = ?", string(role), userID)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// List returns every user ordered by email.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, email, role, created_at FROM users ORDER BY email")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.User
	for rows.Next() {
		entity, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, entity)
	}
	return results, rows.Err()
}

// scanUser extracts a User from a row scanner function.
func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var entity domain.User
	var role, createdAt string
	if err := scan(&entity.ID, &entity.Email, &role, &createdAt); err != nil {
		return domain.User{}, err
	}
	entity.Role = domain.Role(role)
	entity.CreatedAt, _ = storage.ParseTime(createdAt)
	return entity, nil
}
