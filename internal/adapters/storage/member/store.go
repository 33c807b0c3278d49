package member

import (
	"context"

	"congregation/internal/domain/filter"
	domain "congregation/internal/domain/member"
)

// Store persists Member state.
type Store interface {
	GetByID(ctx context.Context, id int64) (domain.Member, error)
	Insert(ctx context.Context, value domain.Member) (int64, error)
	InsertBatch(ctx context.Context, values []domain.Member) (int, error)
	Update(ctx context.Context, value domain.Member) error
	Delete(ctx context.Context, id int64) error
	ListDirectory(ctx context.Context, f ListFilter) ([]domain.DirectoryEntry, error)
	Streets(ctx context.Context) ([]string, error)
}

// ListFilter carries the directory query: a conjunction of predicates and one sort key.
type ListFilter struct {
	Predicates []filter.Predicate
	Sort       string
	Dir        string
}

// SortColumns are the member columns the directory may be ordered by.
// The first entry is the default.
var SortColumns = []string{
	domain.FieldLastName,
	domain.FieldFirstName,
	domain.FieldBirthDate,
	domain.FieldBaptismDate,
	domain.FieldStreet,
}

// FilterColumns are the member columns a predicate may reference.
var FilterColumns = []string{
	domain.FieldStreet,
	domain.FieldBirthDate,
	domain.FieldBaptismDate,
	domain.FieldStatusID,
	domain.FieldMinistryTypeID,
	domain.FieldHomeGroupID,
	domain.FieldDeaconID,
}

// IsFilterColumn reports whether col may appear in a predicate.
func IsFilterColumn(col string) bool {
	for _, c := range FilterColumns {
		if c == col {
			return true
		}
	}
	return false
}

// IsSortColumn reports whether col may be used as a sort key.
func IsSortColumn(col string) bool {
	for _, c := range SortColumns {
		if c == col {
			return true
		}
	}
	return false
}

var _ Store = (*SQLiteStore)(nil)
