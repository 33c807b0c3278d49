package audit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category represents the kind of privileged action recorded.
type Category string

const (
	CategoryRoleAssignment Category = "role_assignment"
	CategorySchemaChange   Category = "schema_change"
	CategoryImport         Category = "import"
)

// ErrEmptyDescription is returned when an entry carries no text.
var ErrEmptyDescription = errors.New("audit description is required")

// Entry is an append-only record of an admin action.
type Entry struct {
	ID          string
	CreatedAt   time.Time
	Category    Category
	ActorID     string
	ActorEmail  string
	Description string
}

// NewEntry creates an entry stamped with the current time.
// PRE: actorID is the id of the signed-in superadmin
// POST: Returns an Entry with a fresh id and timestamp
func NewEntry(actorID, actorEmail string, category Category) Entry {
	return Entry{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now().UTC(),
		Category:   category,
		ActorID:    actorID,
		ActorEmail: actorEmail,
	}
}

// WithDescription sets the entry text.
func (e Entry) WithDescription(desc string) Entry {
	e.Description = desc
	return e
}

// Validate checks if the Entry has valid data.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if e.ActorID == "" {
		return errors.New("audit actor is required")
	}
	return nil
}

// RoleAssigned describes a role change. target is the user's email, or id when unknown.
func RoleAssigned(role, target string) string {
	return fmt.Sprintf("Призначено роль %s для користувача %s", role, target)
}

// SchemaChanged describes an executed statement.
func SchemaChanged(statement string) string {
	return "Виконано SQL: " + strings.TrimSpace(statement)
}

// ColumnAdded describes a column added to the members table.
func ColumnAdded(name, columnType string) string {
	return fmt.Sprintf("Додано стовпець %s типу %s до таблиці members", name, columnType)
}

// Imported describes a completed bulk import.
func Imported(n int) string {
	return fmt.Sprintf("Імпортовано %d записів з Excel", n)
}
