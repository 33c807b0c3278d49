package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"congregation/internal/domain/audit"
)

// SchemaExecutor runs one DDL statement on the backend.
type SchemaExecutor interface {
	ExecuteDDL(ctx context.Context, statement string) error
}

// SchemaChangeDeps holds dependencies for the schema orchestrators.
type SchemaChangeDeps struct {
	Executor   SchemaExecutor
	AuditStore AuditAppender
	Events     ChangePublisher
}

// SchemaChangeInput carries the free-form SQL form.
type SchemaChangeInput struct {
	Actor     Actor
	Statement string
}

// Schema change errors.
var (
	ErrEmptyStatement     = errors.New("Введіть SQL-запит")
	ErrColumnIncomplete   = errors.New("Введіть назву стовпця та тип")
	ErrInvalidColumnName  = errors.New("Назва стовпця може містити лише літери, цифри та підкреслення")
	ErrUnsupportedColType = errors.New("Непідтримуваний тип стовпця")
)

// ColumnTypes are the types offered by the add-column form.
var ColumnTypes = []string{"text", "date", "integer", "boolean"}

var columnNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ExecuteSchemaChange forwards a statement to the executor and audits it.
// PRE: Actor is a superadmin
// POST: the statement is not inspected beyond a blank check; on success one audit entry is appended
func ExecuteSchemaChange(ctx context.Context, input SchemaChangeInput, deps SchemaChangeDeps) error {
	stmt := strings.TrimSpace(input.Statement)
	if stmt == "" {
		return ErrEmptyStatement
	}
	return runStatement(ctx, input.Actor, stmt, audit.SchemaChanged(stmt), "Помилка виконання SQL", deps)
}

// AddMemberColumnInput carries the add-column form.
type AddMemberColumnInput struct {
	Actor Actor
	Name  string
	Type  string
}

// ExecuteAddMemberColumn adds a column to the members table.
// PRE: Actor is a superadmin
// POST: the name matches columnNamePattern and the type is one of ColumnTypes
func ExecuteAddMemberColumn(ctx context.Context, input AddMemberColumnInput, deps SchemaChangeDeps) error {
	name := strings.TrimSpace(input.Name)
	colType := strings.ToLower(strings.TrimSpace(input.Type))
	if name == "" || colType == "" {
		return ErrColumnIncomplete
	}
	if !columnNamePattern.MatchString(name) {
		return ErrInvalidColumnName
	}
	if !validColumnType(colType) {
		return ErrUnsupportedColType
	}
	stmt := fmt.Sprintf("ALTER TABLE members ADD COLUMN %s %s;", name, colType)
	return runStatement(ctx, input.Actor, stmt, audit.ColumnAdded(name, colType), "Помилка додавання стовпця", deps)
}

func validColumnType(t string) bool {
	for _, c := range ColumnTypes {
		if c == t {
			return true
		}
	}
	return false
}

func runStatement(ctx context.Context, actor Actor, stmt, description, failure string, deps SchemaChangeDeps) error {
	if err := deps.Executor.ExecuteDDL(ctx, stmt); err != nil {
		slog.Error("admin_event", "event", "schema_change_failed", "actor", actor.ID, "error", err)
		return fmt.Errorf("%s: %w", failure, err)
	}
	slog.Info("admin_event", "event", "schema_changed", "actor", actor.ID, "statement", firstLine(stmt))
	publish(deps.Events, topicMembers)
	recordAudit(ctx, deps.AuditStore, deps.Events, actor, audit.CategorySchemaChange, description)
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
