package orchestrators

import (
	"context"
	"log/slog"

	"congregation/internal/domain/audit"
)

// Realtime topics published by orchestrators.
const (
	topicUsers   = "users"
	topicMembers = "members"
	topicAudit   = "audit_logs"
)

// ChangePublisher notifies subscribers that a table changed.
type ChangePublisher interface {
	Publish(topic string)
}

// AuditAppender is the audit store needed by admin orchestrators.
type AuditAppender interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// Actor identifies the signed-in user performing an admin action.
type Actor struct {
	ID    string
	Email string
}

func publish(p ChangePublisher, topics ...string) {
	if p == nil {
		return
	}
	for _, t := range topics {
		p.Publish(t)
	}
}

// recordAudit appends one entry describing a completed action.
// POST: a failed append is logged only; the action it describes stands and
// its caller reports success
func recordAudit(ctx context.Context, store AuditAppender, events ChangePublisher, actor Actor, category audit.Category, description string) {
	entry := audit.NewEntry(actor.ID, actor.Email, category).WithDescription(description)
	if err := store.Append(ctx, entry); err != nil {
		slog.Error("audit_append_failed", "category", category, "actor", actor.ID, "error", err)
		return
	}
	publish(events, topicAudit)
}
