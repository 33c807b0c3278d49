package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"congregation/internal/domain/account"
	"congregation/internal/domain/audit"
)

// UserStoreForAssignRole defines the store interface needed by AssignRole.
type UserStoreForAssignRole interface {
	GetByID(ctx context.Context, id string) (account.User, error)
	UpdateRole(ctx context.Context, userID string, role account.Role) error
}

// AssignRoleInput carries the role assignment form.
type AssignRoleInput struct {
	Actor  Actor
	UserID string
	Role   string
}

// AssignRoleDeps holds dependencies for AssignRole.
type AssignRoleDeps struct {
	UserStore  UserStoreForAssignRole
	AuditStore AuditAppender
	Events     ChangePublisher
}

// ErrAssignmentIncomplete is returned when no user or role was chosen.
var ErrAssignmentIncomplete = errors.New("Виберіть користувача та роль")

// ExecuteAssignRole changes a user's role and records it in the audit log.
// PRE: Actor is a superadmin
// POST: role updated, one audit entry appended, users topic published
// INVARIANT: only roles in account.ValidRoles are ever written
func ExecuteAssignRole(ctx context.Context, input AssignRoleInput, deps AssignRoleDeps) error {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" || strings.TrimSpace(input.Role) == "" {
		return ErrAssignmentIncomplete
	}
	role, err := account.ParseRole(input.Role)
	if err != nil {
		return err
	}

	target := userID
	if u, err := deps.UserStore.GetByID(ctx, userID); err == nil && u.Email != "" {
		target = u.Email
	}

	if err := deps.UserStore.UpdateRole(ctx, userID, role); err != nil {
		slog.Error("admin_event", "event", "role_assign_failed", "user_id", userID, "error", err)
		return fmt.Errorf("Помилка призначення ролі: %w", err)
	}
	slog.Info("admin_event", "event", "role_assigned", "actor", input.Actor.ID, "user_id", userID, "role", role)
	publish(deps.Events, topicUsers)

	recordAudit(ctx, deps.AuditStore, deps.Events, input.Actor, audit.CategoryRoleAssignment, audit.RoleAssigned(string(role), target))
	return nil
}
