package projections

import (
	"context"

	"golang.org/x/sync/errgroup"

	"congregation/internal/adapters/storage/audit"
	domainAccount "congregation/internal/domain/account"
	domainAudit "congregation/internal/domain/audit"
)

// GetAdminConsoleResult carries the user list and the recent audit log.
type GetAdminConsoleResult struct {
	Users    []domainAccount.User
	AuditLog []domainAudit.Entry
	Roles    []domainAccount.Role
}

// GetAdminConsoleDeps holds dependencies for GetAdminConsole.
type GetAdminConsoleDeps struct {
	UserStore  UserLister
	AuditStore AuditLister
}

// QueryGetAdminConsole loads the admin page data.
// POST: audit entries are newest first, at most audit.DefaultLimit
func QueryGetAdminConsole(ctx context.Context, deps GetAdminConsoleDeps) (GetAdminConsoleResult, error) {
	result := GetAdminConsoleResult{Roles: domainAccount.ValidRoles}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		users, err := deps.UserStore.List(gctx)
		result.Users = users
		return err
	})
	g.Go(func() error {
		entries, err := deps.AuditStore.List(gctx, audit.DefaultLimit)
		result.AuditLog = entries
		return err
	})
	if err := g.Wait(); err != nil {
		return GetAdminConsoleResult{}, err
	}
	return result, nil
}

// QueryListUsers loads only the user list, for the realtime fragment.
func QueryListUsers(ctx context.Context, store UserLister) ([]domainAccount.User, error) {
	return store.List(ctx)
}
