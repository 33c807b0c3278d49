package projections

import (
	"context"

	"congregation/internal/adapters/storage/member"
	domainAccount "congregation/internal/domain/account"
	domainAudit "congregation/internal/domain/audit"
	domainLookup "congregation/internal/domain/lookup"
	domainMember "congregation/internal/domain/member"
)

// DirectoryStore interface for directory queries.
type DirectoryStore interface {
	ListDirectory(ctx context.Context, f member.ListFilter) ([]domainMember.DirectoryEntry, error)
	Streets(ctx context.Context) ([]string, error)
}

// MemberGetter loads one member for the edit form.
type MemberGetter interface {
	GetByID(ctx context.Context, id int64) (domainMember.Member, error)
}

// LookupLister interface for reference table queries.
type LookupLister interface {
	List(ctx context.Context, kind domainLookup.Kind) ([]domainLookup.Lookup, error)
}

// UserLister interface for role record queries.
type UserLister interface {
	List(ctx context.Context) ([]domainAccount.User, error)
}

// AuditLister interface for audit log queries.
type AuditLister interface {
	List(ctx context.Context, limit int) ([]domainAudit.Entry, error)
}
