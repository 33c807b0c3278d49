// Package access describes which roles may reach a route.
package access

import (
	"strings"

	"congregation/internal/domain/account"
)

type kind int

const (
	kindNone kind = iota
	kindSingle
	kindSet
)

// Requirement is a closed set of permission predicates: no requirement,
// exactly one role, or any role of a set.
type Requirement struct {
	kind  kind
	roles []account.Role
}

// Anyone admits every authenticated user regardless of role.
func Anyone() Requirement {
	return Requirement{kind: kindNone}
}

// Only admits users holding exactly role.
func Only(role account.Role) Requirement {
	return Requirement{kind: kindSingle, roles: []account.Role{role}}
}

// AnyOf admits users holding any of roles.
// PRE: len(roles) > 0
func AnyOf(roles ...account.Role) Requirement {
	cp := make([]account.Role, len(roles))
	copy(cp, roles)
	return Requirement{kind: kindSet, roles: cp}
}

// Allows evaluates the predicate against the caller's role.
// INVARIANT: a set requirement with no roles admits nobody
func (q Requirement) Allows(role account.Role) bool {
	switch q.kind {
	case kindNone:
		return true
	case kindSingle:
		return role == q.roles[0]
	case kindSet:
		for _, r := range q.roles {
			if r == role {
				return true
			}
		}
	}
	return false
}

func (q Requirement) String() string {
	if q.kind == kindNone {
		return "any"
	}
	names := make([]string, len(q.roles))
	for i, r := range q.roles {
		names[i] = string(r)
	}
	return strings.Join(names, "|")
}

// Route requirements used by the router.
var (
	ViewDirectory = Anyone()
	EditMembers   = AnyOf(account.RoleEditor, account.RoleSuperadmin)
	AdminConsole  = Only(account.RoleSuperadmin)
)
