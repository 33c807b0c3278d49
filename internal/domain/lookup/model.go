// Package lookup holds the small reference tables referenced by members.
package lookup

import (
	"errors"
	"strings"
)

// Kind names one of the four reference tables.
type Kind string

const (
	KindStatus       Kind = "status"
	KindMinistryType Kind = "ministry_type"
	KindHomeGroup    Kind = "home_group"
	KindDeacon       Kind = "deacon"
)

// Kinds lists every lookup table in form order.
var Kinds = []Kind{KindStatus, KindMinistryType, KindHomeGroup, KindDeacon}

// ErrUnknownKind is returned for a Kind outside Kinds.
var ErrUnknownKind = errors.New("unknown lookup kind")

// Lookup is one row of a reference table.
type Lookup struct {
	ID   int64
	Name string
}

// Table returns the backing table name.
func (k Kind) Table() string {
	switch k {
	case KindStatus:
		return "statuses"
	case KindMinistryType:
		return "ministry_types"
	case KindHomeGroup:
		return "home_groups"
	case KindDeacon:
		return "deacons"
	}
	return ""
}

// NameColumn returns the display-name column; deacons store a full name.
func (k Kind) NameColumn() string {
	if k == KindDeacon {
		return "full_name"
	}
	return "name"
}

// ForeignKey returns the referencing column on members.
func (k Kind) ForeignKey() string {
	return string(k) + "_id"
}

// Label returns the Ukrainian caption used in forms and filters.
func (k Kind) Label() string {
	switch k {
	case KindStatus:
		return "Статус"
	case KindMinistryType:
		return "Служіння"
	case KindHomeGroup:
		return "Домашня група"
	case KindDeacon:
		return "Диякон"
	}
	return string(k)
}

// Validate rejects kinds outside the closed set.
func (k Kind) Validate() error {
	if k.Table() == "" {
		return ErrUnknownKind
	}
	return nil
}

// Set holds the rows of all four tables, as fetched for a form.
type Set struct {
	Statuses      []Lookup
	MinistryTypes []Lookup
	HomeGroups    []Lookup
	Deacons       []Lookup
}

// Of returns the rows of one kind.
func (s Set) Of(k Kind) []Lookup {
	switch k {
	case KindStatus:
		return s.Statuses
	case KindMinistryType:
		return s.MinistryTypes
	case KindHomeGroup:
		return s.HomeGroups
	case KindDeacon:
		return s.Deacons
	}
	return nil
}

// Put stores rows of one kind.
func (s *Set) Put(k Kind, rows []Lookup) {
	switch k {
	case KindStatus:
		s.Statuses = rows
	case KindMinistryType:
		s.MinistryTypes = rows
	case KindHomeGroup:
		s.HomeGroups = rows
	case KindDeacon:
		s.Deacons = rows
	}
}

// NormalizeName trims a display name for matching.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
