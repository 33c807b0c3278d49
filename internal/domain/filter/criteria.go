// Package filter builds directory queries from sparse filter criteria.
package filter

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DebounceDelay is how long filter input must be quiet before a refetch.
const DebounceDelay = 500 * time.Millisecond

// ErrYearOutOfRange is returned when a year is outside [1, current year].
var ErrYearOutOfRange = errors.New("рік поза допустимим діапазоном")

// Query parameter names.
const (
	ParamStreet         = "street"
	ParamBirthFrom      = "birth_from"
	ParamBirthTo        = "birth_to"
	ParamBaptismFrom    = "baptism_from"
	ParamBaptismTo      = "baptism_to"
	ParamStatusID       = "status_id"
	ParamMinistryTypeID = "ministry_type_id"
	ParamHomeGroupID    = "home_group_id"
	ParamDeaconID       = "deacon_id"
)

// ParamPrevious carries the last accepted criteria as an encoded query, so a
// rejected field keeps its previous value across stateless requests.
const ParamPrevious = "prev"

// Params lists every criteria parameter in form order.
var Params = []string{
	ParamStreet, ParamBirthFrom, ParamBirthTo, ParamBaptismFrom, ParamBaptismTo,
	ParamStatusID, ParamMinistryTypeID, ParamHomeGroupID, ParamDeaconID,
}

// Op is a backend-neutral comparison operator.
type Op string

const (
	OpILike Op = "ilike" // case-insensitive substring
	OpGTE   Op = "gte"
	OpLTE   Op = "lte"
	OpEq    Op = "eq"
)

// Predicate constrains one member column.
type Predicate struct {
	Column string
	Op     Op
	Value  any // string for ilike and date bounds, int64 for eq
}

// Criteria is the sparse set of directory filters. Zero values are absent.
type Criteria struct {
	Street      string
	BirthFrom   int
	BirthTo     int
	BaptismFrom int
	BaptismTo   int

	StatusID       *int64
	MinistryTypeID *int64
	HomeGroupID    *int64
	DeaconID       *int64
}

// Default is the criteria of a freshly opened directory.
func Default(currentYear int) Criteria {
	var c Criteria
	c.Reset(currentYear)
	return c
}

// Reset clears every field and re-seeds only the two upper year bounds.
// POST: BirthTo == BaptismTo == currentYear; all other fields absent
func (c *Criteria) Reset(currentYear int) {
	*c = Criteria{BirthTo: currentYear, BaptismTo: currentYear}
}

// SetYear assigns a year field from raw input.
// PRE: param is one of the four year parameters
// POST: empty input clears the field; out-of-range or non-numeric input
// leaves the field unchanged and returns ErrYearOutOfRange
func (c *Criteria) SetYear(param, raw string, currentYear int) error {
	target := c.yearField(param)
	if target == nil {
		return fmt.Errorf("unknown year parameter %q", param)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*target = 0
		return nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1 || year > currentYear {
		return ErrYearOutOfRange
	}
	*target = year
	return nil
}

func (c *Criteria) yearField(param string) *int {
	switch param {
	case ParamBirthFrom:
		return &c.BirthFrom
	case ParamBirthTo:
		return &c.BirthTo
	case ParamBaptismFrom:
		return &c.BaptismFrom
	case ParamBaptismTo:
		return &c.BaptismTo
	}
	return nil
}

func (c *Criteria) idField(param string) **int64 {
	switch param {
	case ParamStatusID:
		return &c.StatusID
	case ParamMinistryTypeID:
		return &c.MinistryTypeID
	case ParamHomeGroupID:
		return &c.HomeGroupID
	case ParamDeaconID:
		return &c.DeaconID
	}
	return nil
}

// HasAny reports whether q carries any criteria parameter.
func HasAny(q url.Values) bool {
	for _, p := range Params {
		if q.Has(p) {
			return true
		}
	}
	return false
}

// Apply overlays the parameters present in q onto c.
// Parameters missing from q keep their current value; rejected values are
// reported per parameter and also keep their current value.
func (c *Criteria) Apply(q url.Values, currentYear int) map[string]error {
	rejected := map[string]error{}
	if q.Has(ParamStreet) {
		c.Street = strings.TrimSpace(q.Get(ParamStreet))
	}
	for _, p := range []string{ParamBirthFrom, ParamBirthTo, ParamBaptismFrom, ParamBaptismTo} {
		if !q.Has(p) {
			continue
		}
		if err := c.SetYear(p, q.Get(p), currentYear); err != nil {
			rejected[p] = err
		}
	}
	for _, p := range []string{ParamStatusID, ParamMinistryTypeID, ParamHomeGroupID, ParamDeaconID} {
		if !q.Has(p) {
			continue
		}
		target := c.idField(p)
		raw := strings.TrimSpace(q.Get(p))
		if raw == "" {
			*target = nil
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			rejected[p] = fmt.Errorf("invalid id %q", raw)
			continue
		}
		*target = &id
	}
	if len(rejected) == 0 {
		return nil
	}
	return rejected
}

// FromQuery builds criteria for a directory request: the default criteria
// when q carries no filter parameters, otherwise the criteria in ParamPrevious
// (empty when absent) overlaid with q.
// POST: a rejected parameter keeps its value from ParamPrevious
func FromQuery(q url.Values, currentYear int) (Criteria, map[string]error) {
	if !HasAny(q) {
		return Default(currentYear), nil
	}
	c := previous(q, currentYear)
	rejected := c.Apply(q, currentYear)
	return c, rejected
}

func previous(q url.Values, currentYear int) Criteria {
	var c Criteria
	raw := q.Get(ParamPrevious)
	if raw == "" {
		return c
	}
	pq, err := url.ParseQuery(raw)
	if err != nil {
		return c
	}
	// Values were accepted when they were issued; anything invalid is dropped.
	c.Apply(pq, currentYear)
	return c
}

// Values encodes c as query parameters. Every parameter is emitted so that an
// all-empty criteria round-trips instead of falling back to Default.
func (c Criteria) Values() url.Values {
	q := url.Values{}
	q.Set(ParamStreet, c.Street)
	for _, p := range []string{ParamBirthFrom, ParamBirthTo, ParamBaptismFrom, ParamBaptismTo} {
		v := *c.yearField(p)
		if v == 0 {
			q.Set(p, "")
		} else {
			q.Set(p, strconv.Itoa(v))
		}
	}
	for _, p := range []string{ParamStatusID, ParamMinistryTypeID, ParamHomeGroupID, ParamDeaconID} {
		if id := *c.idField(p); id != nil {
			q.Set(p, strconv.FormatInt(*id, 10))
		} else {
			q.Set(p, "")
		}
	}
	return q
}

// IDString renders an optional id for form controls.
func IDString(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

// Predicates returns the conjunction of predicates for present fields only,
// in a fixed order.
func (c Criteria) Predicates() []Predicate {
	var preds []Predicate
	if c.Street != "" {
		preds = append(preds, Predicate{Column: "street", Op: OpILike, Value: c.Street})
	}
	if c.BirthFrom > 0 {
		preds = append(preds, Predicate{Column: "birth_date", Op: OpGTE, Value: yearStart(c.BirthFrom)})
	}
	if c.BirthTo > 0 {
		preds = append(preds, Predicate{Column: "birth_date", Op: OpLTE, Value: yearEnd(c.BirthTo)})
	}
	if c.BaptismFrom > 0 {
		preds = append(preds, Predicate{Column: "baptism_date", Op: OpGTE, Value: yearStart(c.BaptismFrom)})
	}
	if c.BaptismTo > 0 {
		preds = append(preds, Predicate{Column: "baptism_date", Op: OpLTE, Value: yearEnd(c.BaptismTo)})
	}
	for _, p := range []string{ParamStatusID, ParamMinistryTypeID, ParamHomeGroupID, ParamDeaconID} {
		if id := *c.idField(p); id != nil {
			preds = append(preds, Predicate{Column: p, Op: OpEq, Value: *id})
		}
	}
	return preds
}

// Active reports whether the criteria filter more than the default view does.
func (c Criteria) Active(currentYear int) bool {
	preds := c.Predicates()
	return len(preds) > 0 && !slices.Equal(preds, Default(currentYear).Predicates())
}

func yearStart(y int) string { return fmt.Sprintf("%04d-01-01", y) }
func yearEnd(y int) string   { return fmt.Sprintf("%04d-12-31", y) }
