package filter

import (
	"errors"
	"net/url"
	"reflect"
	"strconv"
	"testing"
)

const year = 2026

func id(v int64) *int64 { return &v }

func TestPredicates_OnlyPresentFields(t *testing.T) {
	c := Criteria{Street: "Main", BirthFrom: 1990}
	got := c.Predicates()
	want := []Predicate{
		{Column: "street", Op: OpILike, Value: "Main"},
		{Column: "birth_date", Op: OpGTE, Value: "1990-01-01"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Predicates()=%v want %v", got, want)
	}
}

func TestPredicates_AllFields(t *testing.T) {
	c := Criteria{
		Street: "Шевченка", BirthFrom: 1950, BirthTo: 2000, BaptismFrom: 1990, BaptismTo: 2026,
		StatusID: id(1), MinistryTypeID: id(2), HomeGroupID: id(3), DeaconID: id(4),
	}
	got := c.Predicates()
	want := []Predicate{
		{"street", OpILike, "Шевченка"},
		{"birth_date", OpGTE, "1950-01-01"},
		{"birth_date", OpLTE, "2000-12-31"},
		{"baptism_date", OpGTE, "1990-01-01"},
		{"baptism_date", OpLTE, "2026-12-31"},
		{"status_id", OpEq, int64(1)},
		{"ministry_type_id", OpEq, int64(2)},
		{"home_group_id", OpEq, int64(3)},
		{"deacon_id", OpEq, int64(4)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Predicates()=%v\nwant %v", got, want)
	}
}

func TestPredicates_EmptyCriteria(t *testing.T) {
	if got := (Criteria{}).Predicates(); len(got) != 0 {
		t.Errorf("empty criteria produced %v", got)
	}
}

func TestSetYear(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		start   int
		want    int
		wantErr bool
	}{
		{"accepts current year", "2026", 1980, 2026, false},
		{"accepts year one", "1", 1980, 1, false},
		{"rejects future year", "2027", 1980, 1980, true},
		{"rejects zero", "0", 1980, 1980, true},
		{"rejects negative", "-5", 1980, 1980, true},
		{"rejects text", "abc", 1980, 1980, true},
		{"empty clears", "", 1980, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Criteria{BirthFrom: tt.start}
			err := c.SetYear(ParamBirthFrom, tt.raw, year)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetYear error=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrYearOutOfRange) {
				t.Errorf("error=%v want ErrYearOutOfRange", err)
			}
			if c.BirthFrom != tt.want {
				t.Errorf("BirthFrom=%d want %d", c.BirthFrom, tt.want)
			}
		})
	}
}

func TestSetYear_UnknownParam(t *testing.T) {
	var c Criteria
	if err := c.SetYear(ParamStreet, "2000", year); err == nil {
		t.Error("expected error for non-year parameter")
	}
}

func TestReset_OnlyUpperBoundsReseeded(t *testing.T) {
	c := Criteria{Street: "x", BirthFrom: 1900, BirthTo: 1950, BaptismFrom: 1960, BaptismTo: 1970, DeaconID: id(9)}
	c.Reset(year)
	want := Criteria{BirthTo: year, BaptismTo: year}
	if !reflect.DeepEqual(c, want) {
		t.Errorf("Reset()=%+v want %+v", c, want)
	}
}

func TestFromQuery_DefaultsWithoutParams(t *testing.T) {
	c, rejected := FromQuery(url.Values{"sort": {"last_name"}}, year)
	if rejected != nil {
		t.Errorf("unexpected rejections: %v", rejected)
	}
	if !reflect.DeepEqual(c, Default(year)) {
		t.Errorf("FromQuery()=%+v want default", c)
	}
}

func TestFromQuery_RejectsOutOfRange(t *testing.T) {
	q := url.Values{
		ParamStreet:    {" Main "},
		ParamBirthFrom: {"3000"},
		ParamBirthTo:   {"2000"},
		ParamStatusID:  {"x"},
		ParamDeaconID:  {"4"},
	}
	c, rejected := FromQuery(q, year)
	if c.Street != "Main" || c.BirthTo != 2000 || c.BirthFrom != 0 {
		t.Errorf("criteria=%+v", c)
	}
	if c.StatusID != nil || c.DeaconID == nil || *c.DeaconID != 4 {
		t.Errorf("ids status=%v deacon=%v", c.StatusID, c.DeaconID)
	}
	if _, ok := rejected[ParamBirthFrom]; !ok {
		t.Error("birth_from must be rejected")
	}
	if _, ok := rejected[ParamStatusID]; !ok {
		t.Error("status_id must be rejected")
	}
}

func TestApply_RejectedLeavesPreviousValue(t *testing.T) {
	c := Criteria{BaptismTo: 2010}
	rejected := c.Apply(url.Values{ParamBaptismTo: {"9999"}}, year)
	if c.BaptismTo != 2010 {
		t.Errorf("BaptismTo=%d want 2010", c.BaptismTo)
	}
	if len(rejected) != 1 {
		t.Errorf("rejected=%v", rejected)
	}
}

func TestValues_RoundTrip(t *testing.T) {
	tests := []Criteria{
		{},
		Default(year),
		{Street: "Lviv", BirthFrom: 1980, HomeGroupID: id(5)},
	}
	for _, c := range tests {
		back, rejected := FromQuery(c.Values(), year)
		if rejected != nil {
			t.Errorf("rejections for %+v: %v", c, rejected)
		}
		if !reflect.DeepEqual(back, c) {
			t.Errorf("round trip %+v -> %+v", c, back)
		}
	}
}

func TestActive(t *testing.T) {
	if Default(year).Active(year) {
		t.Error("default criteria must not be active")
	}
	if !(Criteria{Street: "a", BirthTo: year, BaptismTo: year}).Active(year) {
		t.Error("street filter must be active")
	}
	if (Criteria{}).Active(year) {
		t.Error("empty criteria must not be active")
	}
	if !(Criteria{BirthTo: year, BaptismTo: year, StatusID: id(3)}).Active(year) {
		t.Error("status filter must be active")
	}
	// Round-tripping the default view through its query must stay inactive.
	c, _ := FromQuery(Default(year).Values(), year)
	if c.Active(year) {
		t.Errorf("round-tripped default %+v reported active", c)
	}
}

func TestFromQuery_RejectedYearKeepsPreviousValue(t *testing.T) {
	prev := Criteria{Street: "Франка", BirthTo: year, BaptismTo: year}.Values()
	q := url.Values{}
	for k, v := range prev {
		q[k] = v
	}
	q.Set(ParamBirthTo, "3000")
	q.Set(ParamPrevious, prev.Encode())

	c, rejected := FromQuery(q, year)

	if rejected[ParamBirthTo] == nil {
		t.Fatalf("rejected=%v want %s", rejected, ParamBirthTo)
	}
	if c.BirthTo != year {
		t.Errorf("BirthTo=%d want previous %d", c.BirthTo, year)
	}
	if c.Street != "Франка" || c.BaptismTo != year {
		t.Errorf("criteria=%+v want other fields from the query", c)
	}
	if got := c.Values().Get(ParamBirthTo); got != strconv.Itoa(year) {
		t.Errorf("encoded birth_to=%q want %d", got, year)
	}
}

func TestFromQuery_AcceptedYearOverridesPrevious(t *testing.T) {
	prev := Criteria{BirthTo: year}.Values()
	q := url.Values{ParamBirthTo: {"1990"}, ParamPrevious: {prev.Encode()}}

	c, rejected := FromQuery(q, year)

	if rejected != nil || c.BirthTo != 1990 {
		t.Errorf("BirthTo=%d rejected=%v want 1990 accepted", c.BirthTo, rejected)
	}
}

func TestFromQuery_RejectedWithoutPreviousClears(t *testing.T) {
	c, rejected := FromQuery(url.Values{ParamBirthTo: {"3000"}}, year)
	if rejected[ParamBirthTo] == nil || c.BirthTo != 0 {
		t.Errorf("BirthTo=%d rejected=%v", c.BirthTo, rejected)
	}
}
