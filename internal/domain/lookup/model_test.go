package lookup

import "testing"

func TestKind_Mapping(t *testing.T) {
	tests := []struct {
		kind   Kind
		table  string
		column string
		fk     string
	}{
		{KindStatus, "statuses", "name", "status_id"},
		{KindMinistryType, "ministry_types", "name", "ministry_type_id"},
		{KindHomeGroup, "home_groups", "name", "home_group_id"},
		{KindDeacon, "deacons", "full_name", "deacon_id"},
	}
	for _, tt := range tests {
		if got := tt.kind.Table(); got != tt.table {
			t.Errorf("%s.Table()=%q want %q", tt.kind, got, tt.table)
		}
		if got := tt.kind.NameColumn(); got != tt.column {
			t.Errorf("%s.NameColumn()=%q want %q", tt.kind, got, tt.column)
		}
		if got := tt.kind.ForeignKey(); got != tt.fk {
			t.Errorf("%s.ForeignKey()=%q want %q", tt.kind, got, tt.fk)
		}
		if err := tt.kind.Validate(); err != nil {
			t.Errorf("%s.Validate() error: %v", tt.kind, err)
		}
	}
	if err := Kind("members").Validate(); err != ErrUnknownKind {
		t.Errorf("Validate() on unknown kind = %v", err)
	}
}

func TestSet_PutOf(t *testing.T) {
	var s Set
	for i, k := range Kinds {
		s.Put(k, []Lookup{{ID: int64(i + 1), Name: k.Label()}})
	}
	for i, k := range Kinds {
		rows := s.Of(k)
		if len(rows) != 1 || rows[0].ID != int64(i+1) {
			t.Errorf("Of(%s)=%v", k, rows)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  Петро   Іваненко "); got != "Петро Іваненко" {
		t.Errorf("NormalizeName()=%q", got)
	}
}
