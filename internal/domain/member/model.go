package member

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the wire and storage format of member dates.
const DateLayout = "2006-01-02"

// Max length constants for user-editable fields.
const (
	MinNameLength  = 2
	MaxNameLength  = 100
	MaxNotesLength = 500
)

// Field names, shared by forms, stores and validation errors.
const (
	FieldLastName       = "last_name"
	FieldFirstName      = "first_name"
	FieldMiddleName     = "middle_name"
	FieldBirthDate      = "birth_date"
	FieldBaptismDate    = "baptism_date"
	FieldPhone          = "phone"
	FieldStreet         = "street"
	FieldBuilding       = "building"
	FieldApartment      = "apartment"
	FieldNotes          = "notes"
	FieldStatusID       = "status_id"
	FieldMinistryTypeID = "ministry_type_id"
	FieldHomeGroupID    = "home_group_id"
	FieldDeaconID       = "deacon_id"
)

// PhonePattern is the accepted international-style phone format.
var PhonePattern = regexp.MustCompile(`^\+?\d{10,12}$`)

// Domain errors
var (
	ErrNotFound = errors.New("member not found")
)

// Member is one person in the church directory.
type Member struct {
	ID          int64
	LastName    string
	FirstName   string
	MiddleName  string
	BirthDate   string // DateLayout or empty
	BaptismDate string // DateLayout or empty
	Phone       string
	Street      string
	Building    string
	Apartment   string
	Notes       string

	StatusID       *int64
	MinistryTypeID *int64
	HomeGroupID    *int64
	DeaconID       *int64
}

// DirectoryEntry is a Member joined with the display names of its lookups.
type DirectoryEntry struct {
	Member
	Status       string
	MinistryType string
	HomeGroup    string
	Deacon       string
}

// FullName returns "Last First Middle" without empty parts.
func (m Member) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{m.LastName, m.FirstName, m.MiddleName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Validate checks the persisted invariants of a Member.
// PRE: Member struct is initialized
// POST: Returns error if validation fails, nil otherwise
// INVARIANT: BaptismDate >= BirthDate when both are present
func (m *Member) Validate() error {
	if strings.TrimSpace(m.LastName) == "" || strings.TrimSpace(m.FirstName) == "" {
		return errors.New("member last and first name are required")
	}
	if m.BirthDate != "" && m.BaptismDate != "" && m.BaptismDate < m.BirthDate {
		return errors.New("baptism date precedes birth date")
	}
	return nil
}

// FieldErrors maps a field name to a user-facing message.
type FieldErrors map[string]string

// Error implements the error interface.
func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, k+": "+fe[k])
	}
	return strings.Join(msgs, "; ")
}

// Form holds the raw values submitted by the add and edit forms.
type Form struct {
	LastName       string
	FirstName      string
	MiddleName     string
	BirthDate      string
	BaptismDate    string
	Phone          string
	Street         string
	Building       string
	Apartment      string
	Notes          string
	StatusID       string
	MinistryTypeID string
	HomeGroupID    string
	DeaconID       string
}

// Validate checks every field and collects field-scoped errors.
// PRE: today is the caller's current date
// POST: returns nil when the form may be persisted
func (f Form) Validate(today time.Time) FieldErrors {
	errs := FieldErrors{}

	checkName := func(field, value string, required bool) {
		n := utf8.RuneCountInString(strings.TrimSpace(value))
		switch {
		case n == 0 && required:
			errs[field] = "Обов’язкове поле"
		case n > 0 && n < MinNameLength:
			errs[field] = "Мінімум 2 символи"
		case n > MaxNameLength:
			errs[field] = "Максимум 100 символів"
		}
	}
	checkName(FieldLastName, f.LastName, true)
	checkName(FieldFirstName, f.FirstName, true)
	checkName(FieldMiddleName, f.MiddleName, false)

	birth, birthOK := parseDate(f.BirthDate)
	if f.BirthDate != "" && !birthOK {
		errs[FieldBirthDate] = "Невірний формат дати"
	} else if birthOK && birth.After(dateOnly(today)) {
		errs[FieldBirthDate] = "Дата народження не може бути в майбутньому"
	}

	baptism, baptismOK := parseDate(f.BaptismDate)
	if f.BaptismDate != "" && !baptismOK {
		errs[FieldBaptismDate] = "Невірний формат дати"
	} else if baptismOK && birthOK && baptism.Before(birth) {
		errs[FieldBaptismDate] = "Дата хрещення не може бути раніше дати народження"
	}

	if phone := strings.TrimSpace(f.Phone); phone != "" && !PhonePattern.MatchString(phone) {
		errs[FieldPhone] = "Телефон у форматі +380XXXXXXXXX"
	}

	if utf8.RuneCountInString(f.Notes) > MaxNotesLength {
		errs[FieldNotes] = "Максимум 500 символів"
	}

	for field, raw := range map[string]string{
		FieldStatusID:       f.StatusID,
		FieldMinistryTypeID: f.MinistryTypeID,
		FieldHomeGroupID:    f.HomeGroupID,
		FieldDeaconID:       f.DeaconID,
	} {
		if _, err := ParseForeignKey(raw); err != nil {
			errs[field] = "Невірне значення"
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ToMember converts a validated form into a Member.
// Empty foreign keys become nil.
// PRE: Validate returned nil
func (f Form) ToMember(id int64) Member {
	fk := func(raw string) *int64 {
		v, _ := ParseForeignKey(raw)
		return v
	}
	return Member{
		ID:             id,
		LastName:       strings.TrimSpace(f.LastName),
		FirstName:      strings.TrimSpace(f.FirstName),
		MiddleName:     strings.TrimSpace(f.MiddleName),
		BirthDate:      strings.TrimSpace(f.BirthDate),
		BaptismDate:    strings.TrimSpace(f.BaptismDate),
		Phone:          strings.TrimSpace(f.Phone),
		Street:         strings.TrimSpace(f.Street),
		Building:       strings.TrimSpace(f.Building),
		Apartment:      strings.TrimSpace(f.Apartment),
		Notes:          f.Notes,
		StatusID:       fk(f.StatusID),
		MinistryTypeID: fk(f.MinistryTypeID),
		HomeGroupID:    fk(f.HomeGroupID),
		DeaconID:       fk(f.DeaconID),
	}
}

// FormFromMember pre-fills the edit form.
func FormFromMember(m Member) Form {
	fk := func(v *int64) string {
		if v == nil {
			return ""
		}
		return strconv.FormatInt(*v, 10)
	}
	return Form{
		LastName:       m.LastName,
		FirstName:      m.FirstName,
		MiddleName:     m.MiddleName,
		BirthDate:      m.BirthDate,
		BaptismDate:    m.BaptismDate,
		Phone:          m.Phone,
		Street:         m.Street,
		Building:       m.Building,
		Apartment:      m.Apartment,
		Notes:          m.Notes,
		StatusID:       fk(m.StatusID),
		MinistryTypeID: fk(m.MinistryTypeID),
		HomeGroupID:    fk(m.HomeGroupID),
		DeaconID:       fk(m.DeaconID),
	}
}

// ParseForeignKey normalizes an optional id: empty means absent.
func ParseForeignKey(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, errors.New("invalid id")
	}
	return &v, nil
}

// ValidPhone reports whether phone matches PhonePattern.
func ValidPhone(phone string) bool {
	return PhonePattern.MatchString(strings.TrimSpace(phone))
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	return t, err == nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
