package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	memberstore "congregation/internal/adapters/storage/member"
	"congregation/internal/domain/filter"
	"congregation/internal/domain/member"
)

// directorySelect embeds the display names of the four lookups.
const directorySelect = "*,statuses(name),ministry_types(name),home_groups(name),deacons(full_name)"

// MemberStore implements the member store over PostgREST.
type MemberStore struct {
	c *Client
}

var _ memberstore.Store = (*MemberStore)(nil)

// NewMemberStore creates a member store.
func NewMemberStore(c *Client) *MemberStore {
	return &MemberStore{c: c}
}

type nameRef struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

type memberRow struct {
	ID             int64    `json:"id"`
	LastName       string   `json:"last_name"`
	FirstName      string   `json:"first_name"`
	MiddleName     *string  `json:"middle_name"`
	BirthDate      *string  `json:"birth_date"`
	BaptismDate    *string  `json:"baptism_date"`
	Phone          *string  `json:"phone"`
	Street         *string  `json:"street"`
	Building       *string  `json:"building"`
	Apartment      *string  `json:"apartment"`
	Notes          *string  `json:"notes"`
	StatusID       *int64   `json:"status_id"`
	MinistryTypeID *int64   `json:"ministry_type_id"`
	HomeGroupID    *int64   `json:"home_group_id"`
	DeaconID       *int64   `json:"deacon_id"`
	Statuses       *nameRef `json:"statuses,omitempty"`
	MinistryTypes  *nameRef `json:"ministry_types,omitempty"`
	HomeGroups     *nameRef `json:"home_groups,omitempty"`
	Deacons        *nameRef `json:"deacons,omitempty"`
}

// memberWrite is the insert/update body; nil pointers are sent as null.
type memberWrite struct {
	LastName       string  `json:"last_name"`
	FirstName      string  `json:"first_name"`
	MiddleName     *string `json:"middle_name"`
	BirthDate      *string `json:"birth_date"`
	BaptismDate    *string `json:"baptism_date"`
	Phone          *string `json:"phone"`
	Street         *string `json:"street"`
	Building       *string `json:"building"`
	Apartment      *string `json:"apartment"`
	Notes          *string `json:"notes"`
	StatusID       *int64  `json:"status_id"`
	MinistryTypeID *int64  `json:"ministry_type_id"`
	HomeGroupID    *int64  `json:"home_group_id"`
	DeaconID       *int64  `json:"deacon_id"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toWrite(m member.Member) memberWrite {
	return memberWrite{
		LastName:       m.LastName,
		FirstName:      m.FirstName,
		MiddleName:     optional(m.MiddleName),
		BirthDate:      optional(m.BirthDate),
		BaptismDate:    optional(m.BaptismDate),
		Phone:          optional(m.Phone),
		Street:         optional(m.Street),
		Building:       optional(m.Building),
		Apartment:      optional(m.Apartment),
		Notes:          optional(m.Notes),
		StatusID:       m.StatusID,
		MinistryTypeID: m.MinistryTypeID,
		HomeGroupID:    m.HomeGroupID,
		DeaconID:       m.DeaconID,
	}
}

func (r memberRow) toMember() member.Member {
	return member.Member{
		ID:             r.ID,
		LastName:       r.LastName,
		FirstName:      r.FirstName,
		MiddleName:     deref(r.MiddleName),
		BirthDate:      deref(r.BirthDate),
		BaptismDate:    deref(r.BaptismDate),
		Phone:          deref(r.Phone),
		Street:         deref(r.Street),
		Building:       deref(r.Building),
		Apartment:      deref(r.Apartment),
		Notes:          deref(r.Notes),
		StatusID:       r.StatusID,
		MinistryTypeID: r.MinistryTypeID,
		HomeGroupID:    r.HomeGroupID,
		DeaconID:       r.DeaconID,
	}
}

func (r memberRow) toEntry() member.DirectoryEntry {
	e := member.DirectoryEntry{Member: r.toMember()}
	if r.Statuses != nil {
		e.Status = r.Statuses.Name
	}
	if r.MinistryTypes != nil {
		e.MinistryType = r.MinistryTypes.Name
	}
	if r.HomeGroups != nil {
		e.HomeGroup = r.HomeGroups.Name
	}
	if r.Deacons != nil {
		e.Deacon = r.Deacons.FullName
	}
	return e
}

func idFilter(id int64) url.Values {
	return url.Values{"id": {"eq." + strconv.FormatInt(id, 10)}}
}

var returnRepresentation = map[string]string{"Prefer": "return=representation"}

// GetByID fetches one member.
func (s *MemberStore) GetByID(ctx context.Context, id int64) (member.Member, error) {
	q := idFilter(id)
	q.Set("select", "*")
	var rows []memberRow
	if err := s.c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/members", query: q}, &rows); err != nil {
		return member.Member{}, err
	}
	if len(rows) == 0 {
		return member.Member{}, fmt.Errorf("member %d: %w", id, member.ErrNotFound)
	}
	return rows[0].toMember(), nil
}

// Insert creates a member and returns its id.
func (s *MemberStore) Insert(ctx context.Context, m member.Member) (int64, error) {
	var rows []memberRow
	err := s.c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/rest/v1/members",
		query:   url.Values{"select": {"id"}},
		body:    toWrite(m),
		headers: returnRepresentation,
	}, &rows)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("insert member: empty response")
	}
	return rows[0].ID, nil
}

// InsertBatch hands the batch to the import-csv function so the whole
// import runs server-side under the caller's role.
func (s *MemberStore) InsertBatch(ctx context.Context, ms []member.Member) (int, error) {
	if len(ms) == 0 {
		return 0, nil
	}
	return s.c.ImportCSV(ctx, ms)
}

// Update overwrites a member.
func (s *MemberStore) Update(ctx context.Context, m member.Member) error {
	q := idFilter(m.ID)
	q.Set("select", "id")
	var rows []memberRow
	err := s.c.do(ctx, request{method: http.MethodPatch, path: "/rest/v1/members", query: q, body: toWrite(m), headers: returnRepresentation}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("member %d: %w", m.ID, member.ErrNotFound)
	}
	return nil
}

// Delete removes a member.
func (s *MemberStore) Delete(ctx context.Context, id int64) error {
	q := idFilter(id)
	q.Set("select", "id")
	var rows []memberRow
	err := s.c.do(ctx, request{method: http.MethodDelete, path: "/rest/v1/members", query: q, headers: returnRepresentation}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("member %d: %w", id, member.ErrNotFound)
	}
	return nil
}

// ListDirectory renders predicates as PostgREST filters.
func (s *MemberStore) ListDirectory(ctx context.Context, f memberstore.ListFilter) ([]member.DirectoryEntry, error) {
	q, err := directoryQuery(f)
	if err != nil {
		return nil, err
	}
	var rows []memberRow
	if err := s.c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/members", query: q}, &rows); err != nil {
		return nil, err
	}
	entries := make([]member.DirectoryEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.toEntry()
	}
	return entries, nil
}

func directoryQuery(f memberstore.ListFilter) (url.Values, error) {
	q := url.Values{"select": {directorySelect}}
	for _, p := range f.Predicates {
		if !memberstore.IsFilterColumn(p.Column) {
			return nil, fmt.Errorf("unsupported filter column %q", p.Column)
		}
		v := fmt.Sprint(p.Value)
		switch p.Op {
		case filter.OpILike:
			q.Add(p.Column, substringFilter(v))
		case filter.OpGTE, filter.OpLTE, filter.OpEq:
			q.Add(p.Column, string(p.Op)+"."+v)
		default:
			return nil, fmt.Errorf("unsupported filter op %q", p.Op)
		}
	}
	sortCol := f.Sort
	if !memberstore.IsSortColumn(sortCol) {
		sortCol = memberstore.SortColumns[0]
	}
	dir := "asc"
	if f.Dir == "desc" {
		dir = "desc"
	}
	q.Set("order", sortCol+"."+dir+",id.asc")
	return q, nil
}

// substringFilter matches v literally and case-insensitively. PostgREST turns
// every * of an ilike value into %, so input carrying LIKE wildcards is sent
// as a quoted imatch pattern instead.
func substringFilter(v string) string {
	if !strings.ContainsAny(v, `%_*\`) {
		return "ilike.*" + v + "*"
	}
	return "imatch." + regexp.QuoteMeta(v)
}

// Streets returns distinct non-empty street names.
func (s *MemberStore) Streets(ctx context.Context) ([]string, error) {
	q := url.Values{"select": {"street"}, "street": {"not.is.null"}, "order": {"street.asc"}}
	var rows []struct {
		Street string `json:"street"`
	}
	if err := s.c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/members", query: q}, &rows); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(rows))
	var streets []string
	for _, r := range rows {
		if r.Street == "" || seen[r.Street] {
			continue
		}
		seen[r.Street] = true
		streets = append(streets, r.Street)
	}
	return streets, nil
}
