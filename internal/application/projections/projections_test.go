package projections

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"congregation/internal/adapters/storage/member"
	"congregation/internal/application/listutil"
	domainAccount "congregation/internal/domain/account"
	domainAudit "congregation/internal/domain/audit"
	"congregation/internal/domain/filter"
	domainLookup "congregation/internal/domain/lookup"
	domainMember "congregation/internal/domain/member"
)

// mockDirectoryStore records the filter it was asked for.
type mockDirectoryStore struct {
	entries    []domainMember.DirectoryEntry
	streets    []string
	listErr    error
	got        member.ListFilter
	streetsHit bool
}

func (m *mockDirectoryStore) ListDirectory(_ context.Context, f member.ListFilter) ([]domainMember.DirectoryEntry, error) {
	m.got = f
	return m.entries, m.listErr
}

func (m *mockDirectoryStore) Streets(_ context.Context) ([]string, error) {
	m.streetsHit = true
	return m.streets, nil
}

func TestQueryGetMemberDirectory_PassesPredicatesAndSort(t *testing.T) {
	store := &mockDirectoryStore{
		entries: []domainMember.DirectoryEntry{{Member: domainMember.Member{ID: 1, LastName: "Коваль"}}},
		streets: []string{"Шевченка"},
	}
	crit := filter.Criteria{Street: "шев", BirthTo: 2026}
	res, err := QueryGetMemberDirectory(context.Background(), GetMemberDirectoryQuery{
		Criteria:    crit,
		Sort:        listutil.SortParams{Sort: "birth_date", Dir: "desc"},
		Seq:         7,
		WithStreets: true,
	}, GetMemberDirectoryDeps{DirectoryStore: store})
	if err != nil {
		t.Fatalf("QueryGetMemberDirectory: %v", err)
	}
	if !reflect.DeepEqual(store.got.Predicates, crit.Predicates()) {
		t.Errorf("predicates=%v want %v", store.got.Predicates, crit.Predicates())
	}
	if store.got.Sort != "birth_date" || store.got.Dir != "desc" {
		t.Errorf("sort=%s %s", store.got.Sort, store.got.Dir)
	}
	if res.Seq != 7 || len(res.Entries) != 1 || len(res.Streets) != 1 {
		t.Errorf("result=%+v", res)
	}
}

func TestQueryGetMemberDirectory_EmptyIsNonNil(t *testing.T) {
	store := &mockDirectoryStore{}
	res, err := QueryGetMemberDirectory(context.Background(), GetMemberDirectoryQuery{}, GetMemberDirectoryDeps{DirectoryStore: store})
	if err != nil {
		t.Fatalf("QueryGetMemberDirectory: %v", err)
	}
	if res.Entries == nil {
		t.Error("entries must be non-nil so JSON renders []")
	}
	if store.streetsHit {
		t.Error("streets loaded without WithStreets")
	}
}

func TestQueryGetMemberDirectory_Error(t *testing.T) {
	store := &mockDirectoryStore{listErr: errors.New("boom")}
	if _, err := QueryGetMemberDirectory(context.Background(), GetMemberDirectoryQuery{}, GetMemberDirectoryDeps{DirectoryStore: store}); err == nil {
		t.Error("expected error")
	}
}

// mockLookupLister serves fixed rows and can fail one kind.
type mockLookupLister struct {
	failKind domainLookup.Kind
	mu       sync.Mutex
	asked    []domainLookup.Kind
}

func (m *mockLookupLister) List(_ context.Context, kind domainLookup.Kind) ([]domainLookup.Lookup, error) {
	m.mu.Lock()
	m.asked = append(m.asked, kind)
	m.mu.Unlock()
	if kind == m.failKind {
		return nil, errors.New("unavailable")
	}
	return []domainLookup.Lookup{{ID: 1, Name: string(kind)}}, nil
}

func TestQueryLookups_LoadsAllKinds(t *testing.T) {
	set, err := QueryLookups(context.Background(), &mockLookupLister{})
	if err != nil {
		t.Fatalf("QueryLookups: %v", err)
	}
	for _, k := range domainLookup.Kinds {
		rows := set.Of(k)
		if len(rows) != 1 || rows[0].Name != string(k) {
			t.Errorf("%s rows=%v", k, rows)
		}
	}
}

func TestQueryLookups_OneFailureFailsGroup(t *testing.T) {
	_, err := QueryLookups(context.Background(), &mockLookupLister{failKind: domainLookup.KindDeacon})
	if err == nil {
		t.Fatal("expected error")
	}
}

type mockMemberGetter struct {
	m   domainMember.Member
	err error
}

func (g mockMemberGetter) GetByID(_ context.Context, _ int64) (domainMember.Member, error) {
	return g.m, g.err
}

func TestQueryGetMemberForm(t *testing.T) {
	deps := GetMemberFormDeps{
		MemberStore: mockMemberGetter{m: domainMember.Member{ID: 3, LastName: "Бондар"}},
		LookupStore: &mockLookupLister{},
	}
	res, err := QueryGetMemberForm(context.Background(), 3, deps)
	if err != nil {
		t.Fatalf("QueryGetMemberForm: %v", err)
	}
	if res.Member.LastName != "Бондар" || len(res.Lookups.Statuses) != 1 {
		t.Errorf("result=%+v", res)
	}

	deps.MemberStore = mockMemberGetter{err: domainMember.ErrNotFound}
	if _, err := QueryGetMemberForm(context.Background(), 3, deps); !errors.Is(err, domainMember.ErrNotFound) {
		t.Errorf("err=%v want ErrNotFound", err)
	}
	if _, err := QueryGetMemberForm(context.Background(), 0, deps); err != nil {
		t.Errorf("new member form must not load a member: %v", err)
	}
}

type mockUserLister struct{ users []domainAccount.User }

func (m mockUserLister) List(_ context.Context) ([]domainAccount.User, error) { return m.users, nil }

type mockAuditLister struct {
	entries []domainAudit.Entry
	limit   int
}

func (m *mockAuditLister) List(_ context.Context, limit int) ([]domainAudit.Entry, error) {
	m.limit = limit
	return m.entries, nil
}

func TestQueryGetAdminConsole(t *testing.T) {
	auditStore := &mockAuditLister{entries: []domainAudit.Entry{{Description: "x"}}}
	res, err := QueryGetAdminConsole(context.Background(), GetAdminConsoleDeps{
		UserStore:  mockUserLister{users: []domainAccount.User{{ID: "u1", Email: "a@b.co", Role: domainAccount.RoleViewer}}},
		AuditStore: auditStore,
	})
	if err != nil {
		t.Fatalf("QueryGetAdminConsole: %v", err)
	}
	if len(res.Users) != 1 || len(res.AuditLog) != 1 || len(res.Roles) != 3 {
		t.Errorf("result=%+v", res)
	}
	if auditStore.limit != 100 {
		t.Errorf("limit=%d want 100", auditStore.limit)
	}
}
