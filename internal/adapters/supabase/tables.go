package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	accountstore "congregation/internal/adapters/storage/account"
	auditstore "congregation/internal/adapters/storage/audit"
	lookupstore "congregation/internal/adapters/storage/lookup"
	"congregation/internal/domain/account"
	"congregation/internal/domain/audit"
	"congregation/internal/domain/lookup"
)

// LookupStore reads the reference tables.
type LookupStore struct {
	c *Client
}

var _ lookupstore.Store = (*LookupStore)(nil)

// NewLookupStore creates a lookup store.
func NewLookupStore(c *Client) *LookupStore {
	return &LookupStore{c: c}
}

type lookupRow struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

func (r lookupRow) toLookup() lookup.Lookup {
	name := r.Name
	if name == "" {
		name = r.FullName
	}
	return lookup.Lookup{ID: r.ID, Name: name}
}

// List returns all rows of one table ordered by name.
func (s *LookupStore) List(ctx context.Context, kind lookup.Kind) ([]lookup.Lookup, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	col := kind.NameColumn()
	q := url.Values{"select": {"id," + col}, "order": {col + ".asc"}}
	var rows []lookupRow
	if err := s.c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/" + kind.Table(), query: q}, &rows); err != nil {
		return nil, err
	}
	out := make([]lookup.Lookup, len(rows))
	for i, r := range rows {
		out[i] = r.toLookup()
	}
	return out, nil
}

// FindIDByName returns nil, nil on a miss.
func (s *LookupStore) FindIDByName(ctx context.Context, kind lookup.Kind, name string) (*int64, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{"select": {"id"}, kind.NameColumn(): {"eq." + lookup.NormalizeName(name)}, "limit": {"1"}}
	var rows []lookupRow
	if err := s.c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/" + kind.Table(), query: q}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	id := rows[0].ID
	return &id, nil
}

// Create inserts a row, ignoring a duplicate name.
func (s *LookupStore) Create(ctx context.Context, kind lookup.Kind, name string) (int64, error) {
	if err := kind.Validate(); err != nil {
		return 0, err
	}
	name = lookup.NormalizeName(name)
	err := s.c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/rest/v1/" + kind.Table(),
		query:   url.Values{"on_conflict": {kind.NameColumn()}},
		body:    map[string]string{kind.NameColumn(): name},
		headers: map[string]string{"Prefer": "resolution=ignore-duplicates,return=minimal"},
	}, nil)
	if err != nil {
		return 0, err
	}
	id, err := s.FindIDByName(ctx, kind, name)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, fmt.Errorf("create %s: row not visible after insert", kind.Table())
	}
	return *id, nil
}

// UserStore manages role records in the users table.
type UserStore struct {
	c *Client
}

var _ accountstore.Store = (*UserStore)(nil)

// NewUserStore creates a user store.
func NewUserStore(c *Client) *UserStore {
	return &UserStore{c: c}
}

type userRow struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func (r userRow) toUser() account.User {
	return account.User{ID: r.ID, Email: r.Email, Role: account.Role(r.Role), CreatedAt: r.CreatedAt}
}

// GetRole calls the get_user_role RPC, which resolves the caller from the
// bearer token in ctx; userID is only used for logging context by callers.
// POST: a null result maps to account.ErrNoRole
func (s *UserStore) GetRole(ctx context.Context, userID string) (account.Role, error) {
	var raw json.RawMessage
	err := s.c.do(ctx, request{method: http.MethodPost, path: "/rest/v1/rpc/get_user_role", body: map[string]any{}}, &raw)
	if err != nil {
		return "", err
	}
	var role *string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &role); err != nil {
			return "", fmt.Errorf("decode role: %w", err)
		}
	}
	if role == nil || *role == "" {
		return "", account.ErrNoRole
	}
	return account.ParseRole(*role)
}

// GetByID fetches one user record.
func (s *UserStore) GetByID(ctx context.Context, id string) (account.User, error) {
	q := url.Values{"select": {"id,email,role,created_at"}, "id": {"eq." + id}}
	var rows []userRow
	if err := s.c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/users", query: q}, &rows); err != nil {
		return account.User{}, err
	}
	if len(rows) == 0 {
		return account.User{}, account.ErrUserNotFound
	}
	return rows[0].toUser(), nil
}

// Insert creates the role record.
func (s *UserStore) Insert(ctx context.Context, u account.User) error {
	return s.c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/rest/v1/users",
		body:    map[string]string{"id": u.ID, "email": u.Email, "role": string(u.Role)},
		headers: map[string]string{"Prefer": "return=minimal"},
	}, nil)
}

// UpdateRole changes a user's role.
func (s *UserStore) UpdateRole(ctx context.Context, userID string, role account.Role) error {
	q := url.Values{"id": {"eq." + userID}, "select": {"id"}}
	var rows []userRow
	err := s.c.do(ctx, request{
		method:  http.MethodPatch,
		path:    "/rest/v1/users",
		query:   q,
		body:    map[string]string{"role": string(role)},
		headers: returnRepresentation,
	}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return account.ErrUserNotFound
	}
	return nil
}

// List returns every user record.
func (s *UserStore) List(ctx context.Context) ([]account.User, error) {
	q := url.Values{"select": {"id,email,role,created_at"}, "order": {"email.asc"}}
	var rows []userRow
	if err := s.c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/users", query: q}, &rows); err != nil {
		return nil, err
	}
	users := make([]account.User, len(rows))
	for i, r := range rows {
		users[i] = r.toUser()
	}
	return users, nil
}

// AuditStore appends to and reads audit_logs.
type AuditStore struct {
	c *Client
}

var _ auditstore.Store = (*AuditStore)(nil)

// NewAuditStore creates an audit store.
func NewAuditStore(c *Client) *AuditStore {
	return &AuditStore{c: c}
}

// Append inserts user_id and action; the table assigns id and timestamp.
func (s *AuditStore) Append(ctx context.Context, e audit.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return s.c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/rest/v1/audit_logs",
		body:    map[string]string{"user_id": e.ActorID, "action": e.Description},
		headers: map[string]string{"Prefer": "return=minimal"},
	}, nil)
}

type auditRow struct {
	ID        json.Number `json:"id"`
	UserID    string      `json:"user_id"`
	Action    string      `json:"action"`
	CreatedAt time.Time   `json:"created_at"`
	Users     *struct {
		Email string `json:"email"`
	} `json:"users"`
}

// List returns the newest entries first with actor emails embedded.
func (s *AuditStore) List(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = auditstore.DefaultLimit
	}
	q := url.Values{
		"select": {"id,user_id,action,created_at,users!audit_logs_user_id_fkey(email)"},
		"order":  {"created_at.desc"},
		"limit":  {fmt.Sprint(limit)},
	}
	var rows []auditRow
	if err := s.c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/audit_logs", query: q}, &rows); err != nil {
		return nil, err
	}
	entries := make([]audit.Entry, len(rows))
	for i, r := range rows {
		e := audit.Entry{ID: r.ID.String(), ActorID: r.UserID, Description: r.Action, CreatedAt: r.CreatedAt}
		if r.Users != nil {
			e.ActorEmail = r.Users.Email
		}
		entries[i] = e
	}
	return entries, nil
}
