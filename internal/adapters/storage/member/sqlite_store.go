package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"congregation/internal/adapters/storage"
	"congregation/internal/domain/filter"
	domain "congregation/internal/domain/member"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new MemberStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const memberColumns = `m.id, m.last_name, m.first_name, m.middle_name, m.birth_date, m.baptism_date,
	m.phone, m.street, m.building, m.apartment, m.notes,
	m.status_id, m.ministry_type_id, m.home_group_id, m.deacon_id`

// GetByID retrieves a Member by its ID.
// PRE: id > 0
// POST: Returns the entity or domain.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (domain.Member, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM members m WHERE m.id = ?", id)

	var entity domain.Member
	err := scanMember(row.Scan, &entity)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Member{}, fmt.Errorf("member %d: %w", id, domain.ErrNotFound)
	}
	return entity, err
}

// Insert persists a new Member.
// PRE: entity has been validated
// POST: Returns the assigned id
func (s *SQLiteStore) Insert(ctx context.Context, entity domain.Member) (int64, error) {
	res, err := s.db.ExecContext(ctx, insertQuery, insertArgs(entity)...)
	if err != nil {
		return 0, fmt.Errorf("insert member: %w", err)
	}
	return res.LastInsertId()
}

const insertQuery = `INSERT INTO members (last_name, first_name, middle_name, birth_date, baptism_date,
	phone, street, building, apartment, notes, status_id, ministry_type_id, home_group_id, deacon_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertArgs(m domain.Member) []any {
	return []any{
		m.LastName, m.FirstName,
		storage.NullString(m.MiddleName),
		storage.NullString(m.BirthDate),
		storage.NullString(m.BaptismDate),
		storage.NullString(m.Phone),
		storage.NullString(m.Street),
		storage.NullString(m.Building),
		storage.NullString(m.Apartment),
		storage.NullString(m.Notes),
		storage.NullInt64(m.StatusID),
		storage.NullInt64(m.MinistryTypeID),
		storage.NullInt64(m.HomeGroupID),
		storage.NullInt64(m.DeaconID),
	}
}

// InsertBatch persists all members in a single transaction.
// PRE: every entity has been validated
// POST: either all rows are inserted or none
func (s *SQLiteStore) InsertBatch(ctx context.Context, entities []domain.Member) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, m := range entities {
		if _, err := stmt.ExecContext(ctx, insertArgs(m)...); err != nil {
			return 0, fmt.Errorf("insert member row %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(entities), nil
}

// Update overwrites every editable field of an existing Member.
// PRE: entity.ID > 0 and entity has been validated
// POST: Returns domain.ErrNotFound when no row matched
func (s *SQLiteStore) Update(ctx context.Context, entity domain.Member) error {
	args := append(insertArgs(entity), entity.ID)
	res, err := s.db.ExecContext(ctx, `UPDATE members SET last_name = ?, first_name = ?, middle_name = ?,
		birth_date = ?, baptism_date = ?, phone = ?, street = ?, building = ?, apartment = ?, notes = ?,
		status_id = ?, ministry_type_id = ?, home_group_id = ?, deacon_id = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	return expectOneRow(res, entity.ID)
}

// Delete removes a Member.
// PRE: id > 0
// POST: Returns domain.ErrNotFound when no row matched
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM members WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("member %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListDirectory returns members matching every predicate, joined with
// their lookup names, ordered by one column.
// PRE: predicate columns are in FilterColumns
// POST: Returns entries in the requested order; ties broken by id
func (s *SQLiteStore) ListDirectory(ctx context.Context, f ListFilter) ([]domain.DirectoryEntry, error) {
	var qb strings.Builder
	qb.WriteString("SELECT " + memberColumns + `,
		COALESCE(st.name, ''), COALESCE(mt.name, ''), COALESCE(hg.name, ''), COALESCE(d.full_name, '')
		FROM members m
		LEFT JOIN statuses st ON st.id = m.status_id
		LEFT JOIN ministry_types mt ON mt.id = m.ministry_type_id
		LEFT JOIN home_groups hg ON hg.id = m.home_group_id
		LEFT JOIN deacons d ON d.id = m.deacon_id`)

	where, args, err := buildWhere(f.Predicates)
	if err != nil {
		return nil, err
	}
	qb.WriteString(where)

	sortCol := f.Sort
	if !IsSortColumn(sortCol) {
		sortCol = SortColumns[0]
	}
	dir := "ASC"
	if f.Dir == "desc" {
		dir = "DESC"
	}
	fmt.Fprintf(&qb, " ORDER BY m.%s %s, m.id ASC", sortCol, dir)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var results []domain.DirectoryEntry
	for rows.Next() {
		var e domain.DirectoryEntry
		err := scanMember(func(dest ...any) error {
			return rows.Scan(append(dest, &e.Status, &e.MinistryType, &e.HomeGroup, &e.Deacon)...)
		}, &e.Member)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// buildWhere renders predicates as a parameterized WHERE clause.
func buildWhere(preds []filter.Predicate) (string, []any, error) {
	if len(preds) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(preds))
	args := make([]any, 0, len(preds))
	for _, p := range preds {
		if !IsFilterColumn(p.Column) {
			return "", nil, fmt.Errorf("unsupported filter column %q", p.Column)
		}
		col := "m." + p.Column
		switch p.Op {
		case filter.OpILike:
			clauses = append(clauses, fmt.Sprintf("instr(unicode_lower(COALESCE(%s, '')), unicode_lower(?)) > 0", col))
		case filter.OpGTE:
			clauses = append(clauses, col+" >= ?")
		case filter.OpLTE:
			clauses = append(clauses, col+" <= ?")
		case filter.OpEq:
			clauses = append(clauses, col+" = ?")
		default:
			return "", nil, fmt.Errorf("unsupported filter op %q", p.Op)
		}
		args = append(args, p.Value)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// Streets returns the distinct non-empty street names in ascending order.
func (s *SQLiteStore) Streets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT street FROM members WHERE street IS NOT NULL AND TRIM(street) <> '' ORDER BY street")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var streets []string
	for rows.Next() {
		var street string
		if err := rows.Scan(&street); err != nil {
			return nil, err
		}
		streets = append(streets, street)
	}
	return streets, rows.Err()
}

// scanMember extracts a Member from a row scanner function.
func scanMember(scan func(dest ...any) error, m *domain.Member) error {
	var middle, birth, baptism, phone, street, building, apartment, notes sql.NullString
	var statusID, ministryID, groupID, deaconID sql.NullInt64
	err := scan(
		&m.ID, &m.LastName, &m.FirstName,
		&middle, &birth, &baptism, &phone, &street, &building, &apartment, &notes,
		&statusID, &ministryID, &groupID, &deaconID,
	)
	if err != nil {
		return err
	}
	m.MiddleName = middle.String
	m.BirthDate = birth.String
	m.BaptismDate = baptism.String
	m.Phone = phone.String
	m.Street = street.String
	m.Building = building.String
	m.Apartment = apartment.String
	m.Notes = notes.String
	m.StatusID = storage.Int64Ptr(statusID)
	m.MinistryTypeID = storage.Int64Ptr(ministryID)
	m.HomeGroupID = storage.Int64Ptr(groupID)
	m.DeaconID = storage.Int64Ptr(deaconID)
	return nil
}
