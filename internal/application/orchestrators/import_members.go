package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"congregation/internal/adapters/spreadsheet"
	"congregation/internal/domain/audit"
	"congregation/internal/domain/lookup"
	"congregation/internal/domain/member"
)

// MaxImportBytes caps the uploaded workbook.
const MaxImportBytes = 5 << 20

// lookupConcurrency bounds the name-to-id lookups in flight.
const lookupConcurrency = 4

// Import column headers.
const (
	colLastName     = "Прізвище"
	colFirstName    = "Ім’я"
	colFirstNameAlt = "Ім'я"
	colMiddleName   = "По батькові"
	colBirthDate    = "Дата народження"
	colBaptismDate  = "Дата хрещення"
	colPhone        = "Телефон"
	colStreet       = "Вулиця"
	colBuilding     = "Будинок"
	colApartment    = "Квартира"
	colNotes        = "Примітки"
)

// lookupColumns maps a header to the reference table it names.
var lookupColumns = map[string]lookup.Kind{
	"Статус":        lookup.KindStatus,
	"Служіння":      lookup.KindMinistryType,
	"Домашня група": lookup.KindHomeGroup,
	"Диякон":        lookup.KindDeacon,
}

// Import errors. Each aborts the import before anything is written.
var (
	ErrNoFile         = errors.New("Виберіть файл")
	ErrFileTooLarge   = errors.New("Файл занадто великий (макс. 5 МБ)")
	ErrNotXLSX        = errors.New("Підтримуються лише файли .xlsx")
	ErrEmptySheet     = errors.New("Файл порожній")
	ErrMissingColumns = errors.New("Файл повинен містити колонки: Прізвище, Ім’я")
	ErrNoValidRows    = errors.New("Немає валідних даних для імпорту")
)

// ImportMembersValidationError reports an unreadable workbook.
type ImportMembersValidationError struct {
	Message string
	Err     error
}

func (e *ImportMembersValidationError) Error() string {
	return "Помилка обробки файлу: " + e.Message
}

func (e *ImportMembersValidationError) Unwrap() error { return e.Err }

// MemberStoreForImport writes the imported rows.
type MemberStoreForImport interface {
	InsertBatch(ctx context.Context, members []member.Member) (int, error)
}

// LookupFinder resolves a reference-table name to its id.
type LookupFinder interface {
	FindIDByName(ctx context.Context, kind lookup.Kind, name string) (*int64, error)
}

// ImportCounter counts imported and discarded rows.
type ImportCounter interface {
	CountImport(imported, discarded int)
}

// ImportMembersInput carries the uploaded workbook.
// PRE: Reader yields at most Size bytes; Actor is a superadmin
type ImportMembersInput struct {
	Actor    Actor
	FileName string
	Size     int64
	Reader   io.Reader
}

// ImportMembersResult reports how many rows were written and how many were dropped.
type ImportMembersResult struct {
	Imported  int
	Discarded int
}

// ImportMembersDeps holds external dependencies for the import orchestrator.
type ImportMembersDeps struct {
	MemberStore  MemberStoreForImport
	LookupFinder LookupFinder
	AuditStore   AuditAppender
	Events       ChangePublisher
	Metrics      ImportCounter
}

// ExecuteImportMembers maps the first worksheet onto member records and inserts them in one batch.
// PRE: Input.Reader contains an .xlsx workbook whose first row is the header
// POST: rows without a last or first name are discarded; unresolved lookup
// names and malformed phones become empty; one audit entry is appended
// INVARIANT: structural errors abort before any lookup or write
func ExecuteImportMembers(ctx context.Context, input ImportMembersInput, deps ImportMembersDeps) (ImportMembersResult, error) {
	if input.Reader == nil || input.FileName == "" {
		return ImportMembersResult{}, ErrNoFile
	}
	if input.Size > MaxImportBytes {
		return ImportMembersResult{}, ErrFileTooLarge
	}
	if !strings.EqualFold(filepath.Ext(input.FileName), ".xlsx") {
		return ImportMembersResult{}, ErrNotXLSX
	}

	data, err := io.ReadAll(io.LimitReader(input.Reader, MaxImportBytes+1))
	if err != nil {
		return ImportMembersResult{}, &ImportMembersValidationError{Message: err.Error(), Err: err}
	}
	if len(data) > MaxImportBytes {
		return ImportMembersResult{}, ErrFileTooLarge
	}

	headers, rows, err := spreadsheet.ReadBytes(data)
	if errors.Is(err, spreadsheet.ErrNoSheets) {
		return ImportMembersResult{}, ErrEmptySheet
	}
	if err != nil {
		return ImportMembersResult{}, &ImportMembersValidationError{Message: err.Error(), Err: err}
	}
	if len(rows) == 0 {
		return ImportMembersResult{}, ErrEmptySheet
	}
	if !hasRequiredColumns(headers) {
		return ImportMembersResult{}, ErrMissingColumns
	}

	var valid []spreadsheet.Row
	for _, row := range rows {
		if row[colLastName] == "" || firstName(row) == "" {
			continue
		}
		valid = append(valid, row)
	}
	discarded := len(rows) - len(valid)

	ids := resolveLookups(ctx, valid, deps.LookupFinder)

	members := make([]member.Member, 0, len(valid))
	for _, row := range valid {
		m := mapRow(row, ids)
		if err := m.Validate(); err != nil {
			slog.Info("members_import_row_dropped", "last_name", m.LastName, "reason", err.Error())
			discarded++
			continue
		}
		members = append(members, m)
	}
	if len(members) == 0 {
		return ImportMembersResult{Discarded: discarded}, ErrNoValidRows
	}

	n, err := deps.MemberStore.InsertBatch(ctx, members)
	if err != nil {
		slog.Error("members_import_failed", "admin", input.Actor.ID, "rows", len(members), "error", err)
		return ImportMembersResult{}, fmt.Errorf("Помилка імпорту: %w", err)
	}

	slog.Info("members_import",
		"admin", input.Actor.ID,
		"file", input.FileName,
		"imported", n,
		"discarded", discarded,
	)
	if deps.Metrics != nil {
		deps.Metrics.CountImport(n, discarded)
	}
	publish(deps.Events, topicMembers)

	recordAudit(ctx, deps.AuditStore, deps.Events, input.Actor, audit.CategoryImport, audit.Imported(n))
	return ImportMembersResult{Imported: n, Discarded: discarded}, nil
}

func hasRequiredColumns(headers []string) bool {
	var last, first bool
	for _, h := range headers {
		switch h {
		case colLastName:
			last = true
		case colFirstName, colFirstNameAlt:
			first = true
		}
	}
	return last && first
}

func firstName(row spreadsheet.Row) string {
	if v := row[colFirstName]; v != "" {
		return v
	}
	return row[colFirstNameAlt]
}

type lookupKey struct {
	kind lookup.Kind
	name string
}

// resolveLookups resolves every distinct (kind, name) pair once.
// A failed lookup is logged and treated like a miss.
func resolveLookups(ctx context.Context, rows []spreadsheet.Row, finder LookupFinder) map[lookupKey]*int64 {
	keys := map[lookupKey]bool{}
	for _, row := range rows {
		for col, kind := range lookupColumns {
			if name := lookup.NormalizeName(row[col]); name != "" {
				keys[lookupKey{kind, name}] = true
			}
		}
	}

	var mu sync.Mutex
	ids := make(map[lookupKey]*int64, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for key := range keys {
		g.Go(func() error {
			id, err := finder.FindIDByName(gctx, key.kind, key.name)
			if err != nil {
				slog.Warn("members_import_lookup_failed", "kind", key.kind, "name", key.name, "error", err)
				id = nil
			}
			mu.Lock()
			ids[key] = id
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return ids
}

func mapRow(row spreadsheet.Row, ids map[lookupKey]*int64) member.Member {
	fk := func(col string) *int64 {
		name := lookup.NormalizeName(row[col])
		if name == "" {
			return nil
		}
		return ids[lookupKey{lookupColumns[col], name}]
	}
	phone := row[colPhone]
	if !member.ValidPhone(phone) {
		phone = ""
	}
	return member.Member{
		LastName:       row[colLastName],
		FirstName:      firstName(row),
		MiddleName:     row[colMiddleName],
		BirthDate:      spreadsheet.NormalizeDate(row[colBirthDate]),
		BaptismDate:    spreadsheet.NormalizeDate(row[colBaptismDate]),
		Phone:          strings.TrimSpace(phone),
		Street:         row[colStreet],
		Building:       row[colBuilding],
		Apartment:      row[colApartment],
		Notes:          row[colNotes],
		StatusID:       fk("Статус"),
		MinistryTypeID: fk("Служіння"),
		HomeGroupID:    fk("Домашня група"),
		DeaconID:       fk("Диякон"),
	}
}
