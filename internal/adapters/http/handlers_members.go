package web

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	memberStore "congregation/internal/adapters/storage/member"
	"congregation/internal/application/listutil"
	"congregation/internal/application/orchestrators"
	"congregation/internal/application/projections"
	"congregation/internal/domain/export"
	"congregation/internal/domain/filter"
	"congregation/internal/domain/lookup"
	"congregation/internal/domain/member"
)

// sortLabels are the directory's sortable column headers.
var sortLabels = map[string]string{
	member.FieldLastName:    "Прізвище",
	member.FieldFirstName:   "Ім’я",
	member.FieldBirthDate:   "Дата народж.",
	member.FieldBaptismDate: "Дата хрещення",
	member.FieldStreet:      "Вулиця",
}

// directoryRequest is a parsed /members or /members/export query.
type directoryRequest struct {
	Criteria filter.Criteria
	Sort     listutil.SortParams
	Seq      int64
	Rejected map[string]string
}

func parseDirectoryRequest(q url.Values) directoryRequest {
	year := timeNow().Year()
	criteria, rejected := filter.FromQuery(q, year)
	if q.Has("reset") {
		criteria.Reset(year)
		rejected = nil
	}
	req := directoryRequest{
		Criteria: criteria,
		Sort:     listutil.ParseSortParams(q, memberStore.SortColumns),
	}
	req.Seq, _ = strconv.ParseInt(q.Get("seq"), 10, 64)
	if len(rejected) > 0 {
		req.Rejected = make(map[string]string, len(rejected))
		for param, err := range rejected {
			req.Rejected[param] = err.Error()
		}
	}
	return req
}

// query is the canonical query string of the request, shared by sort links and export.
func (d directoryRequest) query() url.Values {
	return d.Sort.Encode(d.Criteria.Values())
}

type entryJSON struct {
	ID           int64  `json:"id"`
	LastName     string `json:"last_name"`
	FirstName    string `json:"first_name"`
	MiddleName   string `json:"middle_name"`
	BirthDate    string `json:"birth_date"`
	BaptismDate  string `json:"baptism_date"`
	Status       string `json:"status"`
	Phone        string `json:"phone"`
	Street       string `json:"street"`
	Building     string `json:"building"`
	Apartment    string `json:"apartment"`
	MinistryType string `json:"ministry_type"`
	HomeGroup    string `json:"home_group"`
	Deacon       string `json:"deacon"`
	NotesHTML    string `json:"notes_html"`
}

type directoryJSON struct {
	Seq      int64             `json:"seq"`
	Count    int               `json:"count"`
	Query    string            `json:"query"`
	Entries  []entryJSON       `json:"entries"`
	Rejected map[string]string `json:"rejected,omitempty"`
}

func toEntryJSON(e member.DirectoryEntry) entryJSON {
	out := entryJSON{
		ID:           e.ID,
		LastName:     e.LastName,
		FirstName:    e.FirstName,
		MiddleName:   e.MiddleName,
		BirthDate:    e.BirthDate,
		BaptismDate:  e.BaptismDate,
		Status:       e.Status,
		Phone:        e.Phone,
		Street:       e.Street,
		Building:     e.Building,
		Apartment:    e.Apartment,
		MinistryType: e.MinistryType,
		HomeGroup:    e.HomeGroup,
		Deacon:       e.Deacon,
	}
	if e.Notes != "" {
		out.NotesHTML = string(renderMarkdown(e.Notes))
	}
	return out
}

// handleDirectory handles GET /members.
// With format=json it answers the page script: the seq parameter is echoed in
// the body and in X-Request-Seq so the script can drop stale responses.
func handleDirectory(w http.ResponseWriter, r *http.Request) {
	req := parseDirectoryRequest(r.URL.Query())

	if r.URL.Query().Get("format") == "json" {
		result, err := projections.QueryGetMemberDirectory(r.Context(), projections.GetMemberDirectoryQuery{
			Criteria: req.Criteria,
			Sort:     req.Sort,
			Seq:      req.Seq,
		}, projections.GetMemberDirectoryDeps{DirectoryStore: stores.MemberStore})
		if err != nil {
			internalError(w, err)
			return
		}
		body := directoryJSON{
			Seq:      result.Seq,
			Count:    len(result.Entries),
			Query:    req.query().Encode(),
			Entries:  make([]entryJSON, len(result.Entries)),
			Rejected: req.Rejected,
		}
		for i, e := range result.Entries {
			body.Entries[i] = toEntryJSON(e)
		}
		w.Header().Set("X-Request-Seq", strconv.FormatInt(result.Seq, 10))
		writeJSON(w, http.StatusOK, body)
		return
	}

	renderDirectory(w, r, http.StatusOK, req, "")
}

// renderDirectory renders the full directory page, optionally with an export error.
func renderDirectory(w http.ResponseWriter, r *http.Request, status int, req directoryRequest, exportError string) {
	ctx := r.Context()
	result, err := projections.QueryGetMemberDirectory(ctx, projections.GetMemberDirectoryQuery{
		Criteria:    req.Criteria,
		Sort:        req.Sort,
		Seq:         req.Seq,
		WithStreets: true,
	}, projections.GetMemberDirectoryDeps{DirectoryStore: stores.MemberStore})
	if err != nil {
		internalError(w, err)
		return
	}
	lookups, err := projections.QueryLookups(ctx, stores.LookupStore)
	if err != nil {
		internalError(w, err)
		return
	}

	type sortHeader struct {
		Column    string
		Label     string
		URL       string
		Indicator string
	}
	criteriaValues := req.Criteria.Values()
	headers := make([]sortHeader, 0, len(memberStore.SortColumns))
	for _, col := range memberStore.SortColumns {
		headers = append(headers, sortHeader{
			Column:    col,
			Label:     sortLabels[col],
			URL:       "/members?" + req.Sort.Toggle(col).Encode(criteriaValues).Encode(),
			Indicator: req.Sort.Indicator(col),
		})
	}

	renderPage(w, r, status, "members.html", map[string]any{
		"Entries":       result.Entries,
		"Count":         len(result.Entries),
		"Streets":       result.Streets,
		"Criteria":      req.Criteria,
		"Rejected":      req.Rejected,
		"Sort":          req.Sort,
		"SortHeaders":   headers,
		"Query":         req.query().Encode(),
		"QueryValues":   req.query(),
		"Filtered":      req.Criteria.Active(timeNow().Year()),
		"LookupFilters": lookupFilters(lookups, req.Criteria),
		"Columns":       export.Columns,
		"ExportError":   exportError,
		"DebounceMs":    filter.DebounceDelay.Milliseconds(),
		"MaxYear":       timeNow().Year(),
	})
}

type lookupFilter struct {
	Param    string
	Label    string
	Selected string
	Options  []lookup.Lookup
}

func lookupFilters(set lookup.Set, c filter.Criteria) []lookupFilter {
	return []lookupFilter{
		{filter.ParamStatusID, lookup.KindStatus.Label(), filter.IDString(c.StatusID), set.Of(lookup.KindStatus)},
		{filter.ParamMinistryTypeID, lookup.KindMinistryType.Label(), filter.IDString(c.MinistryTypeID), set.Of(lookup.KindMinistryType)},
		{filter.ParamHomeGroupID, lookup.KindHomeGroup.Label(), filter.IDString(c.HomeGroupID), set.Of(lookup.KindHomeGroup)},
		{filter.ParamDeaconID, lookup.KindDeacon.Label(), filter.IDString(c.DeaconID), set.Of(lookup.KindDeacon)},
	}
}

func formFromRequest(r *http.Request) member.Form {
	return member.Form{
		LastName:       r.FormValue(member.FieldLastName),
		FirstName:      r.FormValue(member.FieldFirstName),
		MiddleName:     r.FormValue(member.FieldMiddleName),
		BirthDate:      r.FormValue(member.FieldBirthDate),
		BaptismDate:    r.FormValue(member.FieldBaptismDate),
		Phone:          r.FormValue(member.FieldPhone),
		Street:         r.FormValue(member.FieldStreet),
		Building:       r.FormValue(member.FieldBuilding),
		Apartment:      r.FormValue(member.FieldApartment),
		Notes:          r.FormValue(member.FieldNotes),
		StatusID:       r.FormValue(member.FieldStatusID),
		MinistryTypeID: r.FormValue(member.FieldMinistryTypeID),
		HomeGroupID:    r.FormValue(member.FieldHomeGroupID),
		DeaconID:       r.FormValue(member.FieldDeaconID),
	}
}

func memberFormData(id int64, form member.Form, lookups lookup.Set) map[string]any {
	title, action := "Додати члена церкви", "/members/new"
	if id > 0 {
		title, action = "Редагувати члена церкви", "/members/"+strconv.FormatInt(id, 10)+"/edit"
	}
	return map[string]any{
		"ID":      id,
		"Title":   title,
		"Action":  action,
		"Form":    form,
		"Lookups": lookupSelects(lookups, form),
		"Today":   timeNow().Format(member.DateLayout),
		"Errors":  member.FieldErrors{},
	}
}

type lookupSelect struct {
	Field    string
	Label    string
	Selected string
	Options  []lookup.Lookup
}

func lookupSelects(set lookup.Set, f member.Form) []lookupSelect {
	return []lookupSelect{
		{member.FieldStatusID, lookup.KindStatus.Label(), f.StatusID, set.Of(lookup.KindStatus)},
		{member.FieldMinistryTypeID, lookup.KindMinistryType.Label(), f.MinistryTypeID, set.Of(lookup.KindMinistryType)},
		{member.FieldHomeGroupID, lookup.KindHomeGroup.Label(), f.HomeGroupID, set.Of(lookup.KindHomeGroup)},
		{member.FieldDeaconID, lookup.KindDeacon.Label(), f.DeaconID, set.Of(lookup.KindDeacon)},
	}
}

// formID returns 0 for the add form and the path id for the edit form.
func formID(r *http.Request) (int64, bool) {
	if chi.URLParam(r, "id") == "" {
		return 0, true
	}
	return pathID(r)
}

// handleMemberFormPage handles GET /members/new and GET /members/{id}/edit
func handleMemberFormPage(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(r)
	if !ok {
		http.Error(w, "Член церкви не знайдений", http.StatusNotFound)
		return
	}

	result, err := projections.QueryGetMemberForm(r.Context(), id, projections.GetMemberFormDeps{
		MemberStore: stores.MemberStore,
		LookupStore: stores.LookupStore,
	})
	if errors.Is(err, member.ErrNotFound) {
		http.Error(w, "Член церкви не знайдений", http.StatusNotFound)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}

	form := member.Form{}
	if id > 0 {
		form = member.FormFromMember(result.Member)
	}
	renderTemplate(w, r, "member_form.html", memberFormData(id, form, result.Lookups))
}

// handleSaveMember handles POST /members/new and POST /members/{id}/edit
func handleSaveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(r)
	if !ok {
		http.Error(w, "Член церкви не знайдений", http.StatusNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	form := formFromRequest(r)

	_, err := orchestrators.ExecuteSaveMember(r.Context(), orchestrators.SaveMemberInput{
		ID:    id,
		Form:  form,
		Today: timeNow(),
	}, orchestrators.SaveMemberDeps{
		MemberStore: stores.MemberStore,
		Events:      broker,
	})
	if err == nil {
		http.Redirect(w, r, "/members", http.StatusSeeOther)
		return
	}
	if errors.Is(err, member.ErrNotFound) {
		http.Error(w, "Член церкви не знайдений", http.StatusNotFound)
		return
	}

	// Re-render with the submitted values retained.
	lookups, lerr := projections.QueryLookups(r.Context(), stores.LookupStore)
	if lerr != nil {
		internalError(w, lerr)
		return
	}
	data := memberFormData(id, form, lookups)
	var fieldErrs member.FieldErrors
	if errors.As(err, &fieldErrs) {
		data["Errors"] = fieldErrs
	} else {
		data["Error"] = orchestrators.ErrSaveFailed.Error()
	}
	renderPage(w, r, http.StatusUnprocessableEntity, "member_form.html", data)
}

// handleDeleteMemberPage handles GET /members/{id}/delete
func handleDeleteMemberPage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "Член церкви не знайдений", http.StatusNotFound)
		return
	}
	m, err := stores.MemberStore.GetByID(r.Context(), id)
	if errors.Is(err, member.ErrNotFound) {
		http.Error(w, "Член церкви не знайдений", http.StatusNotFound)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	renderTemplate(w, r, "member_delete.html", map[string]any{"Member": m})
}

// handleDeleteMember handles POST /members/{id}/delete
func handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "Член церкви не знайдений", http.StatusNotFound)
		return
	}
	err := orchestrators.ExecuteDeleteMember(r.Context(), id, orchestrators.DeleteMemberDeps{
		MemberStore: stores.MemberStore,
		Events:      broker,
	})
	if err == nil || errors.Is(err, member.ErrNotFound) {
		http.Redirect(w, r, "/members", http.StatusSeeOther)
		return
	}
	m, gerr := stores.MemberStore.GetByID(r.Context(), id)
	if gerr != nil {
		m = member.Member{ID: id}
	}
	renderPage(w, r, http.StatusUnprocessableEntity, "member_delete.html", map[string]any{
		"Member": m,
		"Error":  orchestrators.ErrDeleteFailed.Error(),
	})
}
