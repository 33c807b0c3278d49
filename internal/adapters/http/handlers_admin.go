package web

import (
	"errors"
	"fmt"
	"net/http"

	"congregation/internal/adapters/realtime"
	"congregation/internal/application/orchestrators"
	"congregation/internal/application/projections"
	"congregation/internal/domain/account"
)

// adminNotices are shown after a successful admin action redirects back.
var adminNotices = map[string]string{
	"role":   "Роль призначено",
	"schema": "SQL-запит виконано",
	"column": "Стовпець додано",
}

// handleAdminConsole handles GET /admin
func handleAdminConsole(w http.ResponseWriter, r *http.Request) {
	data, err := adminConsoleData(r)
	if err != nil {
		internalError(w, err)
		return
	}
	q := r.URL.Query()
	data["Notice"] = adminNotices[q.Get("ok")]
	if q.Get("ok") == "import" {
		data["Notice"] = fmt.Sprintf("Імпортовано %s записів, пропущено %s", q.Get("imported"), q.Get("discarded"))
	}
	renderTemplate(w, r, "admin.html", data)
}

func adminConsoleData(r *http.Request) (map[string]any, error) {
	result, err := projections.QueryGetAdminConsole(r.Context(), projections.GetAdminConsoleDeps{
		UserStore:  stores.UserStore,
		AuditStore: stores.AuditStore,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"Users":       result.Users,
		"AuditLog":    result.AuditLog,
		"Roles":       result.Roles,
		"ColumnTypes": orchestrators.ColumnTypes,
		"MaxImportMB": orchestrators.MaxImportBytes >> 20,
		"Errors":      map[string]string{},
		"Form":        map[string]string{},
	}, nil
}

// renderAdminError re-renders the console with the error next to the form named by section.
func renderAdminError(w http.ResponseWriter, r *http.Request, section string, err error, form map[string]string) {
	data, lerr := adminConsoleData(r)
	if lerr != nil {
		internalError(w, lerr)
		return
	}
	data["Errors"] = map[string]string{section: err.Error()}
	if form != nil {
		data["Form"] = form
	}
	renderPage(w, r, http.StatusUnprocessableEntity, "admin.html", data)
}

// handleAssignRole handles POST /admin/roles
func handleAssignRole(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	input := orchestrators.AssignRoleInput{
		Actor:  currentActor(r),
		UserID: r.FormValue("user_id"),
		Role:   r.FormValue("role"),
	}
	err := orchestrators.ExecuteAssignRole(r.Context(), input, orchestrators.AssignRoleDeps{
		UserStore:  stores.UserStore,
		AuditStore: stores.AuditStore,
		Events:     broker,
	})
	if err != nil {
		renderAdminError(w, r, "role", err, map[string]string{"user_id": input.UserID, "role": input.Role})
		return
	}
	http.Redirect(w, r, "/admin?ok=role", http.StatusSeeOther)
}

// handleSchemaChange handles POST /admin/schema
func handleSchemaChange(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	input := orchestrators.SchemaChangeInput{
		Actor:     currentActor(r),
		Statement: r.FormValue("sql"),
	}
	if err := orchestrators.ExecuteSchemaChange(r.Context(), input, schemaDeps()); err != nil {
		renderAdminError(w, r, "schema", err, map[string]string{"sql": input.Statement})
		return
	}
	http.Redirect(w, r, "/admin?ok=schema", http.StatusSeeOther)
}

// handleAddColumn handles POST /admin/columns
func handleAddColumn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	input := orchestrators.AddMemberColumnInput{
		Actor: currentActor(r),
		Name:  r.FormValue("column_name"),
		Type:  r.FormValue("column_type"),
	}
	if err := orchestrators.ExecuteAddMemberColumn(r.Context(), input, schemaDeps()); err != nil {
		renderAdminError(w, r, "column", err, map[string]string{"column_name": input.Name, "column_type": input.Type})
		return
	}
	http.Redirect(w, r, "/admin?ok=column", http.StatusSeeOther)
}

func schemaDeps() orchestrators.SchemaChangeDeps {
	return orchestrators.SchemaChangeDeps{
		Executor:   schemaExecutor,
		AuditStore: stores.AuditStore,
		Events:     broker,
	}
}

// handleImportMembers handles POST /admin/import (multipart, field "file")
func handleImportMembers(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope around the file.
	r.Body = http.MaxBytesReader(w, r.Body, orchestrators.MaxImportBytes+1<<20)
	if err := r.ParseMultipartForm(orchestrators.MaxImportBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			renderAdminError(w, r, "import", orchestrators.ErrFileTooLarge, nil)
			return
		}
		renderAdminError(w, r, "import", orchestrators.ErrNoFile, nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		renderAdminError(w, r, "import", orchestrators.ErrNoFile, nil)
		return
	}
	defer file.Close()

	result, err := orchestrators.ExecuteImportMembers(r.Context(), orchestrators.ImportMembersInput{
		Actor:    currentActor(r),
		FileName: header.Filename,
		Size:     header.Size,
		Reader:   file,
	}, orchestrators.ImportMembersDeps{
		MemberStore:  stores.MemberStore,
		LookupFinder: stores.LookupStore,
		AuditStore:   stores.AuditStore,
		Events:       broker,
		Metrics:      appMetrics,
	})
	if err != nil {
		renderAdminError(w, r, "import", err, nil)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/admin?ok=import&imported=%d&discarded=%d", result.Imported, result.Discarded), http.StatusSeeOther)
}

// handleUserListFragment handles GET /admin/users, the fragment the console refetches.
func handleUserListFragment(w http.ResponseWriter, r *http.Request) {
	users, err := projections.QueryListUsers(r.Context(), stores.UserStore)
	if err != nil {
		internalError(w, err)
		return
	}
	renderFragment(w, r, "admin_users.html", map[string]any{
		"Users": users,
		"Roles": account.ValidRoles,
	})
}

// handleAdminEvents handles GET /admin/events, a Server-Sent Events stream.
// The subscription lives exactly as long as the request; bursts of changes
// are coalesced into one refresh.
func handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := broker.Subscribe(realtime.TopicUsers)
	defer sub.Unsubscribe()

	refresh := make(chan struct{}, 1)
	debouncer := realtime.NewDebouncer(refreshDelay, func() {
		select {
		case refresh <- struct{}{}:
		default:
		}
	})
	defer debouncer.Stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, open := <-sub.Events():
			if !open {
				return
			}
			debouncer.Trigger()
		case <-refresh:
			fmt.Fprintf(w, "event: refresh\ndata: %s\n\n", realtime.TopicUsers)
			flusher.Flush()
		}
	}
}
