package web

import (
	"bytes"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"congregation/internal/adapters/http/middleware"
	"congregation/internal/application/orchestrators"
	"congregation/internal/domain/account"
	"congregation/internal/domain/filter"
)

// timeNow is the clock used by handlers. Tests replace it.
var timeNow = time.Now

// mdRenderer renders member notes. Raw HTML in the source is escaped.
var mdRenderer = goldmark.New(
	goldmark.WithExtensions(extension.Linkify),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

func wantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "json" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json_encode_failed", "error", err)
	}
}

func funcMap(r *http.Request) template.FuncMap {
	principal, hasPrincipal := middleware.GetPrincipal(r.Context())
	_, hasSession := middleware.GetSessionFromContext(r.Context())

	return template.FuncMap{
		"isLoggedIn":   func() bool { return hasSession },
		"currentEmail": func() string { return principal.Email },
		"currentRole":  func() string { return principal.Role.Label() },
		"canEdit":      func() bool { return hasPrincipal && principal.Role.CanEdit() },
		"isAdmin":      func() bool { return hasPrincipal && principal.Role == account.RoleSuperadmin },
		"csrfField":    func() template.HTML { return csrf.TemplateField(r) },
		"csrfToken":    func() string { return csrf.Token(r) },
		"renderMarkdown": renderMarkdown,
		"roleLabel":      func(role account.Role) string { return role.Label() },
		"idString":       filter.IDString,
		"year": func(y int) string {
			if y == 0 {
				return ""
			}
			return strconv.Itoa(y)
		},
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format("02.01.2006 15:04")
		},
		"orDash": func(s string) string {
			if strings.TrimSpace(s) == "" {
				return "-"
			}
			return s
		},
	}
}

// renderTemplate renders page inside layout.html with status 200.
func renderTemplate(w http.ResponseWriter, r *http.Request, templateName string, data any) {
	renderPage(w, r, http.StatusOK, templateName, data)
}

// pagePartials lists the fragments a page includes besides the layout.
var pagePartials = map[string][]string{
	"admin.html": {"templates/admin_users.html"},
}

// renderPage renders into a buffer first so a template error never leaves a half-written page.
func renderPage(w http.ResponseWriter, r *http.Request, status int, templateName string, data any) {
	files := append([]string{"templates/layout.html", "templates/" + templateName}, pagePartials[templateName]...)
	tpl, err := template.New("layout.html").Funcs(funcMap(r)).ParseFS(templateFS, files...)
	if err != nil {
		internalError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// renderFragment renders a template without the layout.
func renderFragment(w http.ResponseWriter, r *http.Request, templateName string, data any) {
	tpl, err := template.New(templateName).Funcs(funcMap(r)).ParseFS(templateFS, "templates/"+templateName)
	if err != nil {
		internalError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// currentActor returns the caller as recorded in audit entries.
// PRE: the route is behind Guard
func currentActor(r *http.Request) orchestrators.Actor {
	p, _ := middleware.GetPrincipal(r.Context())
	return orchestrators.Actor{ID: p.UserID, Email: p.Email}
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// absoluteURL joins path onto the public base URL, falling back to the request host.
func absoluteURL(r *http.Request, path string) string {
	base := strings.TrimRight(publicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + path
}
