package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"congregation/internal/adapters/spreadsheet"
	"congregation/internal/application/projections"
	"congregation/internal/domain/export"
)

// handleExport handles GET /members/export.
// It re-runs the directory query with the page's filter and sort so the file
// holds exactly the loaded records. Validation failures download nothing:
// JSON callers get 422 with the message, page callers get the directory
// re-rendered with the message.
func handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("export")
	req := parseDirectoryRequest(q)

	contentType, err := export.ContentType(format)
	if err != nil {
		exportFailed(w, r, req, err)
		return
	}

	result, err := projections.QueryGetMemberDirectory(r.Context(), projections.GetMemberDirectoryQuery{
		Criteria: req.Criteria,
		Sort:     req.Sort,
	}, projections.GetMemberDirectoryDeps{DirectoryStore: stores.MemberStore})
	if err != nil {
		internalError(w, err)
		return
	}

	table, err := export.BuildTable(result.Entries, export.SelectColumns(q["columns"]))
	if err != nil {
		if format == export.FormatPrint && errors.Is(err, export.ErrNoData) {
			err = export.ErrNoPrintData
		}
		exportFailed(w, r, req, err)
		return
	}

	var body []byte
	switch format {
	case export.FormatCSV:
		body = table.CSV()
	case export.FormatJSON:
		body, err = table.JSON()
	case export.FormatXLSX:
		body, err = spreadsheet.Write(export.SheetName, table.Headers, table.Rows)
	case export.FormatPrint:
		body, err = table.PrintHTML()
	}
	if err != nil {
		internalError(w, err)
		return
	}

	appMetrics.CountExport(format)
	slog.Info("members_export", "format", format, "rows", len(table.Rows), "columns", len(table.Headers))

	w.Header().Set("Content-Type", contentType)
	if format != export.FormatPrint {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(timeNow(), format)))
	}
	w.Write(body)
}

func exportFailed(w http.ResponseWriter, r *http.Request, req directoryRequest, err error) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	renderDirectory(w, r, http.StatusUnprocessableEntity, req, err.Error())
}
