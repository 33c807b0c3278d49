// Package export renders the directory's loaded records as downloadable files.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"congregation/internal/domain/member"
)

// Format constants for export file format.
const (
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatXLSX  = "xlsx"
	FormatPrint = "print"
)

// Missing is rendered for absent values.
const Missing = "-"

// SheetName is the worksheet and print title.
const SheetName = "Члени церкви"

// Domain errors.
var (
	ErrNoData        = errors.New("Немає даних для завантаження")
	ErrNoPrintData   = errors.New("Немає даних для друку")
	ErrNoColumns     = errors.New("Виберіть хоча б один стовпець")
	ErrUnknownFormat = errors.New("Невідомий формат файлу")
)

// Column is one exportable field of a directory entry.
type Column struct {
	Key   string
	Label string
	value func(member.DirectoryEntry) string
}

// Columns is the fixed export schema in output order.
var Columns = []Column{
	{"last_name", "Прізвище", func(e member.DirectoryEntry) string { return e.LastName }},
	{"first_name", "Ім’я", func(e member.DirectoryEntry) string { return e.FirstName }},
	{"middle_name", "По батькові", func(e member.DirectoryEntry) string { return e.MiddleName }},
	{"birth_date", "Дата народж.", func(e member.DirectoryEntry) string { return e.BirthDate }},
	{"baptism_date", "Дата хрещення", func(e member.DirectoryEntry) string { return e.BaptismDate }},
	{"status", "Статус", func(e member.DirectoryEntry) string { return e.Status }},
	{"phone", "Телефон", func(e member.DirectoryEntry) string { return e.Phone }},
	{"street", "Вулиця", func(e member.DirectoryEntry) string { return e.Street }},
	{"building", "Будинок", func(e member.DirectoryEntry) string { return e.Building }},
	{"apartment", "Квартира", func(e member.DirectoryEntry) string { return e.Apartment }},
	{"ministry_type", "Служіння", func(e member.DirectoryEntry) string { return e.MinistryType }},
	{"home_group", "Група", func(e member.DirectoryEntry) string { return e.HomeGroup }},
	{"deacon", "Диякон", func(e member.DirectoryEntry) string { return e.Deacon }},
	{"notes", "Примітки", func(e member.DirectoryEntry) string { return e.Notes }},
}

// SelectColumns keeps the schema columns whose keys are listed, in schema order.
func SelectColumns(keys []string) []Column {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var cols []Column
	for _, c := range Columns {
		if want[c.Key] {
			cols = append(cols, c)
		}
	}
	return cols
}

// Table is the tabular projection shared by all formats.
type Table struct {
	Headers []string
	Rows    [][]string
}

// BuildTable projects entries onto the chosen columns.
// PRE: none
// POST: returns ErrNoData for an empty set, ErrNoColumns for no columns
// INVARIANT: every cell is non-empty; missing values render as Missing
func BuildTable(entries []member.DirectoryEntry, cols []Column) (Table, error) {
	if len(entries) == 0 {
		return Table{}, ErrNoData
	}
	if len(cols) == 0 {
		return Table{}, ErrNoColumns
	}
	t := Table{Headers: make([]string, len(cols)), Rows: make([][]string, len(entries))}
	for i, c := range cols {
		t.Headers[i] = c.Label
	}
	for r, e := range entries {
		row := make([]string, len(cols))
		for i, c := range cols {
			v := strings.TrimSpace(c.value(e))
			if v == "" {
				v = Missing
			}
			row[i] = v
		}
		t.Rows[r] = row
	}
	return t, nil
}

// CSV encodes t with a UTF-8 BOM, ";" delimiters and every field quoted.
func (t Table) CSV() []byte {
	var buf bytes.Buffer
	buf.WriteString("\uFEFF")
	buf.WriteString(strings.Join(t.Headers, ";"))
	for _, row := range t.Rows {
		buf.WriteByte('\n')
		for i, v := range row {
			if i > 0 {
				buf.WriteByte(';')
			}
			buf.WriteString(quote(v))
		}
	}
	return buf.Bytes()
}

func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// JSON encodes t as an array of objects keyed by header, in column order.
func (t Table) JSON() ([]byte, error) {
	objs := make([]orderedRow, len(t.Rows))
	for i, row := range t.Rows {
		objs[i] = orderedRow{keys: t.Headers, values: row}
	}
	return json.MarshalIndent(objs, "", "  ")
}

type orderedRow struct {
	keys   []string
	values []string
}

func (o orderedRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var printTemplate = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html lang="uk">
<head>
<meta charset="utf-8">
<title>Друк членів церкви</title>
<style>
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid black; padding: 8px; text-align: left; }
th { background-color: #f2f2f2; }
@media print { body { margin: 0; } h1 { text-align: center; } }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<table>
<thead><tr>{{range .Table.Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>{{range .Table.Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody>
</table>
<script src="/static/print.js"></script>
</body>
</html>
`))

// PrintHTML renders t as a standalone printable document.
func (t Table) PrintHTML() ([]byte, error) {
	var buf bytes.Buffer
	err := printTemplate.Execute(&buf, struct {
		Title string
		Table Table
	}{SheetName, t})
	if err != nil {
		return nil, fmt.Errorf("render print view: %w", err)
	}
	return buf.Bytes(), nil
}

// FileName returns members_export_YYYY-MM-DD.<ext>.
func FileName(now time.Time, format string) string {
	return fmt.Sprintf("members_export_%s.%s", now.Format("2006-01-02"), format)
}

// ContentType returns the MIME type of a download format.
func ContentType(format string) (string, error) {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8", nil
	case FormatJSON:
		return "application/json; charset=utf-8", nil
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil
	case FormatPrint:
		return "text/html; charset=utf-8", nil
	}
	return "", ErrUnknownFormat
}
