package listutil

import (
	"net/url"
)

// SortParams carries sorting parameters parsed from a request.
type SortParams struct {
	Sort string // column name
	Dir  string // "asc" or "desc"
}

// ParseSortParams extracts sort and dir from URL query values.
// PRE: allowedColumns is non-empty; its first entry is the default column
// POST: Sort is always an allowed column; Dir is always "asc" or "desc"
func ParseSortParams(q url.Values, allowedColumns []string) SortParams {
	sort := q.Get("sort")
	dir := q.Get("dir")

	if !isAllowedColumn(sort, allowedColumns) {
		sort = ""
		if len(allowedColumns) > 0 {
			sort = allowedColumns[0]
		}
	}
	if dir != "asc" && dir != "desc" {
		dir = "asc"
	}
	return SortParams{Sort: sort, Dir: dir}
}

// Toggle returns the params a header link for col should carry:
// the opposite direction when col is already the sort column, else ascending.
func (s SortParams) Toggle(col string) SortParams {
	if s.Sort == col && s.Dir == "asc" {
		return SortParams{Sort: col, Dir: "desc"}
	}
	return SortParams{Sort: col, Dir: "asc"}
}

// Indicator returns the arrow shown next to the active sort column.
func (s SortParams) Indicator(col string) string {
	if s.Sort != col {
		return ""
	}
	if s.Dir == "desc" {
		return "▼"
	}
	return "▲"
}

// Descending reports whether Dir is "desc".
func (s SortParams) Descending() bool {
	return s.Dir == "desc"
}

// Encode writes the sort params into q, replacing existing values.
func (s SortParams) Encode(q url.Values) url.Values {
	out := url.Values{}
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	out.Set("sort", s.Sort)
	out.Set("dir", s.Dir)
	return out
}

func isAllowedColumn(col string, allowed []string) bool {
	for _, a := range allowed {
		if col == a {
			return true
		}
	}
	return false
}
