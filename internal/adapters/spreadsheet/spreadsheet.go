// Package spreadsheet reads and writes .xlsx workbooks.
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ColumnWidth is the width applied to every exported column.
const ColumnWidth = 15

// ErrNoSheets is returned for a workbook without worksheets.
var ErrNoSheets = errors.New("workbook has no sheets")

// Write renders headers and rows into a single-sheet workbook.
// PRE: every row has len(headers) cells
// POST: returns the encoded .xlsx bytes
func Write(sheet string, headers []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	if err := writeRow(f, sheet, 1, headers); err != nil {
		return nil, err
	}
	for i, row := range rows {
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return nil, err
		}
	}
	if len(headers) > 0 {
		last, err := excelize.ColumnNumberToName(len(headers))
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, "A", last, ColumnWidth); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("write row %d: %w", n, err)
	}
	return nil
}

// Row is one data row keyed by its header cell.
type Row map[string]string

// ReadRows parses the first worksheet: the first row is the header, each
// following non-blank row becomes a Row. Cells are read raw, so dates arrive
// as serial numbers (see NormalizeDate).
// POST: returns the trimmed header and the data rows
func ReadRows(r io.Reader) ([]string, []Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrNoSheets
	}
	raw, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil, nil
	}

	header := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		header[i] = strings.TrimSpace(h)
	}

	var rows []Row
	for _, cells := range raw[1:] {
		row := Row{}
		blank := true
		for i, v := range cells {
			if i >= len(header) || header[i] == "" {
				continue
			}
			v = strings.TrimSpace(v)
			if v != "" {
				blank = false
			}
			row[header[i]] = v
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return header, rows, nil
}

// ReadBytes is ReadRows over an in-memory upload.
func ReadBytes(data []byte) ([]string, []Row, error) {
	return ReadRows(bytes.NewReader(data))
}

// dateLayouts are the textual date forms accepted from spreadsheets.
var dateLayouts = []string{"2006-01-02", "02.01.2006", "2.1.2006", "02/01/2006"}

// NormalizeDate converts a spreadsheet date cell to YYYY-MM-DD.
// Excel serial numbers and the layouts in dateLayouts are accepted;
// anything else yields "".
func NormalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return ""
		}
		return t.Format("2006-01-02")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
