package supabase

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"congregation/internal/domain/member"
)

// ErrEmptyStatement is returned when there is no SQL to send.
var ErrEmptyStatement = errors.New("empty SQL statement")

// DDLExecutor runs schema statements through the execute-ddl Edge Function,
// which checks the caller's role before executing.
type DDLExecutor struct {
	c *Client
}

// NewDDLExecutor creates an executor.
func NewDDLExecutor(c *Client) *DDLExecutor {
	return &DDLExecutor{c: c}
}

// ExecuteDDL sends one statement. The caller's token must be in ctx.
func (e *DDLExecutor) ExecuteDDL(ctx context.Context, statement string) error {
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return ErrEmptyStatement
	}
	return e.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/functions/v1/execute-ddl",
		body:   map[string]string{"sql": statement},
	}, nil)
}

// importColumns is the header row the import-csv function reads.
var importColumns = []string{
	member.FieldLastName, member.FieldFirstName, member.FieldMiddleName,
	member.FieldBirthDate, member.FieldBaptismDate, member.FieldPhone,
	member.FieldStreet, member.FieldBuilding, member.FieldApartment, member.FieldNotes,
	member.FieldStatusID, member.FieldMinistryTypeID, member.FieldHomeGroupID, member.FieldDeaconID,
}

// ImportCSV bulk-inserts members through the import-csv Edge Function, which
// checks the caller's role and inserts all rows in one statement.
// POST: returns the number of rows the function reports as processed
func (c *Client) ImportCSV(ctx context.Context, ms []member.Member) (int, error) {
	body, err := encodeImportCSV(ms)
	if err != nil {
		return 0, err
	}
	var out struct {
		Processed int `json:"processed"`
	}
	err = c.do(ctx, request{
		method: http.MethodPost,
		path:   "/functions/v1/import-csv",
		body:   map[string]string{"csv": body},
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.Processed, nil
}

// encodeImportCSV writes one row per member. Absent values are empty fields.
func encodeImportCSV(ms []member.Member) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(importColumns); err != nil {
		return "", err
	}
	for _, m := range ms {
		row := []string{
			m.LastName, m.FirstName, m.MiddleName,
			m.BirthDate, m.BaptismDate, m.Phone,
			m.Street, m.Building, m.Apartment, m.Notes,
			idField(m.StatusID), idField(m.MinistryTypeID), idField(m.HomeGroupID), idField(m.DeaconID),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("encode import csv: %w", err)
	}
	return buf.String(), nil
}

func idField(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
