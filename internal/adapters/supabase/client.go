// Package supabase talks to a hosted Supabase project: PostgREST for data,
// GoTrue for authentication and Edge Functions for schema changes.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"congregation/internal/adapters/auth"
)

// APIError is a non-2xx response from any Supabase service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase %d: %s", e.Status, e.Message)
}

// Client is a thin HTTP client for one project.
// Requests are bounded by the caller's context and by the timeout of the
// http.Client passed to New.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
}

// New creates a client. A nil hc uses a default http.Client.
// PRE: baseURL is the project URL, anonKey its public API key
func New(baseURL, anonKey string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), anonKey: anonKey, http: hc}
}

// request describes one call.
type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	headers map[string]string
	token   string // overrides the token from auth.AccessToken
}

// do executes req and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, req request, out any) error {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return err
	}
	bearer := req.token
	if bearer == "" {
		bearer = auth.AccessToken(ctx)
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	httpReq.Header.Set("apikey", c.anonKey)
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := decodeError(resp.StatusCode, data)
		slog.Debug("supabase_error", "method", req.method, "path", req.path, "status", resp.StatusCode, "code", apiErr.Code)
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.path, err)
	}
	return nil
}

// decodeError understands the PostgREST, GoTrue and Functions error shapes.
func decodeError(status int, data []byte) *APIError {
	var raw struct {
		Code             json.RawMessage `json:"code"`
		ErrorCode        string          `json:"error_code"`
		Message          string          `json:"message"`
		Msg              string          `json:"msg"`
		Error            string          `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	e := &APIError{Status: status}
	if err := json.Unmarshal(data, &raw); err != nil {
		e.Message = strings.TrimSpace(string(data))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}
	var code string
	if json.Unmarshal(raw.Code, &code) == nil {
		e.Code = code
	}
	if raw.ErrorCode != "" {
		e.Code = raw.ErrorCode
	}
	for _, m := range []string{raw.Message, raw.Msg, raw.ErrorDescription, raw.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
