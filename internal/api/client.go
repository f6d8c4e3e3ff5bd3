// Package api is the Algorave REST client: auth, strudel CRUD, and forking.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client talks to the Algorave HTTP API. tokenFn supplies the current auth token per request so a
// login during the process lifetime takes effect without rebuilding the client; it may be nil for
// anonymous use.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *slog.Logger
	tokenFn func() string
}

func New(baseURL string, tokenFn func() string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
		log:     log,
		tokenFn: tokenFn,
	}
}

// apiError is a non-2xx response. Callers usually only need the message, but the status code is
// kept for login-required checks.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("api: unexpected status %d", e.StatusCode)
}

// IsStatus reports whether err is an API error with the given HTTP status.
func IsStatus(err error, code int) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.StatusCode == code
}

// do performs one request. When out is non-nil the response body is decoded into it.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c == nil {
		return fmt.Errorf("api client not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokenFn != nil {
		if token := strings.TrimSpace(c.tokenFn()); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrorMessage(resp.Body)
		return fmt.Errorf("%s %s: %w", method, path, &apiError{StatusCode: resp.StatusCode, Message: msg})
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// readErrorMessage pulls {"error": "..."} or {"message": "..."} out of an error body, falling
// back to the raw text.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
