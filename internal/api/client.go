// Package api implements the authenticated HTTP client for the ragdesk backend.
//
// Every call attaches the current bearer token read from the injected
// TokenSource at attempt time. The client tolerates a narrow race: the token
// can expire and be refreshed out of band at roughly the same moment a
// request goes out. A 401 response or a transport failure is retried exactly
// once after a short fixed delay, reusing whatever token is current by then.
// Cancellation propagates immediately and is never retried.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"
)

const (
	// retryDelay gives a concurrent out-of-band token refresh time to land
	// before the single retry attempt.
	retryDelay = 750 * time.Millisecond

	correlationHeader = "X-Request-ID"
)

// TokenSource returns the current bearer token. It is read once per attempt,
// so a refresh between the first attempt and the retry is picked up.
type TokenSource func() string

// Error is the structured form of a non-2xx backend response.
type Error struct {
	Status        int
	Message       string
	CorrelationID string
}

func (e *Error) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("%s (status %d, request %s)", e.Message, e.Status, e.CorrelationID)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Client talks to the ragdesk backend. It holds no per-call state other than
// the shared token source, which it never mutates.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	retryDelay time.Duration
}

// NewClient creates a client for the backend at baseURL. No request timeout
// is set: a hung call is resolved by cancelling its context.
func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		tokens:     tokens,
		retryDelay: retryDelay,
	}
}

// do issues one HTTP call with the retry policy described in the package doc.
// body is JSON-marshalled when non-nil; out is JSON-decoded from a 2xx body
// when non-nil. A 204 resolves without touching out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}
	return c.roundTrip(ctx, build, out)
}

// roundTrip runs up to two attempts of the request produced by build.
func (c *Client) roundTrip(ctx context.Context, build func() (*http.Request, error), out any) error {
	const maxAttempts = 2
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, c.retryDelay); err != nil {
				return err
			}
		}

		req, err := build()
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if tok := c.tokens(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// A cancelled call is a deliberate abort, not a transport
			// failure: surface it without spending the retry budget.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			lastErr = &Error{Status: resp.StatusCode, Message: "authentication failed"}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return responseError(resp, data)
		}
		if resp.StatusCode == http.StatusNoContent || out == nil {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read response: %w", readErr)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return lastErr
}

// responseError builds an *Error from a final non-2xx response, preferring
// the backend's JSON detail message over a generic fallback.
func responseError(resp *http.Response, data []byte) error {
	msg := "request failed"
	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &detail) == nil && detail.Detail != "" {
		msg = detail.Detail
	}
	return &Error{
		Status:        resp.StatusCode,
		Message:       msg,
		CorrelationID: resp.Header.Get(correlationHeader),
	}
}

// sleepWithContext sleeps for d, returning early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsStatus reports whether err is a backend *Error with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// ── Sessions ────────────────────────────────────────────────────────────────

func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var out []Session
	if err := c.do(ctx, http.MethodGet, "/api/chat/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateSession(ctx context.Context) (Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/api/chat/sessions", nil, &out); err != nil {
		return Session{}, err
	}
	return out, nil
}

func (c *Client) RenameSession(ctx context.Context, id int64, title string) error {
	body := map[string]string{"session_title": title}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/chat/sessions/%d", id), body, nil)
}

func (c *Client) DeleteSession(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/chat/sessions/%d", id), nil, nil)
}

// History returns the stored exchanges of a session, oldest first.
func (c *Client) History(ctx context.Context, sessionID int64) ([]Exchange, error) {
	var out []Exchange
	path := fmt.Sprintf("/api/chat/sessions/%d/history", sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ── Ask & feedback ──────────────────────────────────────────────────────────

// Ask posts a question and blocks until the backend answers or ctx is
// cancelled.
func (c *Client) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	var out AskResponse
	if err := c.do(ctx, http.MethodPost, "/api/ask", req, &out); err != nil {
		return AskResponse{}, err
	}
	return out, nil
}

// Feedback records an up/down marker against the answer identified by queryID.
func (c *Client) Feedback(ctx context.Context, queryID int64, marker string) error {
	body := map[string]string{"feedback": marker}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/queries/%d/feedback", queryID), body, nil)
}

// ── Auth & prefs ────────────────────────────────────────────────────────────

func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return LoginResponse{}, err
	}
	return out, nil
}

func (c *Client) Prefs(ctx context.Context) (RemotePrefs, error) {
	var out RemotePrefs
	if err := c.do(ctx, http.MethodGet, "/api/me/prefs", nil, &out); err != nil {
		return RemotePrefs{}, err
	}
	return out, nil
}

func (c *Client) UpdatePrefs(ctx context.Context, prefs RemotePrefs) error {
	return c.do(ctx, http.MethodPatch, "/api/me/prefs", prefs, nil)
}

// ── Documents ───────────────────────────────────────────────────────────────

// UploadDocument posts file content as a multipart upload. The content is
// buffered so the retry attempt can resend it.
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader) (Document, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return Document{}, fmt.Errorf("read upload: %w", err)
	}

	build := func() (*http.Request, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", filepath.Base(filename))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/documents", &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}

	var out Document
	if err := c.roundTrip(ctx, build, &out); err != nil {
		return Document{}, err
	}
	return out, nil
}
