package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string, tokens TokenSource) *Client {
	c := NewClient(url, tokens)
	c.retryDelay = 5 * time.Millisecond
	return c
}

func TestRetryOn401_Transparent(t *testing.T) {
	var hits atomic.Int32
	var seenTokens []string
	var token atomic.Value
	token.Store("stale")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTokens = append(seenTokens, r.Header.Get("Authorization"))
		if hits.Add(1) == 1 {
			// Simulate an out-of-band refresh landing while the client waits.
			token.Store("fresh")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]Session{{ID: 7, Title: "New Chat"}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, func() string { return token.Load().(string) })

	sessions, err := c.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != 7 {
		t.Fatalf("expected the retried response body, got %+v", sessions)
	}
	if hits.Load() != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", hits.Load())
	}
	if seenTokens[1] != "Bearer fresh" {
		t.Errorf("retry should carry the current token, got %q", seenTokens[1])
	}
}

func TestRetryOn401_SecondFailureSurfaces(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set(correlationHeader, "req-42")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"Could not validate credentials"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, func() string { return "t" })
	_, err := c.ListSessions(context.Background())

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", apiErr.Status)
	}
	if apiErr.Message != "Could not validate credentials" {
		t.Errorf("expected backend detail message, got %q", apiErr.Message)
	}
	if apiErr.CorrelationID != "req-42" {
		t.Errorf("expected correlation id from header, got %q", apiErr.CorrelationID)
	}
	if hits.Load() != 2 {
		t.Errorf("expected exactly 2 attempts (one retry), got %d", hits.Load())
	}
}

// flakyTransport fails the first N round trips with a network error, then
// delegates to the real transport.
type flakyTransport struct {
	failures atomic.Int32
	inner    http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset by peer")
	}
	return f.inner.RoundTrip(req)
}

func TestRetryOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Session{ID: 3, Title: "New Chat"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, func() string { return "t" })
	ft := &flakyTransport{inner: http.DefaultTransport}
	ft.failures.Store(1)
	c.httpClient.Transport = ft

	sess, err := c.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("expected transparent recovery from one network error, got %v", err)
	}
	if sess.ID != 3 {
		t.Errorf("expected session 3, got %+v", sess)
	}
}

func TestTransportErrorNotRetriedTwice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := newTestClient(srv.URL, func() string { return "t" })
	ft := &flakyTransport{inner: http.DefaultTransport}
	ft.failures.Store(10)
	c.httpClient.Transport = ft

	_, err := c.CreateSession(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting the retry budget")
	}
	// Two attempts consumed: 10 - 2 = 8 remaining.
	if got := ft.failures.Load(); got != 8 {
		t.Errorf("expected exactly 2 attempts, %d failures left", got)
	}
}

func TestCancellationNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		// Drain the request body so the server notices the client
		// disconnect and cancels r.Context(); otherwise this handler —
		// and the deferred srv.Close — would block forever.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, func() string { return "t" })
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Ask(ctx, AskRequest{Question: "q", SessionID: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("cancelled call must not be retried, got %d attempts", hits.Load())
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancellation should propagate immediately, took %v", elapsed)
	}
}

func TestNoContentResolvesEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/queries/9/feedback" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["feedback"] != FeedbackUp {
			t.Errorf("expected feedback 'up', got %q", body["feedback"])
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, func() string { return "t" })
	if err := c.Feedback(context.Background(), 9, FeedbackUp); err != nil {
		t.Fatalf("204 should resolve without error, got %v", err)
	}
}

func TestDomainErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"detail":"Access Denied"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, func() string { return "t" })
	_, err := c.Ask(context.Background(), AskRequest{Question: "q", SessionID: 1})

	if !IsStatus(err, http.StatusForbidden) {
		t.Fatalf("expected 403 *Error, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("4xx other than 401 must not be retried, got %d attempts", hits.Load())
	}
}

func TestErrorFallbackMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "not json")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, func() string { return "t" })
	_, err := c.ListSessions(context.Background())

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Message != "request failed" {
		t.Errorf("expected generic fallback message, got %q", apiErr.Message)
	}
}

func TestUploadDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("expected multipart body: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "policy.pdf" {
			t.Errorf("expected base filename, got %q", hdr.Filename)
		}
		json.NewEncoder(w).Encode(Document{ID: 11, Title: "policy.pdf", Status: "processing"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, func() string { return "t" })
	doc, err := c.UploadDocument(context.Background(), "/tmp/docs/policy.pdf", strings.NewReader("%PDF-1.7"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID != 11 || doc.Status != "processing" {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestBearerTokenAttached(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, func() string { return "secret" })
	if err := c.DeleteSession(context.Background(), 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Bearer secret" {
		t.Errorf("expected bearer header, got %q", got)
	}
}
