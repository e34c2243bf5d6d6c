package tui

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ragdesk-ai/ragdesk/internal/api"
	"github.com/ragdesk-ai/ragdesk/internal/chat"
	"github.com/ragdesk-ai/ragdesk/internal/config"
)

type stubBackend struct{}

func (stubBackend) ListSessions(ctx context.Context) ([]api.Session, error) {
	return []api.Session{{ID: 1, Title: "New Chat"}}, nil
}

func (stubBackend) CreateSession(ctx context.Context) (api.Session, error) {
	return api.Session{ID: 2, Title: "New Chat"}, nil
}

func (stubBackend) RenameSession(ctx context.Context, id int64, title string) error { return nil }

func (stubBackend) DeleteSession(ctx context.Context, id int64) error { return nil }

func (stubBackend) History(ctx context.Context, sessionID int64) ([]api.Exchange, error) {
	return nil, nil
}

func (stubBackend) Ask(ctx context.Context, req api.AskRequest) (api.AskResponse, error) {
	return api.AskResponse{Answer: "the answer", QueryID: 7}, nil
}

func (stubBackend) Feedback(ctx context.Context, queryID int64, marker string) error { return nil }

func newTestREPL(t *testing.T, input string) (*PlainREPL, *bytes.Buffer) {
	t.Helper()
	prefs := config.NewPrefsStore(filepath.Join(t.TempDir(), "prefs.yaml"))
	store := chat.NewStore(stubBackend{}, prefs, nil)
	var out bytes.Buffer
	return &PlainREPL{
		store:   store,
		prefs:   prefs,
		scanner: bufio.NewScanner(strings.NewReader(input)),
		out:     &out,
		width:   80,
	}, &out
}

func TestPlainREPL_AnswersThenReturnsAtEOF(t *testing.T) {
	repl, out := newTestREPL(t, "what is the refund policy\n")
	if err := repl.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "the answer") {
		t.Fatalf("expected answer in output, got %q", out.String())
	}
}

func TestPlainREPL_SignalForwarderExitsWithRun(t *testing.T) {
	before := runtime.NumGoroutine()

	repl, _ := newTestREPL(t, "")
	if err := repl.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines did not return to baseline: %d, started with %d",
				runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
