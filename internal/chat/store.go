// Package chat owns conversation sessions and the active message log.
// The Store is the single source of truth: the view layer dispatches
// intents and observes the resulting state, never mutating it directly.
//
// A send runs as an explicit state machine: Idle -> Sending on submit,
// with the user message appended optimistically, and Sending -> Idle on
// success, cancellation or failure. At most one send is in flight per
// Store; a new send while one is pending is rejected, and StopGeneration
// cancels the pending one via its cancellation handle.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragdesk-ai/ragdesk/internal/api"
	"github.com/ragdesk-ai/ragdesk/internal/config"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the visible conversation log. Messages are
// append-only from the Store's perspective; history loaded from the backend
// is installed as a contiguous ordered prefix, never interleaved.
type Message struct {
	ID        string
	Role      Role
	Text      string
	CreatedAt time.Time
	Citations []api.Citation
	Followups []string
	Feedback  string // "", api.FeedbackUp or api.FeedbackDown
	QueryID   int64  // correlation id for feedback; 0 = not submittable
}

// Backend is the slice of the API client the Store depends on.
type Backend interface {
	ListSessions(ctx context.Context) ([]api.Session, error)
	CreateSession(ctx context.Context) (api.Session, error)
	RenameSession(ctx context.Context, id int64, title string) error
	DeleteSession(ctx context.Context, id int64) error
	History(ctx context.Context, sessionID int64) ([]api.Exchange, error)
	Ask(ctx context.Context, req api.AskRequest) (api.AskResponse, error)
	Feedback(ctx context.Context, queryID int64, marker string) error
}

var (
	ErrNoSession        = errors.New("no active session")
	ErrBusy             = errors.New("another request is in progress")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrEmptyTitle       = errors.New("title is empty")
	ErrUnknownSession   = errors.New("unknown session")
	ErrNothingToResend  = errors.New("no user message to regenerate")
	ErrNoFeedbackTarget = errors.New("message cannot take feedback")
)

// User-facing messages for the two special-cased ask failures.
const (
	msgNoContent = "No documents have been indexed for you yet. Upload a document or ask for access to a collection first."
	msgNoAccess  = "You don't have access to any document collection. Ask an administrator to grant you one."
	msgAuth      = "Your sign-in has expired. Run `ragdesk login` and try again."
	msgGeneric   = "The request failed. Check your connection and try again."
)

// Store coordinates sessions, the active message log and the send lifecycle.
type Store struct {
	backend Backend
	prefs   *config.PrefsStore
	log     *slog.Logger

	now   func() time.Time
	newID func() string

	mu         sync.Mutex
	sessions   []api.Session
	activeID   int64 // 0 = no active session
	messages   []Message
	loading    bool
	sending    bool
	cancelSend context.CancelFunc
	sendErr    string
}

// NewStore creates a Store. A nil logger discards all log output.
func NewStore(backend Backend, prefs *config.PrefsStore, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Store{
		backend: backend,
		prefs:   prefs,
		log:     log,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// ── Observed state ──────────────────────────────────────────────────────────

// Sessions returns a copy of the session list, most recently updated first.
func (s *Store) Sessions() []api.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sessions)
}

// Active returns the active session, if any.
func (s *Store) Active() (api.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ID == s.activeID {
			return sess, true
		}
	}
	return api.Session{}, false
}

// Messages returns a copy of the active session's message log.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Sending reports whether a send is in flight.
func (s *Store) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Loading reports whether a session list or history load is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// SendError returns the user-visible error of the last failed send, or "".
func (s *Store) SendError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendErr
}

// ClearSendError dismisses the current send error banner.
func (s *Store) ClearSendError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = ""
}

// ── Session lifecycle ───────────────────────────────────────────────────────

// LoadSessions fetches the caller's session list. An empty account gets a
// fresh session created as a side effect so there is always an active
// conversation. The most recently relevant session becomes active and its
// history is loaded eagerly. Failures degrade to an empty state and are
// logged only; the chat surface must stay usable.
func (s *Store) LoadSessions(ctx context.Context) {
	s.mu.Lock()
	if s.loading || s.sending {
		s.mu.Unlock()
		return
	}
	s.loading = true
	s.mu.Unlock()

	sessions, err := s.backend.ListSessions(ctx)
	if err != nil {
		s.log.Warn("listing sessions failed", "error", err)
		s.applyEmptyState()
		return
	}

	if len(sessions) == 0 {
		created, err := s.backend.CreateSession(ctx)
		if err != nil {
			s.log.Warn("creating initial session failed", "error", err)
			s.applyEmptyState()
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.sessions = []api.Session{created}
		s.activeID = created.ID
		s.messages = nil
		s.loading = false
		return
	}

	// The backend orders by updated_at descending; the head is the most
	// recently relevant session.
	active := sessions[0]
	msgs, err := s.LoadMessages(ctx, active.ID)
	if err != nil {
		s.log.Warn("loading history failed", "session_id", active.ID, "error", err)
		msgs = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = sessions
	s.activeID = active.ID
	s.messages = msgs
	s.loading = false
}

func (s *Store) applyEmptyState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = nil
	s.activeID = 0
	s.messages = nil
	s.loading = false
}

// CreateSession requests a new session, inserts it at the head of the list,
// makes it active and clears the visible message log.
func (s *Store) CreateSession(ctx context.Context) error {
	s.mu.Lock()
	if s.loading || s.sending {
		s.mu.Unlock()
		return ErrBusy
	}
	s.loading = true
	s.mu.Unlock()

	created, err := s.backend.CreateSession(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	s.sessions = append([]api.Session{created}, s.sessions...)
	s.activeID = created.ID
	s.messages = nil
	s.sendErr = ""
	return nil
}

// SelectSession makes a known session active and (re)loads its history,
// replacing whatever was displayed. A failed history load degrades to an
// empty log (logged only).
func (s *Store) SelectSession(ctx context.Context, id int64) error {
	s.mu.Lock()
	if s.loading || s.sending {
		s.mu.Unlock()
		return ErrBusy
	}
	if !s.knownLocked(id) {
		s.mu.Unlock()
		return ErrUnknownSession
	}
	s.loading = true
	s.mu.Unlock()

	msgs, err := s.LoadMessages(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.activeID = id
	s.sendErr = ""
	if err != nil {
		s.log.Warn("loading history failed", "session_id", id, "error", err)
		s.messages = nil
		return nil
	}
	s.messages = msgs
	return nil
}

// RenameSession persists a new title remotely first, then updates local
// state. Not optimistic: on remote failure nothing local has changed and
// the error propagates to the caller.
func (s *Store) RenameSession(ctx context.Context, id int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	s.mu.Lock()
	if !s.knownLocked(id) {
		s.mu.Unlock()
		return ErrUnknownSession
	}
	s.mu.Unlock()

	if err := s.backend.RenameSession(ctx, id, title); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions[i].Title = title
		}
	}
	return nil
}

// DeleteSession persists the deletion remotely first, then removes the list
// entry. Deleting the active session clears the active pointer and the
// message log.
func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	s.mu.Lock()
	if !s.knownLocked(id) {
		s.mu.Unlock()
		return ErrUnknownSession
	}
	if s.sending && id == s.activeID {
		s.mu.Unlock()
		return ErrBusy
	}
	s.mu.Unlock()

	if err := s.backend.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = slices.DeleteFunc(s.sessions, func(sess api.Session) bool {
		return sess.ID == id
	})
	if s.activeID == id {
		s.activeID = 0
		s.messages = nil
		s.sendErr = ""
	}
	return nil
}

func (s *Store) knownLocked(id int64) bool {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return true
		}
	}
	return false
}

// ── Messages ────────────────────────────────────────────────────────────────

// LoadMessages fetches a session's stored history and expands each exchange
// into an ordered user/assistant message pair, preserving server-assigned
// identifiers and previously recorded feedback. It does not mutate the Store.
func (s *Store) LoadMessages(ctx context.Context, sessionID int64) ([]Message, error) {
	entries, err := s.backend.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(entries)*2)
	for _, e := range entries {
		msgs = append(msgs,
			Message{
				ID:        fmt.Sprintf("%d-q", e.ID),
				Role:      RoleUser,
				Text:      e.Question,
				CreatedAt: e.CreatedAt,
			},
			Message{
				ID:        fmt.Sprintf("%d-a", e.ID),
				Role:      RoleAssistant,
				Text:      e.Answer,
				CreatedAt: e.CreatedAt,
				QueryID:   e.QueryID,
				Feedback:  e.Feedback,
			},
		)
	}
	return msgs, nil
}

// SendMessage appends the user message optimistically and asks the backend.
// It blocks until the answer arrives, the send fails, or StopGeneration
// cancels it. A send while another is pending returns ErrBusy.
func (s *Store) SendMessage(ctx context.Context, text string) error {
	return s.send(ctx, text, true)
}

// Regenerate re-issues the most recent user message without appending it to
// the log again.
func (s *Store) Regenerate(ctx context.Context) error {
	s.mu.Lock()
	var text string
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleUser {
			text = s.messages[i].Text
			break
		}
	}
	s.mu.Unlock()
	if text == "" {
		return ErrNothingToResend
	}
	return s.send(ctx, text, false)
}

func (s *Store) send(ctx context.Context, text string, appendUser bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.activeID == 0 {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.sending || s.loading {
		s.mu.Unlock()
		return ErrBusy
	}
	sendCtx, cancel := context.WithCancel(ctx)
	s.sending = true
	s.cancelSend = cancel
	s.sendErr = ""
	sessionID := s.activeID
	if appendUser {
		s.messages = append(s.messages, Message{
			ID:        s.newID(),
			Role:      RoleUser,
			Text:      text,
			CreatedAt: s.now(),
		})
	}
	s.mu.Unlock()

	p := s.prefs.Get()
	resp, err := s.backend.Ask(sendCtx, api.AskRequest{
		Question:    text,
		SessionID:   sessionID,
		TopK:        p.TopK,
		Temperature: p.Temperature,
		MMRLambda:   p.MMRLambda,
	})
	cancelled := sendCtx.Err() != nil
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = false
	s.cancelSend = nil

	if err != nil {
		if cancelled || errors.Is(err, context.Canceled) {
			// Deliberate abort: no assistant message, no error surfaced.
			s.log.Debug("send cancelled", "session_id", sessionID)
			return nil
		}
		// The optimistic user message stays in the log; failed sends are
		// not rolled back.
		s.sendErr = sendFailureMessage(err)
		s.log.Warn("send failed", "session_id", sessionID, "error", err)
		return err
	}

	now := s.now()
	s.messages = append(s.messages, Message{
		ID:        s.newID(),
		Role:      RoleAssistant,
		Text:      resp.Answer,
		CreatedAt: now,
		Citations: resp.Citations,
		Followups: resp.Followups,
		QueryID:   resp.QueryID,
	})
	for i := range s.sessions {
		if s.sessions[i].ID != sessionID {
			continue
		}
		if s.sessions[i].Title == PlaceholderTitle {
			s.sessions[i].Title = deriveTitle(text)
		}
		t := now
		s.sessions[i].LastMessage = text
		s.sessions[i].LastMessageAt = &t
		s.sessions[i].UpdatedAt = now
	}
	return nil
}

// StopGeneration cancels the in-flight send, if any. The blocked SendMessage
// call returns the store to Idle without appending a partial result or
// recording an error.
func (s *Store) StopGeneration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelSend != nil {
		s.cancelSend()
		s.cancelSend = nil
	}
}

// SubmitFeedback flips a message's feedback marker locally, then records it
// remotely via the message's correlation id. Last write wins: a remote
// failure is reported without reverting the local marker.
func (s *Store) SubmitFeedback(ctx context.Context, messageID, marker string) error {
	if marker != api.FeedbackUp && marker != api.FeedbackDown {
		return fmt.Errorf("invalid feedback marker %q", marker)
	}

	s.mu.Lock()
	var queryID int64
	for i := range s.messages {
		if s.messages[i].ID != messageID {
			continue
		}
		if s.messages[i].QueryID == 0 {
			break
		}
		s.messages[i].Feedback = marker
		queryID = s.messages[i].QueryID
		break
	}
	s.mu.Unlock()

	if queryID == 0 {
		return ErrNoFeedbackTarget
	}
	if err := s.backend.Feedback(ctx, queryID, marker); err != nil {
		s.log.Warn("feedback submission failed", "query_id", queryID, "error", err)
		return fmt.Errorf("submit feedback: %w", err)
	}
	return nil
}

// sendFailureMessage maps a send error to the user-visible banner text.
func sendFailureMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusNotFound:
			return msgNoContent
		case http.StatusForbidden:
			return msgNoAccess
		case http.StatusUnauthorized:
			return msgAuth
		}
		// Unmapped backend errors keep their message and correlation id.
		return apiErr.Error()
	}
	return msgGeneric
}
