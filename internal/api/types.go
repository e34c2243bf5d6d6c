package api

import "time"

// Session is one conversation thread as returned by the backend.
// The list endpoint orders sessions by updated_at descending and joins in
// the latest exchange's question as a preview.
type Session struct {
	ID            int64      `json:"id"`
	Title         string     `json:"session_title"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// Exchange is one stored question/answer pair from a session's history.
type Exchange struct {
	ID        int64     `json:"id"`
	Question  string    `json:"query"`
	Answer    string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
	SessionID int64     `json:"session_id"`
	QueryID   int64     `json:"query_id,omitempty"`
	Feedback  string    `json:"feedback,omitempty"` // "up" | "down" | ""
}

// Citation is a retrieval source attached to an answer.
type Citation struct {
	ID             string  `json:"id"`
	Filename       string  `json:"filename"`
	Page           int     `json:"page"`
	Section        string  `json:"section,omitempty"`
	URL            string  `json:"url,omitempty"`
	Score          float64 `json:"score"`
	CollectionID   int64   `json:"collection_id"`
	CollectionName string  `json:"collection_name"`
	Snippet        string  `json:"snippet"`
}

// AskRequest carries a question plus the retrieval/generation tuning snapshot.
type AskRequest struct {
	Question    string  `json:"question"`
	SessionID   int64   `json:"session_id"`
	TopK        int     `json:"top_k"`
	Temperature float64 `json:"temperature"`
	MMRLambda   float64 `json:"mmr_lambda"`
}

// AskResponse is the backend's answer to a question.
// QueryID correlates the answer with later feedback submissions.
type AskResponse struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Followups []string   `json:"followups,omitempty"`
	QueryID   int64      `json:"query_id"`
}

// Feedback markers accepted by the backend.
const (
	FeedbackUp   = "up"
	FeedbackDown = "down"
)

// User is the account record returned alongside a login token.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// LoginResponse is the bearer token and user info returned after login.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// RemotePrefs is the server-side copy of the user's tuning preferences.
type RemotePrefs struct {
	Temperature float64 `json:"temperature"`
	TopK        int     `json:"top_k"`
	MMRLambda   float64 `json:"mmr_lambda"`
	Theme       string  `json:"theme"`
}

// Document is the record returned after a document upload.
type Document struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Pages     int       `json:"pages,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
