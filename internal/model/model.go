package model

import "time"

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

type Task struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Completed   bool         `json:"completed"`
	Priority    Priority     `json:"priority"`
	DueDate     string       `json:"due_date"`
	Tags        []TagSummary `json:"tags"`
	CreatedAt   Timestamp    `json:"created_at"`
	UpdatedAt   Timestamp    `json:"updated_at"`
}

// Due parses DueDate, which the backend sends as YYYY-MM-DD.
func (t Task) Due() (time.Time, bool) {
	if t.DueDate == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(DateLayout, t.DueDate)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

type TagSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type Tag struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	TaskCount int       `json:"task_count"`
	CreatedAt Timestamp `json:"created_at"`
}

type TaskPage struct {
	Tasks  []Task `json:"tasks"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type HistoryEntry struct {
	ID        int64
	TaskID    string
	EventType string
	Details   string
	CreatedAt time.Time
}

// View is a named filter and sort preset kept on this machine.
type View struct {
	ID        int64
	Name      string
	Filter    Filter
	Sort      Sort
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ToolCall struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
	Result any            `json:"result,omitempty"`
}

type ChatMessage struct {
	ID             string
	ConversationID string
	Role           ChatRole
	Content        string
	ToolCalls      []ToolCall
	Failed         bool
	CreatedAt      time.Time
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// Cookie is the request-time copy of the session token read by route guards.
type Cookie struct {
	Name      string
	Value     string
	Path      string
	ExpiresAt *time.Time
}

func (c Cookie) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}
