package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Joseda-hg/lazytodo/internal/api"
	"github.com/Joseda-hg/lazytodo/internal/db"
	"github.com/Joseda-hg/lazytodo/internal/events"
	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/session"
)

const (
	FallbackReply     = "Sorry, I couldn't generate a response."
	UnreachableReply  = "Unable to connect to the server. Please ensure the backend is running."
	SessionReply      = "Your session has expired. Please sign in again."
	GenericErrorReply = "Sorry, I encountered an error. Please try again."
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a message is already being sent")
)

type Backend interface {
	Chat(ctx context.Context, userID, message, conversationID string) (api.ChatResponse, error)
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)
	ConversationMessages(ctx context.Context, userID, conversationID string) ([]api.ConversationMessage, error)
}

type Identity interface {
	CurrentUserID(ctx context.Context) (string, error)
}

type Publisher interface {
	Publish(topic string)
}

type History interface {
	AddHistory(ctx context.Context, taskID, eventType, details string) (model.HistoryEntry, error)
}

type Options struct {
	Publisher Publisher
	History   History
	Logger    *log.Logger
}

// Panel holds one chat transcript with the assistant.
type Panel struct {
	backend  Backend
	identity Identity
	opts     Options
	logger   *log.Logger
	now      func() time.Time

	mu             sync.Mutex
	conversationID string
	localID        string
	messages       []model.ChatMessage
	sending        bool
	listeners      []func()
}

func New(backend Backend, identity Identity, opts Options) *Panel {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Panel{
		backend:  backend,
		identity: identity,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		localID:  uuid.NewString(),
		messages: []model.ChatMessage{},
	}
}

func (p *Panel) OnChange(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Panel) notify() {
	p.mu.Lock()
	listeners := append([]func(){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (p *Panel) Transcript() []model.ChatMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ChatMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// ConversationID is empty until the server has assigned one.
func (p *Panel) ConversationID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conversationID
}

func (p *Panel) Sending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sending
}

// Reset starts a new conversation with an empty transcript.
func (p *Panel) Reset() {
	p.mu.Lock()
	p.conversationID = ""
	p.localID = uuid.NewString()
	p.messages = []model.ChatMessage{}
	p.mu.Unlock()
	p.notify()
}

// Send posts text to the assistant and appends both sides to the
// transcript. Failures become an assistant message marked Failed; the
// error is returned as well.
func (p *Panel) Send(ctx context.Context, text string) (model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ChatMessage{}, ErrEmptyMessage
	}

	p.mu.Lock()
	if p.sending {
		p.mu.Unlock()
		return model.ChatMessage{}, ErrBusy
	}
	p.sending = true
	conversationID := p.conversationID
	p.messages = append(p.messages, p.messageLocked(model.RoleUser, text))
	p.mu.Unlock()
	p.notify()

	resp, err := p.send(ctx, text, conversationID)

	p.mu.Lock()
	p.sending = false
	var reply model.ChatMessage
	if err != nil {
		reply = p.messageLocked(model.RoleAssistant, replyForError(err))
		reply.Failed = true
	} else {
		if resp.ConversationID != "" && p.conversationID == "" {
			p.conversationID = resp.ConversationID
		}
		content := resp.AssistantMessage
		if strings.TrimSpace(content) == "" {
			content = FallbackReply
		}
		reply = p.messageLocked(model.RoleAssistant, content)
		reply.ToolCalls = resp.ToolCalls
	}
	p.messages = append(p.messages, reply)
	p.mu.Unlock()

	if err != nil {
		p.notify()
		return reply, err
	}

	if len(resp.ToolCalls) > 0 {
		p.recordToolCalls(ctx, resp.ToolCalls)
		if p.opts.Publisher != nil {
			p.opts.Publisher.Publish(events.TopicTasksUpdated)
		}
	}
	p.notify()
	return reply, nil
}

func (p *Panel) send(ctx context.Context, text, conversationID string) (api.ChatResponse, error) {
	userID, err := p.identity.CurrentUserID(ctx)
	if err != nil {
		return api.ChatResponse{}, err
	}
	return p.backend.Chat(ctx, userID, text, conversationID)
}

func (p *Panel) messageLocked(role model.ChatRole, content string) model.ChatMessage {
	conversationID := p.conversationID
	if conversationID == "" {
		conversationID = p.localID
	}
	return model.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      p.now(),
	}
}

func (p *Panel) recordToolCalls(ctx context.Context, calls []model.ToolCall) {
	if p.opts.History == nil {
		return
	}
	for _, call := range calls {
		params, err := json.Marshal(call.Params)
		if err != nil {
			params = []byte("{}")
		}
		taskID, _ := call.Params["task_id"].(string)
		details := fmt.Sprintf("chat: %s %s", call.Name, params)
		if _, err := p.opts.History.AddHistory(ctx, taskID, db.EventChat, details); err != nil {
			p.logger.Printf("chat: record tool call %s: %v", call.Name, err)
		}
	}
}

func (p *Panel) Conversations(ctx context.Context) ([]model.Conversation, error) {
	userID, err := p.identity.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	return p.backend.ListConversations(ctx, userID)
}

// Resume replaces the transcript with a stored conversation and continues
// it.
func (p *Panel) Resume(ctx context.Context, conversationID string) error {
	userID, err := p.identity.CurrentUserID(ctx)
	if err != nil {
		return err
	}
	stored, err := p.backend.ConversationMessages(ctx, userID, conversationID)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", conversationID, err)
	}

	messages := make([]model.ChatMessage, 0, len(stored))
	for _, msg := range stored {
		messages = append(messages, model.ChatMessage{
			ID:             msg.ID,
			ConversationID: conversationID,
			Role:           msg.Role,
			Content:        msg.Content,
			CreatedAt:      msg.CreatedAt.Time,
		})
	}

	p.mu.Lock()
	p.conversationID = conversationID
	p.messages = messages
	p.mu.Unlock()
	p.notify()
	return nil
}

func replyForError(err error) string {
	var apiErr *api.Error
	switch {
	case api.IsUnreachable(err):
		return UnreachableReply
	case errors.Is(err, session.ErrNoSession), api.IsUnauthorized(err):
		return SessionReply
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case err != nil && err.Error() != "":
		return err.Error()
	}
	return GenericErrorReply
}
