package api

import (
	"context"
	"net/http"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

type ChatRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id"`
}

type ChatResponse struct {
	ConversationID   string           `json:"conversation_id"`
	AssistantMessage string           `json:"assistant_message"`
	ToolCalls        []model.ToolCall `json:"tool_calls"`
}

type ConversationMessage struct {
	ID        string          `json:"id"`
	Role      model.ChatRole  `json:"role"`
	Content   string          `json:"content"`
	CreatedAt model.Timestamp `json:"created_at"`
}

// Chat sends one user message. An empty conversationID starts a new
// conversation.
func (c *Client) Chat(ctx context.Context, userID, message, conversationID string) (ChatResponse, error) {
	req := ChatRequest{Message: message}
	if conversationID != "" {
		req.ConversationID = &conversationID
	}

	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, userPath(userID, "chat"), nil, req, &resp); err != nil {
		return ChatResponse{}, err
	}
	return resp, nil
}

func (c *Client) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	var resp struct {
		Conversations []model.Conversation `json:"conversations"`
		Total         int                  `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, userPath(userID, "conversations"), nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Conversations == nil {
		resp.Conversations = []model.Conversation{}
	}
	return resp.Conversations, nil
}

func (c *Client) ConversationMessages(ctx context.Context, userID, conversationID string) ([]ConversationMessage, error) {
	var resp struct {
		Messages []ConversationMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, userPath(userID, "conversations", conversationID, "messages"), nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Messages == nil {
		resp.Messages = []ConversationMessage{}
	}
	return resp.Messages, nil
}
