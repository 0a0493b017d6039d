package api

import (
	"context"
	"fmt"
)

// Roles used in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"    yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// ChatRequest is the chat endpoint payload.
type ChatRequest struct {
	PDFID               string    `json:"pdf_id"`
	Message             string    `json:"message"`
	ConversationHistory []Message `json:"conversation_history"`
}

type chatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
}

// Chat asks a question about the document the server knows as req.PDFID.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if req.ConversationHistory == nil {
		req.ConversationHistory = []Message{}
	}

	var resp chatResponse
	if err := c.postJSON(ctx, "/api/chat/", req, &resp); err != nil {
		return "", err
	}
	if resp.Response == "" {
		return "", fmt.Errorf("chat: %w: empty response", ErrMalformedResponse)
	}
	return resp.Response, nil
}
