package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"lingo/internal/chat"
)

// GetConversation fetches a conversation record.
func (c *Client) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	var w conversationWire
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/conversations/" + url.PathEscape(id)}, &w); err != nil {
		return nil, err
	}
	return w.toConversation(), nil
}

// ListMessages returns the conversation history, oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var ws []messageWire
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &ws); err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(ws))
	for _, w := range ws {
		msgs = append(msgs, w.toMessage(conversationID))
	}
	return msgs, nil
}

// GetPersona fetches a character.
func (c *Client) GetPersona(ctx context.Context, id string) (*chat.Persona, error) {
	var w characterWire
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/characters/" + url.PathEscape(id)}, &w); err != nil {
		return nil, err
	}
	p := w.toPersona()
	return &p, nil
}

// ListPersonas returns the built-in characters.
func (c *Client) ListPersonas(ctx context.Context) ([]chat.Persona, error) {
	var ws []characterWire
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/characters/default"}, &ws); err != nil {
		return nil, err
	}
	out := make([]chat.Persona, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.toPersona())
	}
	return out, nil
}

// CreateConversation starts a conversation with a persona.
func (c *Client) CreateConversation(ctx context.Context, req chat.NewConversation) (*chat.Conversation, error) {
	body := map[string]any{"character_id": req.PersonaID}
	if req.Topic != "" {
		body["topic"] = req.Topic
	}
	var w conversationWire
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/conversations/",
		query:  url.Values{"user_id": {req.UserID}},
		body:   body,
	}, &w)
	if err != nil {
		return nil, err
	}
	return w.toConversation(), nil
}

// SaveMessage stores a user message.
func (c *Client) SaveMessage(ctx context.Context, conversationID, content string) (chat.Message, error) {
	var w messageWire
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/messages/save",
		body:   map[string]string{"content": content, "conversation_id": conversationID},
	}, &w)
	if err != nil {
		return chat.Message{}, err
	}
	return w.toMessage(conversationID), nil
}

// FetchReply asks the backend for the persona's answer.
func (c *Client) FetchReply(ctx context.Context, conversationID, content string) (chat.Reply, error) {
	var w messageWire
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/ai/get-ai-response",
		body:   map[string]string{"conversation_id": conversationID, "message": content},
	}, &w)
	if err != nil {
		return chat.Reply{}, err
	}
	msg := w.toMessage(conversationID)
	msg.IsUser = false
	return chat.Reply{Message: msg, Title: strings.TrimSpace(w.Title)}, nil
}

// FetchOptions asks for follow-up suggestions. The backend derives them from
// the stored history, so latestPersonaContent is not sent.
func (c *Client) FetchOptions(ctx context.Context, conversationID, latestPersonaContent string) ([]string, error) {
	var resp struct {
		Options []string `json:"options"`
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/ai/get-ai-options",
		body:   map[string]string{"conversation_id": conversationID},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Options, nil
}
