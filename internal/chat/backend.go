package chat

import (
	"context"
	"errors"
)

// ErrNotFound is returned by backends when a conversation or persona does not exist.
var ErrNotFound = errors.New("not found")

// Backend is the conversation data adapter the orchestrator drives.
// Implementations must be safe for concurrent use.
type Backend interface {
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	GetPersona(ctx context.Context, id string) (*Persona, error)
	ListPersonas(ctx context.Context) ([]Persona, error)
	CreateConversation(ctx context.Context, req NewConversation) (*Conversation, error)

	// SaveMessage stores a user message and returns the confirmed record.
	SaveMessage(ctx context.Context, conversationID, content string) (Message, error)
	// FetchReply produces the persona's answer to content.
	FetchReply(ctx context.Context, conversationID, content string) (Reply, error)
	// FetchOptions suggests follow-ups for the latest persona message.
	FetchOptions(ctx context.Context, conversationID, latestPersonaContent string) ([]string, error)
}
