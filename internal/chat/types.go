package chat

import (
	"slices"
	"time"
)

// Conversation is the record a session is bound to.
type Conversation struct {
	ID            string    `json:"id"`
	PersonaID     string    `json:"character_id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	Topic         string    `json:"topic,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	BackgroundURL string    `json:"background_url,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Persona is the character the user talks to.
type Persona struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	IsDefault   bool     `json:"is_default"`
	Tags        []string `json:"tags,omitempty"`
}

func (p *Persona) clone() *Persona {
	if p == nil {
		return nil
	}
	c := *p
	c.Tags = slices.Clone(p.Tags)
	return &c
}

// DeliveryStatus tags a message with where it stands relative to the backend.
// The zero value is Confirmed so records read from a backend need no tagging.
type DeliveryStatus int

const (
	StatusConfirmed DeliveryStatus = iota
	StatusPending
	StatusFailed
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is one entry of a conversation. While Status is Pending or Failed,
// ID holds the client-generated temporary id.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Content        string         `json:"content"`
	IsUser         bool           `json:"isUser"`
	Timestamp      time.Time      `json:"timestamp"`
	Status         DeliveryStatus `json:"-"`
}

// Local reports whether the message only exists on this client.
func (m Message) Local() bool {
	return m.Status != StatusConfirmed
}

// Reply is the persona message produced for a user turn. Title is set when
// the backend renamed the conversation as a side effect.
type Reply struct {
	Message Message
	Title   string
}

// NewConversation describes a conversation to create.
type NewConversation struct {
	UserID    string
	PersonaID string
	Topic     string
}
