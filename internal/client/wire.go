package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"lingo/internal/chat"
	"lingo/internal/lookup"
)

// timestampLayouts covers what the backend emits: Python isoformat output
// with or without an offset, and plain RFC 3339.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// timestamp decodes backend times. Values without an offset are UTC.
type timestamp time.Time

func (t *timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		*t = timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*t = timestamp(parsed)
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

func (t timestamp) Time() time.Time { return time.Time(t) }

type conversationWire struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Topic            *string   `json:"topic"`
	Summary          *string   `json:"summary"`
	BackgroundURL    *string   `json:"background_url"`
	BackgroundURLAlt *string   `json:"backgroundUrl"`
	UserID           string    `json:"user_id"`
	CharacterID      string    `json:"character_id"`
	UpdatedAt        timestamp `json:"updated_at"`
}

func (w conversationWire) toConversation() *chat.Conversation {
	bg := deref(w.BackgroundURL)
	if bg == "" {
		bg = deref(w.BackgroundURLAlt)
	}
	return &chat.Conversation{
		ID:            w.ID,
		PersonaID:     w.CharacterID,
		UserID:        w.UserID,
		Title:         w.Title,
		Topic:         deref(w.Topic),
		Summary:       deref(w.Summary),
		BackgroundURL: bg,
		UpdatedAt:     w.UpdatedAt.Time(),
	}
}

type messageWire struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"isUser"`
	Timestamp timestamp `json:"timestamp"`
	Title     string    `json:"title,omitempty"`
}

func (w messageWire) toMessage(conversationID string) chat.Message {
	return chat.Message{
		ID:             w.ID,
		ConversationID: conversationID,
		Content:        w.Content,
		IsUser:         w.IsUser,
		Timestamp:      w.Timestamp.Time(),
		Status:         chat.StatusConfirmed,
	}
}

type characterWire struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Avatar      *string  `json:"avatar"`
	IsDefault   bool     `json:"isDefault"`
	Tags        []string `json:"tags"`
}

func (w characterWire) toPersona() chat.Persona {
	return chat.Persona{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		AvatarURL:   deref(w.Avatar),
		IsDefault:   w.IsDefault,
		Tags:        w.Tags,
	}
}

type wordcardWire struct {
	ID            string    `json:"id,omitempty"`
	Word          string    `json:"word"`
	Pronunciation *string   `json:"pronunciation"`
	POS           *string   `json:"pos"`
	Context       *string   `json:"context"`
	CreatedAt     timestamp `json:"created_at"`
}

func (w wordcardWire) toFavorite() lookup.Favorite {
	return lookup.Favorite{
		Word:          w.Word,
		Pronunciation: deref(w.Pronunciation),
		PartOfSpeech:  deref(w.POS),
		Context:       deref(w.Context),
		CreatedAt:     w.CreatedAt.Time(),
	}
}

type wordcardCreate struct {
	Word          string `json:"word"`
	Pronunciation string `json:"pronunciation,omitempty"`
	POS           string `json:"pos,omitempty"`
	Context       string `json:"context,omitempty"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
