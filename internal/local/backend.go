package local

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"lingo/internal/auth"
	"lingo/internal/chat"
	"lingo/internal/logging"
	"lingo/internal/lookup"
)

// ErrInvalidCredentials is returned by Login for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Backend serves conversations from a Store and persona turns from a Generator.
type Backend struct {
	*Store
	gen Generator
}

// NewBackend combines store and gen.
func NewBackend(store *Store, gen Generator) *Backend {
	return &Backend{Store: store, gen: gen}
}

var (
	_ chat.Backend       = (*Backend)(nil)
	_ lookup.Favorites   = (*Backend)(nil)
	_ auth.Authenticator = (*Backend)(nil)
)

// SaveMessage stores a user message.
func (b *Backend) SaveMessage(ctx context.Context, conversationID, content string) (chat.Message, error) {
	return b.AppendMessage(ctx, conversationID, content, true)
}

// turnContext loads what a prompt needs. When content is not the last stored
// user message (its save failed), it is appended to the transcript only.
func (b *Backend) turnContext(ctx context.Context, conversationID, content string) (*chat.Conversation, *chat.Persona, []chat.Message, error) {
	conv, err := b.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, nil, err
	}
	persona, err := b.GetPersona(ctx, conv.PersonaID)
	if err != nil {
		return nil, nil, nil, err
	}
	history, err := b.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, nil, nil, err
	}
	if content != "" {
		if n := len(history); n == 0 || !history[n-1].IsUser || history[n-1].Content != content {
			history = append(history, chat.Message{Content: content, IsUser: true})
		}
	}
	return conv, persona, history, nil
}

// FetchReply generates and stores the persona's answer. After the first
// exchange of a conversation that still has its default title, a title is
// generated as well.
func (b *Backend) FetchReply(ctx context.Context, conversationID, content string) (chat.Reply, error) {
	conv, persona, history, err := b.turnContext(ctx, conversationID, content)
	if err != nil {
		return chat.Reply{}, err
	}

	answer, err := b.gen.Generate(ctx, replyPrompt(persona, conv.Topic, history))
	if err != nil {
		return chat.Reply{}, fmt.Errorf("generate reply: %w", err)
	}
	msg, err := b.AppendMessage(ctx, conversationID, answer, false)
	if err != nil {
		return chat.Reply{}, err
	}

	reply := chat.Reply{Message: msg}
	if conv.Title == defaultTitle(persona.Name) && !hasPersonaTurn(history) {
		reply.Title = b.retitle(ctx, conv, persona, append(history, msg))
	}
	return reply, nil
}

func hasPersonaTurn(history []chat.Message) bool {
	for _, m := range history {
		if !m.IsUser {
			return true
		}
	}
	return false
}

// retitle is best effort: failures keep the current title.
func (b *Backend) retitle(ctx context.Context, conv *chat.Conversation, persona *chat.Persona, history []chat.Message) string {
	log := logging.FromContext(ctx)
	answer, err := b.gen.Generate(ctx, titlePrompt(persona, conv.Topic, history))
	if err != nil {
		log.Warn("title generation failed", "error", err)
		return ""
	}
	title := cleanTitle(answer)
	if title == "" || title == conv.Title {
		return ""
	}
	if err := b.RenameConversation(ctx, conv.ID, title); err != nil {
		log.Warn("rename conversation failed", "error", err)
		return ""
	}
	return title
}

// FetchOptions asks the model for follow-up questions. An unparseable
// answer yields DefaultOptions.
func (b *Backend) FetchOptions(ctx context.Context, conversationID, latestPersonaContent string) ([]string, error) {
	conv, persona, history, err := b.turnContext(ctx, conversationID, "")
	if err != nil {
		return nil, err
	}
	if len(history) == 0 && latestPersonaContent != "" {
		history = []chat.Message{{Content: latestPersonaContent}}
	}

	answer, err := b.gen.Generate(ctx, optionsPrompt(persona, conv.Topic, history))
	if err != nil {
		return nil, fmt.Errorf("generate options: %w", err)
	}
	opts, ok := parseOptions(answer)
	if !ok {
		logging.FromContext(ctx).Debug("options answer not a JSON array", "answer", truncate(answer, 200))
		return append([]string(nil), DefaultOptions...), nil
	}
	return opts, nil
}

// Login checks credentials against the users table.
func (b *Backend) Login(ctx context.Context, username, password string) (auth.User, error) {
	u, err := b.findUser(ctx, strings.TrimSpace(username))
	if err != nil {
		return auth.User{}, err
	}
	if u == nil {
		return auth.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.hash), []byte(password)); err != nil {
		return auth.User{}, ErrInvalidCredentials
	}
	return auth.User{ID: u.id, Username: u.username, Email: u.email}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
