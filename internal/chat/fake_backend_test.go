package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeBackend is an in-memory Backend whose calls can be intercepted.
type fakeBackend struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	personas      map[string]*Persona
	messages      map[string][]Message

	beforeGetConversation func(ctx context.Context, id string) error
	save                  func(ctx context.Context, convID, content string) (Message, error)
	reply                 func(ctx context.Context, convID, content string) (Reply, error)
	options               func(ctx context.Context, convID, latest string) ([]string, error)

	replyCalls   []string
	optionsCalls []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		conversations: map[string]*Conversation{},
		personas:      map[string]*Persona{},
		messages:      map[string][]Message{},
	}
}

func (f *fakeBackend) addConversation(id, personaID, personaName string, history ...Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[id] = &Conversation{ID: id, PersonaID: personaID, Title: "Chat with " + personaName, UpdatedAt: t0}
	f.personas[personaID] = &Persona{ID: personaID, Name: personaName}
	f.messages[id] = history
}

func (f *fakeBackend) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if f.beforeGetConversation != nil {
		if err := f.beforeGetConversation(ctx, id); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, id string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages[id]...), nil
}

func (f *fakeBackend) GetPersona(ctx context.Context, id string) (*Persona, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.personas[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.clone(), nil
}

func (f *fakeBackend) ListPersonas(ctx context.Context) ([]Persona, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Persona
	for _, p := range f.personas {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeBackend) CreateConversation(ctx context.Context, req NewConversation) (*Conversation, error) {
	return nil, errors.New("not supported")
}

func (f *fakeBackend) SaveMessage(ctx context.Context, convID, content string) (Message, error) {
	if f.save != nil {
		return f.save(ctx, convID, content)
	}
	return Message{ID: "m-" + content, ConversationID: convID, Content: content, IsUser: true, Timestamp: t0}, nil
}

func (f *fakeBackend) FetchReply(ctx context.Context, convID, content string) (Reply, error) {
	f.mu.Lock()
	f.replyCalls = append(f.replyCalls, content)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(ctx, convID, content)
	}
	return Reply{Message: Message{ID: "r-" + content, Content: fmt.Sprintf("reply to %s", content), Timestamp: t0}}, nil
}

func (f *fakeBackend) FetchOptions(ctx context.Context, convID, latest string) ([]string, error) {
	f.mu.Lock()
	f.optionsCalls = append(f.optionsCalls, latest)
	f.mu.Unlock()
	if f.options != nil {
		return f.options(ctx, convID, latest)
	}
	return nil, nil
}

func (f *fakeBackend) replies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.replyCalls...)
}

func (f *fakeBackend) optionRequests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.optionsCalls...)
}

// gate blocks a fake call until released, honoring ctx.
type gate struct {
	started chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gate) wait(ctx context.Context) error {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
