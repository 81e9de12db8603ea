package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lingo/internal/logging"
)

// State is the lifecycle state of a session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
	StateSending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateSending:
		return "sending"
	default:
		return "unknown"
	}
}

var (
	ErrNotReady     = errors.New("conversation is not ready")
	ErrSuperseded   = errors.New("superseded by a newer load")
	ErrNotRetryable = errors.New("message is not a failed local message")
	ErrNoSuchOption = errors.New("no such quick reply")
	ErrClosed       = errors.New("session closed")
)

// SendStep names the stage of the send pipeline that failed.
type SendStep string

const (
	StepSave  SendStep = "save"
	StepReply SendStep = "reply"
)

// SendError is the inline error reported for a failed send.
type SendError struct {
	Step   SendStep
	TempID string
	Err    error
}

func (e *SendError) Error() string {
	switch e.Step {
	case StepSave:
		return fmt.Sprintf("message not saved: %v", e.Err)
	default:
		return fmt.Sprintf("no reply: %v", e.Err)
	}
}

func (e *SendError) Unwrap() error { return e.Err }

// Snapshot is an immutable view of a session.
type Snapshot struct {
	Version        uint64
	State          State
	ConversationID string
	Conversation   *Conversation
	Persona        *Persona
	Messages       []Message
	Options        []string
	Err            error // terminal load error
	SendErr        error // inline send error
	InFlight       int
}

// InputEnabled reports whether the input bar and quick replies accept actions.
func (s Snapshot) InputEnabled() bool {
	return s.State == StateReady
}

// Placeholder is the hint shown when a loaded conversation has no messages.
func (s Snapshot) Placeholder() string {
	if s.State != StateReady || len(s.Messages) > 0 || s.Persona == nil {
		return ""
	}
	return "Start the conversation with " + s.Persona.Name
}

// ChangeHandler is called after every state change with the new snapshot.
// Handlers run outside the session lock and may call back into the session.
type ChangeHandler func(Snapshot)

// Options tunes an Orchestrator.
type Options struct {
	CallTimeout time.Duration // bound on each backend call
	MaxOptions  int           // quick replies kept
	Now         func() time.Time
	NewTempID   func() string
}

func (o *Options) setDefaults() {
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.MaxOptions <= 0 {
		o.MaxOptions = 3
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewTempID == nil {
		o.NewTempID = NewTempID
	}
}

// Orchestrator owns one conversation session: its record, persona, message
// sequence and quick replies. All mutations happen under mu; results of
// backend calls are applied only if the generation they were issued under is
// still current.
type Orchestrator struct {
	backend Backend
	opts    Options

	mu       sync.Mutex
	version  uint64
	state    State
	convID   string
	conv     *Conversation
	persona  *Persona
	messages []Message
	options  []string
	loadErr  error
	sendErr  error
	inFlight int
	closed   bool

	loadGen    uint64 // bumped by Load and Close; stale sends and loads are dropped
	optionsGen uint64 // bumped by every message mutation and refresh start

	onChange ChangeHandler

	closeCtx    context.Context
	closeCancel context.CancelFunc
}

// NewOrchestrator creates an idle session bound to backend.
func NewOrchestrator(backend Backend, opts Options) *Orchestrator {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		backend:     backend,
		opts:        opts,
		state:       StateIdle,
		closeCtx:    ctx,
		closeCancel: cancel,
	}
}

// OnChange sets the change handler.
func (o *Orchestrator) OnChange(handler ChangeHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onChange = handler
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:        o.version,
		State:          o.state,
		ConversationID: o.convID,
		Persona:        o.persona.clone(),
		Messages:       slices.Clone(o.messages),
		Options:        slices.Clone(o.options),
		Err:            o.loadErr,
		SendErr:        o.sendErr,
		InFlight:       o.inFlight,
	}
	if o.conv != nil {
		c := *o.conv
		snap.Conversation = &c
	}
	return snap
}

// notifyChange bumps the version and delivers a snapshot to the handler.
// Must be called with o.mu held; it releases the lock.
func (o *Orchestrator) notifyChange() {
	o.version++
	handler := o.onChange
	snap := o.snapshotLocked()
	o.mu.Unlock()

	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error("session change handler panicked", "panic", r)
		}
	}()
	handler(snap)
}

// setMessagesLocked installs a new message sequence. Options are cleared and
// any refresh in flight is invalidated.
func (o *Orchestrator) setMessagesLocked(seq []Message) {
	o.messages = seq
	o.options = nil
	o.optionsGen++
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	stop := context.AfterFunc(o.closeCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Load binds the session to conversationID and fetches its record, persona
// and history. The persona is requested as soon as the record names it, in
// parallel with the history. A later Load supersedes this one: its results
// are discarded and ErrSuperseded is returned.
func (o *Orchestrator) Load(ctx context.Context, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.loadGen++
	gen := o.loadGen
	o.state = StateLoading
	o.convID = conversationID
	o.conv = nil
	o.persona = nil
	o.loadErr = nil
	o.sendErr = nil
	o.inFlight = 0
	o.setMessagesLocked(nil)
	o.notifyChange()

	ctx = logging.WithConversation(ctx, conversationID)
	log := logging.FromContext(ctx)

	var (
		conv    *Conversation
		persona *Persona
		history []Message
	)
	err := func() error {
		if conversationID == "" {
			return fmt.Errorf("conversation id: %w", ErrNotFound)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			c, err := o.getConversation(gctx, conversationID)
			if err == nil && c == nil {
				err = ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("load conversation: %w", err)
			}
			p, err := o.getPersona(gctx, c.PersonaID)
			if err == nil && p == nil {
				err = ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("load persona %s: %w", c.PersonaID, err)
			}
			conv, persona = c, p
			return nil
		})
		g.Go(func() error {
			msgs, err := o.listMessages(gctx, conversationID)
			if err != nil {
				return fmt.Errorf("load messages: %w", err)
			}
			history = msgs
			return nil
		})
		return g.Wait()
	}()

	o.mu.Lock()
	if gen != o.loadGen {
		o.mu.Unlock()
		log.Debug("discarding superseded load")
		return ErrSuperseded
	}
	if err != nil {
		o.state = StateFailed
		o.loadErr = err
		o.notifyChange()
		log.Warn("conversation load failed", "error", err)
		return err
	}

	o.state = StateReady
	o.conv = conv
	o.persona = persona
	seq := make([]Message, len(history))
	for i, m := range history {
		m.Status = StatusConfirmed
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		seq[i] = m
	}
	o.setMessagesLocked(seq)
	o.notifyChange()
	log.Info("conversation loaded", "messages", len(seq), "persona", persona.Name)

	o.refreshOptions(ctx, gen)
	return nil
}

// SendMessage runs the send pipeline for content: optimistic append, save and
// reconcile, persona reply, quick-reply refresh. Whitespace-only content is
// ignored. The reply is requested even when the save failed. The returned
// error is the first SendError of the pipeline, also exposed as SendErr.
func (o *Orchestrator) SendMessage(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.state != StateReady && o.state != StateSending {
		o.mu.Unlock()
		return ErrNotReady
	}
	gen := o.loadGen
	convID := o.convID
	tempID := o.opts.NewTempID()
	pending := Message{
		ID:             tempID,
		ConversationID: convID,
		Content:        content,
		IsUser:         true,
		Timestamp:      o.opts.Now(),
		Status:         StatusPending,
	}
	o.setMessagesLocked(append(slices.Clone(o.messages), pending))
	o.inFlight++
	o.state = StateSending
	o.sendErr = nil
	o.notifyChange()

	ctx = logging.WithConversation(ctx, convID)
	log := logging.FromContext(ctx)

	var firstErr error

	saved, err := o.saveMessage(ctx, convID, content)
	o.mu.Lock()
	if gen != o.loadGen {
		o.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		firstErr = &SendError{Step: StepSave, TempID: tempID, Err: err}
		o.sendErr = firstErr
		if seq, ok := MarkFailed(o.messages, tempID); ok {
			o.setMessagesLocked(seq)
		}
		log.Warn("message save failed", "temp_id", tempID, "error", err)
	} else if seq, ok := Reconcile(o.messages, tempID, saved); ok {
		o.setMessagesLocked(seq)
		o.touchLocked(saved.Timestamp)
	}
	o.notifyChange()

	reply, err := o.fetchReply(ctx, convID, content)
	o.mu.Lock()
	if gen != o.loadGen {
		o.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		if firstErr == nil {
			firstErr = &SendError{Step: StepReply, TempID: tempID, Err: err}
			o.sendErr = firstErr
		}
		log.Warn("reply fetch failed", "error", err)
	} else {
		msg := reply.Message
		msg.IsUser = false
		msg.Status = StatusConfirmed
		if msg.ConversationID == "" {
			msg.ConversationID = convID
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = o.opts.Now()
		}
		o.setMessagesLocked(append(slices.Clone(o.messages), msg))
		o.touchLocked(msg.Timestamp)
		if reply.Title != "" && o.conv != nil {
			o.conv.Title = reply.Title
		}
	}
	o.inFlight--
	if o.inFlight == 0 && o.state == StateSending {
		o.state = StateReady
	}
	o.notifyChange()

	o.refreshOptions(ctx, gen)
	return firstErr
}

// SelectOption sends the quick reply at index as a user message.
func (o *Orchestrator) SelectOption(ctx context.Context, index int) error {
	o.mu.Lock()
	if index < 0 || index >= len(o.options) {
		o.mu.Unlock()
		return ErrNoSuchOption
	}
	text := o.options[index]
	o.mu.Unlock()

	return o.SendMessage(ctx, text)
}

// Retry removes the failed message tempID and sends its content again.
func (o *Orchestrator) Retry(ctx context.Context, tempID string) error {
	o.mu.Lock()
	i := slices.IndexFunc(o.messages, func(m Message) bool {
		return m.Status == StatusFailed && m.ID == tempID
	})
	if i < 0 {
		o.mu.Unlock()
		return ErrNotRetryable
	}
	content := o.messages[i].Content
	o.setMessagesLocked(removeAt(o.messages, i))
	o.notifyChange()

	return o.SendMessage(ctx, content)
}

// DismissError clears the inline send error.
func (o *Orchestrator) DismissError() {
	o.mu.Lock()
	if o.sendErr == nil {
		o.mu.Unlock()
		return
	}
	o.sendErr = nil
	o.notifyChange()
}

// Close discards every in-flight result and cancels pending backend calls.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.loadGen++
	o.mu.Unlock()
	o.closeCancel()
}

func (o *Orchestrator) touchLocked(ts time.Time) {
	if o.conv != nil && ts.After(o.conv.UpdatedAt) {
		o.conv.UpdatedAt = ts
	}
}

// refreshOptions recomputes quick replies from the latest persona message.
// A result is applied only if no message mutation or newer refresh happened
// while it was being fetched.
func (o *Orchestrator) refreshOptions(ctx context.Context, loadGen uint64) {
	o.mu.Lock()
	if loadGen != o.loadGen || o.state == StateFailed {
		o.mu.Unlock()
		return
	}
	latest, ok := LatestPersonaMessage(o.messages)
	o.optionsGen++
	gen := o.optionsGen
	convID := o.convID
	if len(o.options) > 0 {
		o.options = nil
		o.notifyChange()
	} else {
		o.mu.Unlock()
	}
	if !ok {
		return
	}

	opts, err := o.fetchOptions(ctx, convID, latest.Content)
	if err != nil {
		logging.FromContext(ctx).Debug("quick replies unavailable", "error", err)
		opts = nil
	}

	o.mu.Lock()
	if gen != o.optionsGen || loadGen != o.loadGen {
		o.mu.Unlock()
		return
	}
	var kept []string
	for _, opt := range opts {
		if len(kept) == o.opts.MaxOptions {
			break
		}
		if opt = strings.TrimSpace(opt); opt != "" {
			kept = append(kept, opt)
		}
	}
	o.options = kept
	o.notifyChange()
}

// Backend calls, each bounded by the call timeout.

func (o *Orchestrator) getConversation(ctx context.Context, id string) (*Conversation, error) {
	ctx, cancel := o.callContext(ctx)
	defer cancel()
	return o.backend.GetConversation(ctx, id)
}

func (o *Orchestrator) getPersona(ctx context.Context, id string) (*Persona, error) {
	ctx, cancel := o.callContext(ctx)
	defer cancel()
	return o.backend.GetPersona(ctx, id)
}

func (o *Orchestrator) listMessages(ctx context.Context, id string) ([]Message, error) {
	ctx, cancel := o.callContext(ctx)
	defer cancel()
	return o.backend.ListMessages(ctx, id)
}

func (o *Orchestrator) saveMessage(ctx context.Context, convID, content string) (Message, error) {
	ctx, cancel := o.callContext(ctx)
	defer cancel()
	return o.backend.SaveMessage(ctx, convID, content)
}

func (o *Orchestrator) fetchReply(ctx context.Context, convID, content string) (Reply, error) {
	ctx, cancel := o.callContext(ctx)
	defer cancel()
	return o.backend.FetchReply(ctx, convID, content)
}

func (o *Orchestrator) fetchOptions(ctx context.Context, convID, content string) ([]string, error) {
	ctx, cancel := o.callContext(ctx)
	defer cancel()
	return o.backend.FetchOptions(ctx, convID, content)
}
