package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"lingo/internal/auth"
	"lingo/internal/chat"
	"lingo/internal/config"
	"lingo/internal/dictionary"
	"lingo/internal/logging"
	"lingo/internal/lookup"
	"lingo/internal/ui"
)

// Backend is what a conversation source provides: conversations, the word
// list and sign-in.
type Backend interface {
	chat.Backend
	lookup.Favorites
	auth.Authenticator
}

// ErrNoPersonas is returned when a conversation is requested without a
// persona and the backend offers none.
var ErrNoPersonas = errors.New("no personas available")

// App wires configuration, backend, sign-in and word lookup together and runs
// the commands of the CLI.
type App struct {
	cfg     *config.Config
	ctx     context.Context
	cancel  context.CancelFunc
	session *auth.Session
	backend Backend
	dict    *dictionary.Client
	words   *lookup.Service
	closers []func() error

	signalCleanup func()
	mu            sync.Mutex
	forceExit     *time.Timer
}

// New builds an App from cfg with default paths.
func New(cfg *config.Config) (*App, error) {
	a, err := NewBuilder(cfg).Build()
	if err != nil {
		return nil, err
	}
	a.signalCleanup = a.setupSignalHandler()
	return a, nil
}

// Context is cancelled when the app shuts down.
func (a *App) Context() context.Context {
	return a.ctx
}

// Chat opens the conversation screen for conversationID and blocks until the
// user quits.
func (a *App) Chat(ctx context.Context, conversationID string) error {
	sessionCfg := a.cfg.Session
	orch := chat.NewOrchestrator(a.backend, chat.Options{
		CallTimeout: sessionCfg.CallTimeout,
		MaxOptions:  sessionCfg.MaxOptions,
	})
	defer orch.Close()

	ctrl := lookup.NewController(a.words, lookup.ControllerOptions{
		DismissDelay: sessionCfg.DismissDelay,
		CallTimeout:  sessionCfg.CallTimeout,
	})
	defer ctrl.Close()

	bridge := ui.NewBridge()
	orch.OnChange(bridge.SessionChanged)
	ctrl.OnChange(bridge.PopoverChanged)
	defer bridge.Detach()

	// a logout in another terminal invalidates the open popover's favorite state
	if err := a.session.Watch(func(user auth.User, signedIn bool) {
		logging.Info("sign-in changed", "signed_in", signedIn, "user", user.Username)
		ctrl.Clear()
	}); err != nil {
		logging.Warn("session watch unavailable", "error", err)
	}
	logging.Debug("session watch", "active", a.session.Watching())

	ctx = logging.WithConversation(ctx, conversationID)
	model := ui.New(ctx, orch, ctrl, ui.Options{
		ConversationID: conversationID,
		Theme:          ui.ThemeType(a.cfg.UI.Theme),
		PopoverStyle:   a.cfg.UI.PopoverStyle,
		ShowTimestamps: a.cfg.UI.ShowTimestamps,
		MouseEnabled:   a.cfg.UI.MouseEnabled,
	})
	opts := append(model.ProgramOptions(), tea.WithContext(ctx))
	program := tea.NewProgram(model, opts...)
	bridge.Attach(program)

	logging.FromContext(ctx).Info("chat screen started", "mode", a.cfg.Backend.Mode)
	err := runWithRecovery("chat screen", func() error {
		_, err := program.Run()
		return err
	})
	stats := a.dict.CacheStats()
	logging.FromContext(ctx).Debug("chat screen closed", "word_cache_hits", stats.Hits, "word_cache_misses", stats.Misses)
	if err != nil && ctx.Err() != nil {
		// shutdown by signal
		return nil
	}
	return err
}

// NewConversation creates a conversation for the signed-in user. An empty
// personaID picks the first persona the backend offers.
func (a *App) NewConversation(ctx context.Context, personaID, topic string) (*chat.Conversation, error) {
	userID, err := a.session.UserID()
	if err != nil {
		return nil, err
	}

	personaID = strings.TrimSpace(personaID)
	if personaID == "" {
		personas, err := a.backend.ListPersonas(ctx)
		if err != nil {
			return nil, fmt.Errorf("list personas: %w", err)
		}
		if len(personas) == 0 {
			return nil, ErrNoPersonas
		}
		personaID = personas[0].ID
	}

	conv, err := a.backend.CreateConversation(ctx, chat.NewConversation{
		UserID:    userID,
		PersonaID: personaID,
		Topic:     strings.TrimSpace(topic),
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	logging.Info("conversation created", "conversation_id", conv.ID, "persona_id", personaID)
	return conv, nil
}

// Personas lists the personas a conversation can be started with.
func (a *App) Personas(ctx context.Context) ([]chat.Persona, error) {
	return a.backend.ListPersonas(ctx)
}

// Words lists the signed-in user's saved words.
func (a *App) Words(ctx context.Context) ([]lookup.Favorite, error) {
	return a.words.ListFavorites(ctx)
}

// Login signs in against the configured backend and persists the session.
func (a *App) Login(ctx context.Context, username, password string) (auth.User, error) {
	return a.session.Login(ctx, a.backend, username, password)
}

func (a *App) Logout() error {
	return a.session.Logout()
}

// WhoAmI returns the signed-in user.
func (a *App) WhoAmI() (auth.User, bool) {
	return a.session.User()
}

// Close releases the backend and stops watching the session.
func (a *App) Close() error {
	if a.signalCleanup != nil {
		a.signalCleanup()
		a.signalCleanup = nil
	}
	a.mu.Lock()
	if a.forceExit != nil {
		a.forceExit.Stop()
	}
	a.mu.Unlock()
	a.cancel()

	errs := []error{a.session.Close()}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
