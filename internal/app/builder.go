package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"lingo/internal/auth"
	"lingo/internal/client"
	"lingo/internal/config"
	"lingo/internal/dictionary"
	"lingo/internal/local"
	"lingo/internal/logging"
	"lingo/internal/lookup"
	"lingo/internal/ratelimit"
)

// Builder assembles an App from configuration.
type Builder struct {
	cfg    *config.Config
	ctx    context.Context
	cancel context.CancelFunc

	sessionPath string
	generator   local.Generator // overrides the configured provider

	session *auth.Session
	backend Backend
	dict    *dictionary.Client
	words   *lookup.Service
	closers []func() error

	buildErrors []error
	mu          sync.Mutex
}

// NewBuilder creates a Builder for cfg.
func NewBuilder(cfg *config.Config) *Builder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Builder{
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		sessionPath: config.SessionPath(),
	}
}

// WithSessionPath stores the sign-in session at path instead of the config dir.
func (b *Builder) WithSessionPath(path string) *Builder {
	b.sessionPath = path
	return b
}

// WithGenerator makes the local backend use gen instead of the configured provider.
func (b *Builder) WithGenerator(gen local.Generator) *Builder {
	b.generator = gen
	return b
}

// Build constructs the App. On failure everything opened so far is closed.
func (b *Builder) Build() (*App, error) {
	if err := b.cfg.Validate(); err != nil {
		b.cancel()
		return nil, err
	}

	b.initSession()
	if err := b.initBackend(); err != nil {
		b.addError(err)
		return nil, b.abort()
	}
	b.initLookup()

	return b.assembleApp(), nil
}

func (b *Builder) initSession() {
	b.session = auth.NewSession(b.sessionPath)
	if err := b.session.Restore(); err != nil {
		// a corrupt session file only costs a new login
		logging.Warn("could not restore session", "path", b.sessionPath, "error", err)
	}
}

func (b *Builder) initBackend() error {
	switch b.cfg.Backend.Mode {
	case config.BackendLocal:
		return b.initLocalBackend()
	default:
		return b.initRemoteBackend()
	}
}

func (b *Builder) initRemoteBackend() error {
	srv := b.cfg.Server
	c, err := client.New(client.Config{
		BaseURL: srv.BaseURL,
		Timeout: srv.Timeout,
		Retry: client.RetryConfig{
			MaxRetries: srv.Retry.MaxRetries,
			RetryDelay: srv.Retry.RetryDelay,
			MaxDelay:   srv.Retry.MaxDelay,
		},
		BreakerThreshold: srv.BreakerThreshold,
		BreakerReset:     srv.BreakerReset,
		Token:            b.session.Token,
	})
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}
	b.backend = c
	logging.Debug("backend created", "mode", config.BackendRemote, "url", srv.BaseURL)
	return nil
}

func (b *Builder) initLocalBackend() error {
	cfg := b.cfg.Local
	store, err := local.OpenStore(cfg.DBPath)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, store.Close)

	gen := b.generator
	if gen == nil {
		gen, err = newGenerator(b.ctx, cfg)
		if err != nil {
			return err
		}
	}
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		BurstSize:         ratelimit.DefaultConfig().BurstSize,
	})

	if limiter != nil {
		b.closers = append(b.closers, func() error {
			st := limiter.Stats()
			logging.Debug("model rate limit", "requests", st.TotalRequests, "delayed", st.DelayedRequests)
			return nil
		})
	}

	b.backend = local.NewBackend(store, local.WithRateLimit(gen, limiter))
	logging.Debug("backend created", "mode", config.BackendLocal, "db", store.Path(), "provider", cfg.Provider, "model", cfg.Model)
	return nil
}

func newGenerator(ctx context.Context, cfg config.LocalConfig) (local.Generator, error) {
	switch cfg.Provider {
	case "gemini":
		g, err := local.NewGeminiGenerator(ctx, local.GeminiConfig{
			APIKey:      cfg.GeminiKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		g, err := local.NewOllamaGenerator(local.OllamaConfig{
			BaseURL:     cfg.OllamaURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	}
}

func (b *Builder) initLookup() {
	d := b.cfg.Dictionary
	b.dict = dictionary.New(dictionary.Config{
		BaseURL:          d.BaseURL,
		Language:         d.Language,
		CacheSize:        d.CacheSize,
		CacheTTL:         d.CacheTTL,
		BreakerThreshold: d.BreakerThreshold,
		BreakerReset:     d.BreakerReset,
	})
	b.words = lookup.NewService(b.dict, b.backend, b.session)
}

func (b *Builder) assembleApp() *App {
	return &App{
		cfg:     b.cfg,
		ctx:     b.ctx,
		cancel:  b.cancel,
		session: b.session,
		backend: b.backend,
		dict:    b.dict,
		words:   b.words,
		closers: b.closers,
	}
}

func (b *Builder) addError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buildErrors = append(b.buildErrors, err)
}

// abort releases what was opened and returns the collected errors.
func (b *Builder) abort() error {
	b.cancel()
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			b.addError(err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.buildErrors...)
}
