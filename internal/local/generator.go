package local

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"google.golang.org/genai"

	"lingo/internal/logging"
	"lingo/internal/ratelimit"
)

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyCompletion is returned when the model answered with nothing.
var ErrEmptyCompletion = errors.New("model returned an empty answer")

// OllamaConfig holds configuration for the Ollama generator.
type OllamaConfig struct {
	BaseURL     string // Default: "http://localhost:11434"
	Model       string // e.g., "llama3.2", "qwen2.5"
	Temperature float32
	MaxTokens   int           // Max output tokens
	HTTPTimeout time.Duration // default: 120s
}

// OllamaGenerator talks to a local or remote Ollama server.
type OllamaGenerator struct {
	client *api.Client
	config OllamaConfig
}

// NewOllamaGenerator creates a generator for config.Model.
func NewOllamaGenerator(config OllamaConfig) (*OllamaGenerator, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 120 * time.Second
	}

	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL %q: %w", config.BaseURL, err)
	}
	httpClient := &http.Client{Timeout: config.HTTPTimeout}

	return &OllamaGenerator{
		client: api.NewClient(baseURL, httpClient),
		config: config,
	}, nil
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    g.config.Model,
		Messages: []api.Message{{Role: "user", Content: prompt}},
		Stream:   &stream,
		Options: map[string]interface{}{
			"num_predict": g.config.MaxTokens,
		},
	}
	if g.config.Temperature > 0 {
		req.Options["temperature"] = g.config.Temperature
	}

	var b strings.Builder
	err := g.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		if strings.Contains(err.Error(), "connection refused") {
			return "", fmt.Errorf("ollama not running at %s: %w", g.config.BaseURL, err)
		}
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}

// GeminiConfig holds configuration for the Gemini generator.
type GeminiConfig struct {
	APIKey          string
	Model           string // e.g. "gemini-2.5-flash"
	Temperature     float32
	MaxOutputTokens int32
}

// GeminiGenerator calls the hosted Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGeminiGenerator creates a generator backed by the Gemini API.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = 1024
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	genConfig := &genai.GenerateContentConfig{
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
	if cfg.Temperature > 0 {
		temperature := cfg.Temperature
		genConfig.Temperature = &temperature
	}

	logging.Debug("gemini generator ready", "model", cfg.Model)
	return &GeminiGenerator{client: client, model: cfg.Model, config: genConfig}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, g.config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}

// limitedGenerator waits on a rate limiter before each call.
type limitedGenerator struct {
	next    Generator
	limiter *ratelimit.Limiter
}

// WithRateLimit wraps g so calls respect limiter. A nil limiter returns g.
func WithRateLimit(g Generator, limiter *ratelimit.Limiter) Generator {
	if limiter == nil {
		return g
	}
	return &limitedGenerator{next: g, limiter: limiter}
}

func (l *limitedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx, ratelimit.EstimateTokens(prompt)); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return l.next.Generate(ctx, prompt)
}
