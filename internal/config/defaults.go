package config

import "time"

// Default configuration values.
const (
	// Remote backend
	DefaultServerURL     = "http://127.0.0.1:8000"
	DefaultHTTPTimeout   = 60 * time.Second
	DefaultMaxRetries    = 2
	DefaultRetryDelay    = 500 * time.Millisecond
	DefaultMaxRetryDelay = 5 * time.Second

	// Circuit breaker
	DefaultBreakerThreshold = 5
	DefaultBreakerReset     = 30 * time.Second

	// Local backend
	DefaultLocalModel        = "llama3.2"
	DefaultGeminiModel       = "gemini-2.5-flash"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultDBFileName        = "lingo.db"
	DefaultRequestsPerMinute = 30

	// Dictionary
	DefaultDictionaryURL       = "https://api.dictionaryapi.dev"
	DefaultDictionaryCacheSize = 500
	DefaultDictionaryCacheTTL  = 24 * time.Hour

	// Session behavior
	DefaultCallTimeout  = 30 * time.Second
	DefaultDismissDelay = 200 * time.Millisecond
	DefaultMaxOptions   = 3

	// Files
	DefaultSessionFileName = "session.json"
)
