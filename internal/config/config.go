package config

import "time"

// Config represents the main application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Local      LocalConfig      `yaml:"local"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Session    SessionConfig    `yaml:"session"`
	UI         UIConfig         `yaml:"ui"`
	Logging    LoggingConfig    `yaml:"logging"`

	// Runtime version information
	Version string `yaml:"-"`
}

// ServerConfig holds settings for the remote chat backend.
type ServerConfig struct {
	BaseURL string        `yaml:"base_url"` // e.g. http://127.0.0.1:8000
	Timeout time.Duration `yaml:"timeout"`  // HTTP client timeout
	Retry   RetryConfig   `yaml:"retry"`

	// Circuit breaker for the backend
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

// RetryConfig holds retry settings for idempotent API calls.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"` // 0 disables retries
	RetryDelay time.Duration `yaml:"retry_delay"` // initial backoff delay
	MaxDelay   time.Duration `yaml:"max_delay"`   // backoff cap
}

// Backend modes.
const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// BackendConfig selects where conversations live.
type BackendConfig struct {
	Mode string `yaml:"mode"` // remote or local
}

// LocalConfig configures the self-contained backend (SQLite + LLM).
type LocalConfig struct {
	DBPath      string  `yaml:"db_path"`
	Provider    string  `yaml:"provider"` // ollama or gemini
	Model       string  `yaml:"model"`
	OllamaURL   string  `yaml:"ollama_url"`
	GeminiKey   string  `yaml:"gemini_key,omitempty"`
	Temperature float32 `yaml:"temperature"`

	// RequestsPerMinute caps model calls; 0 disables the limit.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// DictionaryConfig configures the word definition provider.
type DictionaryConfig struct {
	BaseURL          string        `yaml:"base_url"`
	Language         string        `yaml:"language"`
	CacheSize        int           `yaml:"cache_size"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

// SessionConfig holds conversation session behavior.
type SessionConfig struct {
	CallTimeout  time.Duration `yaml:"call_timeout"`  // bound for every adapter call
	DismissDelay time.Duration `yaml:"dismiss_delay"` // lookup popover grace period
	MaxOptions   int           `yaml:"max_options"`   // quick replies shown
}

// UIConfig holds terminal UI settings.
type UIConfig struct {
	ShowTimestamps bool   `yaml:"show_timestamps"`
	MouseEnabled   bool   `yaml:"mouse_enabled"`
	Theme          string `yaml:"theme"`         // dark or light
	PopoverStyle   string `yaml:"popover_style"` // glamour style; empty follows the theme
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns a configuration populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: DefaultServerURL,
			Timeout: DefaultHTTPTimeout,
			Retry: RetryConfig{
				MaxRetries: DefaultMaxRetries,
				RetryDelay: DefaultRetryDelay,
				MaxDelay:   DefaultMaxRetryDelay,
			},
			BreakerThreshold: DefaultBreakerThreshold,
			BreakerReset:     DefaultBreakerReset,
		},
		Backend: BackendConfig{
			Mode: BackendRemote,
		},
		Local: LocalConfig{
			Provider:          "ollama",
			OllamaURL:         DefaultOllamaURL,
			Temperature:       0.7,
			RequestsPerMinute: DefaultRequestsPerMinute,
		},
		Dictionary: DictionaryConfig{
			BaseURL:          DefaultDictionaryURL,
			Language:         "en",
			CacheSize:        DefaultDictionaryCacheSize,
			CacheTTL:         DefaultDictionaryCacheTTL,
			BreakerThreshold: DefaultBreakerThreshold,
			BreakerReset:     DefaultBreakerReset,
		},
		Session: SessionConfig{
			CallTimeout:  DefaultCallTimeout,
			DismissDelay: DefaultDismissDelay,
			MaxOptions:   DefaultMaxOptions,
		},
		UI: UIConfig{
			ShowTimestamps: false,
			MouseEnabled:   true,
			Theme:          "dark",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
