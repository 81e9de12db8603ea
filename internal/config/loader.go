package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"lingo/internal/fileutil"
)

// Load loads configuration from the default file location and environment variables.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from path (or the default location when empty),
// then applies environment overrides. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = getConfigPath()
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	loadFromEnv(cfg)
	cfg.applyDefaults()

	return cfg, nil
}

// ConfigDir returns the directory holding config, session and log files.
func ConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "lingo")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "lingo")
}

// getConfigPath returns the path to the config file.
func getConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// GetConfigPath returns the path to the config file (exported for external use).
func GetConfigPath() string {
	return getConfigPath()
}

// SessionPath returns the path of the persisted sign-in session.
func SessionPath() string {
	return filepath.Join(ConfigDir(), DefaultSessionFileName)
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) {
	if serverURL := os.Getenv("LINGO_SERVER_URL"); serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if mode := os.Getenv("LINGO_BACKEND"); mode != "" {
		cfg.Backend.Mode = strings.ToLower(mode)
	}
	if level := os.Getenv("LINGO_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && cfg.Local.GeminiKey == "" {
		cfg.Local.GeminiKey = key
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		cfg.Local.OllamaURL = host
	}
}

// applyDefaults fills zero values a partial config file may leave behind.
func (c *Config) applyDefaults() {
	if c.Backend.Mode == "" {
		c.Backend.Mode = BackendRemote
	}
	if c.Local.Model == "" {
		switch c.Local.Provider {
		case "gemini":
			c.Local.Model = DefaultGeminiModel
		default:
			c.Local.Model = DefaultLocalModel
		}
	}
	if c.Local.DBPath == "" {
		c.Local.DBPath = filepath.Join(ConfigDir(), DefaultDBFileName)
	}
	if c.Session.CallTimeout <= 0 {
		c.Session.CallTimeout = DefaultCallTimeout
	}
	if c.Session.DismissDelay <= 0 {
		c.Session.DismissDelay = DefaultDismissDelay
	}
	if c.Session.MaxOptions <= 0 {
		c.Session.MaxOptions = DefaultMaxOptions
	}
	if c.Dictionary.CacheSize <= 0 {
		c.Dictionary.CacheSize = DefaultDictionaryCacheSize
	}
	if c.Dictionary.CacheTTL <= 0 {
		c.Dictionary.CacheTTL = DefaultDictionaryCacheTTL
	}
	if c.Server.Timeout <= 0 {
		c.Server.Timeout = DefaultHTTPTimeout
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Backend.Mode {
	case BackendRemote:
		if c.Server.BaseURL == "" {
			return ErrMissingServer
		}
		if _, err := url.ParseRequestURI(c.Server.BaseURL); err != nil {
			return fmt.Errorf("invalid server.base_url %q: %w", c.Server.BaseURL, err)
		}
	case BackendLocal:
		switch c.Local.Provider {
		case "ollama":
		case "gemini":
			if c.Local.GeminiKey == "" {
				return ErrMissingGeminiKey
			}
		default:
			return fmt.Errorf("unknown local.provider %q", c.Local.Provider)
		}
	default:
		return fmt.Errorf("unknown backend.mode %q", c.Backend.Mode)
	}
	return nil
}

// ConfigError is a configuration validation error.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingServer    ConfigError = "missing server: set server.base_url in config.yaml or LINGO_SERVER_URL"
	ErrMissingGeminiKey ConfigError = "missing gemini key: set local.gemini_key or GEMINI_API_KEY"
)

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	configPath := getConfigPath()
	if configPath == "" {
		return fmt.Errorf("could not determine config path")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may contain an API key
	if err := fileutil.AtomicWrite(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
