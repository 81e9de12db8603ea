package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"lingo/internal/app"
	"lingo/internal/config"
	"lingo/internal/logging"
)

var (
	version     = "0.1.0"
	cfgFile     string
	backendMode string
	logLevel    string
)

func main() {
	// Optional .env next to the binary's working directory
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "lingo",
		Short: "Practice a language by chatting with personas",
		Long: `Lingo is a terminal client for language-learning conversations.
Chat with a persona, pick suggested replies, and look up any word in the
conversation to save it to your word list.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/lingo/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&backendMode, "backend", "", "backend mode: remote or local")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newChatCmd(),
		newNewCmd(),
		newPersonasCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newWordsCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("lingo version %s\n", version)
			},
		},
	)

	err := rootCmd.Execute()
	logging.Close()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if backendMode != "" {
		cfg.Backend.Mode = strings.ToLower(backendMode)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	cfg.Version = version
	return cfg, nil
}

// withApp builds the app, runs fn and closes the app.
func withApp(fn func(a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stdout belongs to the TUI; logs go to a file
	if err := logging.EnableFileLogging(config.ConfigDir(), logging.ParseLevel(cfg.Logging.Level)); err != nil {
		fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logging.Warn("shutdown incomplete", "error", err)
		}
	}()
	return fn(a)
}
