package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lingo/internal/app"
	"lingo/internal/auth"
	"lingo/internal/chat"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <conversation-id>",
		Short: "Open a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				return a.Chat(a.Context(), args[0])
			})
		},
	}
}

func newNewCmd() *cobra.Command {
	var personaID, topic string
	var noOpen bool

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a conversation with a persona and open it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				conv, err := a.NewConversation(a.Context(), personaID, topic)
				if err != nil {
					return err
				}
				if noOpen {
					fmt.Println(conv.ID)
					return nil
				}
				return a.Chat(a.Context(), conv.ID)
			})
		},
	}
	cmd.Flags().StringVar(&personaID, "persona", "", "persona id (default: first available persona)")
	cmd.Flags().StringVar(&topic, "topic", "", "conversation topic")
	cmd.Flags().BoolVar(&noOpen, "no-open", false, "print the conversation id instead of opening it")
	return cmd
}

func newPersonasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List personas you can chat with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				personas, err := a.Personas(a.Context())
				if err != nil {
					return err
				}
				fmt.Println(personaTable(personas))
				return nil
			})
		},
	}
}

func personaTable(personas []chat.Persona) string {
	if len(personas) == 0 {
		return dimStyle.Render("No personas available.")
	}
	rows := make([][]string, 0, len(personas))
	for _, p := range personas {
		rows = append(rows, []string{p.ID, p.Name, strings.Join(p.Tags, ", "), p.Description})
	}
	return newTable("ID", "NAME", "TAGS", "DESCRIPTION").Rows(rows...).String()
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in to the configured backend",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				in := bufio.NewReader(os.Stdin)

				username := ""
				if len(args) == 1 {
					username = args[0]
				} else {
					fmt.Print("Username: ")
					line, err := in.ReadString('\n')
					if err != nil && line == "" {
						return fmt.Errorf("read username: %w", err)
					}
					username = strings.TrimSpace(line)
				}

				password, err := readPassword(in)
				if err != nil {
					return err
				}

				user, err := a.Login(a.Context(), username, password)
				if err != nil {
					return err
				}
				fmt.Printf("Signed in as %s\n", user.Username)
				return nil
			})
		},
	}
}

// readPassword prompts without echo on a terminal and reads a plain line
// otherwise, so scripts can pipe the password in.
func readPassword(in *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Print("Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				if err := a.Logout(); err != nil {
					return err
				}
				fmt.Println("Signed out")
				return nil
			})
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				user, ok := a.WhoAmI()
				if !ok {
					return auth.ErrNotSignedIn
				}
				fmt.Printf("%s (id %s)\n", user.Username, user.ID)
				if user.Email != "" {
					fmt.Println(dimStyle.Render(user.Email))
				}
				return nil
			})
		},
	}
}

func newWordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "words",
		Short: "List your saved words",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				words, err := a.Words(a.Context())
				if errors.Is(err, context.Canceled) {
					return nil
				}
				if err != nil {
					return err
				}
				if len(words) == 0 {
					fmt.Println(dimStyle.Render("No saved words yet. Press tab in a chat and f on a word to save it."))
					return nil
				}
				rows := make([][]string, 0, len(words))
				for _, w := range words {
					saved := ""
					if !w.CreatedAt.IsZero() {
						saved = w.CreatedAt.Local().Format("2006-01-02")
					}
					rows = append(rows, []string{w.Word, w.Pronunciation, w.PartOfSpeech, w.Context, saved})
				}
				fmt.Println(newTable("WORD", "PRONUNCIATION", "POS", "MEANING", "SAVED").Rows(rows...).String())
				return nil
			})
		},
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}
