package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors for the UI theme. ApplyTheme swaps them as a set.
var (
	ColorPrimary   = lipgloss.Color("#A78BFA") // Soft Purple (Lavender 400)
	ColorSecondary = lipgloss.Color("#22D3EE") // Bright Cyan (Cyan 400)
	ColorSuccess   = lipgloss.Color("#059669") // Emerald 600
	ColorWarning   = lipgloss.Color("#D97706") // Amber 600
	ColorError     = lipgloss.Color("#DC2626") // Red 600
	ColorMuted     = lipgloss.Color("#9CA3AF") // Gray 400
	ColorText      = lipgloss.Color("#F1F5F9") // Slate 100
	ColorBg        = lipgloss.Color("#0F172A") // Slate 900

	ColorBorder    = lipgloss.Color("#1E293B") // Slate 800
	ColorHighlight = lipgloss.Color("#E9D5FF") // Purple 200
	ColorDim       = lipgloss.Color("#6B7280") // Gray 500
	ColorAccent    = lipgloss.Color("#F472B6") // Pink 400
	ColorInfo      = lipgloss.Color("#2DD4BF") // Teal 400
	ColorGolden    = lipgloss.Color("#FCD34D") // Amber 300
)

// Styles holds every style the chat screen uses.
type Styles struct {
	Header   lipgloss.Style
	Title    lipgloss.Style
	Subtitle lipgloss.Style

	UserLabel    lipgloss.Style
	PersonaLabel lipgloss.Style
	Body         lipgloss.Style
	Timestamp    lipgloss.Style
	Pending      lipgloss.Style
	Failed       lipgloss.Style
	Placeholder  lipgloss.Style

	// Word under the keyboard cursor or the pointer.
	WordCursor lipgloss.Style
	WordActive lipgloss.Style

	Sidebar      lipgloss.Style
	PersonaName  lipgloss.Style
	PersonaTag   lipgloss.Style
	Popover      lipgloss.Style
	PopoverFocus lipgloss.Style
	Favorite     lipgloss.Style

	OptionKey  lipgloss.Style
	Option     lipgloss.Style
	ErrorLine  lipgloss.Style
	Status     lipgloss.Style
	StatusMode lipgloss.Style
	Help       lipgloss.Style
	Spinner    lipgloss.Style
	Dim        lipgloss.Style
}

// DefaultStyles builds styles from the current colors.
func DefaultStyles() *Styles {
	return &Styles{
		Header: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(ColorBorder),
		Title:    lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true),
		Subtitle: lipgloss.NewStyle().Foreground(ColorMuted),

		UserLabel:    lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true),
		PersonaLabel: lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true),
		Body:         lipgloss.NewStyle().Foreground(ColorText),
		Timestamp:    lipgloss.NewStyle().Foreground(ColorDim),
		Pending:      lipgloss.NewStyle().Foreground(ColorDim).Italic(true),
		Failed:       lipgloss.NewStyle().Foreground(ColorError).Bold(true),
		Placeholder:  lipgloss.NewStyle().Foreground(ColorMuted).Italic(true),

		WordCursor: lipgloss.NewStyle().Foreground(ColorBg).Background(ColorHighlight),
		WordActive: lipgloss.NewStyle().Foreground(ColorHighlight).Underline(true),

		Sidebar: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(ColorBorder).
			PaddingLeft(1),
		PersonaName: lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true),
		PersonaTag:  lipgloss.NewStyle().Foreground(ColorInfo),
		Popover: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder),
		PopoverFocus: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary),
		Favorite: lipgloss.NewStyle().Foreground(ColorGolden).Bold(true),

		OptionKey:  lipgloss.NewStyle().Foreground(ColorAccent).Bold(true),
		Option:     lipgloss.NewStyle().Foreground(ColorText),
		ErrorLine:  lipgloss.NewStyle().Foreground(ColorError),
		Status:     lipgloss.NewStyle().Foreground(ColorMuted),
		StatusMode: lipgloss.NewStyle().Foreground(ColorBg).Background(ColorPrimary).Padding(0, 1),
		Help:       lipgloss.NewStyle().Foreground(ColorDim),
		Spinner:    lipgloss.NewStyle().Foreground(ColorPrimary),
		Dim:        lipgloss.NewStyle().Foreground(ColorDim),
	}
}
