package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// ThemeType names a color theme.
type ThemeType string

const (
	ThemeDark  ThemeType = "dark"  // Default dark theme (soft purple/cyan)
	ThemeLight ThemeType = "light" // For light terminal backgrounds
)

// ThemeColorScheme defines the color palette for a theme.
type ThemeColorScheme struct {
	Name       string
	Primary    lipgloss.Color
	Secondary  lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
	Muted      lipgloss.Color
	Text       lipgloss.Color
	Background lipgloss.Color
	Border     lipgloss.Color
	Highlight  lipgloss.Color
	Accent     lipgloss.Color
	Info       lipgloss.Color

	// glamour standard style for popover cards
	Markdown string
}

func predefinedThemes() map[ThemeType]ThemeColorScheme {
	return map[ThemeType]ThemeColorScheme{
		ThemeDark: {
			Name:       "Dark (Default)",
			Primary:    lipgloss.Color("#A78BFA"), // Soft Purple
			Secondary:  lipgloss.Color("#22D3EE"), // Bright Cyan
			Success:    lipgloss.Color("#34D399"), // Soft Green
			Warning:    lipgloss.Color("#FBBF24"), // Warm Amber
			Error:      lipgloss.Color("#F87171"), // Soft Red
			Muted:      lipgloss.Color("#9CA3AF"), // Neutral Gray
			Text:       lipgloss.Color("#F1F5F9"), // Soft White
			Background: lipgloss.Color("#0F172A"), // Deep Navy
			Border:     lipgloss.Color("#1E293B"), // Subtle Slate
			Highlight:  lipgloss.Color("#E9D5FF"), // Soft Purple
			Accent:     lipgloss.Color("#F472B6"), // Pink Accent
			Info:       lipgloss.Color("#2DD4BF"), // Teal
			Markdown:   "dark",
		},
		ThemeLight: {
			Name:       "Light",
			Primary:    lipgloss.Color("#6D28D9"), // Violet 700
			Secondary:  lipgloss.Color("#0E7490"), // Cyan 700
			Success:    lipgloss.Color("#047857"), // Emerald 700
			Warning:    lipgloss.Color("#B45309"), // Amber 700
			Error:      lipgloss.Color("#B91C1C"), // Red 700
			Muted:      lipgloss.Color("#6B7280"), // Gray 500
			Text:       lipgloss.Color("#111827"), // Gray 900
			Background: lipgloss.Color("#F8FAFC"), // Slate 50
			Border:     lipgloss.Color("#CBD5E1"), // Slate 300
			Highlight:  lipgloss.Color("#7C3AED"), // Violet 600
			Accent:     lipgloss.Color("#BE185D"), // Pink 700
			Info:       lipgloss.Color("#0F766E"), // Teal 700
			Markdown:   "light",
		},
	}
}

// GetTheme returns the color scheme for a theme, falling back to dark.
func GetTheme(themeType ThemeType) ThemeColorScheme {
	themes := predefinedThemes()
	if theme, ok := themes[themeType]; ok {
		return theme
	}
	return themes[ThemeDark]
}

// ApplyTheme switches the package colors to theme and rebuilds s.
func (s *Styles) ApplyTheme(theme ThemeType) {
	colors := GetTheme(theme)

	ColorPrimary = colors.Primary
	ColorSecondary = colors.Secondary
	ColorSuccess = colors.Success
	ColorWarning = colors.Warning
	ColorError = colors.Error
	ColorMuted = colors.Muted
	ColorText = colors.Text
	ColorBg = colors.Background
	ColorBorder = colors.Border
	ColorHighlight = colors.Highlight
	ColorAccent = colors.Accent
	ColorInfo = colors.Info

	*s = *DefaultStyles()
}
