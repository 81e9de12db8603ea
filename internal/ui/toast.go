package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ToastType represents the kind of notice.
type ToastType int

const (
	ToastInfo ToastType = iota
	ToastSuccess
	ToastError
)

// Toast is a short-lived status line notice.
type Toast struct {
	Type      ToastType
	Message   string
	Duration  time.Duration
	CreatedAt time.Time
}

// ToastManager keeps the newest notices. It is owned by the Model and only
// touched from the update loop.
type ToastManager struct {
	toasts    []Toast
	maxToasts int
	now       func() time.Time
}

func NewToastManager() *ToastManager {
	return &ToastManager{maxToasts: 2, now: time.Now}
}

// Show adds a notice, newest first.
func (m *ToastManager) Show(toastType ToastType, message string, duration time.Duration) {
	m.toasts = append([]Toast{{
		Type:      toastType,
		Message:   message,
		Duration:  duration,
		CreatedAt: m.now(),
	}}, m.toasts...)
	if len(m.toasts) > m.maxToasts {
		m.toasts = m.toasts[:m.maxToasts]
	}
}

func (m *ToastManager) ShowSuccess(message string) { m.Show(ToastSuccess, message, 2*time.Second) }
func (m *ToastManager) ShowInfo(message string)    { m.Show(ToastInfo, message, 3*time.Second) }
func (m *ToastManager) ShowError(message string)   { m.Show(ToastError, message, 5*time.Second) }

// Update drops expired notices.
func (m *ToastManager) Update() {
	now := m.now()
	active := m.toasts[:0]
	for _, t := range m.toasts {
		if now.Sub(t.CreatedAt) <= t.Duration {
			active = append(active, t)
		}
	}
	m.toasts = active
}

func (m *ToastManager) Count() int { return len(m.toasts) }

// View renders the notices on one line, newest first.
func (m *ToastManager) View(width int) string {
	if len(m.toasts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.toasts))
	for _, t := range m.toasts {
		parts = append(parts, m.render(t, width/len(m.toasts)))
	}
	return strings.Join(parts, "  ")
}

func (m *ToastManager) render(t Toast, width int) string {
	var icon string
	var iconColor lipgloss.Color
	switch t.Type {
	case ToastSuccess:
		icon, iconColor = "✓", ColorSuccess
	case ToastError:
		icon, iconColor = "✗", ColorError
	default:
		icon, iconColor = "ℹ", ColorInfo
	}

	// fade when nearly expired
	if t.Duration-m.now().Sub(t.CreatedAt) < 500*time.Millisecond {
		iconColor = ColorDim
	}

	iconStyle := lipgloss.NewStyle().Foreground(iconColor).Bold(true)
	msgStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	return iconStyle.Render(icon) + " " + msgStyle.Render(truncate(t.Message, max(width-2, 20)))
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
