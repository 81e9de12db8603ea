package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"lingo/internal/logging"
	"lingo/internal/lookup"
)

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "#", `\#`, ">", `\>`, "[", `\[`, "]", `\]`,
)

// popoverMarkdown describes the popover as a small markdown card.
func popoverMarkdown(pop lookup.Popover) string {
	var b strings.Builder

	star := "☆"
	if pop.Favorite {
		star = "★"
	}
	fmt.Fprintf(&b, "## %s %s\n\n", markdownEscaper.Replace(pop.Word), star)

	switch {
	case pop.Loading:
		b.WriteString("_Looking up…_\n")
	case pop.Err != nil:
		if errors.Is(pop.Err, lookup.ErrWordNotFound) {
			b.WriteString("_No definition found._\n")
		} else {
			fmt.Fprintf(&b, "_Lookup failed: %s_\n", markdownEscaper.Replace(pop.Err.Error()))
		}
	case pop.Definition != nil:
		def := pop.Definition
		var meta []string
		if def.Pronunciation != "" {
			meta = append(meta, "*"+markdownEscaper.Replace(def.Pronunciation)+"*")
		}
		if def.PartOfSpeech != "" {
			meta = append(meta, "**"+markdownEscaper.Replace(def.PartOfSpeech)+"**")
		}
		if len(meta) > 0 {
			b.WriteString(strings.Join(meta, " · ") + "\n\n")
		}
		if def.Gloss != "" {
			b.WriteString(markdownEscaper.Replace(def.Gloss) + "\n")
		}
		if def.Example != "" {
			b.WriteString("\n> " + markdownEscaper.Replace(def.Example) + "\n")
		}
	}

	if pop.Toggling {
		b.WriteString("\n_saving…_\n")
	}
	return b.String()
}

// popoverRenderer renders popover cards with glamour, rebuilding the term
// renderer only when the wrap width changes.
type popoverRenderer struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
}

func newPopoverRenderer(style string) *popoverRenderer {
	if style == "" {
		style = "dark"
	}
	return &popoverRenderer{style: style}
}

func (p *popoverRenderer) render(pop lookup.Popover, width int) string {
	md := popoverMarkdown(pop)
	width = max(width, 10)

	if p.renderer == nil || p.width != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(p.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			logging.Warn("popover renderer unavailable", "style", p.style, "error", err)
			return md
		}
		p.renderer, p.width = r, width
	}

	out, err := p.renderer.Render(md)
	if err != nil {
		logging.Debug("popover render failed", "error", err)
		return md
	}
	return strings.Trim(out, "\n")
}
