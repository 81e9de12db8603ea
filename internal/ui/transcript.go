package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"lingo/internal/chat"
	"lingo/internal/lookup"
)

const bodyIndent = 2

// wordSpan locates a hoverable word in the rendered transcript. Columns are
// terminal cells; End is exclusive.
type wordSpan struct {
	Line  int
	Start int
	End   int
	Word  string
}

// transcript is the laid out message list plus its word hit map.
type transcript struct {
	lines []string
	spans []wordSpan
}

type renderOptions struct {
	width          int
	personaName    string
	showTimestamps bool
	cursor         int    // span drawn with the cursor style, -1 for none
	active         string // word open in the popover
}

func renderTranscript(msgs []chat.Message, st *Styles, o renderOptions) transcript {
	var t transcript
	width := max(o.width, bodyIndent+10)

	for i, msg := range msgs {
		if i > 0 {
			t.lines = append(t.lines, "")
		}
		t.lines = append(t.lines, messageHeader(msg, st, o))

		for _, paragraph := range strings.Split(msg.Content, "\n") {
			t.layoutParagraph(paragraph, width, st, o, !msg.IsUser)
		}
	}
	return t
}

func messageHeader(msg chat.Message, st *Styles, o renderOptions) string {
	var b strings.Builder
	if msg.IsUser {
		b.WriteString(st.UserLabel.Render("You"))
	} else {
		name := o.personaName
		if name == "" {
			name = "Persona"
		}
		b.WriteString(st.PersonaLabel.Render(name))
	}
	if o.showTimestamps && !msg.Timestamp.IsZero() {
		b.WriteString(" " + st.Timestamp.Render(msg.Timestamp.Local().Format("15:04")))
	}
	switch msg.Status {
	case chat.StatusPending:
		b.WriteString(" " + st.Pending.Render("sending…"))
	case chat.StatusFailed:
		b.WriteString(" " + st.Failed.Render("✗ not delivered"))
	}
	return b.String()
}

// layoutParagraph greedily wraps one paragraph. Words of hoverable
// paragraphs get a span each; only persona messages are looked up.
func (t *transcript) layoutParagraph(paragraph string, width int, st *Styles, o renderOptions, hoverable bool) {
	words := lookup.Words(paragraph)
	if len(words) == 0 {
		t.lines = append(t.lines, "")
		return
	}

	pad := strings.Repeat(" ", bodyIndent)
	var line strings.Builder
	line.WriteString(pad)
	col := bodyIndent

	for _, w := range words {
		ww := lipgloss.Width(w)
		if col > bodyIndent && col+1+ww > width {
			t.lines = append(t.lines, line.String())
			line.Reset()
			line.WriteString(pad)
			col = bodyIndent
		}
		if col > bodyIndent {
			line.WriteByte(' ')
			col++
		}

		if !hoverable {
			line.WriteString(st.Body.Render(w))
			col += ww
			continue
		}

		idx := len(t.spans)
		t.spans = append(t.spans, wordSpan{Line: len(t.lines), Start: col, End: col + ww, Word: w})

		switch {
		case idx == o.cursor:
			line.WriteString(st.WordCursor.Render(w))
		case o.active != "" && lookup.CleanWord(w) == o.active:
			line.WriteString(st.WordActive.Render(w))
		default:
			line.WriteString(st.Body.Render(w))
		}
		col += ww
	}
	t.lines = append(t.lines, line.String())
}

func (t transcript) content() string {
	return strings.Join(t.lines, "\n")
}

// spanAt returns the span covering cell (line, col), or -1.
func (t transcript) spanAt(line, col int) int {
	for i, s := range t.spans {
		if s.Line == line && col >= s.Start && col < s.End {
			return i
		}
		if s.Line > line {
			break
		}
	}
	return -1
}

// nextSpan steps dir spans from i, clamped to the ends.
func (t transcript) nextSpan(i, dir int) int {
	if len(t.spans) == 0 {
		return -1
	}
	return min(max(i+dir, 0), len(t.spans)-1)
}

// verticalSpan finds the span on the nearest line above (dir<0) or below
// (dir>0) whose start is closest to the start of span i.
func (t transcript) verticalSpan(i, dir int) int {
	if i < 0 || i >= len(t.spans) {
		return t.nextSpan(i, dir)
	}
	from := t.spans[i]
	target := -1
	best := -1
	for j := i + dir; j >= 0 && j < len(t.spans); j += dir {
		s := t.spans[j]
		if s.Line == from.Line {
			continue
		}
		if target == -1 {
			target = s.Line
		}
		if s.Line != target {
			break
		}
		if best == -1 || abs(s.Start-from.Start) < abs(t.spans[best].Start-from.Start) {
			best = j
		}
	}
	if best == -1 {
		return i
	}
	return best
}

// lastSpanBefore returns the last span on a line above end, falling back to
// the first span.
func (t transcript) lastSpanBefore(end int) int {
	for i := len(t.spans) - 1; i >= 0; i-- {
		if t.spans[i].Line < end {
			return i
		}
	}
	if len(t.spans) == 0 {
		return -1
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
