package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lingo/internal/chat"
	"lingo/internal/logging"
	"lingo/internal/lookup"
)

// Session is the part of the chat orchestrator the screen drives.
type Session interface {
	Snapshot() chat.Snapshot
	Load(ctx context.Context, conversationID string) error
	SendMessage(ctx context.Context, content string) error
	SelectOption(ctx context.Context, index int) error
	Retry(ctx context.Context, tempID string) error
	DismissError()
}

// Lookup is the part of the word lookup controller the screen drives.
type Lookup interface {
	Snapshot() lookup.Popover
	HoverEnter(word string, anchor lookup.Anchor)
	HoverLeave()
	PopoverEnter()
	PopoverLeave()
	ToggleFavorite(ctx context.Context) error
	Clear()
}

// Options configures the chat screen.
type Options struct {
	ConversationID string
	Theme          ThemeType
	PopoverStyle   string // glamour style; empty follows the theme
	ShowTimestamps bool
	MouseEnabled   bool

	// CopyToClipboard defaults to the system clipboard.
	CopyToClipboard func(string) error
}

type mode int

const (
	modeInput mode = iota
	modeWords
)

const (
	headerHeight      = 2 // title line and its border
	footerHeight      = 5 // options, notice, two input rows, status
	inputHeight       = 2
	sidebarBreakpoint = 80
	minSidebarWidth   = 28
)

type rect struct {
	x, y, w, h int
}

func (r rect) contains(x, y int) bool {
	return x >= r.x && x < r.x+r.w && y >= r.y && y < r.y+r.h
}

type (
	loadDoneMsg   struct{ err error }
	sendDoneMsg   struct{ err error }
	toggleDoneMsg struct {
		word string
		err  error
	}
	copyDoneMsg struct {
		word string
		err  error
	}
)

// Model is the bubbletea model of the conversation screen.
type Model struct {
	ctx     context.Context
	session Session
	lookup  Lookup
	opts    Options

	styles    *Styles
	toasts    *ToastManager
	popRender *popoverRenderer

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	snap   chat.Snapshot
	pop    lookup.Popover
	script transcript

	mode      mode
	cursor    int // keyboard word cursor, -1 outside word mode
	hovered   int // span under the pointer, -1 for none
	onPopover bool
	pinned    bool

	width, height int
	sidebarWidth  int
	sidebar       string
	popView       string
	popRect       rect
	ready         bool
}

// New builds the screen. ctx bounds every call the screen starts.
func New(ctx context.Context, session Session, lk Lookup, opts Options) Model {
	styles := DefaultStyles()
	styles.ApplyTheme(opts.Theme)

	popStyle := opts.PopoverStyle
	if popStyle == "" {
		popStyle = GetTheme(opts.Theme).Markdown
	}
	if opts.CopyToClipboard == nil {
		opts.CopyToClipboard = clipboard.WriteAll
	}

	ta := textarea.New()
	ta.Placeholder = "Loading conversation…"
	ta.ShowLineNumbers = false
	ta.CharLimit = 4000
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	return Model{
		ctx:       ctx,
		session:   session,
		lookup:    lk,
		opts:      opts,
		styles:    styles,
		toasts:    NewToastManager(),
		popRender: newPopoverRenderer(popStyle),
		input:     ta,
		viewport:  viewport.New(80, 10),
		spinner:   s,
		snap:      session.Snapshot(),
		pop:       lk.Snapshot(),
		cursor:    -1,
		hovered:   -1,
	}
}

// ProgramOptions returns the options the screen expects to run with.
func (m Model) ProgramOptions() []tea.ProgramOption {
	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if m.opts.MouseEnabled {
		// hover needs motion events without a pressed button
		opts = append(opts, tea.WithMouseAllMotion())
	}
	return opts
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.loadCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.relayout()
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.toasts.Update()
		return m, cmd

	case SnapshotMsg:
		m.applySnapshot(msg.Snapshot)
		return m, nil

	case PopoverMsg:
		m.applyPopover(msg.Popover)
		return m, nil

	case loadDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, chat.ErrSuperseded) {
			logging.Warn("conversation load failed", "conversation_id", m.opts.ConversationID, "error", msg.err)
		}
		return m, nil

	case sendDoneMsg:
		m.handleSendResult(msg.err)
		return m, nil

	case toggleDoneMsg:
		// the controller already reverted the star
		if msg.err != nil && !errors.Is(msg.err, lookup.ErrNoActiveWord) {
			logging.Debug("favorite toggle failed", "word", msg.word, "error", msg.err)
		}
		return m, nil

	case copyDoneMsg:
		if msg.err != nil {
			m.toasts.ShowError("Clipboard unavailable")
			logging.Debug("clipboard write failed", "error", msg.err)
		} else {
			m.toasts.ShowSuccess(fmt.Sprintf("Copied %q", msg.word))
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)
	}

	return m, nil
}

func (m *Model) applySnapshot(s chat.Snapshot) {
	if s.Version <= m.snap.Version {
		return
	}
	grew := len(s.Messages) > len(m.snap.Messages)
	atBottom := m.viewport.AtBottom()
	m.snap = s

	switch {
	case s.InputEnabled():
		if p := s.Placeholder(); p != "" {
			m.input.Placeholder = p + "…"
		} else {
			m.input.Placeholder = "Type a message…"
		}
	case s.State == chat.StateSending:
		m.input.Placeholder = "Waiting for the reply…"
	case s.State == chat.StateFailed:
		m.input.Placeholder = ""
	default:
		m.input.Placeholder = "Loading conversation…"
	}

	m.relayout()
	if m.mode == modeWords {
		if len(m.script.spans) == 0 {
			m.leaveWordMode()
		} else if m.cursor >= len(m.script.spans) {
			m.cursor = len(m.script.spans) - 1
			m.relayout()
		}
	}
	if (atBottom || grew) && m.mode == modeInput {
		m.viewport.GotoBottom()
	}
}

func (m *Model) applyPopover(p lookup.Popover) {
	if p.Version <= m.pop.Version {
		return
	}
	m.pop = p
	if !p.Open {
		m.onPopover = false
		m.pinned = false
	}
	m.relayout()
}

func (m *Model) handleSendResult(err error) {
	var sendErr *chat.SendError
	switch {
	case err == nil, errors.As(err, &sendErr):
		// failures are shown inline from the snapshot
	case errors.Is(err, chat.ErrNotReady):
		m.toasts.ShowInfo("The conversation is still loading")
	case errors.Is(err, chat.ErrNotRetryable):
		m.toasts.ShowInfo("Nothing to retry")
	case errors.Is(err, chat.ErrNoSuchOption):
		m.toasts.ShowInfo("No such quick reply")
	case errors.Is(err, chat.ErrSuperseded), errors.Is(err, chat.ErrClosed):
	default:
		m.toasts.ShowError(err.Error())
	}
}

// Keys

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		if m.mode == modeWords {
			cmd := m.leaveWordMode()
			return m, cmd
		}
		m.enterWordMode()
		return m, nil
	case "ctrl+e":
		m.session.DismissError()
		return m, nil
	case "ctrl+r":
		cmd := m.retryCmd()
		return m, cmd
	case "alt+1", "alt+2", "alt+3":
		return m, m.selectOptionCmd(int(msg.String()[4] - '1'))
	case "pgup":
		m.viewport.HalfViewUp()
		return m, nil
	case "pgdown":
		m.viewport.HalfViewDown()
		return m, nil
	}

	if m.mode == modeWords {
		return m.handleWordKey(msg)
	}

	switch msg.Type {
	case tea.KeyEsc:
		if m.snap.SendErr != nil {
			m.session.DismissError()
		} else if m.pop.Open {
			m.lookup.Clear()
		}
		return m, nil
	case tea.KeyEnter:
		cmd := m.submit()
		return m, cmd
	}

	if !m.snap.InputEnabled() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleWordKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		cmd := m.leaveWordMode()
		return m, cmd
	case "left", "h":
		m.moveCursor(m.script.nextSpan(m.cursor, -1))
	case "right", "l":
		m.moveCursor(m.script.nextSpan(m.cursor, 1))
	case "up", "k":
		m.moveCursor(m.script.verticalSpan(m.cursor, -1))
	case "down", "j":
		m.moveCursor(m.script.verticalSpan(m.cursor, 1))
	case "home":
		m.moveCursor(0)
	case "end":
		m.moveCursor(len(m.script.spans) - 1)
	case "f":
		return m, m.toggleFavoriteCmd()
	case "y":
		return m, m.copyCmd()
	case "p", "enter":
		if !m.pop.Open {
			return m, nil
		}
		if m.pinned {
			m.lookup.PopoverLeave()
		} else {
			m.lookup.PopoverEnter()
		}
		m.pinned = !m.pinned
	}
	return m, nil
}

func (m *Model) submit() tea.Cmd {
	content := strings.TrimSpace(m.input.Value())
	if content == "" || !m.snap.InputEnabled() {
		return nil
	}
	m.input.Reset()
	return m.sendCmd(content)
}

func (m *Model) enterWordMode() {
	if len(m.script.spans) == 0 {
		m.toasts.ShowInfo("No words to look up yet")
		return
	}
	m.mode = modeWords
	m.input.Blur()
	m.cursor = -1
	m.moveCursor(m.script.lastSpanBefore(m.viewport.YOffset + m.viewport.Height))
}

func (m *Model) leaveWordMode() tea.Cmd {
	if m.mode != modeWords {
		return nil
	}
	m.mode = modeInput
	m.cursor = -1
	if m.pinned {
		m.lookup.PopoverLeave()
		m.pinned = false
	}
	m.lookup.HoverLeave()
	m.relayout()
	return m.input.Focus()
}

func (m *Model) moveCursor(i int) {
	if i < 0 || i >= len(m.script.spans) || i == m.cursor {
		return
	}
	if m.pinned {
		m.lookup.PopoverLeave()
		m.pinned = false
	}
	m.cursor = i
	m.relayout()

	span := m.script.spans[i]
	m.ensureVisible(span.Line)
	m.lookup.HoverEnter(span.Word, m.anchor(span))
}

func (m *Model) ensureVisible(line int) {
	switch {
	case line < m.viewport.YOffset:
		m.viewport.SetYOffset(line)
	case line >= m.viewport.YOffset+m.viewport.Height:
		m.viewport.SetYOffset(line - m.viewport.Height + 1)
	}
}

func (m Model) anchor(s wordSpan) lookup.Anchor {
	return lookup.Anchor{X: s.Start, Y: headerHeight + s.Line - m.viewport.YOffset}
}

// Mouse

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	if msg.Action != tea.MouseActionMotion {
		return m, nil
	}

	onPop := m.pop.Open && m.popRect.contains(msg.X, msg.Y)
	if onPop != m.onPopover {
		m.onPopover = onPop
		if onPop {
			m.lookup.PopoverEnter()
		} else if !m.pinned {
			m.lookup.PopoverLeave()
		}
	}
	if onPop {
		// the popover covers whatever word was under the pointer
		m.hovered = -1
		return m, nil
	}

	idx := m.spanAtScreen(msg.X, msg.Y)
	if idx == m.hovered {
		return m, nil
	}
	m.hovered = idx
	if idx >= 0 {
		m.lookup.HoverEnter(m.script.spans[idx].Word, m.anchor(m.script.spans[idx]))
	} else {
		m.lookup.HoverLeave()
	}
	return m, nil
}

// spanAtScreen maps a terminal cell to a transcript span.
func (m Model) spanAtScreen(x, y int) int {
	if x >= m.viewport.Width || y < headerHeight || y >= headerHeight+m.viewport.Height {
		return -1
	}
	return m.script.spanAt(y-headerHeight+m.viewport.YOffset, x)
}

// Commands

func (m Model) loadCmd() tea.Cmd {
	session, ctx, id := m.session, m.ctx, m.opts.ConversationID
	return func() tea.Msg {
		return loadDoneMsg{err: session.Load(ctx, id)}
	}
}

func (m Model) sendCmd(content string) tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return sendDoneMsg{err: session.SendMessage(ctx, content)}
	}
}

func (m Model) selectOptionCmd(index int) tea.Cmd {
	if !m.snap.InputEnabled() || index < 0 || index >= len(m.snap.Options) {
		return nil
	}
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return sendDoneMsg{err: session.SelectOption(ctx, index)}
	}
}

func (m *Model) retryCmd() tea.Cmd {
	tempID := lastFailedID(m.snap)
	if tempID == "" {
		m.toasts.ShowInfo("Nothing to retry")
		return nil
	}
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return sendDoneMsg{err: session.Retry(ctx, tempID)}
	}
}

// lastFailedID prefers the message named by the inline error.
func lastFailedID(s chat.Snapshot) string {
	var sendErr *chat.SendError
	if errors.As(s.SendErr, &sendErr) && sendErr.TempID != "" {
		for _, msg := range s.Messages {
			if msg.ID == sendErr.TempID && msg.Status == chat.StatusFailed {
				return msg.ID
			}
		}
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Status == chat.StatusFailed {
			return s.Messages[i].ID
		}
	}
	return ""
}

func (m Model) toggleFavoriteCmd() tea.Cmd {
	if !m.pop.Open {
		return nil
	}
	lk, ctx, word := m.lookup, m.ctx, m.pop.Word
	return func() tea.Msg {
		return toggleDoneMsg{word: word, err: lk.ToggleFavorite(ctx)}
	}
}

func (m Model) copyCmd() tea.Cmd {
	if m.cursor < 0 || m.cursor >= len(m.script.spans) {
		return nil
	}
	word := lookup.CleanWord(m.script.spans[m.cursor].Word)
	if word == "" {
		return nil
	}
	write := m.opts.CopyToClipboard
	return func() tea.Msg {
		return copyDoneMsg{word: word, err: write(word)}
	}
}

// Layout

// relayout recomputes the transcript, the sidebar and the popover geometry.
func (m *Model) relayout() {
	if !m.ready {
		return
	}

	m.sidebarWidth = 0
	if m.width >= sidebarBreakpoint {
		m.sidebarWidth = max(minSidebarWidth, m.width/3)
	}
	m.viewport.Width = m.width - m.sidebarWidth
	m.input.SetWidth(m.width)
	bodyHeight := max(m.height-headerHeight-footerHeight, 3)

	m.popView = ""
	if m.pop.Open {
		cardWidth := m.viewport.Width
		if m.sidebarWidth > 0 {
			cardWidth = m.sidebarWidth - 2
		}
		m.popView = m.popoverCard(cardWidth)
	}

	if m.sidebarWidth > 0 {
		m.viewport.Height = bodyHeight
		persona := m.personaPanel(m.sidebarWidth - 2)
		m.sidebar = persona
		m.popRect = rect{}
		if m.popView != "" {
			m.sidebar = persona + "\n\n" + m.popView
			m.popRect = rect{
				x: m.viewport.Width,
				y: headerHeight + lipgloss.Height(persona) + 1,
				w: m.sidebarWidth,
				h: lipgloss.Height(m.popView),
			}
		} else {
			m.sidebar = persona + "\n\n" + m.styles.Dim.Render("Hover a word or press tab to look it up")
		}
	} else {
		popHeight := 0
		if m.popView != "" {
			popHeight = min(lipgloss.Height(m.popView), bodyHeight-1)
		}
		m.viewport.Height = bodyHeight - popHeight
		m.sidebar = ""
		m.popRect = rect{x: 0, y: headerHeight + m.viewport.Height, w: m.width, h: popHeight}
	}

	m.script = transcript{}
	switch {
	case m.snap.State == chat.StateFailed:
		m.viewport.SetContent(m.failureView())
	case m.snap.State == chat.StateLoading || m.snap.State == chat.StateIdle:
		m.viewport.SetContent(m.styles.Placeholder.Render("Loading conversation…"))
	case m.snap.Placeholder() != "":
		m.viewport.SetContent(m.styles.Placeholder.Render(m.snap.Placeholder()))
	default:
		var personaName string
		if m.snap.Persona != nil {
			personaName = m.snap.Persona.Name
		}
		active := ""
		if m.pop.Open {
			active = m.pop.Word
		}
		m.script = renderTranscript(m.snap.Messages, m.styles, renderOptions{
			width:          m.viewport.Width - 1,
			personaName:    personaName,
			showTimestamps: m.opts.ShowTimestamps,
			cursor:         m.cursor,
			active:         active,
		})
		m.viewport.SetContent(m.script.content())
	}
}

func (m Model) failureView() string {
	if errors.Is(m.snap.Err, chat.ErrNotFound) {
		return m.styles.ErrorLine.Render("Conversation not found.") + "\n" +
			m.styles.Help.Render("Check the id or start one with `lingo new`. ctrl+c to quit.")
	}
	return m.styles.ErrorLine.Render(fmt.Sprintf("Could not load conversation: %v", m.snap.Err)) + "\n" +
		m.styles.Help.Render("ctrl+c to quit")
}

func (m Model) personaPanel(width int) string {
	p := m.snap.Persona
	if p == nil {
		return m.styles.Dim.Render("…")
	}
	var b strings.Builder
	b.WriteString(m.styles.PersonaName.Render(p.Name))
	if p.Description != "" {
		b.WriteString("\n" + m.styles.Subtitle.Width(width).Render(p.Description))
	}
	if len(p.Tags) > 0 {
		tags := make([]string, len(p.Tags))
		for i, t := range p.Tags {
			tags[i] = "#" + t
		}
		b.WriteString("\n" + m.styles.PersonaTag.Width(width).Render(strings.Join(tags, " ")))
	}
	return b.String()
}

func (m Model) popoverCard(width int) string {
	style := m.styles.Popover
	if m.pop.Hovered {
		style = m.styles.PopoverFocus
	}
	inner := max(width-2, 10)
	body := m.popRender.render(m.pop, inner)
	help := m.styles.Help.Render("f favorite · y copy · p pin")
	if m.mode != modeWords {
		help = m.styles.Help.Render("tab: browse words")
	}
	return style.Width(inner).Render(body + "\n" + help)
}

// View

func (m Model) View() string {
	if !m.ready {
		return ""
	}

	body := m.viewport.View()
	if m.sidebarWidth > 0 {
		side := m.styles.Sidebar.
			Width(m.sidebarWidth - 2).
			Height(m.viewport.Height).
			MaxHeight(m.viewport.Height).
			Render(m.sidebar)
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, side)
	} else if m.popView != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body,
			lipgloss.NewStyle().MaxHeight(m.popRect.h).Render(m.popView))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		body,
		m.optionsView(),
		m.noticeView(),
		m.input.View(),
		m.statusView(),
	)
}

func (m Model) headerView() string {
	title := "Conversation"
	if m.snap.Conversation != nil && m.snap.Conversation.Title != "" {
		title = m.snap.Conversation.Title
	}
	line := m.styles.Title.Render(truncate(title, max(m.width/2, 10)))
	if m.snap.Persona != nil {
		line += m.styles.Subtitle.Render(" · with " + m.snap.Persona.Name)
	}
	if m.snap.Conversation != nil && m.snap.Conversation.Topic != "" {
		line += m.styles.Subtitle.Render(" · " + m.snap.Conversation.Topic)
	}
	return m.styles.Header.Width(m.width).MaxHeight(headerHeight).Render(line)
}

func (m Model) optionsView() string {
	if !m.snap.InputEnabled() || len(m.snap.Options) == 0 {
		return ""
	}
	per := max(m.width/len(m.snap.Options)-8, 10)
	parts := make([]string, len(m.snap.Options))
	for i, opt := range m.snap.Options {
		parts[i] = m.styles.OptionKey.Render(fmt.Sprintf("alt+%d", i+1)) + " " +
			m.styles.Option.Render(truncate(opt, per))
	}
	return strings.Join(parts, "  ")
}

func (m Model) noticeView() string {
	if m.snap.SendErr != nil {
		return m.styles.ErrorLine.Render("✗ "+truncate(m.snap.SendErr.Error(), max(m.width-40, 20))) +
			m.styles.Help.Render("  ctrl+r retry · ctrl+e dismiss")
	}
	return m.toasts.View(m.width)
}

func (m Model) statusView() string {
	badge := "CHAT"
	help := "enter send · tab words · alt+1-3 quick reply · ctrl+c quit"
	if m.mode == modeWords {
		badge = "WORDS"
		help = "←→↑↓ move · f favorite · y copy · p pin · esc back"
	}

	line := m.styles.StatusMode.Render(badge) + " "
	switch {
	case m.snap.State == chat.StateLoading:
		line += m.spinner.View() + m.styles.Status.Render(" loading ")
	case m.snap.State == chat.StateSending:
		name := "Persona"
		if m.snap.Persona != nil {
			name = m.snap.Persona.Name
		}
		line += m.spinner.View() + m.styles.Status.Render(" "+name+" is typing ")
	}
	return line + m.styles.Help.Render(help)
}
