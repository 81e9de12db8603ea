package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingo/internal/chat"
	"lingo/internal/lookup"
)

type fakeSession struct {
	mu      sync.Mutex
	snap    chat.Snapshot
	loads   []string
	sent    []string
	options []int
	retries []string
	dismiss int
	sendErr error
}

func (s *fakeSession) Snapshot() chat.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fakeSession) Load(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, id)
	return nil
}

func (s *fakeSession) SendMessage(ctx context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, content)
	return s.sendErr
}

func (s *fakeSession) SelectOption(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = append(s.options, index)
	return nil
}

func (s *fakeSession) Retry(ctx context.Context, tempID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries = append(s.retries, tempID)
	return nil
}

func (s *fakeSession) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismiss++
}

type fakeLookup struct {
	mu        sync.Mutex
	calls     []string
	anchors   []lookup.Anchor
	toggleErr error
}

func (l *fakeLookup) record(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *fakeLookup) Snapshot() lookup.Popover { return lookup.Popover{} }

func (l *fakeLookup) HoverEnter(word string, anchor lookup.Anchor) {
	l.record("enter:" + word)
	l.mu.Lock()
	l.anchors = append(l.anchors, anchor)
	l.mu.Unlock()
}

func (l *fakeLookup) HoverLeave()   { l.record("leave") }
func (l *fakeLookup) PopoverEnter() { l.record("popover-enter") }
func (l *fakeLookup) PopoverLeave() { l.record("popover-leave") }
func (l *fakeLookup) Clear()        { l.record("clear") }

func (l *fakeLookup) ToggleFavorite(ctx context.Context) error {
	l.record("toggle")
	return l.toggleErr
}

func (l *fakeLookup) recorded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func readySnapshot(version uint64, msgs ...chat.Message) chat.Snapshot {
	return chat.Snapshot{
		Version:        version,
		State:          chat.StateReady,
		ConversationID: "c1",
		Conversation:   &chat.Conversation{ID: "c1", Title: "Chat with Lily", PersonaID: "p1"},
		Persona:        &chat.Persona{ID: "p1", Name: "Lily", Tags: []string{"travel"}},
		Messages:       msgs,
	}
}

func newTestModel(t *testing.T, width int) (Model, *fakeSession, *fakeLookup) {
	t.Helper()
	session := &fakeSession{}
	lk := &fakeLookup{}
	m := New(context.Background(), session, lk, Options{ConversationID: "c1", MouseEnabled: true})
	m = update(t, m, tea.WindowSizeMsg{Width: width, Height: 30})
	return m, session, lk
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func updateCmd(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	}
	if strings.HasPrefix(s, "alt+") {
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s[4:]), Alt: true}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func msg(id, content string, isUser bool) chat.Message {
	return chat.Message{ID: id, ConversationID: "c1", Content: content, IsUser: isUser}
}

func TestInit_LoadsConversation(t *testing.T) {
	session := &fakeSession{}
	m := New(context.Background(), session, &fakeLookup{}, Options{ConversationID: "c1"})

	cmd := m.loadCmd()
	require.NotNil(t, cmd)
	assert.Equal(t, loadDoneMsg{}, cmd())
	assert.Equal(t, []string{"c1"}, session.loads)
}

func TestRenderTranscript_WrapsAndMapsWords(t *testing.T) {
	msgs := []chat.Message{
		msg("m1", "Hello there, friend!", false),
		msg("m2", "hi", true),
	}
	got := renderTranscript(msgs, DefaultStyles(), renderOptions{width: 16, personaName: "Lily", cursor: -1})

	want := []wordSpan{
		{Line: 1, Start: 2, End: 7, Word: "Hello"},
		{Line: 1, Start: 8, End: 14, Word: "there,"},
		{Line: 2, Start: 2, End: 9, Word: "friend!"},
	}
	if diff := cmp.Diff(want, got.spans); diff != "" {
		t.Errorf("spans mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, got.lines, 6)
	assert.Equal(t, 1, got.spanAt(1, 9))
	assert.Equal(t, -1, got.spanAt(1, 7))
	assert.Equal(t, -1, got.spanAt(0, 2))
	// own messages are laid out but not looked up
	assert.Contains(t, got.lines[5], "hi")
	assert.Equal(t, -1, got.spanAt(5, 2))
}

func TestTranscript_Navigation(t *testing.T) {
	tr := transcript{spans: []wordSpan{
		{Line: 1, Start: 2, End: 5},
		{Line: 1, Start: 6, End: 12},
		{Line: 2, Start: 2, End: 4},
		{Line: 2, Start: 5, End: 11},
		{Line: 4, Start: 2, End: 6},
	}}

	assert.Equal(t, 0, tr.nextSpan(0, -1))
	assert.Equal(t, 4, tr.nextSpan(4, 1))
	assert.Equal(t, 3, tr.verticalSpan(1, 1))
	assert.Equal(t, 4, tr.verticalSpan(3, 1))
	assert.Equal(t, 0, tr.verticalSpan(2, -1))
	assert.Equal(t, 0, tr.verticalSpan(0, -1))
	assert.Equal(t, 3, tr.lastSpanBefore(3))
	assert.Equal(t, 0, tr.lastSpanBefore(0))
}

func TestModel_StaleSnapshotIgnored(t *testing.T) {
	m, _, _ := newTestModel(t, 100)
	m = update(t, m, SnapshotMsg{Snapshot: readySnapshot(3, msg("m1", "new", false))})
	m = update(t, m, SnapshotMsg{Snapshot: readySnapshot(2, msg("m0", "old", false))})

	assert.Equal(t, uint64(3), m.snap.Version)
	assert.Equal(t, "m1", m.snap.Messages[0].ID)
}

func TestModel_EnterSendsAndClearsInput(t *testing.T) {
	m, session, _ := newTestModel(t, 100)
	m = update(t, m, SnapshotMsg{Snapshot: readySnapshot(1)})

	m = update(t, m, key("hello"))
	assert.Equal(t, "hello", m.input.Value())

	m, cmd := updateCmd(t, m, key("enter"))
	assert.Empty(t, m.input.Value(), "input clears before the send completes")
	require.NotNil(t, cmd)

	done := cmd()
	assert.Equal(t, sendDoneMsg{}, done)
	assert.Equal(t, []string{"hello"}, session.sent)
}

func TestModel_InputDisabledUntilReady(t *testing.T) {
	m, session, _ := newTestModel(t, 100)
	sending := readySnapshot(1)
	sending.State = chat.StateSending
	m = update(t, m, SnapshotMsg{Snapshot: sending})

	m = update(t, m, key("hi"))
	assert.Empty(t, m.input.Value())

	_, cmd := updateCmd(t, m, key("enter"))
	assert.Nil(t, cmd)
	assert.Empty(t, session.sent)
	assert.Contains(t, m.View(), "Lily is typing")
}

func TestModel_PlaceholderForEmptyConversation(t *testing.T) {
	m, _, _ := newTestModel(t, 100)
	m = update(t, m, SnapshotMsg{Snapshot: readySnapshot(1)})

	assert.Contains(t, m.View(), "Start the conversation with Lily")
}

func TestModel_NotFoundView(t *testing.T) {
	m, _, _ := newTestModel(t, 100)
	m = update(t, m, SnapshotMsg{Snapshot: chat.Snapshot{
		Version: 1,
		State:   chat.StateFailed,
		Err:     chat.ErrNotFound,
	}})

	assert.Contains(t, m.View(), "Conversation not found.")
}

func TestModel_QuickReplyKeys(t *testing.T) {
	m, session, _ := newTestModel(t, 100)
	snap := readySnapshot(1, msg("m1", "How are you?", false))
	snap.Options = []string{"Fine", "Great", "Tired"}
	m = update(t, m, SnapshotMsg{Snapshot: snap})

	_, cmd := updateCmd(t, m, key("alt+2"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []int{1}, session.options)

	_, cmd = updateCmd(t, m, key("alt+3"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []int{1, 2}, session.options)
	assert.Contains(t, m.View(), "alt+1")
}

func TestModel_RetryTargetsFailedMessage(t *testing.T) {
	m, session, _ := newTestModel(t, 100)

	failed := msg("tmp-2", "hola", true)
	failed.Status = chat.StatusFailed
	snap := readySnapshot(1, msg("m1", "hi", false), failed)
	snap.SendErr = &chat.SendError{Step: chat.StepSave, TempID: "tmp-2", Err: errors.New("offline")}
	m = update(t, m, SnapshotMsg{Snapshot: snap})
	assert.Contains(t, m.View(), "message not saved")

	_, cmd := updateCmd(t, m, key("ctrl+r"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []string{"tmp-2"}, session.retries)
}

func TestModel_RetryWithNothingFailed(t *testing.T) {
	m, _, _ := newTestModel(t, 100)
	m = update(t, m, SnapshotMsg{Snapshot: readySnapshot(1, msg("m1", "hi", false))})

	m, cmd := updateCmd(t, m, key("ctrl+r"))
	assert.Nil(t, cmd)
	assert.Equal(t, 1, m.toasts.Count())
}

func TestModel_SendResultNotices(t *testing.T) {
	m, _, _ := newTestModel(t, 100)

	m = update(t, m, sendDoneMsg{err: &chat.SendError{Step: chat.StepReply, Err: errors.New("x")}})
	assert.Equal(t, 0, m.toasts.Count(), "send failures are shown inline")

	m = update(t, m, sendDoneMsg{err: chat.ErrNotReady})
	assert.Equal(t, 1, m.toasts.Count())
}

func TestModel_WordModeDrivesLookup(t *testing.T) {
	m, _, lk := newTestModel(t, 100)
	m = update(t, m, SnapshotMsg{Snapshot: readySnapshot(1, msg("m1", "Bonjour mon ami", false))})

	m = update(t, m, key("tab"))
	assert.Equal(t, modeWords, m.mode)
	assert.Equal(t, 2, m.cursor)

	m = update(t, m, key("left"))
	assert.Equal(t, 1, m.cursor)

	m = update(t, m, key("p"))
	m = update(t, m, PopoverMsg{Popover: lookup.Popover{Version: 1, Open: true, Word: "mon"}})
	m = update(t, m, key("p"))

	_, cmd := updateCmd(t, m, key("f"))
	require.NotNil(t, cmd)
	assert.Equal(t, toggleDoneMsg{word: "mon"}, cmd())

	m = update(t, m, key("esc"))
	assert.Equal(t, modeInput, m.mode)

	assert.Equal(t, []string{
		"enter:ami",
		"enter:mon",
		// p before the popover opened is ignored
		"popover-enter",
		"toggle",
		"popover-leave",
		"leave",
	}, lk.recorded())
}

func TestModel_WordModeNeedsWords(t *testing.T) {
	m, _, lk := newTestModel(t, 100)
	m = update(t, m, SnapshotMsg{Snapshot: readySnapshot(1)})

	m = update(t, m, key("tab"))
	assert.Equal(t, modeInput, m.mode)

	m = update(t, m, SnapshotMsg{Snapshot: readySnapshot(2, msg("m1", "Bonjour", true))})
	m = update(t, m, key("tab"))
	assert.Equal(t, modeInput, m.mode)
	assert.Empty(t, lk.recorded())
}

func TestModel_CopyWord(t *testing.T) {
	session := &fakeSession{}
	var copied string
	m := New(context.Background(), session, &fakeLookup{}, Options{
		CopyToClipboard: func(s string) error { copied = s; return nil },
	})
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m = update(t, m, SnapshotMsg{Snapshot: readySnapshot(1, msg("m1", "Merci!", false))})
	m = update(t, m, key("tab"))

	m, cmd := updateCmd(t, m, key("y"))
	require.NotNil(t, cmd)
	done := cmd()
	assert.Equal(t, "Merci", copied)

	m = update(t, m, done)
	assert.Equal(t, 1, m.toasts.Count())
}

func TestModel_ToggleFailureIsSilent(t *testing.T) {
	m, _, _ := newTestModel(t, 100)
	m = update(t, m, toggleDoneMsg{word: "ami", err: errors.New("offline")})
	assert.Equal(t, 0, m.toasts.Count())
	assert.NotContains(t, m.noticeView(), "ami")

	m = update(t, m, toggleDoneMsg{word: "ami", err: lookup.ErrNoActiveWord})
	assert.Equal(t, 0, m.toasts.Count())
}

func motion(x, y int) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionMotion, Button: tea.MouseButtonNone}
}

func TestModel_MouseHoverAndPopover(t *testing.T) {
	m, _, lk := newTestModel(t, 100)
	m = update(t, m, SnapshotMsg{Snapshot: readySnapshot(1, msg("m1", "Bonjour mon ami", false))})

	// line 1 of the transcript, first word starts at column 2
	m = update(t, m, motion(3, headerHeight+1))
	m = update(t, m, motion(4, headerHeight+1))
	m = update(t, m, motion(9, headerHeight+1)) // gap between words
	m = update(t, m, motion(3, headerHeight+1))

	m = update(t, m, PopoverMsg{Popover: lookup.Popover{Version: 1, Open: true, Word: "Bonjour"}})
	require.NotZero(t, m.popRect.h)

	m = update(t, m, motion(m.popRect.x+2, m.popRect.y))
	m = update(t, m, motion(m.popRect.x+2, m.popRect.y+1))
	m = update(t, m, motion(m.popRect.x+2, m.popRect.y+m.popRect.h))

	assert.Equal(t, []string{
		"enter:Bonjour",
		"leave",
		"enter:Bonjour",
		"popover-enter",
		"popover-leave",
	}, lk.recorded())
	assert.Equal(t, lookup.Anchor{X: 2, Y: headerHeight + 1}, lk.anchors[0])
}

func TestModel_ClosedPopoverResetsPointerState(t *testing.T) {
	m, _, _ := newTestModel(t, 100)
	m = update(t, m, SnapshotMsg{Snapshot: readySnapshot(1, msg("m1", "ami", false))})
	m = update(t, m, PopoverMsg{Popover: lookup.Popover{Version: 1, Open: true, Word: "ami"}})
	m = update(t, m, motion(m.popRect.x+1, m.popRect.y))
	require.True(t, m.onPopover)

	m = update(t, m, PopoverMsg{Popover: lookup.Popover{Version: 2}})
	assert.False(t, m.onPopover)
	assert.Equal(t, rect{}, m.popRect)
}

func TestModel_NarrowLayoutStacksPopover(t *testing.T) {
	m, _, _ := newTestModel(t, 60)
	m = update(t, m, SnapshotMsg{Snapshot: readySnapshot(1, msg("m1", "ami", false))})
	full := m.viewport.Height

	m = update(t, m, PopoverMsg{Popover: lookup.Popover{Version: 1, Open: true, Word: "ami", Loading: true}})
	assert.Zero(t, m.sidebarWidth)
	assert.Less(t, m.viewport.Height, full)
	assert.Equal(t, headerHeight+m.viewport.Height, m.popRect.y)
}

func TestPopoverMarkdown(t *testing.T) {
	tests := []struct {
		name string
		pop  lookup.Popover
		want []string
	}{
		{
			name: "loading",
			pop:  lookup.Popover{Open: true, Word: "ami", Loading: true},
			want: []string{"## ami ☆", "Looking up"},
		},
		{
			name: "not found",
			pop:  lookup.Popover{Open: true, Word: "zzz", Err: lookup.ErrWordNotFound},
			want: []string{"No definition found."},
		},
		{
			name: "failure",
			pop:  lookup.Popover{Open: true, Word: "ami", Err: errors.New("timeout")},
			want: []string{"Lookup failed: timeout"},
		},
		{
			name: "definition",
			pop: lookup.Popover{Open: true, Word: "ami", Favorite: true, Definition: &lookup.Definition{
				Word: "ami", Pronunciation: "/a.mi/", PartOfSpeech: "noun", Gloss: "a friend", Example: "mon ami",
			}},
			want: []string{"## ami ★", "*/a.mi/* · **noun**", "a friend", "> mon ami"},
		},
		{
			name: "saving",
			pop:  lookup.Popover{Open: true, Word: "a_b", Toggling: true},
			want: []string{`a\_b`, "saving…"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := popoverMarkdown(tt.pop)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}

func TestPopoverRenderer_ReusesRendererPerWidth(t *testing.T) {
	r := newPopoverRenderer("notty")
	pop := lookup.Popover{Open: true, Word: "ami", Definition: &lookup.Definition{Gloss: "a friend"}}

	out := r.render(pop, 30)
	assert.Contains(t, out, "a friend")
	first := r.renderer

	r.render(pop, 30)
	assert.Same(t, first, r.renderer)
	r.render(pop, 40)
	assert.NotSame(t, first, r.renderer)
}

func TestBridge_PostsAfterAttach(t *testing.T) {
	b := NewBridge()
	b.SessionChanged(chat.Snapshot{Version: 1}) // dropped

	got := make(chan tea.Msg, 2)
	b.attach(func(msg tea.Msg) { got <- msg })
	b.SessionChanged(chat.Snapshot{Version: 2})
	b.PopoverChanged(lookup.Popover{Version: 5})

	var versions []uint64
	for range 2 {
		select {
		case msg := <-got:
			switch msg := msg.(type) {
			case SnapshotMsg:
				versions = append(versions, msg.Snapshot.Version)
			case PopoverMsg:
				versions = append(versions, msg.Popover.Version)
			}
		case <-time.After(time.Second):
			t.Fatal("bridge did not deliver")
		}
	}
	assert.ElementsMatch(t, []uint64{2, 5}, versions)

	b.Detach()
	b.SessionChanged(chat.Snapshot{Version: 3})
	select {
	case <-got:
		t.Fatal("delivered after detach")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestToastManager_Expires(t *testing.T) {
	now := time.Unix(0, 0)
	tm := NewToastManager()
	tm.now = func() time.Time { return now }

	tm.ShowInfo("one")
	tm.ShowError("two")
	tm.ShowSuccess("three")
	assert.Equal(t, 2, tm.Count())
	assert.Contains(t, tm.View(80), "three")
	assert.NotContains(t, tm.View(80), "one")

	now = now.Add(3 * time.Second)
	tm.Update()
	assert.Equal(t, 1, tm.Count())
	assert.Contains(t, tm.View(80), "two")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 5))
	assert.Equal(t, "hel…", truncate("hello", 4))
	assert.Equal(t, "…", truncate("hello", 1))
	assert.Equal(t, "ça…", truncate("ça va", 3))
}
