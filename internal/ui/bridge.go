package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"lingo/internal/chat"
	"lingo/internal/lookup"
)

// SnapshotMsg carries a session change into the update loop.
type SnapshotMsg struct {
	Snapshot chat.Snapshot
}

// PopoverMsg carries a lookup popover change into the update loop.
type PopoverMsg struct {
	Popover lookup.Popover
}

// Bridge forwards session and lookup change notifications to a running
// program. Each message is posted from its own goroutine, so a handler that
// fires inside Update never waits on the event loop; the Model drops
// messages older than what it already shows.
type Bridge struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach starts delivery to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.attach(p.Send)
}

func (b *Bridge) attach(send func(tea.Msg)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.send = send
}

// Detach stops delivery. Notifications after Detach are dropped.
func (b *Bridge) Detach() {
	b.attach(nil)
}

// SessionChanged is a chat.ChangeHandler.
func (b *Bridge) SessionChanged(s chat.Snapshot) {
	b.post(SnapshotMsg{Snapshot: s})
}

// PopoverChanged is a lookup change handler.
func (b *Bridge) PopoverChanged(p lookup.Popover) {
	b.post(PopoverMsg{Popover: p})
}

func (b *Bridge) post(msg tea.Msg) {
	b.mu.RLock()
	send := b.send
	b.mu.RUnlock()
	if send == nil {
		return
	}
	go send(msg)
}
