package chat

import (
	"slices"

	"github.com/google/uuid"
)

const tempIDPrefix = "tmp-"

// NewTempID returns a client-side identifier for an optimistic message.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// Reconcile replaces the local message identified by tempID with its confirmed
// counterpart. The confirmed record's id, content and timestamp win; the origin
// flag and position are kept. The input slice is never modified. The bool
// reports whether tempID was found.
func Reconcile(seq []Message, tempID string, confirmed Message) ([]Message, bool) {
	i := indexLocal(seq, tempID)
	if i < 0 {
		return seq, false
	}

	pending := seq[i]
	merged := confirmed
	merged.IsUser = pending.IsUser
	merged.Status = StatusConfirmed
	if merged.ID == "" {
		merged.ID = pending.ID
	}
	if merged.ConversationID == "" {
		merged.ConversationID = pending.ConversationID
	}
	if merged.Content == "" {
		merged.Content = pending.Content
	}
	if merged.Timestamp.IsZero() {
		merged.Timestamp = pending.Timestamp
	}

	out := slices.Clone(seq)
	out[i] = merged
	return out, true
}

// MarkFailed flags the local message identified by tempID as failed, leaving
// everything else about it untouched.
func MarkFailed(seq []Message, tempID string) ([]Message, bool) {
	i := indexLocal(seq, tempID)
	if i < 0 {
		return seq, false
	}
	out := slices.Clone(seq)
	out[i].Status = StatusFailed
	return out, true
}

// LatestPersonaMessage scans from the end for the newest non-user message.
func LatestPersonaMessage(seq []Message) (Message, bool) {
	for i := len(seq) - 1; i >= 0; i-- {
		if !seq[i].IsUser {
			return seq[i], true
		}
	}
	return Message{}, false
}

func indexLocal(seq []Message, tempID string) int {
	if tempID == "" {
		return -1
	}
	return slices.IndexFunc(seq, func(m Message) bool {
		return m.Local() && m.ID == tempID
	})
}

func removeAt(seq []Message, i int) []Message {
	out := make([]Message, 0, len(seq)-1)
	out = append(out, seq[:i]...)
	return append(out, seq[i+1:]...)
}
