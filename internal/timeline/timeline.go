// Package timeline maintains the ordered, deduplicated view of a room's
// messages. The same logical message can arrive up to three ways: in the
// backlog fetch, on the live stream, and as the local echo of an own send.
// A derived key identifies those arrivals as one message.
package timeline

import (
	"sync"
	"time"

	"github.com/Sirojiddin1dev/carinfopro/internal/models"
)

// clock is overridable in tests; only the degenerate key branch uses it.
var clock = time.Now

// Key derives the uniqueness key for a message. Preference order: the
// client-generated message ID, then the server ID, then a composite of
// sender, creation time and text. Messages carrying none of those fall back
// to sender, text and the wall-clock minute at derivation time.
func Key(msg models.ChatMessage) string {
	if msg.ClientMsgID != "" {
		return "c:" + msg.ClientMsgID
	}
	if msg.ID != "" {
		return "s:" + msg.ID
	}
	if msg.CreatedAt != nil {
		return "t:" + msg.Sender + "|" + msg.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + msg.Text
	}
	return "d:" + msg.Sender + "|" + msg.Text + "|" + clock().Format("15:04")
}

// Timeline is an append-only message list with key-based duplicate
// suppression. Messages keep the order Add was called in; timestamps are
// display metadata and never reorder anything, because live-stream arrival
// order is the authoritative order.
type Timeline struct {
	mu   sync.Mutex
	seen map[string]struct{}
	msgs []models.ChatMessage
}

// New creates an empty timeline.
func New() *Timeline {
	return &Timeline{seen: make(map[string]struct{})}
}

// Add appends the message unless one with the same key is already present.
// It reports whether the message was newly added.
func (t *Timeline) Add(msg models.ChatMessage) bool {
	key := Key(msg)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[key]; ok {
		return false
	}
	t.seen[key] = struct{}{}
	t.msgs = append(t.msgs, msg)
	return true
}

// Clear empties the timeline and its key set.
func (t *Timeline) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = make(map[string]struct{})
	t.msgs = nil
}

// Messages returns a copy of the timeline in append order.
func (t *Timeline) Messages() []models.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.ChatMessage, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of messages in the timeline.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}
