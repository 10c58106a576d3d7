package models

import "time"

// Sender types on the wire. The backend only distinguishes the room owner
// from the anonymous visitor.
const (
	SenderVisitor = "visitor"
	SenderOwner   = "owner"
)

// ChatMessage is a single message in a room timeline, normalized from the
// backlog and live-stream wire shapes. Immutable once added to a timeline.
type ChatMessage struct {
	ID          string     `json:"id,omitempty"`            // server-assigned, empty for local echo
	ClientMsgID string     `json:"client_msg_id,omitempty"` // attached by the send gate
	Sender      string     `json:"sender"`                  // SenderVisitor or SenderOwner
	Text        string     `json:"text"`
	CreatedAt   *time.Time `json:"created_at,omitempty"` // display metadata, never a sort key
}
