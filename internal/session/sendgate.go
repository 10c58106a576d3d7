package session

import (
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Sirojiddin1dev/carinfopro/internal/ws"
)

// Send gate rejections.
var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrTooSoon      = errors.New("message sent too soon after the previous one")
)

// SendGate debounces outbound sends and tags each accepted message with a
// fresh client message ID, so the stream echo of an own send can be
// reconciled with a local render.
type SendGate struct {
	minInterval time.Duration
	now         func() time.Time
	last        time.Time
}

// NewSendGate creates a gate with the given minimum inter-send interval.
func NewSendGate(minInterval time.Duration) *SendGate {
	return &SendGate{minInterval: minInterval, now: time.Now}
}

// TrySend validates and tags one outbound message. It does not transmit;
// the controller forwards accepted frames to the live connection.
func (g *SendGate) TrySend(text string) (ws.OutboundFrame, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ws.OutboundFrame{}, ErrEmptyMessage
	}

	now := g.now()
	if !g.last.IsZero() && now.Sub(g.last) < g.minInterval {
		return ws.OutboundFrame{}, ErrTooSoon
	}
	g.last = now

	return ws.OutboundFrame{
		Message:     text,
		ClientMsgID: ulid.Make().String(),
	}, nil
}
