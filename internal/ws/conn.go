// Package ws owns the live bidirectional connection for a room. One
// connection exists per room session; all inbound traffic and status
// transitions are delivered in order on a single event channel.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Sirojiddin1dev/carinfopro/internal/metrics"
	"github.com/Sirojiddin1dev/carinfopro/internal/models"
)

// Status is the connection state of a live connection.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusOpen
	StatusClosing
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

// Event is a single occurrence on the live connection: either a status
// transition or an inbound message. Exactly one field is set. Both kinds
// share a channel so a consumer can never observe a message ahead of the
// transition that made it possible.
type Event struct {
	Status  *Status
	Message *models.ChatMessage
}

// OutboundFrame is the visitor-side wire frame.
type OutboundFrame struct {
	Message     string `json:"message"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
}

// inboundFrame mirrors the broadcast payload. client_msg_id is echoed only
// by backends that support local-echo reconciliation.
type inboundFrame struct {
	ID          string     `json:"id"`
	RoomID      string     `json:"room_id"`
	SenderType  string     `json:"sender_type"`
	Message     string     `json:"message"`
	CreatedAt   *time.Time `json:"created_at"`
	ClientMsgID string     `json:"client_msg_id"`
}

// ErrNotOpen is returned by Send when the connection is not open.
var ErrNotOpen = errors.New("connection is not open")

// Manager dials live connections. It keeps at most one connection open:
// connecting while a previous connection is still up closes the old one
// first, so a room switch can never leave two readers delivering the same
// stream.
type Manager struct {
	base           string // ws:// or wss:// endpoint base
	fallbackPrefix string // alternate routing segment, tried once on dial failure
	dialer         *websocket.Dialer
	logger         zerolog.Logger

	mu      sync.Mutex
	current *Conn
}

// NewManager creates a connection manager for one endpoint base.
func NewManager(base, fallbackPrefix string, logger zerolog.Logger) *Manager {
	return &Manager{
		base:           strings.TrimRight(base, "/"),
		fallbackPrefix: fallbackPrefix,
		dialer:         websocket.DefaultDialer,
		logger:         logger,
	}
}

// targetURL builds the dial target for a room path.
func (m *Manager) targetURL(prefix, wsPath, visitorToken string) string {
	return m.base + prefix + wsPath + "?visitor=" + url.QueryEscape(visitorToken)
}

// Connect opens the live connection for a room. If the primary path fails to
// establish, the alternate-prefixed path is tried once, transparently; some
// reverse proxies rewrite the routing segment and only one variant reaches
// the backend. A dial failure on both maps to connecting→disconnected.
func (m *Manager) Connect(ctx context.Context, wsPath, visitorToken string) (*Conn, error) {
	m.mu.Lock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
	m.mu.Unlock()

	primary := m.targetURL("", wsPath, visitorToken)
	sock, _, err := m.dialer.DialContext(ctx, primary, nil)
	if err != nil && m.fallbackPrefix != "" {
		alt := m.targetURL(m.fallbackPrefix, wsPath, visitorToken)
		m.logger.Debug().Str("primary", primary).Str("fallback", alt).Err(err).
			Msg("primary connection path failed, trying fallback")
		sock, _, err = m.dialer.DialContext(ctx, alt, nil)
	}
	if err != nil {
		return nil, err
	}

	c := &Conn{
		sock:   sock,
		events: make(chan Event, 16),
		status: StatusOpen,
		logger: m.logger,
	}
	go c.readLoop()

	m.mu.Lock()
	m.current = c
	m.mu.Unlock()
	return c, nil
}

// Close tears down the current connection, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}

// Conn is one live connection. Its event channel emits an open transition,
// then inbound messages, then a final disconnected transition before
// closing. It never reconnects on its own.
type Conn struct {
	sock   *websocket.Conn
	events chan Event
	logger zerolog.Logger

	mu     sync.Mutex
	status Status
	closed bool
}

// Events returns the ordered event stream. The channel closes after the
// disconnected transition is delivered.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Status returns the current connection state.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Send writes one outbound frame. It fails with ErrNotOpen unless the
// connection is open.
func (c *Conn) Send(frame OutboundFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusOpen {
		return ErrNotOpen
	}
	return c.sock.WriteJSON(frame)
}

// Close performs the close handshake and tears down the transport. The read
// loop observes the closed transport and emits the disconnected transition.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.status = StatusClosing
	c.mu.Unlock()

	c.sock.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.sock.Close()
}

// readLoop is the sole reader. It runs until the transport fails or is
// closed, emitting events in arrival order.
func (c *Conn) readLoop() {
	defer close(c.events)

	open := StatusOpen
	c.events <- Event{Status: &open}

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.status = StatusDisconnected
			c.closed = true
			c.mu.Unlock()
			c.sock.Close()

			metrics.Disconnects.Inc()
			down := StatusDisconnected
			c.events <- Event{Status: &down}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Partial or corrupt frames are dropped; the stream stays up.
			c.logger.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		if frame.Message == "" {
			continue
		}

		msg := models.ChatMessage{
			ID:          frame.ID,
			ClientMsgID: frame.ClientMsgID,
			Sender:      frame.SenderType,
			Text:        frame.Message,
			CreatedAt:   frame.CreatedAt,
		}
		c.events <- Event{Message: &msg}
	}
}
