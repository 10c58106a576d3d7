// Package session drives the lifecycle of one visitor chat: deciding
// between resuming a stored room and starting a fresh one, loading the
// backlog before the live stream, and surfacing every failure as a defined,
// retryable status.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Sirojiddin1dev/carinfopro/internal/config"
	"github.com/Sirojiddin1dev/carinfopro/internal/identity"
	"github.com/Sirojiddin1dev/carinfopro/internal/metrics"
	"github.com/Sirojiddin1dev/carinfopro/internal/models"
	"github.com/Sirojiddin1dev/carinfopro/internal/rest"
	"github.com/Sirojiddin1dev/carinfopro/internal/timeline"
	"github.com/Sirojiddin1dev/carinfopro/internal/ws"
)

// State is the controller's position in the session lifecycle.
type State int

const (
	StateIdle State = iota
	StateResuming
	StateStarting
	StateHistoryLoading
	StateConnecting
	StateLive
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateResuming:
		return "resuming"
	case StateStarting:
		return "starting"
	case StateHistoryLoading:
		return "history_loading"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// Status is what the embedding UI shows the user. Every path through the
// controller, including every failure, ends in one of these.
type Status struct {
	State     State
	Message   string // user-facing detail, set for error states
	Retryable bool   // whether a manual retry is armed
}

// ErrNotConnected is returned by Send when no live connection is open.
var ErrNotConnected = errors.New("not connected")

// Controller is the session state machine for one chat widget instance.
// All room state lives in its fields; two widgets on one page are two
// controllers that cannot interfere.
//
// Reentrancy: a new Open or Retry supersedes any in-flight sequence. Each
// sequence captures its room and token locally and checks its generation
// before applying results, so a stale backlog fetch resolving late can
// never touch the session that replaced it.
type Controller struct {
	// Callbacks, set before Open. OnStatus receives every user-visible
	// transition; OnMessage receives every message newly added to the
	// timeline, backlog and live alike.
	OnStatus  func(Status)
	OnMessage func(models.ChatMessage)

	// LocalEcho renders accepted sends immediately instead of waiting for
	// the stream echo. Enable only against backends that echo client_msg_id,
	// otherwise the echo arrives under a different dedup key and duplicates.
	LocalEcho bool

	cfg    *config.Config
	store  identity.Store
	api    *rest.Client
	conns  *ws.Manager
	gate   *SendGate
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	gen      uint64 // session generation, bumped by every new sequence
	ownerID  string
	roomID   string
	token    string
	conn     *ws.Conn
	timeline *timeline.Timeline
}

// NewController creates a controller wired to its collaborators.
func NewController(cfg *config.Config, store identity.Store, api *rest.Client, conns *ws.Manager, logger zerolog.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		store:    store,
		api:      api,
		conns:    conns,
		gate:     NewSendGate(cfg.SendInterval),
		logger:   logger,
		state:    StateIdle,
		timeline: timeline.New(),
	}
}

// wsPathFor reconstructs the live connection path for a room. The start
// response carries the path explicitly; resumed rooms derive it.
func wsPathFor(roomID string) string {
	return "/ws/chat/" + roomID + "/"
}

// Open activates the session for one owner. Resume parameters from a
// shareable link win over the stored record; either resumes the room,
// otherwise a fresh one is started.
func (c *Controller) Open(ctx context.Context, ownerID string, resume *ResumeParams) error {
	c.mu.Lock()
	c.ownerID = ownerID
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	cand := resume
	if cand == nil {
		rec, err := c.store.Load(ctx, ownerID)
		if err != nil {
			// Unreadable storage is treated like an absent record.
			c.logger.Warn().Err(err).Msg("identity store load failed")
		}
		if rec != nil && rec.RoomID != "" && rec.VisitorToken != "" {
			cand = &ResumeParams{RoomID: rec.RoomID, VisitorToken: rec.VisitorToken}
		}
	}

	if cand != nil {
		return c.resumeRoom(ctx, gen, *cand)
	}
	return c.startRoom(ctx, gen, "", "")
}

// Retry restarts the starting sequence from the first candidate base,
// carrying the current room and token so the service may continue the room
// if it is still valid. It is the only reconnection path; nothing retries
// in the background against a possibly revoked token.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	roomID, token := c.roomID, c.token
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return c.startRoom(ctx, gen, roomID, token)
}

// resumeRoom re-attaches to a previously issued room. The backlog fetch
// doubles as the validity probe: if it fails, the stored identity is
// discarded and a fresh start follows. The fallback is silent; an expired
// room is a normal event, not an error the visitor should see.
func (c *Controller) resumeRoom(ctx context.Context, gen uint64, p ResumeParams) error {
	c.setState(gen, StateResuming, "", false)

	backlog, err := c.fetchHistory(ctx, p.RoomID, p.VisitorToken)
	if err != nil {
		c.logger.Info().Err(err).Str("room_id", p.RoomID).Msg("stored session no longer valid, starting fresh")
		if cerr := c.store.Clear(ctx, c.currentOwner()); cerr != nil {
			c.logger.Warn().Err(cerr).Msg("failed to clear invalid session record")
		}
		return c.startRoom(ctx, gen, "", "")
	}

	if !c.adopt(gen, p.RoomID, p.VisitorToken, backlog) {
		return nil
	}

	// The probe confirmed the pair; make sure it is what's stored, since
	// link-carried parameters may be newer than the record.
	rec := &models.SessionRecord{OwnerID: c.currentOwner(), RoomID: p.RoomID, VisitorToken: p.VisitorToken}
	if err := c.store.Save(ctx, rec); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist session record")
	}

	return c.connect(ctx, gen, wsPathFor(p.RoomID), p.VisitorToken)
}

// startRoom issues the start call against each candidate base in order.
// prevRoomID and prevToken, when set, request continuation of an existing
// room rather than a fresh one.
func (c *Controller) startRoom(ctx context.Context, gen uint64, prevRoomID, prevToken string) error {
	c.setState(gen, StateStarting, "", false)

	req := rest.StartRequest{
		UserID:       c.currentOwner(),
		VisitorName:  c.cfg.VisitorName,
		RoomID:       prevRoomID,
		VisitorToken: prevToken,
	}

	var resp *rest.StartResponse
	var lastErr error
	for _, base := range c.cfg.BaseURLs {
		resp, lastErr = c.api.StartRoom(ctx, base, req)
		if lastErr == nil {
			metrics.StartAttempts.WithLabelValues("ok").Inc()
			break
		}
		metrics.StartAttempts.WithLabelValues("error").Inc()
		c.logger.Warn().Err(lastErr).Str("base", base).Msg("start call failed")
	}
	if resp == nil {
		c.setState(gen, StateError, "could not reach the chat service", true)
		return lastErr
	}

	if !c.adopt(gen, resp.RoomID, resp.VisitorToken, nil) {
		return nil
	}

	rec := &models.SessionRecord{OwnerID: c.currentOwner(), RoomID: resp.RoomID, VisitorToken: resp.VisitorToken}
	if err := c.store.Save(ctx, rec); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist session record")
	}

	// Backlog after a fresh start is supplementary; the live stream is
	// authoritative, so a failure here only skips population.
	c.setState(gen, StateHistoryLoading, "", false)
	if backlog, err := c.fetchHistory(ctx, resp.RoomID, resp.VisitorToken); err == nil {
		c.applyBacklog(gen, backlog)
	} else {
		c.logger.Debug().Err(err).Msg("backlog fetch after start failed, continuing without it")
	}

	path := resp.WSPath
	if path == "" {
		path = wsPathFor(resp.RoomID)
	}
	return c.connect(ctx, gen, path, resp.VisitorToken)
}

// fetchHistory tries the backlog fetch against each candidate base in
// order, returning the first success.
func (c *Controller) fetchHistory(ctx context.Context, roomID, token string) ([]models.ChatMessage, error) {
	var lastErr error
	for _, base := range c.cfg.BaseURLs {
		msgs, err := c.api.FetchHistory(ctx, base, roomID, token)
		if err == nil {
			metrics.HistoryFetches.WithLabelValues("ok").Inc()
			return msgs, nil
		}
		lastErr = err
	}
	metrics.HistoryFetches.WithLabelValues("error").Inc()
	return nil, lastErr
}

// connect hands the session to the connection manager and starts the event
// dispatcher. The backlog is already applied by now, so the fill-then-stream
// order holds.
func (c *Controller) connect(ctx context.Context, gen uint64, wsPath, token string) error {
	c.setState(gen, StateConnecting, "", false)

	conn, err := c.conns.Connect(ctx, wsPath, token)
	if err != nil {
		// A room that no longer accepts connections is treated like a dead
		// session: surface it and arm the manual retry.
		c.setState(gen, StateError, "chat connection failed", true)
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	go c.dispatch(gen, conn)
	return nil
}

// dispatch is the single consumer of connection events for one session
// generation. Handlers run to completion in arrival order; no two
// transitions interleave.
func (c *Controller) dispatch(gen uint64, conn *ws.Conn) {
	for ev := range conn.Events() {
		switch {
		case ev.Status != nil:
			switch *ev.Status {
			case ws.StatusOpen:
				c.setState(gen, StateLive, "", false)
			case ws.StatusDisconnected:
				c.setState(gen, StateError, "connection lost", true)
			}
		case ev.Message != nil:
			c.deliver(gen, *ev.Message)
		}
	}
}

// deliver adds one live message to the timeline, dropping duplicates of
// backlog entries and of local echoes.
func (c *Controller) deliver(gen uint64, msg models.ChatMessage) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	added := c.timeline.Add(msg)
	fn := c.OnMessage
	c.mu.Unlock()

	if !added {
		metrics.DuplicatesDropped.Inc()
		return
	}
	metrics.MessagesReceived.Inc()
	if fn != nil {
		fn(msg)
	}
}

// Send pushes one user message through the gate and onto the live
// connection.
func (c *Controller) Send(text string) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	gen := c.gen
	c.mu.Unlock()

	if state != StateLive || conn == nil || conn.Status() != ws.StatusOpen {
		metrics.SendsRejected.WithLabelValues("not_connected").Inc()
		return ErrNotConnected
	}

	frame, err := c.gate.TrySend(text)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyMessage):
			metrics.SendsRejected.WithLabelValues("empty").Inc()
		case errors.Is(err, ErrTooSoon):
			metrics.SendsRejected.WithLabelValues("debounce").Inc()
		}
		return err
	}

	if err := conn.Send(frame); err != nil {
		metrics.SendsRejected.WithLabelValues("not_connected").Inc()
		return ErrNotConnected
	}
	metrics.MessagesSent.Inc()

	if c.LocalEcho {
		c.deliver(gen, models.ChatMessage{
			ClientMsgID: frame.ClientMsgID,
			Sender:      models.SenderVisitor,
			Text:        frame.Message,
		})
	}
	return nil
}

// Close tears down the session. The controller cannot be reused afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.state = StateClosed
	c.gen++
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Messages returns a copy of the current timeline in render order.
func (c *Controller) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeline.Messages()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ShareURL returns the configured page URL rewritten with the current
// room's resume parameters.
func (c *Controller) ShareURL() (string, error) {
	c.mu.Lock()
	roomID, token := c.roomID, c.token
	c.mu.Unlock()
	if roomID == "" || token == "" {
		return "", errors.New("no active room")
	}
	return ShareURL(c.cfg.PageURL, roomID, token)
}

// adopt installs a room as the current session and fills the timeline from
// its backlog, unless the sequence has been superseded. It reports whether
// the caller still owns the session.
func (c *Controller) adopt(gen uint64, roomID, token string, backlog []models.ChatMessage) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.roomID = roomID
	c.token = token
	c.timeline.Clear()
	var added []models.ChatMessage
	for _, msg := range backlog {
		if c.timeline.Add(msg) {
			added = append(added, msg)
		}
	}
	fn := c.OnMessage
	c.mu.Unlock()

	if fn != nil {
		for _, msg := range added {
			fn(msg)
		}
	}
	return true
}

// applyBacklog fills the timeline from a post-start backlog fetch.
func (c *Controller) applyBacklog(gen uint64, backlog []models.ChatMessage) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	var added []models.ChatMessage
	for _, msg := range backlog {
		if c.timeline.Add(msg) {
			added = append(added, msg)
		}
	}
	fn := c.OnMessage
	c.mu.Unlock()

	if fn != nil {
		for _, msg := range added {
			fn(msg)
		}
	}
}

// setState records a transition and reports it, unless the sequence has
// been superseded.
func (c *Controller) setState(gen uint64, state State, msg string, retryable bool) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = state
	fn := c.OnStatus
	c.mu.Unlock()

	if fn != nil {
		fn(Status{State: state, Message: msg, Retryable: retryable})
	}
}

func (c *Controller) currentOwner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownerID
}
