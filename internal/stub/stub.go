// Package stub is an in-memory double of the chat backend, used for local
// development and end-to-end runs of the client. It honors the same start,
// backlog, and live-socket contract the real service exposes, including the
// reverse-proxy path variant, but keeps everything in process memory.
package stub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// storedMessage is one timeline entry as the stub keeps it.
type storedMessage struct {
	ID          string
	SenderType  string
	Content     string
	CreatedAt   time.Time
	ClientMsgID string
}

// room is one visitor conversation: its credentials, its message log, and
// the live sockets attached to it.
type room struct {
	id           string
	ownerID      string
	visitorToken string
	visitorName  string

	mu       sync.Mutex
	messages []storedMessage
	socks    map[*websocket.Conn]struct{}
}

// Service holds the stub's state. Safe for concurrent use.
type Service struct {
	logger zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

// NewService creates an empty stub backend.
func NewService(logger zerolog.Logger) *Service {
	return &Service{
		logger: logger,
		rooms:  make(map[string]*room),
	}
}

// CreateRoom issues a new room for an owner and returns its credentials.
func (s *Service) CreateRoom(ownerID, visitorName string) (roomID, visitorToken string) {
	r := &room{
		id:           uuid.NewString(),
		ownerID:      ownerID,
		visitorToken: uuid.NewString(),
		visitorName:  visitorName,
		socks:        make(map[*websocket.Conn]struct{}),
	}
	s.mu.Lock()
	s.rooms[r.id] = r
	s.mu.Unlock()
	return r.id, r.visitorToken
}

// room looks up a room by ID.
func (s *Service) room(id string) *room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[id]
}

// SeedMessage plants a backlog entry directly, bypassing the socket. Used
// to simulate history that predates the current visit.
func (s *Service) SeedMessage(roomID, senderType, content string, at time.Time) bool {
	r := s.room(roomID)
	if r == nil {
		return false
	}
	r.mu.Lock()
	r.messages = append(r.messages, storedMessage{
		ID:         uuid.NewString(),
		SenderType: senderType,
		Content:    content,
		CreatedAt:  at,
	})
	r.mu.Unlock()
	return true
}

// BroadcastOwner stores an owner reply and pushes it to every attached
// socket, as the real backend does when the owner answers from their app.
func (s *Service) BroadcastOwner(roomID, content string) bool {
	r := s.room(roomID)
	if r == nil {
		return false
	}
	s.store(r, "owner", content, "")
	return true
}

// store appends a message to the room log and fans it out live. The echoed
// client_msg_id lets a sender reconcile its own message with the broadcast.
func (s *Service) store(r *room, senderType, content, clientMsgID string) storedMessage {
	msg := storedMessage{
		ID:          uuid.NewString(),
		SenderType:  senderType,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
		ClientMsgID: clientMsgID,
	}

	frame := map[string]any{
		"id":          msg.ID,
		"room_id":     r.id,
		"sender_type": msg.SenderType,
		"message":     msg.Content,
		"created_at":  msg.CreatedAt,
	}
	if msg.ClientMsgID != "" {
		frame["client_msg_id"] = msg.ClientMsgID
	}

	r.mu.Lock()
	r.messages = append(r.messages, msg)
	for sock := range r.socks {
		if err := sock.WriteJSON(frame); err != nil {
			delete(r.socks, sock)
			sock.Close()
		}
	}
	r.mu.Unlock()
	return msg
}

// attach registers a live socket on the room.
func (r *room) attach(sock *websocket.Conn) {
	r.mu.Lock()
	r.socks[sock] = struct{}{}
	r.mu.Unlock()
}

// detach removes a live socket from the room.
func (r *room) detach(sock *websocket.Conn) {
	r.mu.Lock()
	delete(r.socks, sock)
	r.mu.Unlock()
}

// snapshot copies the room's message log in append order.
func (r *room) snapshot() []storedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]storedMessage(nil), r.messages...)
}
