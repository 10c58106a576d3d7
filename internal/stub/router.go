package stub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	// The stub serves local development; any page may embed the widget.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Router builds the stub's HTTP surface.
func (s *Service) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)

	// CORS - the widget is served from the owner's page, not from here
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.handleHealth)

	r.Post("/api/chat/start/", s.handleStart)
	r.Get("/api/chat/rooms/{roomID}/messages/", s.handleHistory)

	// The live socket, plus the path variant a rewriting reverse proxy
	// exposes. Both reach the same handler.
	r.Get("/ws/chat/{roomID}/", s.handleSocket)
	r.Get("/backend/ws/chat/{roomID}/", s.handleSocket)

	return r
}

// requestLogger returns a request logging middleware using zerolog.
func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", chimw.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStart creates a room, or continues an existing one when the request
// carries a still-valid room and token pair.
func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       string `json:"user_id"`
		VisitorName  string `json:"visitor_name"`
		RoomID       string `json:"room_id"`
		VisitorToken string `json:"visitor_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeDetail(w, http.StatusBadRequest, "user_id is required")
		return
	}

	roomID, token := req.RoomID, req.VisitorToken
	if existing := s.room(roomID); existing == nil || existing.visitorToken != token {
		roomID, token = s.CreateRoom(req.UserID, req.VisitorName)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"room_id":       roomID,
		"visitor_token": token,
		"ws_path":       "/ws/chat/" + roomID + "/",
	})
}

// handleHistory returns the room's message log, oldest first.
func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	room := s.room(chi.URLParam(r, "roomID"))
	if room == nil {
		writeDetail(w, http.StatusNotFound, "room not found")
		return
	}
	if r.URL.Query().Get("visitor") != room.visitorToken {
		writeDetail(w, http.StatusForbidden, "invalid visitor token")
		return
	}

	msgs := room.snapshot()
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]any{
			"id":          m.ID,
			"room_id":     room.id,
			"sender_type": m.SenderType,
			"content":     m.Content,
			"created_at":  m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSocket upgrades the live connection and relays visitor messages.
func (s *Service) handleSocket(w http.ResponseWriter, r *http.Request) {
	room := s.room(chi.URLParam(r, "roomID"))
	if room == nil {
		writeDetail(w, http.StatusNotFound, "room not found")
		return
	}
	if r.URL.Query().Get("visitor") != room.visitorToken {
		writeDetail(w, http.StatusForbidden, "invalid visitor token")
		return
	}

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	room.attach(sock)
	defer func() {
		room.detach(sock)
		sock.Close()
	}()

	for {
		var frame struct {
			Message     string `json:"message"`
			ClientMsgID string `json:"client_msg_id"`
		}
		if err := sock.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Message == "" {
			continue
		}
		s.store(room, "visitor", frame.Message, frame.ClientMsgID)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
