package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{}

// echoServer accepts a connection, sends the given raw frames, then keeps
// the connection open until the client closes it.
func echoServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, f := range frames {
			sock.WriteMessage(websocket.TextMessage, []byte(f))
		}
		// Drain until the client goes away.
		for {
			if _, _, err := sock.ReadMessage(); err != nil {
				sock.Close()
				return
			}
		}
	}))
}

func wsBase(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestConnectEmitsOpenThenMessages(t *testing.T) {
	srv := echoServer(t,
		`{"id":"m1","room_id":"r1","sender_type":"owner","message":"hi","created_at":"2026-01-01T00:00:00Z"}`,
	)
	defer srv.Close()

	m := NewManager(wsBase(srv), "", zerolog.Nop())
	conn, err := m.Connect(context.Background(), "/ws/chat/r1/", "t1")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	ev := nextEvent(t, conn.Events())
	if ev.Status == nil || *ev.Status != StatusOpen {
		t.Fatalf("expected open transition first, got %+v", ev)
	}

	ev = nextEvent(t, conn.Events())
	if ev.Message == nil {
		t.Fatalf("expected a message event, got %+v", ev)
	}
	if ev.Message.ID != "m1" || ev.Message.Sender != "owner" || ev.Message.Text != "hi" {
		t.Fatalf("unexpected message: %+v", ev.Message)
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	srv := echoServer(t,
		`{{{not json`,
		`{"weird": true}`,
		`{"id":"m2","room_id":"r1","sender_type":"visitor","message":"still here"}`,
	)
	defer srv.Close()

	m := NewManager(wsBase(srv), "", zerolog.Nop())
	conn, err := m.Connect(context.Background(), "/ws/chat/r1/", "t1")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	nextEvent(t, conn.Events()) // open

	ev := nextEvent(t, conn.Events())
	if ev.Message == nil || ev.Message.ID != "m2" {
		t.Fatalf("expected the valid frame to survive, got %+v", ev)
	}
}

func TestCloseEmitsDisconnectedAndClosesChannel(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	m := NewManager(wsBase(srv), "", zerolog.Nop())
	conn, err := m.Connect(context.Background(), "/ws/chat/r1/", "t1")
	if err != nil {
		t.Fatal(err)
	}

	nextEvent(t, conn.Events()) // open
	conn.Close()

	ev := nextEvent(t, conn.Events())
	if ev.Status == nil || *ev.Status != StatusDisconnected {
		t.Fatalf("expected disconnected transition, got %+v", ev)
	}

	select {
	case _, ok := <-conn.Events():
		if ok {
			t.Fatal("expected channel to close after disconnected")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close")
	}

	if conn.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected status, got %v", conn.Status())
	}
}

func TestSendRequiresOpen(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	m := NewManager(wsBase(srv), "", zerolog.Nop())
	conn, err := m.Connect(context.Background(), "/ws/chat/r1/", "t1")
	if err != nil {
		t.Fatal(err)
	}

	if err := conn.Send(OutboundFrame{Message: "hello"}); err != nil {
		t.Fatalf("send on an open connection should work: %v", err)
	}

	conn.Close()
	if err := conn.Send(OutboundFrame{Message: "late"}); err != ErrNotOpen {
		t.Fatalf("expected ErrNotOpen after close, got %v", err)
	}
}

func TestFallbackPrefixTriedOnce(t *testing.T) {
	// Only the prefixed route exists, as behind a rewriting reverse proxy.
	mux := http.NewServeMux()
	mux.HandleFunc("/backend/ws/chat/r1/", func(w http.ResponseWriter, r *http.Request) {
		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := sock.ReadMessage(); err != nil {
				sock.Close()
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := NewManager(wsBase(srv), "/backend", zerolog.Nop())
	conn, err := m.Connect(context.Background(), "/ws/chat/r1/", "t1")
	if err != nil {
		t.Fatalf("expected fallback dial to succeed: %v", err)
	}
	defer conn.Close()

	ev := nextEvent(t, conn.Events())
	if ev.Status == nil || *ev.Status != StatusOpen {
		t.Fatalf("expected open transition, got %+v", ev)
	}
}

func TestConnectFailsWhenBothPathsFail(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	m := NewManager(wsBase(srv), "/backend", zerolog.Nop())
	if _, err := m.Connect(context.Background(), "/ws/chat/r1/", "t1"); err == nil {
		t.Fatal("expected dial failure")
	}
}

func TestConnectClosesPreviousConnection(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	m := NewManager(wsBase(srv), "", zerolog.Nop())
	first, err := m.Connect(context.Background(), "/ws/chat/r1/", "t1")
	if err != nil {
		t.Fatal(err)
	}
	nextEvent(t, first.Events()) // open

	second, err := m.Connect(context.Background(), "/ws/chat/r2/", "t2")
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	// The first connection must observe its teardown.
	for ev := range first.Events() {
		if ev.Status != nil && *ev.Status == StatusDisconnected {
			return
		}
	}
	t.Fatal("first connection never reported disconnected")
}

func TestVisitorTokenInQuery(t *testing.T) {
	gotToken := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken <- r.URL.Query().Get("visitor")
		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sock.Close()
	}))
	defer srv.Close()

	m := NewManager(wsBase(srv), "", zerolog.Nop())
	conn, err := m.Connect(context.Background(), "/ws/chat/r1/", "secret token")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	select {
	case token := <-gotToken:
		if token != "secret token" {
			t.Fatalf("expected the visitor token in the query, got %q", token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the dial")
	}
}
