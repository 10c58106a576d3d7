package timeline

import (
	"testing"
	"time"

	"github.com/Sirojiddin1dev/carinfopro/internal/models"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestAddOnce(t *testing.T) {
	tl := New()
	msg := models.ChatMessage{ID: "m1", Sender: models.SenderOwner, Text: "hi"}

	if !tl.Add(msg) {
		t.Fatal("first add should be accepted")
	}
	if tl.Add(msg) {
		t.Fatal("second add of the same message should be rejected")
	}
	if tl.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", tl.Len())
	}
}

func TestClientIDWinsOverServerID(t *testing.T) {
	// Local echo carries only the client ID; the stream echo carries both.
	// They must collapse to one message.
	echo := models.ChatMessage{ClientMsgID: "abc", Sender: models.SenderVisitor, Text: "hello"}
	streamed := models.ChatMessage{ID: "m9", ClientMsgID: "abc", Sender: models.SenderVisitor, Text: "hello"}

	tl := New()
	if !tl.Add(echo) {
		t.Fatal("echo should be accepted")
	}
	if tl.Add(streamed) {
		t.Fatal("stream echo with the same client ID should be a duplicate")
	}
}

func TestServerIDFallback(t *testing.T) {
	a := models.ChatMessage{ID: "m1", Sender: models.SenderOwner, Text: "hi"}
	b := models.ChatMessage{ID: "m2", Sender: models.SenderOwner, Text: "hi"}

	tl := New()
	if !tl.Add(a) || !tl.Add(b) {
		t.Fatal("distinct server IDs should both be accepted")
	}
}

func TestCompositeFallback(t *testing.T) {
	// Backlog entries from very old backends may carry no IDs at all.
	a := models.ChatMessage{Sender: models.SenderOwner, Text: "hi", CreatedAt: ts("2026-01-01T00:00:00Z")}
	b := models.ChatMessage{Sender: models.SenderOwner, Text: "hi", CreatedAt: ts("2026-01-01T00:00:00Z")}
	c := models.ChatMessage{Sender: models.SenderOwner, Text: "hi", CreatedAt: ts("2026-01-01T00:00:05Z")}

	tl := New()
	if !tl.Add(a) {
		t.Fatal("first composite should be accepted")
	}
	if tl.Add(b) {
		t.Fatal("same sender+time+text should be a duplicate")
	}
	if !tl.Add(c) {
		t.Fatal("different timestamp should not be a duplicate")
	}
}

func TestDegenerateFallbackUsesDisplayMinute(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC)
	old := clock
	clock = func() time.Time { return fixed }
	defer func() { clock = old }()

	a := models.ChatMessage{Sender: models.SenderVisitor, Text: "hey"}
	b := models.ChatMessage{Sender: models.SenderVisitor, Text: "hey"}

	tl := New()
	if !tl.Add(a) {
		t.Fatal("first add should be accepted")
	}
	if tl.Add(b) {
		t.Fatal("same sender+text within the same minute should be a duplicate")
	}

	clock = func() time.Time { return fixed.Add(time.Minute) }
	if !tl.Add(b) {
		t.Fatal("a minute later the same text is a new message")
	}
}

func TestAppendOrderPreserved(t *testing.T) {
	// Older timestamp added later must stay later: arrival order wins.
	tl := New()
	tl.Add(models.ChatMessage{ID: "m2", Sender: models.SenderOwner, Text: "second", CreatedAt: ts("2026-01-01T00:00:05Z")})
	tl.Add(models.ChatMessage{ID: "m1", Sender: models.SenderOwner, Text: "first", CreatedAt: ts("2026-01-01T00:00:00Z")})

	msgs := tl.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "m2" || msgs[1].ID != "m1" {
		t.Fatalf("expected arrival order m2,m1; got %s,%s", msgs[0].ID, msgs[1].ID)
	}
}

func TestClear(t *testing.T) {
	tl := New()
	msg := models.ChatMessage{ID: "m1", Sender: models.SenderOwner, Text: "hi"}
	tl.Add(msg)
	tl.Clear()

	if tl.Len() != 0 {
		t.Fatal("clear should empty the timeline")
	}
	if !tl.Add(msg) {
		t.Fatal("clear should also reset the key set")
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	tl := New()
	tl.Add(models.ChatMessage{ID: "m1", Sender: models.SenderOwner, Text: "hi"})

	msgs := tl.Messages()
	msgs[0].Text = "mutated"

	if tl.Messages()[0].Text != "hi" {
		t.Fatal("Messages must return a copy")
	}
}
