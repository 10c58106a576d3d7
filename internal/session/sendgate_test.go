package session

import (
	"errors"
	"testing"
	"time"
)

func TestTrySendTrimsAndTags(t *testing.T) {
	g := NewSendGate(0)

	frame, err := g.TrySend("  hello there  ")
	if err != nil {
		t.Fatal(err)
	}
	if frame.Message != "hello there" {
		t.Fatalf("expected trimmed text, got %q", frame.Message)
	}
	if len(frame.ClientMsgID) != 26 {
		t.Fatalf("expected a ULID client message ID, got %q", frame.ClientMsgID)
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	g := NewSendGate(0)

	if _, err := g.TrySend("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestDebounceWindow(t *testing.T) {
	g := NewSendGate(500 * time.Millisecond)
	now := time.Unix(1000, 0)
	g.now = func() time.Time { return now }

	if _, err := g.TrySend("first"); err != nil {
		t.Fatal(err)
	}

	now = now.Add(200 * time.Millisecond)
	if _, err := g.TrySend("second"); !errors.Is(err, ErrTooSoon) {
		t.Fatalf("expected ErrTooSoon inside the window, got %v", err)
	}

	now = now.Add(400 * time.Millisecond)
	if _, err := g.TrySend("third"); err != nil {
		t.Fatalf("expected send after the window to pass, got %v", err)
	}
}

func TestRejectedSendDoesNotResetWindow(t *testing.T) {
	g := NewSendGate(500 * time.Millisecond)
	now := time.Unix(1000, 0)
	g.now = func() time.Time { return now }

	if _, err := g.TrySend("first"); err != nil {
		t.Fatal(err)
	}

	// Hammering inside the window must not push the window forward.
	for i := 0; i < 3; i++ {
		now = now.Add(100 * time.Millisecond)
		if _, err := g.TrySend("spam"); !errors.Is(err, ErrTooSoon) {
			t.Fatalf("expected ErrTooSoon, got %v", err)
		}
	}

	now = now.Add(300 * time.Millisecond) // 600ms after the accepted send
	if _, err := g.TrySend("later"); err != nil {
		t.Fatalf("expected send to pass once the accepted window expired, got %v", err)
	}
}

func TestClientMessageIDsAreUnique(t *testing.T) {
	g := NewSendGate(0)

	a, err := g.TrySend("one")
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.TrySend("two")
	if err != nil {
		t.Fatal(err)
	}
	if a.ClientMsgID == b.ClientMsgID {
		t.Fatalf("expected distinct client message IDs, got %q twice", a.ClientMsgID)
	}
}
