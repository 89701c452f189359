package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"vox/agent/internal/recog"
	"vox/agent/internal/turn"
)

func newTestManager() *Manager {
	return NewManager(Collaborators{
		NewRecognizer: func(string) recog.Recognizer { return newFakeRecognizer() },
		Backend:       &fakeBackend{reply: "ok."},
		Synth:         &fakeSynth{chunksPerUnit: 1},
	}, testOptions(), nil)
}

func TestTransportCarriesAtMostOneSession(t *testing.T) {
	m := newTestManager()
	defer m.Shutdown("test done")

	connA := newFakeConn("remote-1")
	if _, err := m.CreateSession(connA, Config{ID: "a", Agent: "x", Language: "en"}); err != nil {
		t.Fatalf("first session: %v", err)
	}

	connB := newFakeConn("remote-1") // same endpoint
	if _, err := m.CreateSession(connB, Config{ID: "b", Agent: "x", Language: "en"}); !errors.Is(err, ErrTransportBound) {
		t.Fatalf("expected ErrTransportBound, got %v", err)
	}

	// Destroying the holder frees the endpoint.
	if err := m.DestroySession("a", "test"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := m.CreateSession(connB, Config{ID: "b", Agent: "x", Language: "en"}); err != nil {
		t.Fatalf("rebind after destroy: %v", err)
	}
}

func TestReattachReplacesTransport(t *testing.T) {
	m := newTestManager()
	defer m.Shutdown("test done")

	connA := newFakeConn("r1")
	if _, err := m.CreateSession(connA, Config{ID: "s1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// A reconnect presenting the same session id takes over the transport.
	connB := newFakeConn("r2")
	if _, err := m.CreateSession(connB, Config{ID: "s1"}); err != nil {
		t.Fatalf("reattach: %v", err)
	}
	if m.Count() != 1 {
		t.Fatalf("count %d, want 1", m.Count())
	}
	select {
	case <-connA.done:
	default:
		t.Fatal("old transport should be closed on replacement")
	}
	if c := m.Transport("s1"); c == nil || c.RemoteID() != "r2" {
		t.Fatal("registry should hold the replacing connection")
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	m := newTestManager()

	s, err := m.CreateSession(newFakeConn("r1"), Config{ID: "s1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.DestroySession("s1", "bye"); err != nil {
		t.Fatalf("first destroy: %v", err)
	}
	if s.Status() != StatusClosed {
		t.Fatalf("status %s, want CLOSED", s.Status())
	}
	if err := m.DestroySession("s1", "bye again"); err != nil {
		t.Fatalf("second destroy must be a no-op, got %v", err)
	}
	if err := m.DestroySession("never-existed", "x"); err != nil {
		t.Fatalf("destroying an unknown session must be a no-op, got %v", err)
	}
	if m.Count() != 0 {
		t.Fatalf("count %d", m.Count())
	}
	if m.Transport("s1") != nil {
		t.Fatal("registry should release the connection on destroy")
	}
}

func TestTransportLossDestroysSession(t *testing.T) {
	m := newTestManager()

	conn := newFakeConn("r1")
	if _, err := m.CreateSession(conn, Config{ID: "s1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = conn.Close("network went away")

	waitFor(t, "session torn down after transport loss", func() bool {
		return m.Count() == 0
	})
	evs := m.Journal().List("s1")
	var sawEnd bool
	for _, ev := range evs {
		if ev.Type == "session_ended" {
			sawEnd = true
		}
	}
	if !sawEnd {
		t.Fatal("expected a session_ended journal entry")
	}
}

func TestIdleEviction(t *testing.T) {
	rec := newFakeRecognizer()
	opts := testOptions()
	opts.IdleTimeout = 40 * time.Millisecond
	m := NewManager(Collaborators{
		NewRecognizer: func(string) recog.Recognizer { return rec },
		Backend:       &fakeBackend{reply: "ok."},
		Synth:         &fakeSynth{chunksPerUnit: 1},
	}, opts, nil)

	if _, err := m.CreateSession(newFakeConn("r1"), Config{ID: "s1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go m.RunEvictor(ctx)

	waitFor(t, "idle session evicted", func() bool { return m.Count() == 0 })
}

func TestShutdownDestroysEverything(t *testing.T) {
	m := newTestManager()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := m.CreateSession(newFakeConn("r-"+id), Config{ID: id}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	m.Shutdown("process exit")
	if m.Count() != 0 {
		t.Fatalf("count %d after shutdown", m.Count())
	}
}

func TestRouteInboundFrame(t *testing.T) {
	m := newTestManager()
	defer m.Shutdown("test done")

	if err := m.RouteInboundFrame("nope", silencePCM(160)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	s, err := m.CreateSession(newFakeConn("r1"), Config{ID: "s1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := m.RouteInboundFrame("s1", tonePCM(160, 3000)); err != nil {
			t.Fatalf("route: %v", err)
		}
	}
	if s.TurnState() != turn.UserSpeaking {
		t.Fatalf("routed audio should open the user turn, state %v", s.TurnState())
	}
}
