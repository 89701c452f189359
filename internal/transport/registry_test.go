package transport

import (
	"context"
	"testing"
)

type stubConn struct {
	remote string
	closed bool
	reason string
}

func (c *stubConn) RemoteID() string                          { return c.remote }
func (c *stubConn) ReadFrame(context.Context) ([]byte, error) { return nil, ErrTransportLost }
func (c *stubConn) WriteFrame(context.Context, []byte) error  { return nil }
func (c *stubConn) WriteEvent(context.Context, any) error     { return nil }

func (c *stubConn) Close(reason string) error {
	c.closed = true
	c.reason = reason
	return nil
}

func TestReplaceClosesPrevious(t *testing.T) {
	r := NewRegistry()

	a := &stubConn{remote: "r1"}
	if prev := r.Replace("s1", a); prev {
		t.Fatal("first attach has nothing to replace")
	}

	b := &stubConn{remote: "r2"}
	if prev := r.Replace("s1", b); !prev {
		t.Fatal("second attach should replace the first")
	}
	if !a.closed || a.reason != "replaced" {
		t.Fatalf("previous conn closed=%v reason=%q", a.closed, a.reason)
	}
	if r.Get("s1") != Conn(b) {
		t.Fatal("registry should hold the replacing conn")
	}
}

func TestRemoveReleasesSession(t *testing.T) {
	r := NewRegistry()
	r.Replace("s1", &stubConn{remote: "r1"})
	r.Remove("s1")
	if r.Get("s1") != nil {
		t.Fatal("removed session should have no conn")
	}
	r.Remove("s1") // no-op
}
