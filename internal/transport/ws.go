package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	ws "nhooyr.io/websocket"
)

// WSConn carries audio and events over one websocket: binary messages are
// PCM16LE audio, text messages are JSON events.
type WSConn struct {
	c        *ws.Conn
	remoteID string
}

// Accept upgrades an HTTP request into a transport connection. The remote
// id is the requester's address unless a stable id was negotiated upstream.
func Accept(w http.ResponseWriter, r *http.Request, remoteID string) (*WSConn, error) {
	c, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return nil, err
	}
	if remoteID == "" {
		remoteID = r.RemoteAddr
	}
	return &WSConn{c: c, remoteID: remoteID}, nil
}

func (t *WSConn) RemoteID() string { return t.remoteID }

func (t *WSConn) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := t.c.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransportLost, err)
		}
		if typ == ws.MessageBinary {
			return data, nil
		}
		// Text frames from the client (UI acks etc.) are not audio; skip.
	}
}

func (t *WSConn) WriteFrame(ctx context.Context, pcm []byte) error {
	if err := t.c.Write(ctx, ws.MessageBinary, pcm); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportLost, err)
	}
	return nil
}

func (t *WSConn) WriteEvent(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := t.c.Write(ctx, ws.MessageText, b); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportLost, err)
	}
	return nil
}

func (t *WSConn) Close(reason string) error {
	return t.c.Close(ws.StatusNormalClosure, reason)
}
