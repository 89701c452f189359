// Package transport is the boundary to the physical duplex audio channel.
// The core treats it as a black box: inbound PCM frames out, outbound PCM
// frames and transcript events in, plus a connect/disconnect lifecycle.
// Network negotiation lives entirely on the other side of this interface.
package transport

import (
	"context"
	"errors"
)

// ErrTransportLost marks a dropped connection. Fatal to the session.
var ErrTransportLost = errors.New("transport lost")

// Conn is one live duplex channel. Implementations must be safe for one
// concurrent reader plus one concurrent writer.
type Conn interface {
	// RemoteID identifies the underlying transport endpoint. The session
	// manager binds at most one session per remote id.
	RemoteID() string
	// ReadFrame blocks for the next inbound PCM16LE chunk. Returns
	// ErrTransportLost (possibly wrapped) once the channel is gone.
	ReadFrame(ctx context.Context) ([]byte, error)
	// WriteFrame sends one outbound PCM16LE chunk.
	WriteFrame(ctx context.Context, pcm []byte) error
	// WriteEvent sends one JSON-encodable control/transcript event.
	WriteEvent(ctx context.Context, v any) error
	Close(reason string) error
}
