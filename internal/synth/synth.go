// Package synth adapts an external text-to-speech service into the
// pipeline. Frames for one unit complete before the next unit begins;
// different sessions synthesize fully concurrently. Cancellation is
// immediate: once ctx is cancelled no further frames for the unit are
// emitted, even if already fetched from the service.
package synth

import (
	"context"
	"errors"
)

// ErrSynthesisFailure marks a failed unit. The session skips the unit and
// continues with subsequent ones.
var ErrSynthesisFailure = errors.New("synthesis failure")

// Synthesizer is the capability interface for a streaming speech-synthesis
// collaborator. Speak returns a lazy sequence of PCM16LE chunks at the
// outbound sample rate, one frame duration each; the chunk channel closes
// at end of unit and a terminal error, if any, arrives on the error channel.
type Synthesizer interface {
	Speak(ctx context.Context, text, voice string) (<-chan []byte, <-chan error)
}
