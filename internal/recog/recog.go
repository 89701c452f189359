// Package recog adapts an external streaming speech-to-text service into
// the pipeline. The bridge produces partial text increments for the open
// utterance plus discrete voice-activity boundaries, decoupled from each
// other, and supports mid-stream cancellation.
package recog

import "context"

// Kind classifies a bridge event.
type Kind int

const (
	KindInterim Kind = iota
	KindFinal
	KindSpeechStart
	KindSpeechEnd
	KindError
)

// Event is one item of the bridge's lazy event sequence.
type Event struct {
	Kind       Kind
	Text       string
	Confidence float64
	Language   string
	Err        error
}

// Recognizer is the capability interface for a streaming recognition
// collaborator. After Cancel is acknowledged no further events are
// delivered; Events closes.
type Recognizer interface {
	Start(ctx context.Context, language string) error
	Events() <-chan Event
	// SendAudio enqueues one PCM16LE chunk. Reports false when the chunk
	// was dropped under backpressure (drop-latest admission).
	SendAudio(pcm []byte) bool
	Cancel()
}
