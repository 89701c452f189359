// Package transcript projects utterance state into the ordered event stream
// the client merge logic depends on: per-speaker events carry monotonically
// increasing sequence numbers, and exactly one is_final event closes each
// utterance.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Speaker is the role an event belongs to.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// Event is the externally visible projection of an utterance increment.
type Event struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	Final   bool      `json:"is_final"`
	Seq     uint64    `json:"seq"`
	Ts      time.Time `json:"timestamp"`
}

// Sink receives emitted events in order.
type Sink func(Event)

// Emitter assigns per-speaker sequence numbers and fans events out to sinks.
type Emitter struct {
	mu    sync.Mutex
	seq   map[Speaker]uint64
	sinks []Sink
}

func NewEmitter(sinks ...Sink) *Emitter {
	return &Emitter{seq: make(map[Speaker]uint64), sinks: sinks}
}

// Emit publishes one event. Non-final recognition noise (short digit-only
// fragments) is filtered server-side to save client bandwidth. Reports
// whether the event was published.
func (e *Emitter) Emit(sp Speaker, text string, final bool) bool {
	if !final && IsNoise(text) {
		metricNoiseFiltered.Inc()
		return false
	}
	e.mu.Lock()
	e.seq[sp]++
	ev := Event{Speaker: sp, Text: text, Final: final, Seq: e.seq[sp], Ts: time.Now().UTC()}
	sinks := e.sinks
	e.mu.Unlock()

	metricEvents.WithLabelValues(string(sp)).Inc()
	for _, s := range sinks {
		s(ev)
	}
	return true
}

// IsNoise reports whether text is a 1-2 digit recognition artifact,
// optionally wrapped in punctuation ("5.", "12,").
func IsNoise(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	digits := 0
	for _, r := range t {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune(".,!?;: ", r):
		default:
			return false
		}
	}
	return digits >= 1 && digits <= 2
}
