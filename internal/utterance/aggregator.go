// Package utterance accumulates recognition increments into turn-level
// utterances. At most one utterance per speaker may be open at a time, and
// a speaker switch seals the other speaker's open utterance first.
package utterance

import (
	"strings"
	"sync"
	"time"

	"vox/agent/internal/transcript"
)

// Increment is one recognized (or reply) text fragment.
type Increment struct {
	Text       string
	Final      bool
	Confidence float64 // 0 means the provider reported none
	Language   string
}

type open struct {
	parts    []string
	language string
	started  time.Time
}

func (o *open) text() string { return strings.Join(o.parts, " ") }

// Final is a sealed utterance: the committed text plus the language tag the
// provider detected, if any. The language travels with the seal because the
// open entry it was stored on is gone once the utterance closes.
type Final struct {
	Text     string
	Language string
}

// Aggregator enforces the one-open-utterance-per-speaker invariant and
// seals utterances on an explicit final increment or a forced finalization.
// All entry points share one mutex, so concurrent finals and forces are
// serialized; the recognition pump delivers an explicit final before the
// boundary event that forces finalization, so when both race for the same
// utterance the explicit final's text wins and the force becomes a no-op.
type Aggregator struct {
	mu      sync.Mutex
	emitter *transcript.Emitter
	minConf float64
	open    map[transcript.Speaker]*open
}

func NewAggregator(em *transcript.Emitter, minConfidence float64) *Aggregator {
	return &Aggregator{emitter: em, minConf: minConfidence, open: make(map[transcript.Speaker]*open)}
}

// OnIncrement appends one increment to the speaker's open utterance,
// opening one if needed. Whitespace-only and below-confidence increments
// are dropped so they cannot produce empty turns. A final increment seals
// the utterance and returns the sealed text and language.
func (a *Aggregator) OnIncrement(sp transcript.Speaker, inc Increment) (final Final, sealed bool) {
	text := strings.TrimSpace(inc.Text)
	if text == "" || (inc.Confidence > 0 && inc.Confidence < a.minConf) {
		metricDropped.Inc()
		// A final with no usable text still seals whatever is open.
		if inc.Final {
			return a.ForceFinalize(sp)
		}
		return Final{}, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Speaker switch seals the other side first.
	a.sealOtherLocked(sp)

	o := a.open[sp]
	if o == nil {
		o = &open{started: time.Now().UTC()}
		a.open[sp] = o
		metricOpened.WithLabelValues(string(sp)).Inc()
	}
	o.parts = append(o.parts, text)
	if inc.Language != "" {
		o.language = inc.Language
	}

	if inc.Final {
		return a.sealLocked(sp), true
	}
	a.emitter.Emit(sp, o.text(), false)
	return Final{}, false
}

// Preview publishes the provider's in-progress view of the pending fragment
// without committing it. Committed fragments arrive through OnIncrement;
// previews are cumulative rewrites of the fragment still being recognized,
// so they are emitted but never appended.
func (a *Aggregator) Preview(sp transcript.Speaker, text, language string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var committed string
	if o := a.open[sp]; o != nil {
		committed = o.text()
		if language != "" {
			o.language = language
		}
	}
	if committed != "" {
		text = committed + " " + text
	}
	a.emitter.Emit(sp, text, false)
}

// ForceFinalize seals the speaker's open utterance with the text confirmed
// so far. It is a no-op when nothing is open (e.g. an explicit final
// already sealed it).
func (a *Aggregator) ForceFinalize(sp transcript.Speaker) (Final, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open[sp] == nil {
		return Final{}, false
	}
	return a.sealLocked(sp), true
}

// OpenText returns the accumulated text of the speaker's open utterance.
func (a *Aggregator) OpenText(sp transcript.Speaker) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if o := a.open[sp]; o != nil {
		return o.text()
	}
	return ""
}

func (a *Aggregator) sealOtherLocked(sp transcript.Speaker) {
	for other := range a.open {
		if other != sp {
			a.sealLocked(other)
		}
	}
}

func (a *Aggregator) sealLocked(sp transcript.Speaker) Final {
	o := a.open[sp]
	if o == nil {
		return Final{}
	}
	delete(a.open, sp)
	fin := Final{Text: o.text(), Language: o.language}
	a.emitter.Emit(sp, fin.Text, true)
	metricSealed.WithLabelValues(string(sp)).Inc()
	return fin
}
