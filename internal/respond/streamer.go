// Package respond turns the backend's streamed reply tokens into
// synthesizable units. A unit is forwarded to synthesis as soon as a
// sentence or clause boundary closes it, rather than waiting for the full
// reply, which keeps time-to-first-audio low.
package respond

import (
	"context"
	"strings"
	"unicode"
)

// SpeakFunc synthesizes and plays one unit, returning once the unit's audio
// has been fully handed to the egress queue. It must honor ctx cancellation.
type SpeakFunc func(ctx context.Context, unit string) error

// Streamer segments a token stream into units and speaks them serially.
type Streamer struct {
	// MaxUnitRunes forces a unit break at the last whitespace once the
	// buffer grows past this size, so a reply without punctuation still
	// produces audio.
	MaxUnitRunes int
}

func New() *Streamer { return &Streamer{MaxUnitRunes: 280} }

// Run consumes tokens until the channel closes or ctx is cancelled, calling
// speak once per completed unit. It returns the concatenation of units that
// were fully spoken, which is exactly the text a barge-in finalization may
// claim. A speak error skips that unit and continues with subsequent ones.
func (s *Streamer) Run(ctx context.Context, tokens <-chan string, speak SpeakFunc) (string, error) {
	var buf string
	var out []string

	speakUnit := func(unit string) bool {
		if unit == "" {
			return true
		}
		metricUnits.Inc()
		if err := speak(ctx, unit); err != nil {
			if ctx.Err() != nil {
				return false
			}
			// Degraded synthesis skips the unit, later units still play.
			metricUnitsSkipped.Inc()
			return true
		}
		out = append(out, unit)
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return strings.Join(out, " "), ctx.Err()
		case tok, ok := <-tokens:
			if !ok {
				speakUnit(strings.TrimSpace(buf))
				return strings.Join(out, " "), ctx.Err()
			}
			buf += tok
			for {
				head, tail, found := cut(buf, s.MaxUnitRunes)
				if !found {
					break
				}
				buf = tail
				if !speakUnit(head) {
					return strings.Join(out, " "), ctx.Err()
				}
			}
		}
	}
}

// cut separates the leading complete unit from the buffer. A unit ends at
// sentence punctuation or a newline; a buffer past maxRunes breaks at its
// last whitespace instead.
func cut(s string, maxRunes int) (head, tail string, found bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", "", false
	}
	if i := strings.IndexAny(t, ".!?\n"); i >= 0 {
		// Keep trailing punctuation runs ("...", "?!") with the unit.
		j := i + 1
		for j < len(t) && strings.ContainsRune(".!?", rune(t[j])) {
			j++
		}
		return strings.TrimSpace(t[:j]), strings.TrimSpace(t[j:]), true
	}
	if maxRunes > 0 && len([]rune(t)) >= maxRunes {
		if i := strings.LastIndexFunc(t, unicode.IsSpace); i > 0 {
			return strings.TrimSpace(t[:i]), strings.TrimSpace(t[i:]), true
		}
	}
	return "", "", false
}
