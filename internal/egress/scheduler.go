// Package egress paces synthesized frames onto the outbound transport at
// their nominal playback rate and makes barge-in audibly instantaneous:
// Flush discards everything queued, and frames enqueued before the flush
// can never reach the transport afterwards.
package egress

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"vox/agent/internal/audio"
)

// ErrClosed is returned by Enqueue after the scheduler stopped.
var ErrClosed = errors.New("egress scheduler closed")

// WriteFunc delivers one frame to the transport.
type WriteFunc func(audio.Frame) error

type item struct {
	frame audio.Frame
	epoch uint64
}

// Scheduler owns the bounded outbound queue for one session. Producers
// block on a full queue (backpressure) rather than growing it.
type Scheduler struct {
	out      WriteFunc
	interval time.Duration
	q        chan item
	epoch    atomic.Uint64
	closed   chan struct{}
}

func New(out WriteFunc, depth int, interval time.Duration) *Scheduler {
	if depth <= 0 {
		depth = 16
	}
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	return &Scheduler{
		out:      out,
		interval: interval,
		q:        make(chan item, depth),
		closed:   make(chan struct{}),
	}
}

// Enqueue hands one frame to the scheduler, blocking while the queue is
// full. It returns once the frame is queued, or with an error when ctx is
// cancelled or the scheduler stopped.
func (s *Scheduler) Enqueue(ctx context.Context, f audio.Frame) error {
	it := item{frame: f, epoch: s.epoch.Load()}
	select {
	case s.q <- it:
		metricEnqueued.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrClosed
	}
}

// Flush immediately discards all queued frames and invalidates any frame
// enqueued before the call. Returns the number of frames dropped.
func (s *Scheduler) Flush() int {
	s.epoch.Add(1)
	n := 0
	for {
		select {
		case <-s.q:
			n++
		default:
			metricFlushed.Add(float64(n))
			return n
		}
	}
}

// Len reports the current queue depth.
func (s *Scheduler) Len() int { return len(s.q) }

// Run drains the queue at the playback rate until ctx is cancelled. Frames
// from a flushed epoch are skipped without pacing delay.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.closed)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				var it item
				select {
				case it = <-s.q:
				case <-ctx.Done():
					return
				default:
				}
				if it.frame.PCM == nil {
					break // queue empty this tick
				}
				if it.epoch != s.epoch.Load() {
					metricFlushed.Inc()
					continue // stale frame from before a flush
				}
				if err := s.out(it.frame); err != nil {
					// Transport write failures end the session elsewhere;
					// the pacer just stops forwarding.
					return
				}
				metricWritten.Inc()
				break
			}
		}
	}
}
