package egress

import (
	"context"
	"sync"
	"testing"
	"time"

	"vox/agent/internal/audio"
)

func frame(seq uint64) audio.Frame {
	return audio.Frame{Seq: seq, Dir: audio.Outbound, PCM: []byte{0, 0}}
}

func TestPacedDelivery(t *testing.T) {
	var mu sync.Mutex
	var got []uint64
	s := New(func(f audio.Frame) error {
		mu.Lock()
		got = append(got, f.Seq)
		mu.Unlock()
		return nil
	}, 8, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	for i := uint64(1); i <= 3; i++ {
		if err := s.Enqueue(ctx, frame(i)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d frames delivered", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	mu.Lock()
	defer mu.Unlock()
	for i, seq := range got {
		if seq != uint64(i+1) {
			t.Fatalf("out of order delivery %v", got)
		}
	}
}

func TestFlushEmptiesQueue(t *testing.T) {
	s := New(func(audio.Frame) error { return nil }, 8, time.Hour)
	ctx := context.Background()
	for i := uint64(1); i <= 3; i++ {
		s.Enqueue(ctx, frame(i))
	}
	if s.Len() != 3 {
		t.Fatalf("queue depth %d", s.Len())
	}
	if n := s.Flush(); n != 3 {
		t.Fatalf("flushed %d", n)
	}
	if s.Len() != 0 {
		t.Fatal("queue should be empty after flush")
	}
}

func TestNoStaleFrameAfterFlush(t *testing.T) {
	var mu sync.Mutex
	var got []uint64
	s := New(func(f audio.Frame) error {
		mu.Lock()
		got = append(got, f.Seq)
		mu.Unlock()
		return nil
	}, 8, time.Millisecond)

	ctx := context.Background()
	// Stale frames queued while the pacer is not yet running.
	s.Enqueue(ctx, frame(1))
	s.Enqueue(ctx, frame(2))
	s.Enqueue(ctx, frame(3))
	s.Flush()
	// Frames of the unit dispatched after the interrupt.
	s.Enqueue(ctx, frame(10))
	s.Enqueue(ctx, frame(11))

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.Run(rctx)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("post-flush frames not delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	mu.Lock()
	defer mu.Unlock()
	for _, seq := range got {
		if seq < 10 {
			t.Fatalf("stale frame %d reached the transport after flush", seq)
		}
	}
}

func TestBackpressureBlocksProducer(t *testing.T) {
	s := New(func(audio.Frame) error { return nil }, 2, time.Hour)
	ctx := context.Background()
	s.Enqueue(ctx, frame(1))
	s.Enqueue(ctx, frame(2))

	bctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := s.Enqueue(bctx, frame(3))
	if err == nil {
		t.Fatal("enqueue into a full queue should block until ctx expires")
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("producer was not blocked by backpressure")
	}
}
