// Package dispatch routes finished utterances to the conversational backend
// and returns the backend's streamed reply. Bindings associate a session's
// (agent, language) pair with an opaque backend thread so the backend keeps
// multi-turn memory; bindings never cross sessions.
package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrBackendUnavailable marks a backend that stayed unreachable after one
// retry. The session reacts by speaking a fallback reply.
var ErrBackendUnavailable = errors.New("backend unavailable")

// ChatBackend is the capability interface for the threaded streaming chat
// collaborator.
type ChatBackend interface {
	// OpenThread creates a conversation thread and returns its opaque handle.
	OpenThread(ctx context.Context, agent, language string) (string, error)
	// Stream sends one user message to a thread and returns the reply as a
	// lazy token sequence. The token channel closes at end-of-reply; a
	// terminal error, if any, is delivered on the error channel.
	Stream(ctx context.Context, thread, userText string) (<-chan string, <-chan error, error)
}

// Binding maps an (agent, language) selection to a backend thread.
type Binding struct {
	Thread   string
	Agent    string
	Language string
	LastUsed time.Time
}

// Dispatcher owns one session's bindings. Destroyed with the session.
type Dispatcher struct {
	backend ChatBackend
	timeout time.Duration

	mu       sync.Mutex
	bindings map[string]*Binding
}

func New(backend ChatBackend, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{backend: backend, timeout: timeout, bindings: make(map[string]*Binding)}
}

// Dispatch forwards utterance text to the backend thread for the given
// selection, creating the binding on first use. A transient failure is
// retried once; a second failure surfaces ErrBackendUnavailable. The
// returned channels stream reply tokens until end-of-reply; cancelling ctx
// stops consumption but does not retract tokens already delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, agent, language, text string) (<-chan string, <-chan error, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		b, err := d.resolve(ctx, agent, language)
		if err != nil {
			lastErr = err
			metricRetries.Inc()
			continue
		}
		tokens, errs, err := d.backend.Stream(ctx, b.Thread, text)
		if err != nil {
			lastErr = err
			metricRetries.Inc()
			// The thread handle may be stale; drop it so the retry opens a
			// fresh one.
			d.drop(agent, language)
			continue
		}
		metricDispatches.Inc()
		// Release the timeout once the reply stream ends.
		out := make(chan string)
		go func() {
			defer cancel()
			defer close(out)
			for tok := range tokens {
				select {
				case out <- tok:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, errs, nil
	}
	cancel()
	metricUnavailable.Inc()
	log.Printf("[dispatch] backend unavailable agent=%s lang=%s err=%v", agent, language, lastErr)
	return nil, nil, ErrBackendUnavailable
}

// BindingFor returns the current binding for a selection, or nil.
func (d *Dispatcher) BindingFor(agent, language string) *Binding {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bindings[agent+"|"+language]
}

func (d *Dispatcher) resolve(ctx context.Context, agent, language string) (*Binding, error) {
	d.mu.Lock()
	key := agent + "|" + language
	if b := d.bindings[key]; b != nil {
		b.LastUsed = time.Now().UTC()
		d.mu.Unlock()
		return b, nil
	}
	d.mu.Unlock()

	thread, err := d.backend.OpenThread(ctx, agent, language)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// Another dispatch may have raced the creation; keep the first.
	if b := d.bindings[key]; b != nil {
		return b, nil
	}
	b := &Binding{Thread: thread, Agent: agent, Language: language, LastUsed: time.Now().UTC()}
	d.bindings[key] = b
	metricBindings.Inc()
	return b, nil
}

func (d *Dispatcher) drop(agent, language string) {
	d.mu.Lock()
	delete(d.bindings, agent+"|"+language)
	d.mu.Unlock()
}
