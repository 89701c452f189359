package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"vox/agent/internal/dispatch"
	"vox/agent/internal/events"
	"vox/agent/internal/recog"
	"vox/agent/internal/synth"
	"vox/agent/internal/transport"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session id already in use")
	ErrSessionClosed   = errors.New("session closed")
	// ErrTransportBound means the transport endpoint already carries a live
	// session; a second session on the same endpoint is refused.
	ErrTransportBound = errors.New("transport already bound to a session")
)

// Options carries the pipeline tuning shared by every session.
type Options struct {
	FrameMs        int
	VADMinRMS      float64
	VADMinStart    int
	VADHangover    int
	GuardMs        int
	EgressDepth    int
	BackendTimeout time.Duration
	MinConfidence  float64
	FallbackPhrase string
	IdleTimeout    time.Duration
}

// Collaborators are the external services a session talks to. Each session
// gets its own recognizer (one upstream socket per call); the backend and
// synthesizer are shared clients.
type Collaborators struct {
	NewRecognizer func(language string) recog.Recognizer
	Backend       dispatch.ChatBackend
	Synth         synth.Synthesizer
}

// Manager is the registry of live sessions, enforcing one session per
// transport endpoint and evicting sessions that go quiet.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byRemote map[string]string // remote id -> session id

	registry *transport.Registry
	collab   Collaborators
	opts     Options
	journal  *events.Store
}

func NewManager(collab Collaborators, opts Options, journal *events.Store) *Manager {
	if journal == nil {
		journal = events.NewStore()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		byRemote: make(map[string]string),
		registry: transport.NewRegistry(),
		collab:   collab,
		opts:     opts,
		journal:  journal,
	}
}

func (m *Manager) Journal() *events.Store { return m.journal }

// CreateSession binds a connection to a new pipeline and starts it. The
// transport must not already carry a different session; a new connection
// presenting a live session id replaces that session's transport (the old
// pipeline is torn down and rebuilt on the new connection).
func (m *Manager) CreateSession(conn transport.Conn, cfg Config) (*Session, error) {
	m.mu.Lock()
	if sid, ok := m.byRemote[conn.RemoteID()]; ok && sid != cfg.ID {
		m.mu.Unlock()
		log.Printf("[manager] refusing second session on remote=%s (held by %s)", conn.RemoteID(), sid)
		return nil, ErrTransportBound
	}
	reattach := m.sessions[cfg.ID] != nil
	m.mu.Unlock()

	if reattach {
		log.Printf("[manager] replacing transport for session id=%s", cfg.ID)
		_ = m.DestroySession(cfg.ID, "transport replaced")
	}

	m.mu.Lock()
	if _, ok := m.sessions[cfg.ID]; ok {
		// Lost a race against a concurrent attach for the same id.
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	s := newSession(conn, cfg, m.opts, m.collab, m.journal)
	s.onClose = func(id string) { _ = m.DestroySession(id, "transport lost") }
	m.sessions[cfg.ID] = s
	m.byRemote[conn.RemoteID()] = cfg.ID
	m.mu.Unlock()
	m.registry.Replace(cfg.ID, conn)

	if err := s.start(); err != nil {
		m.mu.Lock()
		delete(m.sessions, cfg.ID)
		delete(m.byRemote, conn.RemoteID())
		m.mu.Unlock()
		m.registry.Remove(cfg.ID)
		s.destroy("start failed")
		return nil, err
	}
	m.journal.Append(cfg.ID, "session_started", map[string]any{"agent": cfg.Agent, "language": cfg.Language})
	return s, nil
}

// Transport returns the connection currently attached to a session, or nil.
func (m *Manager) Transport(id string) transport.Conn { return m.registry.Get(id) }

// RouteInboundFrame pushes one inbound PCM chunk into a session's pipeline,
// for transports that deliver audio outside the session's own read loop.
func (m *Manager) RouteInboundFrame(id string, pcm []byte) error {
	s := m.Get(id)
	if s == nil {
		return ErrSessionNotFound
	}
	if s.Status() != StatusActive {
		return ErrSessionClosed
	}
	s.handleInbound(pcm)
	return nil
}

func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// DestroySession tears a session down and releases its transport binding.
// Destroying an unknown or already-destroyed session is a no-op.
func (m *Manager) DestroySession(id, reason string) error {
	m.mu.Lock()
	s := m.sessions[id]
	if s == nil {
		m.mu.Unlock()
		return nil
	}
	delete(m.sessions, id)
	delete(m.byRemote, s.conn.RemoteID())
	m.mu.Unlock()

	m.registry.Remove(id)
	s.destroy(reason)
	m.journal.Append(id, "session_ended", map[string]any{"reason": reason})
	return nil
}

// RunEvictor destroys sessions idle past the configured timeout. Blocks
// until ctx is done.
func (m *Manager) RunEvictor(ctx context.Context) {
	if m.opts.IdleTimeout <= 0 {
		return
	}
	t := time.NewTicker(m.opts.IdleTimeout / 4)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			for _, s := range m.snapshot() {
				if now.Sub(s.LastActivity()) > m.opts.IdleTimeout {
					log.Printf("[manager] evicting idle session id=%s", s.ID)
					metricEvictions.Inc()
					_ = m.DestroySession(s.ID, "idle timeout")
					// Abandoned sessions also abandon their journals.
					m.journal.Drop(s.ID)
				}
			}
		}
	}
}

// Shutdown destroys every live session. Used on process exit.
func (m *Manager) Shutdown(reason string) {
	for _, s := range m.snapshot() {
		_ = m.DestroySession(s.ID, reason)
	}
}

func (m *Manager) snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
