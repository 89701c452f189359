// Package events keeps a capped per-session journal of pipeline events
// (transcript updates, lifecycle changes, failures) for the HTTP API.
package events

import (
	"sync"
	"time"
)

type Event struct {
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

type Store struct {
	mu     sync.RWMutex
	bySess map[string][]Event
}

func NewStore() *Store {
	return &Store{bySess: make(map[string][]Event)}
}

func (s *Store) Append(sessionID, typ string, payload map[string]any) Event {
	evt := Event{Type: typ, Ts: time.Now().UTC(), Payload: payload}
	s.mu.Lock()
	s.bySess[sessionID] = append(s.bySess[sessionID], evt)
	// Cap total events per session to avoid unbounded growth
	const maxEvents = 200
	if n := len(s.bySess[sessionID]); n > maxEvents {
		s.bySess[sessionID] = s.bySess[sessionID][n-maxEvents:]
	}
	s.mu.Unlock()
	return evt
}

func (s *Store) List(sessionID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// return a shallow copy to avoid external mutation
	src := s.bySess[sessionID]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

// Drop removes a session's journal once the session is destroyed.
func (s *Store) Drop(sessionID string) {
	s.mu.Lock()
	delete(s.bySess, sessionID)
	s.mu.Unlock()
}
