package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"vox/agent/internal/config"
	"vox/agent/internal/recog"
	"vox/agent/internal/session"
)

type nullRecognizer struct {
	ch   chan recog.Event
	once sync.Once
}

func (r *nullRecognizer) Start(context.Context, string) error { return nil }
func (r *nullRecognizer) Events() <-chan recog.Event          { return r.ch }
func (r *nullRecognizer) SendAudio([]byte) bool               { return true }
func (r *nullRecognizer) Cancel()                             { r.once.Do(func() { close(r.ch) }) }

type nullBackend struct{}

func (nullBackend) OpenThread(context.Context, string, string) (string, error) { return "t", nil }
func (nullBackend) Stream(context.Context, string, string) (<-chan string, <-chan error, error) {
	tokens := make(chan string)
	errs := make(chan error)
	close(tokens)
	close(errs)
	return tokens, errs, nil
}

type nullSynth struct{}

func (nullSynth) Speak(context.Context, string, string) (<-chan []byte, <-chan error) {
	frames := make(chan []byte)
	errs := make(chan error)
	close(frames)
	close(errs)
	return frames, errs
}

func newTestServer(t *testing.T) (*httptest.Server, *session.Manager) {
	t.Helper()
	cfg := config.Load()
	mgr := session.NewManager(session.Collaborators{
		NewRecognizer: func(string) recog.Recognizer { return &nullRecognizer{ch: make(chan recog.Event)} },
		Backend:       nullBackend{},
		Synth:         nullSynth{},
	}, session.Options{FrameMs: 20, EgressDepth: 8}, nil)
	h := NewHandlers(cfg, mgr)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { mgr.Shutdown("test done") })
	return srv, mgr
}

func TestCreateSessionMintsTokenAndPath(t *testing.T) {
	srv, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"agent":"concierge","language":"en","voice":"v1"}`)
	resp, err := http.Post(srv.URL+"/sessions", "application/json", body)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
		AudioPath string `json:"audio_path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SessionID == "" || out.Token == "" {
		t.Fatalf("missing session id or token: %+v", out)
	}
	if out.AudioPath != "/sessions/"+out.SessionID+"/audio" {
		t.Fatalf("audio path %q", out.AudioPath)
	}

	// Minted but unattached shows as CONNECTING.
	st, err := http.Get(srv.URL + "/sessions/" + out.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer st.Body.Close()
	var got map[string]any
	_ = json.NewDecoder(st.Body).Decode(&got)
	if got["status"] != "CONNECTING" {
		t.Fatalf("status %v", got["status"])
	}
}

func TestEndUnknownSession404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/sessions/unknown/end", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/sessions/unknown/events")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestEndMintedSessionIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()

	for i := 0; i < 2; i++ {
		r2, err := http.Post(srv.URL+"/sessions/"+out.SessionID+"/end", "application/json", nil)
		if err != nil {
			t.Fatalf("end #%d: %v", i+1, err)
		}
		if r2.StatusCode != http.StatusOK {
			t.Fatalf("end #%d: expected 200, got %d", i+1, r2.StatusCode)
		}
		r2.Body.Close()
	}
}

func TestAudioAttachRequiresValidToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()

	r2, err := http.Get(srv.URL + "/sessions/" + out.SessionID + "/audio?token=garbage")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if r2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", r2.StatusCode)
	}
}
