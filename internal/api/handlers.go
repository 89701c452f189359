package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"vox/agent/internal/auth"
	"vox/agent/internal/config"
	"vox/agent/internal/session"
	"vox/agent/internal/transport"
)

// Handlers exposes the control surface: session minting, the audio socket,
// teardown and the event journal.
type Handlers struct {
	cfg config.Config
	mgr *session.Manager

	mu      sync.Mutex
	pending map[string]session.Config // minted but not yet attached
}

func NewHandlers(cfg config.Config, mgr *session.Manager) *Handlers {
	return &Handlers{cfg: cfg, mgr: mgr, pending: make(map[string]session.Config)}
}

type createSessionRequest struct {
	Agent    string `json:"agent"`
	Language string `json:"language"`
	Voice    string `json:"voice"`
}

func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Agent == "" {
		req.Agent = "default"
	}
	if req.Language == "" {
		req.Language = "en"
	}
	if req.Voice == "" {
		req.Voice = h.cfg.Synthesis.VoiceID
	}

	id := uuid.New().String()
	exp := time.Now().Add(time.Duration(h.cfg.Transport.TokenExpMin) * time.Minute).Unix()
	token := auth.GenerateSessionToken(h.cfg.Transport.TokenSecret, id, exp)

	h.mu.Lock()
	h.pending[id] = session.Config{ID: id, Agent: req.Agent, Language: req.Language, Voice: req.Voice}
	h.mu.Unlock()

	h.mgr.Journal().Append(id, "session_created", map[string]any{"agent": req.Agent, "language": req.Language})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": id,
		"token":      token,
		"audio_path": "/sessions/" + id + "/audio",
		"expires_at": exp,
	})
}

// HandleAttachAudio upgrades to WebSocket and binds the connection to the
// minted session, starting its pipeline.
func (h *Handlers) HandleAttachAudio(w http.ResponseWriter, r *http.Request, id string) {
	token := r.URL.Query().Get("token")
	if _, _, err := auth.ValidateSessionToken(h.cfg.Transport.TokenSecret, token, id, time.Now(), h.cfg.Transport.TokenSkewSecs); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	h.mu.Lock()
	cfg, ok := h.pending[id]
	h.mu.Unlock()
	if !ok {
		// Not pending: a reconnect for a live session replaces its transport.
		if live := h.mgr.Get(id); live != nil {
			cfg, ok = live.Config(), true
		}
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := transport.Accept(w, r, r.RemoteAddr)
	if err != nil {
		log.Printf("[api] ws accept id=%s: %v", id, err)
		return
	}

	if _, err := h.mgr.CreateSession(conn, cfg); err != nil {
		reason := "session start failed"
		if errors.Is(err, session.ErrTransportBound) || errors.Is(err, session.ErrSessionExists) {
			reason = "already attached"
		}
		_ = conn.Close(reason)
		return
	}

	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}

func (h *Handlers) HandleEndSession(w http.ResponseWriter, r *http.Request, id string) {
	h.mu.Lock()
	_, wasPending := h.pending[id]
	delete(h.pending, id)
	h.mu.Unlock()

	live := h.mgr.Get(id) != nil
	if !live && !wasPending && len(h.mgr.Journal().List(id)) == 0 {
		http.NotFound(w, r)
		return
	}
	_ = h.mgr.DestroySession(id, "client end")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "live": false})
}

func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request, id string) {
	status := ""
	var turnState string
	if s := h.mgr.Get(id); s != nil {
		status = string(s.Status())
		turnState = s.TurnState().String()
	} else {
		h.mu.Lock()
		if _, ok := h.pending[id]; ok {
			status = string(session.StatusConnecting)
		}
		h.mu.Unlock()
	}
	if status == "" {
		http.NotFound(w, r)
		return
	}
	resp := map[string]any{
		"session_id": id,
		"status":     status,
		"turn_state": turnState,
	}
	if c := h.mgr.Transport(id); c != nil {
		resp["remote"] = c.RemoteID()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, id string) {
	evs := h.mgr.Journal().List(id)
	h.mu.Lock()
	_, isPending := h.pending[id]
	h.mu.Unlock()
	if len(evs) == 0 && !isPending && h.mgr.Get(id) == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": id,
		"events":     evs,
	})
}
