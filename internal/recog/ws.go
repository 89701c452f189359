package recog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nhooyr.io/websocket"
)

// Config holds connection parameters for the websocket recognition service.
type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	SampleRate    int
	EndpointingMs int
	UtterEndMs    int
	SocketMaxAgeS int
}

// WSRecognizer maintains one live websocket to the recognition provider,
// sending PCM16@16k audio and receiving transcript and VAD events. It
// reconnects with exponential backoff and opens a circuit after repeated
// failures.
type WSRecognizer struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	sendQ  chan []byte
	events chan Event

	fails   []time.Time
	circuit time.Time
	maxAge  time.Duration

	language string
}

func NewWSRecognizer(cfg Config) *WSRecognizer {
	return &WSRecognizer{
		cfg:    cfg,
		sendQ:  make(chan []byte, 8),
		events: make(chan Event, 32),
		maxAge: time.Duration(nzd(cfg.SocketMaxAgeS, 900)) * time.Second,
	}
}

func (r *WSRecognizer) Start(ctx context.Context, language string) error {
	if r.cfg.BaseURL == "" {
		return fmt.Errorf("recognition base url not configured")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.language = language
	go r.run()
	return nil
}

func (r *WSRecognizer) Events() <-chan Event { return r.events }

func (r *WSRecognizer) SendAudio(pcm []byte) bool {
	select {
	case r.sendQ <- pcm:
		metricAudioBytes.Add(float64(len(pcm)))
		return true
	default:
		metricDrops.Inc()
		return false
	}
}

func (r *WSRecognizer) Cancel() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *WSRecognizer) dialURL() string {
	q := url.Values{}
	q.Set("model", orDefault(r.cfg.Model, "nova-2"))
	lang := r.language
	if lang == "" || lang == "auto" {
		lang = "multi"
	}
	q.Set("language", lang)
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("vad_events", "true")
	q.Set("endpointing", fmt.Sprintf("%d", nzd(r.cfg.EndpointingMs, 1000)))
	q.Set("utterance_end_ms", fmt.Sprintf("%d", nzd(r.cfg.UtterEndMs, 1500)))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", nzd(r.cfg.SampleRate, 16000)))
	q.Set("channels", "1")
	return r.cfg.BaseURL + "?" + q.Encode()
}

func (r *WSRecognizer) run() {
	defer close(r.events)
	for {
		if err := r.connectAndPump(); err != nil {
			r.addFailure()
			r.emit(Event{Kind: KindError, Err: err})
		} else {
			r.fails = nil
		}
		if r.ctx.Err() != nil {
			return
		}
		time.Sleep(r.nextBackoff())
	}
}

func (r *WSRecognizer) connectAndPump() error {
	if time.Now().Before(r.circuit) {
		time.Sleep(500 * time.Millisecond)
		return fmt.Errorf("circuit open")
	}

	hdr := make(http.Header)
	if r.cfg.APIKey != "" {
		hdr.Set("Authorization", "Token "+r.cfg.APIKey)
	}
	dctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	defer cancel()
	start := time.Now()
	ws, _, err := websocket.Dial(dctx, r.dialURL(), &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		log.Printf("[recog] connect error: %v", err)
		return err
	}
	metricConnectMS.Observe(float64(time.Since(start).Milliseconds()))
	metricReconnects.Inc()
	defer ws.Close(websocket.StatusNormalClosure, "bye")

	// The writer lives exactly as long as this connection; a read error or
	// rotation cancels it rather than leaving it draining sendQ into a dead
	// socket.
	cctx, ccancel := context.WithCancel(r.ctx)
	defer ccancel()
	go r.writeLoop(cctx, ws)

	var rotate <-chan time.Time
	if r.maxAge > 0 {
		t := time.NewTimer(r.maxAge)
		defer t.Stop()
		rotate = t.C
	}

	var lastInterim, lastFinal string
	for {
		if r.ctx.Err() != nil {
			return nil
		}
		select {
		case <-rotate:
			return fmt.Errorf("rotate")
		default:
		}
		_, data, err := ws.Read(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				return nil
			}
			return err
		}
		if len(data) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		switch ev, done := parseResult(m); ev.Kind {
		case KindError:
			r.emit(ev)
		case KindSpeechStart:
			r.emit(ev)
		case KindSpeechEnd:
			// End of speech; fall back to the last confirmed text if the
			// provider never flagged a final for this utterance.
			if done && lastFinal == "" && lastInterim != "" {
				r.emit(Event{Kind: KindFinal, Text: lastInterim})
			}
			r.emit(ev)
			lastInterim, lastFinal = "", ""
		case KindFinal:
			if ev.Text != "" {
				lastFinal = ev.Text
				r.emit(ev)
			} else {
				metricEmptyFinals.Inc()
			}
		case KindInterim:
			if ev.Text != "" {
				lastInterim = ev.Text
				r.emit(ev)
			}
		}
	}
}

// frameWriter is the write half of a provider connection.
type frameWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// writeLoop forwards queued audio to one connection until ctx is cancelled
// or a write fails.
func (r *WSRecognizer) writeLoop(ctx context.Context, w frameWriter) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-r.sendQ:
			if b == nil {
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
			err := w.Write(wctx, websocket.MessageBinary, b)
			wcancel()
			if err != nil {
				log.Printf("[recog] write error: %v", err)
				return
			}
		}
	}
}

// parseResult maps one provider JSON frame to a bridge event. The second
// return marks frames that terminate an utterance.
func parseResult(m map[string]any) (Event, bool) {
	typ := toString(m["type"])
	switch {
	case strings.EqualFold(typ, "Error") || m["error"] != nil:
		msg := toString(m["error"])
		if msg == "" {
			msg = toString(m["message"])
		}
		if msg == "" {
			msg = "provider_error"
		}
		return Event{Kind: KindError, Err: fmt.Errorf("%s", msg)}, false
	case strings.EqualFold(typ, "SpeechStarted"):
		return Event{Kind: KindSpeechStart}, false
	case strings.EqualFold(typ, "UtteranceEnd"):
		return Event{Kind: KindSpeechEnd}, true
	case strings.EqualFold(typ, "Results") || m["channel"] != nil:
		text, conf, lang := alternative(m)
		if toBool(m["is_final"]) || toBool(m["speech_final"]) {
			return Event{Kind: KindFinal, Text: text, Confidence: conf, Language: lang}, false
		}
		return Event{Kind: KindInterim, Text: text, Confidence: conf, Language: lang}, false
	}
	// Metadata and anything unknown is ignored for forward compatibility.
	return Event{Kind: KindInterim}, false
}

func alternative(m map[string]any) (text string, conf float64, lang string) {
	channel, _ := m["channel"].(map[string]any)
	if channel == nil {
		return "", 0, ""
	}
	if langs, ok := channel["detected_language"].(string); ok {
		lang = langs
	}
	alts, _ := channel["alternatives"].([]any)
	if len(alts) == 0 {
		return "", 0, lang
	}
	a0, _ := alts[0].(map[string]any)
	if a0 == nil {
		return "", 0, lang
	}
	text = strings.TrimSpace(toString(a0["transcript"]))
	if c, ok := a0["confidence"].(float64); ok {
		conf = c
	}
	return text, conf, lang
}

func (r *WSRecognizer) emit(e Event) {
	if r.ctx.Err() != nil {
		return
	}
	select {
	case r.events <- e:
	default:
		// drop if slow consumer
	}
}

func (r *WSRecognizer) addFailure() {
	r.fails = append(r.fails, time.Now())
	cutoff := time.Now().Add(-60 * time.Second)
	j := 0
	for _, t := range r.fails {
		if t.After(cutoff) {
			r.fails[j] = t
			j++
		}
	}
	r.fails = r.fails[:j]
	if len(r.fails) >= 3 {
		r.circuit = time.Now().Add(30 * time.Second)
		metricCircuitOpens.Inc()
	}
}

func (r *WSRecognizer) nextBackoff() time.Duration {
	n := len(r.fails)
	if n <= 0 {
		return time.Second
	}
	if n > 5 {
		n = 5
	}
	base := time.Duration(1<<uint(n-1)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	return base
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func nzd(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	default:
		return false
	}
}
