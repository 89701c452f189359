package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SSEBackend talks to an OpenAI-style chat completion service that streams
// replies as server-sent events. Threads are kept client-side: each thread
// handle owns its message history, replayed on every turn. One instance is
// shared by all sessions; per-thread state is mutex-guarded and thread
// handles never leak across sessions.
type SSEBackend struct {
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	httpc        *http.Client

	mu      sync.Mutex
	threads map[string][]chatMessage
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func NewSSEBackend(baseURL, apiKey, model, systemPrompt string) *SSEBackend {
	return &SSEBackend{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
		httpc:        &http.Client{Timeout: 0},
		threads:      make(map[string][]chatMessage),
	}
}

func (b *SSEBackend) OpenThread(ctx context.Context, agent, language string) (string, error) {
	id := uuid.New().String()
	sys := b.systemPrompt
	if agent != "" {
		sys = fmt.Sprintf("%s\nYou are the %q agent.", sys, agent)
	}
	if language != "" && language != "auto" {
		sys = fmt.Sprintf("%s\nAlways reply in language %q.", sys, language)
	}
	b.mu.Lock()
	b.threads[id] = []chatMessage{{Role: "system", Content: strings.TrimSpace(sys)}}
	b.mu.Unlock()
	return id, nil
}

func (b *SSEBackend) Stream(ctx context.Context, thread, userText string) (<-chan string, <-chan error, error) {
	b.mu.Lock()
	history, ok := b.threads[thread]
	b.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown thread %s", thread)
	}

	msgs := append(append([]chatMessage{}, history...), chatMessage{Role: "user", Content: userText})
	body := map[string]any{"stream": true, "messages": msgs}
	if b.model != "" {
		body["model"] = b.model
	}
	reqBytes, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := b.httpc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, nil, fmt.Errorf("backend status=%d body=%s", resp.StatusCode, string(snippet))
	}

	tokens := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(tokens)
		defer close(errs)
		defer resp.Body.Close()

		var reply strings.Builder
		decoder := newSSEDecoder(bufio.NewReader(resp.Body))
		for {
			if ctx.Err() != nil {
				return
			}
			_, data, err := decoder.Next()
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					errs <- err
				}
				break
			}
			if string(data) == "[DONE]" {
				break
			}
			var m map[string]any
			if err := json.Unmarshal(data, &m); err != nil {
				continue
			}
			content := deltaContent(m)
			if content == "" {
				continue
			}
			reply.WriteString(content)
			select {
			case tokens <- content:
			case <-ctx.Done():
				return
			}
		}

		// Commit the exchange so the thread keeps memory across turns. An
		// interrupted reply commits only what was actually streamed.
		if reply.Len() > 0 {
			b.mu.Lock()
			b.threads[thread] = append(b.threads[thread],
				chatMessage{Role: "user", Content: userText},
				chatMessage{Role: "assistant", Content: reply.String()})
			b.mu.Unlock()
		}
	}()
	return tokens, errs, nil
}

func deltaContent(m map[string]any) string {
	choices, _ := m["choices"].([]any)
	if len(choices) == 0 {
		return ""
	}
	choice, _ := choices[0].(map[string]any)
	delta, _ := choice["delta"].(map[string]any)
	if s, ok := delta["content"].(string); ok {
		return s
	}
	return ""
}

type sseDecoder struct {
	r *bufio.Reader
}

func newSSEDecoder(r *bufio.Reader) *sseDecoder { return &sseDecoder{r: r} }

// Next returns (event, data, error); data lines begin with "data: ".
func (d *sseDecoder) Next() (string, []byte, error) {
	var event string
	var data []byte
	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			return "", nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 { // dispatch
			if len(data) == 0 {
				continue
			}
			return event, data, nil
		}
		if bytes.HasPrefix(line, []byte("event:")) {
			event = strings.TrimSpace(string(line[len("event:"):]))
		} else if bytes.HasPrefix(line, []byte("data:")) {
			data = append(data, bytes.TrimSpace(line[len("data:"):])...)
		}
	}
}
