package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vox/agent/internal/config"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// CheckAll runs all collaborator health checks and returns combined status
func CheckAll(ctx context.Context, cfg config.Config) HealthStatus {
	checks := []CheckResult{
		checkRecognition(ctx, cfg),
		checkBackend(ctx, cfg),
		checkSynthesis(ctx, cfg),
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}

	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

// checkRecognition probes the speech provider's REST surface, derived from
// the configured WebSocket URL.
func checkRecognition(ctx context.Context, cfg config.Config) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "recognition"}

	if cfg.Recognition.APIKey == "" {
		result.Error = "RECOGNITION_API_KEY not set"
		result.Latency = time.Since(start)
		return result
	}

	u, err := url.Parse(cfg.Recognition.BaseURL)
	if err != nil {
		result.Error = fmt.Sprintf("bad RECOGNITION_WS_URL: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	probe := "https://" + u.Host + "/v1/auth/token"
	req, err := http.NewRequestWithContext(ctx, "GET", probe, nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	req.Header.Set("Authorization", "Token "+cfg.Recognition.APIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.Latency = time.Since(start)

	if resp.StatusCode == 401 {
		result.Error = "invalid API key (401)"
		return result
	}
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body))
		return result
	}

	result.OK = true
	return result
}

// checkBackend lists models, the cheapest authenticated call the chat API offers.
func checkBackend(ctx context.Context, cfg config.Config) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "backend"}

	if cfg.Backend.APIKey == "" {
		result.Error = "BACKEND_API_KEY not set"
		result.Latency = time.Since(start)
		return result
	}

	probe := strings.TrimRight(cfg.Backend.BaseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, "GET", probe, nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Backend.APIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.Latency = time.Since(start)

	if resp.StatusCode == 401 {
		result.Error = "invalid API key (401)"
		return result
	}
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body))
		return result
	}

	result.OK = true
	return result
}

// checkSynthesis makes a minimal one-character TTS request.
// This works with TTS-only API keys that lack user_read permission.
func checkSynthesis(ctx context.Context, cfg config.Config) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "synthesis"}

	if cfg.Synthesis.APIKey == "" {
		result.Error = "SYNTHESIS_API_KEY not set"
		result.Latency = time.Since(start)
		return result
	}
	if cfg.Synthesis.VoiceID == "" {
		result.Error = "SYNTHESIS_VOICE_ID not set"
		result.Latency = time.Since(start)
		return result
	}

	probe := fmt.Sprintf("%s/v1/text-to-speech/%s/stream",
		strings.TrimRight(cfg.Synthesis.BaseURL, "/"), cfg.Synthesis.VoiceID)
	body := `{"text":"."}`
	req, err := http.NewRequestWithContext(ctx, "POST", probe, strings.NewReader(body))
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	req.Header.Set("xi-api-key", cfg.Synthesis.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.Latency = time.Since(start)

	if resp.StatusCode == 401 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("invalid API key (401): %s", string(bodyBytes))
		return result
	}
	if resp.StatusCode == 404 {
		result.Error = fmt.Sprintf("voice ID %q not found", cfg.Synthesis.VoiceID)
		return result
	}
	if resp.StatusCode != 200 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
		return result
	}

	// Drain response body (we don't need the audio)
	io.Copy(io.Discard, resp.Body)

	result.OK = true
	return result
}
