package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSynthesizer fetches WAV audio from an ElevenLabs-style REST endpoint
// and re-frames it into fixed-duration PCM chunks. The http.Client is the
// shared connection pool across sessions; pooling is for efficiency only,
// a stalled session holds no lock another session needs.
type HTTPSynthesizer struct {
	baseURL    string
	apiKey     string
	sampleRate int
	frameMs    int
	httpc      *http.Client
}

func NewHTTPSynthesizer(baseURL, apiKey string, sampleRate, frameMs int) *HTTPSynthesizer {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	if frameMs <= 0 {
		frameMs = 20
	}
	return &HTTPSynthesizer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		sampleRate: sampleRate,
		frameMs:    frameMs,
		httpc:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPSynthesizer) Speak(ctx context.Context, text, voice string) (<-chan []byte, <-chan error) {
	frames := make(chan []byte, 8)
	errs := make(chan error, 1)
	go func() {
		defer close(frames)
		defer close(errs)
		start := time.Now()

		pcm, err := s.fetch(ctx, text, voice)
		if err != nil {
			if ctx.Err() == nil {
				metricFailures.Inc()
				errs <- fmt.Errorf("%w: %v", ErrSynthesisFailure, err)
			}
			return
		}
		metricFetchMS.Observe(float64(time.Since(start).Milliseconds()))

		frameBytes := s.sampleRate / 1000 * s.frameMs * 2
		for pos := 0; pos < len(pcm); pos += frameBytes {
			end := pos + frameBytes
			if end > len(pcm) {
				end = len(pcm)
			}
			select {
			case frames <- pcm[pos:end]:
				metricFrames.Inc()
			case <-ctx.Done():
				return
			}
		}
	}()
	return frames, errs
}

func (s *HTTPSynthesizer) fetch(ctx context.Context, text, voice string) ([]byte, error) {
	body, _ := json.Marshal(map[string]any{"text": text})
	url := fmt.Sprintf("%s/v1/text-to-speech/%s", s.baseURL, voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("accept", "audio/wav")
	req.Header.Set("content-type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(snippet))
	}
	return readWAVPCM16(resp.Body)
}

// readWAVPCM16 extracts raw PCM16 bytes from a WAV body. Stereo input is
// averaged to mono; the provider is asked for the outbound sample rate so
// no resampling happens here.
func readWAVPCM16(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(b) < 44 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a WAV")
	}
	off := 12
	var dataOff, dataLen int
	var channels uint16
	for off+8 <= len(b) {
		cid := string(b[off : off+4])
		csz := int(uint32(b[off+4]) | uint32(b[off+5])<<8 | uint32(b[off+6])<<16 | uint32(b[off+7])<<24)
		off += 8
		if cid == "fmt " {
			if off+csz > len(b) {
				return nil, fmt.Errorf("bad fmt chunk")
			}
			fmtTag := uint16(b[off]) | uint16(b[off+1])<<8
			channels = uint16(b[off+2]) | uint16(b[off+3])<<8
			bits := uint16(b[off+14]) | uint16(b[off+15])<<8
			if fmtTag != 1 || bits != 16 {
				return nil, fmt.Errorf("unsupported WAV format")
			}
			off += csz
		} else if cid == "data" {
			dataOff = off
			dataLen = csz
			break
		} else {
			off += csz
		}
	}
	if dataOff <= 0 || dataOff+dataLen > len(b) {
		return nil, fmt.Errorf("no data chunk")
	}
	raw := b[dataOff : dataOff+dataLen]
	if channels == 2 {
		out := make([]byte, dataLen/2)
		for i := 0; i+3 < len(raw); i += 4 {
			a := int16(uint16(raw[i]) | uint16(raw[i+1])<<8)
			c := int16(uint16(raw[i+2]) | uint16(raw[i+3])<<8)
			avg := (int32(a) + int32(c)) / 2
			u := uint16(int16(avg))
			j := i / 2
			out[j] = byte(u & 0xFF)
			out[j+1] = byte(u >> 8)
		}
		raw = out
	}
	return raw, nil
}
