package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear relevant envs
	os.Unsetenv("PORT")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("AUDIO_FRAME_MS")
	os.Unsetenv("VAD_MIN_RMS")
	os.Unsetenv("EGRESS_QUEUE_DEPTH")

	c := Load()

	if c.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", c.Server.Port)
	}
	if c.Server.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", c.Server.LogLevel)
	}
	if c.Audio.InSampleRate != 16000 || c.Audio.OutSampleRate != 48000 {
		t.Fatalf("unexpected default sample rates: %d/%d", c.Audio.InSampleRate, c.Audio.OutSampleRate)
	}
	if c.Audio.FrameMs != 20 {
		t.Fatalf("expected default frame ms 20, got %d", c.Audio.FrameMs)
	}
	if c.Egress.QueueDepth != 16 {
		t.Fatalf("expected default egress queue depth 16, got %d", c.Egress.QueueDepth)
	}
	if c.Backend.FallbackPhrase == "" {
		t.Fatal("expected a non-empty default fallback phrase")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("AUDIO_FRAME_MS", "40")
	os.Setenv("VAD_MIN_RMS", "800")
	defer os.Unsetenv("AUDIO_FRAME_MS")
	defer os.Unsetenv("VAD_MIN_RMS")

	c := Load()

	if c.Audio.FrameMs != 40 {
		t.Fatalf("expected frame ms 40 from env, got %d", c.Audio.FrameMs)
	}
	if c.VAD.MinRMS != 800 {
		t.Fatalf("expected vad min rms 800 from env, got %v", c.VAD.MinRMS)
	}
}
