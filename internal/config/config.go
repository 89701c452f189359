package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Session struct {
		IdleTimeoutSec int
		GraceSec       int
	}
	Audio struct {
		InSampleRate  int
		OutSampleRate int
		FrameMs       int
	}
	VAD struct {
		MinRMS         float64
		MinStartFrames int
		HangoverFrames int
		GuardMs        int
	}
	Recognition struct {
		BaseURL       string
		APIKey        string
		Model         string
		EndpointingMs int
		UtterEndMs    int
		SocketMaxAgeS int
	}
	Backend struct {
		BaseURL        string
		APIKey         string
		Model          string
		SystemPrompt   string
		TimeoutSec     int
		FallbackPhrase string
	}
	Synthesis struct {
		BaseURL string
		APIKey  string
		VoiceID string
	}
	Egress struct {
		QueueDepth int
	}
	Aggregator struct {
		MinConfidence float64
	}
	Transport struct {
		TokenSecret   string
		TokenExpMin   int
		TokenSkewSecs int
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("session.idle_timeout_sec", 120)
	v.SetDefault("session.grace_sec", 3)

	v.SetDefault("audio.in_sample_rate", 16000)
	v.SetDefault("audio.out_sample_rate", 48000)
	v.SetDefault("audio.frame_ms", 20)

	v.SetDefault("vad.min_rms", 1200.0)
	v.SetDefault("vad.min_start_frames", 2)
	v.SetDefault("vad.hangover_frames", 20)
	v.SetDefault("vad.guard_ms", 500)

	v.SetDefault("recognition.base_url", "wss://api.deepgram.com/v1/listen")
	v.SetDefault("recognition.model", "nova-2")
	v.SetDefault("recognition.endpointing_ms", 1000)
	v.SetDefault("recognition.utterance_end_ms", 1500)
	v.SetDefault("recognition.socket_max_age_s", 900)

	v.SetDefault("backend.base_url", "https://api.openai.com/v1")
	v.SetDefault("backend.model", "gpt-4o-mini")
	v.SetDefault("backend.timeout_sec", 30)
	v.SetDefault("backend.system_prompt", "You are a helpful voice assistant. Keep replies short and speakable.")
	v.SetDefault("backend.fallback_phrase", "Sorry, I'm having trouble answering right now. Please try again in a moment.")

	v.SetDefault("synthesis.base_url", "https://api.elevenlabs.io")

	v.SetDefault("egress.queue_depth", 16)

	v.SetDefault("aggregator.min_confidence", 0.35)

	v.SetDefault("transport.token_exp_min", 15)
	v.SetDefault("transport.token_skew_secs", 30)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("session.idle_timeout_sec", "SESSION_IDLE_TIMEOUT_SEC")
	v.BindEnv("session.grace_sec", "SESSION_GRACE_SEC")

	v.BindEnv("audio.in_sample_rate", "AUDIO_IN_SAMPLE_RATE")
	v.BindEnv("audio.out_sample_rate", "AUDIO_OUT_SAMPLE_RATE")
	v.BindEnv("audio.frame_ms", "AUDIO_FRAME_MS")

	v.BindEnv("vad.min_rms", "VAD_MIN_RMS")
	v.BindEnv("vad.min_start_frames", "VAD_MIN_START_FRAMES")
	v.BindEnv("vad.hangover_frames", "VAD_HANGOVER_FRAMES")
	v.BindEnv("vad.guard_ms", "VAD_GUARD_MS")

	v.BindEnv("recognition.base_url", "RECOGNITION_WS_URL")
	v.BindEnv("recognition.api_key", "RECOGNITION_API_KEY")
	v.BindEnv("recognition.model", "RECOGNITION_MODEL")
	v.BindEnv("recognition.endpointing_ms", "RECOGNITION_ENDPOINTING_MS")
	v.BindEnv("recognition.utter_end_ms", "RECOGNITION_UTTERANCE_END_MS")
	v.BindEnv("recognition.socket_max_age_s", "RECOGNITION_SOCKET_MAX_AGE_S")

	v.BindEnv("backend.base_url", "BACKEND_BASE_URL")
	v.BindEnv("backend.api_key", "BACKEND_API_KEY")
	v.BindEnv("backend.model", "BACKEND_MODEL")
	v.BindEnv("backend.system_prompt", "BACKEND_SYSTEM_PROMPT")
	v.BindEnv("backend.timeout_sec", "BACKEND_TIMEOUT_SEC")
	v.BindEnv("backend.fallback_phrase", "BACKEND_FALLBACK_PHRASE")

	v.BindEnv("synthesis.base_url", "SYNTHESIS_BASE_URL")
	v.BindEnv("synthesis.api_key", "SYNTHESIS_API_KEY")
	v.BindEnv("synthesis.voice_id", "SYNTHESIS_VOICE_ID")

	v.BindEnv("egress.queue_depth", "EGRESS_QUEUE_DEPTH")

	v.BindEnv("aggregator.min_confidence", "AGGREGATOR_MIN_CONFIDENCE")

	v.BindEnv("transport.token_secret", "TRANSPORT_TOKEN_SECRET")
	v.BindEnv("transport.token_exp_min", "TRANSPORT_TOKEN_EXP_MIN")
	v.BindEnv("transport.token_skew_secs", "TRANSPORT_TOKEN_SKEW_SECS")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Session.IdleTimeoutSec = v.GetInt("session.idle_timeout_sec")
	c.Session.GraceSec = v.GetInt("session.grace_sec")

	c.Audio.InSampleRate = v.GetInt("audio.in_sample_rate")
	c.Audio.OutSampleRate = v.GetInt("audio.out_sample_rate")
	c.Audio.FrameMs = v.GetInt("audio.frame_ms")

	c.VAD.MinRMS = v.GetFloat64("vad.min_rms")
	c.VAD.MinStartFrames = v.GetInt("vad.min_start_frames")
	c.VAD.HangoverFrames = v.GetInt("vad.hangover_frames")
	c.VAD.GuardMs = v.GetInt("vad.guard_ms")

	c.Recognition.BaseURL = v.GetString("recognition.base_url")
	c.Recognition.APIKey = v.GetString("recognition.api_key")
	c.Recognition.Model = v.GetString("recognition.model")
	c.Recognition.EndpointingMs = v.GetInt("recognition.endpointing_ms")
	c.Recognition.UtterEndMs = v.GetInt("recognition.utter_end_ms")
	c.Recognition.SocketMaxAgeS = v.GetInt("recognition.socket_max_age_s")

	c.Backend.BaseURL = v.GetString("backend.base_url")
	c.Backend.APIKey = v.GetString("backend.api_key")
	c.Backend.Model = v.GetString("backend.model")
	c.Backend.SystemPrompt = v.GetString("backend.system_prompt")
	c.Backend.TimeoutSec = v.GetInt("backend.timeout_sec")
	c.Backend.FallbackPhrase = v.GetString("backend.fallback_phrase")

	c.Synthesis.BaseURL = v.GetString("synthesis.base_url")
	c.Synthesis.APIKey = v.GetString("synthesis.api_key")
	c.Synthesis.VoiceID = v.GetString("synthesis.voice_id")

	c.Egress.QueueDepth = v.GetInt("egress.queue_depth")

	c.Aggregator.MinConfidence = v.GetFloat64("aggregator.min_confidence")

	c.Transport.TokenSecret = v.GetString("transport.token_secret")
	c.Transport.TokenExpMin = v.GetInt("transport.token_exp_min")
	c.Transport.TokenSkewSecs = v.GetInt("transport.token_skew_secs")

	log.Printf("config loaded: port=%s frame_ms=%d idle_timeout_sec=%d", c.Server.Port, c.Audio.FrameMs, c.Session.IdleTimeoutSec)
	return c
}

func toString(v any) string { return fmt.Sprint(v) }
