package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vox/agent/internal/api"
	"vox/agent/internal/config"
	"vox/agent/internal/dispatch"
	"vox/agent/internal/recog"
	"vox/agent/internal/session"
	"vox/agent/internal/synth"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	backend := dispatch.NewSSEBackend(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Model, cfg.Backend.SystemPrompt)
	synthesizer := synth.NewHTTPSynthesizer(cfg.Synthesis.BaseURL, cfg.Synthesis.APIKey, cfg.Audio.OutSampleRate, cfg.Audio.FrameMs)

	mgr := session.NewManager(session.Collaborators{
		NewRecognizer: func(language string) recog.Recognizer {
			return recog.NewWSRecognizer(recog.Config{
				BaseURL:       cfg.Recognition.BaseURL,
				APIKey:        cfg.Recognition.APIKey,
				Model:         cfg.Recognition.Model,
				SampleRate:    cfg.Audio.InSampleRate,
				EndpointingMs: cfg.Recognition.EndpointingMs,
				UtterEndMs:    cfg.Recognition.UtterEndMs,
				SocketMaxAgeS: cfg.Recognition.SocketMaxAgeS,
			})
		},
		Backend: backend,
		Synth:   synthesizer,
	}, session.Options{
		FrameMs:        cfg.Audio.FrameMs,
		VADMinRMS:      cfg.VAD.MinRMS,
		VADMinStart:    cfg.VAD.MinStartFrames,
		VADHangover:    cfg.VAD.HangoverFrames,
		GuardMs:        cfg.VAD.GuardMs,
		EgressDepth:    cfg.Egress.QueueDepth,
		BackendTimeout: time.Duration(cfg.Backend.TimeoutSec) * time.Second,
		MinConfidence:  cfg.Aggregator.MinConfidence,
		FallbackPhrase: cfg.Backend.FallbackPhrase,
		IdleTimeout:    time.Duration(cfg.Session.IdleTimeoutSec) * time.Second,
	}, nil)

	evictCtx, evictCancel := context.WithCancel(context.Background())
	go mgr.RunEvictor(evictCtx)

	h := api.NewHandlers(cfg, mgr)
	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h))
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutdown signal received; stopping server...")
		evictCancel()
		mgr.Shutdown("server shutdown")
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Session.GraceSec)*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	log.Printf("agent starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
