package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/umakanthkeerthi/docai-calling-agent/internal/agent"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/booking"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/config"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/httpserver"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/knowledge"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/llm"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/logs"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/storage"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/stt"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/telephony"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/triage"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/tts"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	groq := llm.NewGroqClient(cfg.GroqKey, cfg.GroqModelID)
	retriever := knowledge.NewChromaClient(cfg.ChromaURL, cfg.ChromaCollection)
	router := agent.NewRouter(triage.NewEngine(groq, retriever), booking.NewEngine())

	deps := httpserver.Deps{
		Responder:   router,
		Transcriber: stt.NewDeepgramClient(cfg.DeepgramKey, ""),
		Synthesizer: tts.NewDeepgramClient(cfg.DeepgramKey, ""),
		Broadcaster: logs.NewBroadcaster(),
	}

	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		archive, err := storage.NewTranscriptArchive(storage.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Printf("transcript archive disabled: %v", err)
		} else {
			deps.Archiver = archive
		}
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		deps.Dialer = telephony.NewDialer(telephony.Config{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
		})
	}

	e := httpserver.NewEcho(cfg)
	httpserver.New(cfg, deps).Register(e)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
