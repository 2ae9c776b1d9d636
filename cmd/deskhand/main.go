// Deskhand is the orchestration daemon behind a desktop AI assistant: it
// keeps short-term conversation memory, drives completion backends (cloud or
// local), and turns recorded speech into text prompts.
//
// Usage:
//
//	deskhand [flags]
//	deskhand --config /path/to/deskhand.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/avelline/deskhand/internal/assistant"
	"github.com/avelline/deskhand/internal/audio"
	"github.com/avelline/deskhand/internal/backend"
	localbackend "github.com/avelline/deskhand/internal/backend/local"
	openaibackend "github.com/avelline/deskhand/internal/backend/openai"
	"github.com/avelline/deskhand/internal/capture"
	"github.com/avelline/deskhand/internal/config"
	"github.com/avelline/deskhand/internal/health"
	"github.com/avelline/deskhand/internal/transport"
	httptransport "github.com/avelline/deskhand/internal/transport/http"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/deskhand.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("deskhand %s\n", version)
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging.
	config.SetupLogging(cfg.Logging)
	slog.Info("deskhand starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize the completion backend.
	var b backend.Backend
	switch cfg.Backend {
	case "openai":
		b = openaibackend.New(cfg.OpenAI)
		slog.Info("using OpenAI backend",
			"completion_model", cfg.OpenAI.CompletionModel,
			"transcription_model", cfg.OpenAI.TranscriptionModel)
	case "local":
		b = localbackend.New(cfg.Local)
		slog.Info("using local backend",
			"llm", cfg.Local.LLMEndpoint,
			"whisper", cfg.Local.WhisperEndpoint)
	default:
		slog.Error("unknown backend", "backend", cfg.Backend)
		os.Exit(1)
	}
	defer b.Close()

	// Assemble the assistant.
	asst := assistant.New(b, assistant.Options{
		SystemPrompt:   cfg.Assistant.SystemPrompt,
		RequestTimeout: cfg.Assistant.RequestTimeout,
		Capturer:       capture.New(cfg.Capture.MaxWidth, cfg.Capture.MaxHeight),
		Normalizer:     audio.New(cfg.Audio.FFmpegPath, cfg.Audio.Timeout),
	})

	// Initialize enabled transports.
	var transports []transport.Transport
	if cfg.Transport.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transport.HTTP.Port))
	}
	if len(transports) == 0 {
		slog.Error("no transports enabled, enable at least one in config")
		os.Exit(1)
	}

	// Start health check server.
	healthServer := health.New(cfg.Server.HealthPort)
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	// Start all transports.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, asst); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	// Mark as ready once all transports are started.
	healthServer.SetReady(true)
	slog.Info("deskhand ready",
		"backend", b.Name(),
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort)

	// Block until shutdown signal.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")

	// Close all transports gracefully.
	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("deskhand stopped")
}
