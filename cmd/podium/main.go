package main

import (
	"context"
	"embed"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/avendahl/podium/internal/coach"
	"github.com/avendahl/podium/internal/config"
	"github.com/avendahl/podium/internal/export"
	"github.com/avendahl/podium/internal/llm"
	"github.com/avendahl/podium/internal/metrics"
	"github.com/avendahl/podium/internal/server"
	"github.com/avendahl/podium/internal/session"
	"github.com/avendahl/podium/internal/storage"
	"github.com/avendahl/podium/internal/transcribe"
	"github.com/avendahl/podium/internal/tts"
)

//go:embed static/*
var staticFiles embed.FS

func main() {
	log.Println("podium: starting")

	configPath := envOrDefault("PODIUM_CONFIG", "podium.yaml")

	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, warning := range warnings {
		log.Printf("warning: %s", warning)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("static assets init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	handler, err := server.Handler(assets, server.Options{
		Logger:      logger,
		BaseContext: ctx,
		Session: session.Config{
			TimeLimitSeconds: cfg.TimeLimitSeconds,
			Voice:            tts.VoiceConfig{Name: cfg.Voice, Speed: cfg.VoiceSpeed},
			PurgeAfter:       cfg.ParsedPurgeAfter(),
			EagerTimeout:     cfg.ParsedEagerTimeout(),
			FinalizeTimeout:  cfg.ParsedFinalizeTimeout(),
			Logger:           logger,
		},
		Collaborators:        buildCollaborators(cfg, store, collector, logger),
		Outputs:              store,
		Instruments:          collector,
		Gatherer:             registry,
		Warnings:             func() []string { return warnings },
		MediaFrameMaxBytes:   cfg.MediaFrameMaxBytes,
		MediaFramesPerSecond: cfg.MediaFramesPerSecond,
	})
	if err != nil {
		log.Fatalf("build http handler failed: %v", err)
	}

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	if cfg.GDriveFolderID != "" {
		exporter, expErr := export.NewExporter(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID, store, logger)
		if expErr != nil {
			log.Printf("warning: drive export disabled: %v", expErr)
		} else {
			go exporter.Run(ctx, cfg.ParsedExportInterval())
		}
	}

	log.Printf("podium: web console on http://127.0.0.1%s", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("podium: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

// buildCollaborators assembles the coaching pipeline from whatever is
// configured. Missing credentials degrade a stage to its canned
// stand-in rather than refusing to start; config.Load has already
// warned about each one.
func buildCollaborators(cfg config.Config, store *storage.Store, collector *metrics.Collector, logger *slog.Logger) session.Collaborators {
	var transcribers session.TranscriberFactory = transcribe.NewNullFactory()
	if cfg.DeepgramAPIKey != "" {
		transcribers = transcribe.NewDeepgramFactory(transcribe.Options{
			APIKey:     cfg.DeepgramAPIKey,
			Model:      cfg.DeepgramModel,
			Language:   cfg.Language,
			SampleRate: cfg.SampleRate,
		}, logger)
	}

	var evaluator session.Evaluator = coach.NewStaticEvaluator()
	if provider, modelName, err := llm.ParseModel(cfg.EvaluationModel); err == nil {
		if key := cfg.APIKeyFor(provider); key != "" {
			client, clientErr := llm.NewClient(provider, key, modelName)
			if clientErr != nil {
				log.Printf("warning: evaluation client unavailable: %v", clientErr)
			} else {
				evaluator = coach.NewEvaluator(client)
			}
		}
	}

	var synthesizer session.Synthesizer = tts.NewToneSynthesizer()
	if cfg.OpenAIAPIKey != "" {
		synthesizer = tts.NewOpenAI(cfg.OpenAIAPIKey, cfg.TTSModel)
	}

	return session.Collaborators{
		Transcribers: transcribers,
		Analyzer:     coach.NewExtractor(),
		Evaluator:    evaluator,
		Reviewer:     coach.NewReviewer(cfg.OpenAIAPIKey, cfg.ModerationModel, logger),
		Synthesizer:  synthesizer,
		Outputs:      store,
		Instruments:  collector,
	}
}

func envOrDefault(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
