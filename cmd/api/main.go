package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/dialogue-engine/internal/config"
	"github.com/jwebster45206/dialogue-engine/internal/handlers"
	"github.com/jwebster45206/dialogue-engine/internal/logger"
	"github.com/jwebster45206/dialogue-engine/internal/middleware"
	"github.com/jwebster45206/dialogue-engine/internal/services"
	"github.com/jwebster45206/dialogue-engine/pkg/dialogue"
	"github.com/jwebster45206/dialogue-engine/pkg/engine"
	"github.com/jwebster45206/dialogue-engine/pkg/integrity"
	"github.com/jwebster45206/dialogue-engine/pkg/persistence"
	"github.com/jwebster45206/dialogue-engine/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Dialogue Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"storage_backend", cfg.StorageBackend,
		"content_dir", cfg.ContentDir)

	library, err := dialogue.LoadLibrary(cfg.ContentDir)
	if err != nil {
		log.Error("Failed to load dialogue content", "error", err, "dir", cfg.ContentDir)
		os.Exit(1)
	}
	report := integrity.AnalyzeLibrary(library, integrity.Options{})
	if issues := report.Issues(); len(issues) > 0 {
		log.Warn("Content has integrity issues", "count", len(issues), "first", issues[0])
	}
	log.Info("Dialogue content loaded", "graphs", len(library.Graphs()), "nodes", library.NodeCount())

	backend, closeBackend, err := openBackend(cfg, log)
	if err != nil {
		log.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	components := map[string]services.HealthChecker{}
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = waitForBackend(storageCtx, backend)
	storageCancel()
	if err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	if pinger, ok := backend.(storage.Pinger); ok {
		components["storage"] = pinger
	}
	log.Info("Storage connection established successfully")

	engineOpts := engine.Options{
		EnrichmentTimeout: cfg.EnrichmentTimeout,
		AcceptThreshold:   cfg.EnrichmentThreshold,
		DedupThreshold:    cfg.DedupThreshold,
		Deduplicator:      services.LocalDeduplicator{},
	}
	if cfg.EnrichmentURL != "" {
		enricher := services.NewEnrichmentService(cfg.EnrichmentURL, cfg.EnrichmentTimeout, cfg.EnrichmentRPS, log)
		engineOpts.Enricher = enricher
		components["enrichment"] = enricher
		log.Info("Choice enrichment enabled", "url", cfg.EnrichmentURL)
	}
	if cfg.DedupURL != "" {
		dedup := services.NewDedupService(cfg.DedupURL, cfg.EnrichmentTimeout, cfg.EnrichmentRPS, log)
		engineOpts.Deduplicator = dedup
		components["dedup"] = dedup
		log.Info("Remote choice deduplication enabled", "url", cfg.DedupURL)
	}

	sessions := handlers.NewSessions(handlers.SessionConfig{
		Library: library,
		Backend: backend,
		Store: persistence.Options{
			KeyPrefix:       cfg.StorageKeyPrefix,
			MaxPayloadBytes: cfg.MaxPayloadBytes,
		},
		Engine: engineOpts,
		Events: newBroadcaster(backend, log),
	}, log)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(library, sessions, components, log)
	mux.Handle("/health", healthHandler)

	graphHandler := handlers.NewGraphHandler(library, log)
	mux.Handle("/v1/graphs", graphHandler)

	sessionHandler := handlers.NewSessionHandler(sessions, log)
	mux.Handle("/v1/sessions", sessionHandler)
	mux.Handle("/v1/sessions/", sessionHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      middleware.Logger(log)(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	// Flush pending saves before the backend goes away
	if err := sessions.Close(shutdownCtx); err != nil {
		log.Error("Error flushing sessions", "error", err)
	}
	if err := closeBackend(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}
