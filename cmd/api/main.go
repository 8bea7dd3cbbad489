package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jwebster45206/gameweaver/internal/config"
	"github.com/jwebster45206/gameweaver/internal/handlers"
	"github.com/jwebster45206/gameweaver/internal/ingest"
	"github.com/jwebster45206/gameweaver/internal/logger"
	"github.com/jwebster45206/gameweaver/internal/middleware"
	"github.com/jwebster45206/gameweaver/internal/retrieval"
	"github.com/jwebster45206/gameweaver/internal/router"
	"github.com/jwebster45206/gameweaver/internal/services"
	"github.com/jwebster45206/gameweaver/internal/storage"
	"github.com/jwebster45206/gameweaver/internal/voice"
)

func main() {
	// Missing .env is fine; real deployments set the environment.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Setup(cfg)

	log.Info("Starting Gameweaver API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"model_name", cfg.ModelName)

	if cfg.OpenAIAPIKey == "" {
		log.Error("OpenAI API key is required")
		os.Exit(1)
	}
	llmService := services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.ModelName, log)
	embedder := services.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, log)
	realtime := services.NewOpenAIRealtimeService(cfg.OpenAIAPIKey, cfg.RealtimeModel, log)

	store := storage.NewRedisStorage(cfg.RedisURL, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	if err := store.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	// Initialize the model on startup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := llmService.InitModel(ctx, cfg.ModelName); err != nil {
		log.Error("Failed to initialize LLM model", "error", err, "model", cfg.ModelName)
		os.Exit(1)
	}

	index := retrieval.New(embedder, store, log)
	warmCtx, warmCancel := context.WithTimeout(context.Background(), time.Minute)
	defer warmCancel()
	if err := index.Warm(warmCtx); err != nil {
		log.Warn("Retrieval index warm-up failed, continuing without stored chunks", "error", err)
	}

	catalog := ingest.NewCatalog(cfg.DataDir)
	rt := router.New(store, llmService, index, catalog, log)

	voiceManager := voice.NewManager(realtime, rt, log)
	rt.SetVoiceController(voiceManager)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(store, cfg.ModelName, log)
	mux.Handle("/health", healthHandler)

	sessionHandler := handlers.NewSessionHandler(rt, log)
	mux.Handle("/v1/sessions", sessionHandler)
	mux.Handle("/v1/sessions/", sessionHandler)

	wsHandler := handlers.NewWSHandler(rt, voiceManager, log)
	mux.Handle("/v1/ws/", wsHandler)

	voiceHandler := handlers.NewVoiceHandler(voiceManager, log)
	mux.Handle("/v1/voice/session", voiceHandler)

	handler := middleware.Logger(mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout omitted; websocket connections stay open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	// Flush and stop session workers before the storage goes away
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Error("Error flushing sessions during shutdown", "error", err)
	}

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}
