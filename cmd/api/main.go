// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lumenote-ai/notebook-platform/internal/chatengine"
	"github.com/lumenote-ai/notebook-platform/internal/compaction"
	"github.com/lumenote-ai/notebook-platform/internal/config"
	"github.com/lumenote-ai/notebook-platform/internal/events"
	"github.com/lumenote-ai/notebook-platform/internal/handler"
	"github.com/lumenote-ai/notebook-platform/internal/llm"
	"github.com/lumenote-ai/notebook-platform/internal/middleware"
	"github.com/lumenote-ai/notebook-platform/internal/naming"
	"github.com/lumenote-ai/notebook-platform/internal/quota"
	"github.com/lumenote-ai/notebook-platform/internal/session"
	"github.com/lumenote-ai/notebook-platform/internal/storage"
	"github.com/lumenote-ai/notebook-platform/internal/store"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
	"github.com/lumenote-ai/notebook-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "notebook-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open snapshot storage
	snapshots, err := storage.Open(storage.DefaultConfig(cfg.StoragePath), log)
	if err != nil {
		log.Error("failed to open storage", zap.Error(err))
		os.Exit(1)
	}
	defer snapshots.Close()

	// Initialize the space store and restore persisted state
	policy := &quota.TieredPolicy{FreeLimit: cfg.FreeSpaceLimit}
	spaceStore := store.New(policy, snapshots, log)
	snap, err := snapshots.Load()
	if err != nil {
		log.Error("failed to load snapshot", zap.Error(err))
		os.Exit(1)
	}
	spaceStore.Restore(snap)
	defer spaceStore.Close()

	// Initialize LLM client
	var llmClient llm.Client
	if cfg.AnthropicAPIKey != "" {
		llmClient, err = llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client, LLM features disabled", zap.Error(err))
		}
	} else if cfg.OpenAIAPIKey != "" {
		llmClient, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("failed to create OpenAI client, LLM features disabled", zap.Error(err))
		}
	} else {
		log.Warn("no LLM API key configured, generation disabled")
	}

	// Initialize the chat engine and session adapter
	engine := chatengine.NewRemote(llmClient, log)
	adapter := session.New(spaceStore, engine, nil, log)
	go adapter.Run(ctx)

	// Background naming engine
	if llmClient != nil {
		namingModel := cfg.NamingModel
		if namingModel == "" {
			namingModel = cfg.DefaultModel
		}
		namer := naming.New(spaceStore, naming.NewLLMTitler(llmClient, namingModel), log, naming.Config{
			Cooldown:   cfg.NamingCooldown,
			MinLatency: cfg.NamingMinLatency,
		})
		go namer.Run(ctx)
	}

	// Compaction workflow
	var workflow *compaction.Workflow
	switch {
	case cfg.SummarizerEndpoint != "":
		workflow = compaction.New(spaceStore, compaction.NewHTTPSummarizer(cfg.SummarizerEndpoint), log)
	case llmClient != nil:
		summarizerModel := cfg.SummarizerModel
		if summarizerModel == "" {
			summarizerModel = cfg.DefaultModel
		}
		workflow = compaction.New(spaceStore, compaction.NewLLMSummarizer(llmClient, summarizerModel), log)
	default:
		log.Warn("no summarizer configured, compaction disabled")
	}

	// Optional NATS event bridge
	var bridge *events.Bridge
	if cfg.NATSURL != "" {
		bridge, err = events.Connect(ctx, events.Config{
			URL:   cfg.NATSURL,
			Token: cfg.NATSToken,
		}, spaceStore, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer bridge.Close()
		go bridge.Run(ctx)
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(bridge)
	spaceHandler := handler.NewSpaceHandler(spaceStore, log)
	messageHandler := handler.NewMessageHandler(spaceStore, adapter, log)
	compactHandler := handler.NewCompactHandler(workflow, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Spaces
		r.Route("/spaces", func(r chi.Router) {
			r.Post("/", spaceHandler.Create)
			r.Get("/", spaceHandler.List)
			r.Get("/search", spaceHandler.Search)
			r.Post("/compact", compactHandler.Compact)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", spaceHandler.Get)
				r.Put("/", spaceHandler.Rename)
				r.Delete("/", spaceHandler.Delete)
				r.Post("/archive", spaceHandler.Archive)
				r.Post("/pin", spaceHandler.Pin)
				r.Delete("/pin", spaceHandler.Unpin)
				r.Post("/switch", spaceHandler.Switch)

				r.Get("/messages", messageHandler.List)
			})
		})

		// Messages go to the current space
		r.Post("/messages", messageHandler.Send)
		r.Post("/messages/stop", messageHandler.Stop)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
