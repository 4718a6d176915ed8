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

	"github.com/draftwell-ai/artifact-platform/internal/broker"
	"github.com/draftwell-ai/artifact-platform/internal/cache"
	"github.com/draftwell-ai/artifact-platform/internal/config"
	"github.com/draftwell-ai/artifact-platform/internal/dedup"
	"github.com/draftwell-ai/artifact-platform/internal/executor"
	"github.com/draftwell-ai/artifact-platform/internal/genai"
	"github.com/draftwell-ai/artifact-platform/internal/handler"
	"github.com/draftwell-ai/artifact-platform/internal/middleware"
	natsclient "github.com/draftwell-ai/artifact-platform/internal/nats"
	"github.com/draftwell-ai/artifact-platform/internal/service"
	"github.com/draftwell-ai/artifact-platform/internal/store"
	"github.com/draftwell-ai/artifact-platform/pkg/logger"
	"github.com/draftwell-ai/artifact-platform/pkg/tracing"
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
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "artifact-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", "error", err)
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Run migrations and connect Postgres
	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to Postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	// Connect to NATS. The dedup gate and downstream bus are optional:
	// without them the platform runs, but change notifications are off.
	var natsClient *natsclient.Client
	var gate *dedup.Gate
	natsClient, err = natsclient.Connect(natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Warn("NATS unavailable, change notifications disabled", "error", err)
		natsClient = nil
	} else {
		defer natsClient.Close()

		bus := natsclient.NewEventBus(natsClient)
		if err := bus.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", "error", err)
			os.Exit(1)
		}
		kv, err := natsclient.NewKVStore(ctx, natsClient, 24*time.Hour)
		if err != nil {
			log.Error("failed to create KV bucket", "error", err)
			os.Exit(1)
		}
		gate = dedup.New(kv, bus, "changed", log)
	}

	// Initialize generation client
	var genClient genai.Client
	if cfg.AnthropicAPIKey != "" {
		genClient, err = genai.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client, generation disabled")
		}
	} else if cfg.OpenAIAPIKey != "" {
		genClient, err = genai.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("failed to create OpenAI client, generation disabled")
		}
	}

	// Core pipeline: broker, executor, service. The resume mode is
	// decided here, once, and logged.
	b := broker.New(cfg.ResumptionWindow, cfg.ReplayBufferCap, log)

	var notifier executor.Notifier
	if gate != nil {
		notifier = gate
	}
	exec := executor.New(pg, pg, b, genClient, notifier, cfg.PartialContent, log)

	// Two-path resume state, decided once at startup and observable in
	// the logs, instead of a hidden per-request fallback.
	mode := service.ModeResumable
	if !cfg.ResumableTransport {
		mode = service.ModeSnapshot
	}
	log.Info("resume mode selected", "mode", mode)

	svc := service.NewArtifactService(pg, pg, pg, b, exec, mode, cfg.ResumptionWindow, log)

	versionCache := cache.New(cfg.CacheCapacity, cfg.CacheTTL)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	conversationHandler := handler.NewConversationHandler(svc, log)
	artifactHandler := handler.NewArtifactHandler(svc, versionCache, log)
	streamHandler := handler.NewStreamHandler(svc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Stream-URL", "X-Correlation-ID"},
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

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)

				// Generation
				r.Post("/generate", streamHandler.Generate)
				r.Get("/stream", streamHandler.Stream)
			})
		})

		r.Route("/artifacts", func(r chi.Router) {
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", artifactHandler.Get)
				r.Get("/content", artifactHandler.GetLatest)
				r.Get("/versions", artifactHandler.ListVersions)
				r.Get("/versions/{version}", artifactHandler.GetVersion)
				r.Delete("/", artifactHandler.Delete)
				r.Post("/restore", artifactHandler.Restore)
			})
		})
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
		log.Info("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout; in-flight generations are
	// detached tasks and get drained explicitly.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	exec.Wait()

	log.Info("server stopped")
}
