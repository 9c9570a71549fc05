// Package main is the entry point for the chat API server.
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

	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/config"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/handler"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/middleware"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/relay"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/service"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/store"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/ws"
	"github.com/UdaynoorSingh/freelancer-marketplace2/pkg/logger"
	"github.com/UdaynoorSingh/freelancer-marketplace2/pkg/tracing"
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

	log.Info("starting chat API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "marketplace-chat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to MongoDB
	db, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Error("failed to connect to MongoDB", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Disconnect(disconnectCtx, db); err != nil {
			log.Warn("MongoDB disconnect failed", zap.Error(err))
		}
	}()

	// Connect the realtime relay
	chatRelay, err := relay.Connect(ctx, relay.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer chatRelay.Shutdown()

	// Initialize stores and services
	messageStore := store.NewMessageStore(db)
	users := store.NewUserDirectory(db)
	gigs := store.NewGigCatalog(db)
	orders := store.NewOrderDirectory(db)
	messageSvc := service.NewMessageService(messageStore, users, gigs, orders, chatRelay, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(db, chatRelay)
	messageHandler := handler.NewMessageHandler(messageSvc, cfg.HistoryMaxLimit, log)
	wsHandler := ws.NewHandler(chatRelay, messageSvc, cfg.JWTSecret, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Message API with authentication
	r.Route("/api/messages", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/", messageHandler.Send)
		r.Get("/conversations", messageHandler.Conversations)
		r.Get("/thread/{userID}", messageHandler.Thread)
		r.Get("/{userID}", messageHandler.History)
	})

	// Realtime relay surface (authenticates during handshake)
	r.Get("/ws", wsHandler.Serve)

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
