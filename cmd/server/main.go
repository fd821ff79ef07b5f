package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ahstewart/signal-snapshot/internal/analytics"
	"github.com/ahstewart/signal-snapshot/internal/api"
	"github.com/ahstewart/signal-snapshot/internal/audit"
	"github.com/ahstewart/signal-snapshot/internal/config"
	"github.com/ahstewart/signal-snapshot/internal/crypto"
	"github.com/ahstewart/signal-snapshot/internal/metrics"
	"github.com/ahstewart/signal-snapshot/internal/middleware"
	"github.com/ahstewart/signal-snapshot/internal/session"
	"github.com/ahstewart/signal-snapshot/internal/source"
	"github.com/ahstewart/signal-snapshot/internal/summarize"
	"github.com/ahstewart/signal-snapshot/internal/tracing"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Set log level from config
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
	}).Info("Starting snapshot analytics engine")

	// Watch the config file and SIGHUP for live log level changes
	reloader, err := config.NewConfigReloader(configPath, cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Config reloading disabled")
	} else {
		defer reloader.Stop()
	}

	// Initialize tracing
	shutdownTracing, err := tracing.Setup(context.Background(), &cfg.Tracing)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.WithError(err).Warn("Tracing shutdown failed")
		}
	}()

	// Initialize metrics
	m := metrics.NewMetrics()
	m.SetVersion(version)
	m.StartSystemMetricsCollector()

	// Session registry owns every opened snapshot
	registry := session.NewRegistry(cfg.Session.MaxSessions, cfg.Session.TTL)
	defer registry.Close()

	// Decryption search, feeding candidate outcomes into metrics
	decryptor := crypto.NewDecryptor(logger)
	decryptor.OnCandidate = m.RecordDecryptAttempt

	aggregator := analytics.NewAggregator(logger)

	// Source fetcher for s3:// and local snapshot locations
	var s3cfg *source.S3Config
	if cfg.Source.AccessKey != "" {
		s3cfg = &source.S3Config{
			Endpoint:  cfg.Source.Endpoint,
			Region:    cfg.Source.Region,
			AccessKey: cfg.Source.AccessKey,
			SecretKey: cfg.Source.SecretKey,
		}
	}
	fetcher := source.NewFetcher(s3cfg)

	// Optional conversation summarizer
	var summarizer summarize.Summarizer = summarize.Noop{}
	if cfg.Summarizer.Enabled {
		gemini, err := summarize.NewGemini(context.Background(), summarize.GeminiConfig{
			APIKey:     cfg.Summarizer.APIKey,
			ModelName:  cfg.Summarizer.Model,
			MaxRetries: cfg.Summarizer.MaxRetries,
			RetryDelay: cfg.Summarizer.RetryDelay,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create summarizer")
		}
		defer gemini.Close()
		summarizer = gemini
		logger.WithField("model", cfg.Summarizer.Model).Info("Summarizer enabled")
	}

	// Optional audit logger
	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger = audit.NewLogger(cfg.Audit.MaxEvents)
		logger.WithField("max_events", cfg.Audit.MaxEvents).Info("Audit logging enabled")
	}

	// Initialize API handler
	handler := api.NewHandler(registry, decryptor, aggregator, fetcher, summarizer, auditLogger, m, logger, cfg)

	// Setup router
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	// Apply middleware
	httpHandler := middleware.RecoveryMiddleware(logger)(router)
	if cfg.Tracing.Enabled {
		httpHandler = middleware.TracingMiddleware(cfg.Tracing.ServiceName)(httpHandler)
	}
	httpHandler = middleware.LoggingMiddleware(logger, m)(httpHandler)
	httpHandler = middleware.SecurityHeadersMiddleware()(httpHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpHandler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	} else {
		logger.Info("Server stopped gracefully")
	}
}
