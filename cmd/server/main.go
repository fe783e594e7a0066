package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/execguard/syncd/internal/api"
	"github.com/execguard/syncd/internal/audit"
	"github.com/execguard/syncd/internal/config"
	"github.com/execguard/syncd/internal/metrics"
	"github.com/execguard/syncd/internal/storage/sql"
	"github.com/execguard/syncd/internal/trust"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		dir := "data"
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}

	// Initialize storage
	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Initialize audit sink (NATS, or the structured log when unconfigured)
	var sink audit.Sink
	if cfg.Audit.NATSURL != "" {
		conn, err := nats.Connect(cfg.Audit.NATSURL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer conn.Drain()
		sink = audit.NewNATSSink(conn, cfg.Audit.SubjectPrefix)
		log.Printf("Audit records publishing to NATS at %s", cfg.Audit.NATSURL)
	} else {
		sink = audit.NewLogSink(logger)
	}

	// Initialize trust verification
	verifier := trust.NoopVerifier()
	if cfg.Trust.Enabled() {
		v, err := trust.NewOIDCVerifier(context.Background(), cfg.Trust.OIDCIssuer, cfg.Trust.OIDCAudience)
		if err != nil {
			log.Fatalf("Failed to initialize trust verifier: %v", err)
		}
		verifier = v
		log.Printf("Trust verification enabled in %s mode", cfg.Trust.Mode)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Create router
	router := api.NewRouter(store, sink, verifier, m, registry, cfg, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Starting sync server on http://%s", cfg.Server.Addr())
	log.Printf("Press Ctrl+C to stop")

	// Start server in goroutine
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
