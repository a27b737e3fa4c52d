// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ingestd starts the Aleutian Debug ingestion server.
//
// The server accepts debugging payloads (codebase plus context, error,
// and logs), snapshots them into versioned sessions, and serves session
// lookup, version history, and revert.
//
// Usage:
//
//	go run ./cmd/ingestd
//	go run ./cmd/ingestd -port 9090
//	go run ./cmd/ingestd -config /etc/aleutian/ingestd.yaml
//	go run ./cmd/ingestd -storage gcs
//
// Example requests:
//
//	# Health check
//	curl http://localhost:12215/v1/ingestion/health
//
//	# Ingest a payload (creates a session)
//	curl -X POST http://localhost:12215/v1/ingestion/ingest \
//	  -H "Content-Type: application/json" \
//	  -d '{"codebase": {"main.py": "x = 1\n"}, "error": "NameError: y"}'
//
//	# Fetch the session
//	curl http://localhost:12215/v1/ingestion/session/YOUR_SESSION_ID
//
//	# Revert to version 1
//	curl -X POST http://localhost:12215/v1/ingestion/session/YOUR_SESSION_ID/revert/1
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianDebug/cmd/ingestd/config"
	"github.com/AleutianAI/AleutianDebug/pkg/logging"
	"github.com/AleutianAI/AleutianDebug/pkg/telemetry"
	"github.com/AleutianAI/AleutianDebug/services/code_ingest"
	"github.com/AleutianAI/AleutianDebug/services/code_ingest/metadata"
	"github.com/AleutianAI/AleutianDebug/services/code_ingest/session"
	"github.com/AleutianAI/AleutianDebug/services/code_ingest/storage"
	badgerstore "github.com/AleutianAI/AleutianDebug/services/code_ingest/storage/badger"
	"github.com/AleutianAI/AleutianDebug/services/code_ingest/storage/gcs"
	"github.com/AleutianAI/AleutianDebug/services/code_ingest/storage/memcache"
)

// drainTimeout bounds how long in-flight requests may run after a
// shutdown signal.
const drainTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to the config file (default ~/.aleutian/ingestd.yaml)")
	host := flag.String("host", "", "Bind address (overrides config)")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	backend := flag.String("storage", "", "Storage backend: badger or gcs (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flag overrides
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *debug {
		cfg.Server.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "ingestd",
		JSON:    cfg.Logging.JSON,
	})
	slog.SetDefault(logger.Slog())

	// Set Gin mode
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Telemetry ---
	var telemetryShutdown func(context.Context) error
	if cfg.Telemetry.Enabled {
		tcfg := telemetry.DefaultConfig()
		tcfg.TraceExporter = cfg.Telemetry.TraceExporter
		tcfg.MetricExporter = cfg.Telemetry.MetricExporter
		if cfg.Telemetry.OTLPEndpoint != "" {
			tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
		}
		if cfg.Telemetry.Environment != "" {
			tcfg.Environment = cfg.Telemetry.Environment
		}

		telemetryShutdown, err = telemetry.Init(context.Background(), tcfg)
		if err != nil {
			log.Fatalf("Failed to init telemetry: %v", err)
		}
	}

	// --- Storage tiers ---
	durable, closeDurable, err := openDurable(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to open the %s backend: %v", cfg.Storage.Backend, err)
	}

	cache := memcache.New(
		memcache.WithMaxEntries(cfg.Storage.Cache.MaxEntries),
		memcache.WithMaxMemoryBytes(cfg.Storage.Cache.MaxMemoryBytes()),
	)

	store, err := storage.NewManager(durable, cache,
		storage.WithCacheTTL(cfg.Storage.Cache.TTL()),
		storage.WithFileCacheLimit(cfg.Storage.Cache.FileLimitBytes()),
		storage.WithLogger(slog.Default()),
	)
	if err != nil {
		closeDurable()
		log.Fatalf("Failed to build the storage manager: %v", err)
	}

	// --- Session manager and service ---
	sessions, err := session.NewManager(store, metadata.NewExtractor(),
		session.WithWorkingSetSize(cfg.Session.WorkingSetSize),
		session.WithWorkingSetTTL(cfg.Session.WorkingSetTTL()),
		session.WithLogger(slog.Default()),
	)
	if err != nil {
		closeDurable()
		log.Fatalf("Failed to build the session manager: %v", err)
	}

	svcCfg := code_ingest.DefaultServiceConfig()
	if len(cfg.Ingest.IgnorePatterns) > 0 {
		svcCfg.IgnorePatterns = cfg.Ingest.IgnorePatterns
	}
	svc, err := code_ingest.NewService(sessions, svcCfg)
	if err != nil {
		closeDurable()
		log.Fatalf("Failed to build the ingestion service: %v", err)
	}
	handlers := code_ingest.NewHandlers(svc)

	// --- Router ---
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Telemetry.Enabled {
		router.Use(otelgin.Middleware("ingestd"))
	}
	if cfg.Server.Debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	code_ingest.RegisterRoutes(v1, handlers)

	if cfg.Telemetry.Enabled {
		if h := telemetry.MetricsHandler(); h != nil {
			router.GET("/metrics", gin.WrapH(h))
		}
	}

	// Print startup banner
	printBanner(cfg.Server.Port, cfg.Storage.Backend)

	// --- Serve until signalled ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()
	slog.Info("Starting ingestion server",
		slog.String("address", addr),
		slog.String("backend", cfg.Storage.Backend))

	var exitCode int
	select {
	case <-ctx.Done():
		slog.Info("Shutting down ingestion server")
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := srv.Shutdown(drainCtx); err != nil {
			slog.Error("Server drain failed", slog.String("error", err.Error()))
		}
		cancel()
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", slog.String("error", err.Error()))
			exitCode = 1
		}
	}

	// Final tier stats for the shutdown log
	cacheStats := cache.Stats()
	slog.Info("Cache at shutdown",
		slog.Int("entries", cacheStats.EntryCount),
		slog.Float64("hit_rate", cacheStats.HitRate()))
	slog.Info("Working set at shutdown",
		slog.Int("sessions", sessions.WorkingSetStats().Size))

	if err := closeDurable(); err != nil {
		slog.Error("Failed to close the durable store", slog.String("error", err.Error()))
		exitCode = 1
	}

	if telemetryShutdown != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := telemetryShutdown(shutCtx); err != nil {
			slog.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
		cancel()
	}

	logger.Close()
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// openDurable opens the configured durable backend. The returned close
// function must be called exactly once.
func openDurable(ctx context.Context, cfg config.Config) (storage.BlobStore, func() error, error) {
	switch cfg.Storage.Backend {
	case "badger":
		db, err := badgerstore.OpenDB(badgerstore.Config{
			Path:           cfg.Storage.Badger.Path,
			InMemory:       cfg.Storage.Badger.InMemory,
			SyncWrites:     cfg.Storage.Badger.SyncWrites,
			Logger:         slog.Default(),
			GCInterval:     cfg.Storage.Badger.GCInterval(),
			GCDiscardRatio: cfg.Storage.Badger.GCDiscardRatio,
		})
		if err != nil {
			return nil, nil, err
		}
		store, err := badgerstore.NewStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil

	case "gcs":
		store, err := gcs.NewStore(ctx, gcs.Config{
			Bucket:          cfg.Storage.GCS.Bucket,
			Prefix:          cfg.Storage.GCS.Prefix,
			CredentialsFile: cfg.Storage.GCS.CredentialsFile,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func printBanner(port int, backend string) {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                  ALEUTIAN DEBUG INGESTION SERVER                  ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Versioned code snapshots for debugging sessions.                 ║
║  Durable backend: %-8s                                        ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/ingestion/health              │  ║
║  │                                                             │  ║
║  │ # Ingest a payload (creates a session)                      │  ║
║  │ curl -X POST http://localhost:%d/v1/ingestion/ingest \    │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"codebase": {"main.py": "x = 1\n"}}'                 │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── POST /v1/ingestion/ingest                                    ║
║  ├── GET  /v1/ingestion/session/:session_id                       ║
║  ├── GET  /v1/ingestion/session/:session_id/history               ║
║  ├── POST /v1/ingestion/session/:session_id/revert/:version       ║
║  └── GET  /v1/ingestion/health, /ready                            ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, backend, port, port)
}
