// Package main is the entry point for the caseflow server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fleetops/caseflow/internal/audit"
	"github.com/fleetops/caseflow/internal/bpm"
	"github.com/fleetops/caseflow/internal/config"
	"github.com/fleetops/caseflow/internal/flows"
	"github.com/fleetops/caseflow/internal/observability"
	"github.com/fleetops/caseflow/internal/registry"
	"github.com/fleetops/caseflow/internal/sla"
	"github.com/fleetops/caseflow/internal/stepconfig"
	"github.com/fleetops/caseflow/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config/caseflow.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "caseflow", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Open the case, config, and audit stores.
	stores, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}
	if closeStores != nil {
		defer closeStores()
	}

	// Step 5: Register flow modules and freeze the registry.
	reg := registry.New()
	if err := flows.RegisterAll(reg, flows.Deps{Logger: logger}); err != nil {
		logger.Error("flow registration failed", zap.Error(err))
		return 1
	}
	reg.Freeze()
	logger.Info("step registry frozen", zap.Int("steps", reg.Len()))

	// Step 6: Build the engine and the escalation scanner.
	engine := bpm.NewEngine(stores.cases, stores.configs, stores.audit, reg, logger, metrics)

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	if cfg.Escalation.Enabled {
		escalator := sla.NewEscalator(
			stores.cases, stores.configs, stores.audit,
			logger, metrics, cfg.Escalation.ScanInterval,
		)
		go escalator.Run(bgCtx)
	}

	// Step 7: Build the HTTP router.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)

	readiness := observability.ReadinessChecks{
		StepsRegistered: func() bool { return reg.Len() > 0 },
	}
	if hc, ok := stores.cases.(observability.HealthChecker); ok {
		readiness.CaseStore = hc
	}
	if hc, ok := stores.configs.(observability.HealthChecker); ok {
		readiness.ConfigStore = hc
	}
	if hc, ok := stores.audit.(observability.HealthChecker); ok {
		readiness.AuditStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Engine:       engine,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Metrics:      metrics,
		Logger:       logger,
		Ready:        readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 8: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("database_driver", cfg.Database.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Stop the escalation scanner.
	bgCancel()

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// stores bundles the three persistence backends the engine depends on.
type stores struct {
	cases   bpm.CaseStore
	configs stepconfig.Store
	audit   audit.Store
}

// buildStores opens the configured database driver. The memory driver seeds
// step configuration from the YAML definition directories; the postgres driver
// reads the same data from seeded tables.
func buildStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (stores, func(), error) {
	switch cfg.Database.Driver {
	case "memory", "":
		logger.Info("using in-memory stores")

		defs, err := stepconfig.NewLoader().LoadAll(cfg.Definitions.Directories)
		if err != nil {
			return stores{}, nil, fmt.Errorf("loading definitions: %w", err)
		}
		if err := defs.Validate(); err != nil {
			return stores{}, nil, err
		}
		configStore := stepconfig.NewMemStore()
		if err := configStore.Seed(defs); err != nil {
			return stores{}, nil, fmt.Errorf("seeding definitions: %w", err)
		}
		logger.Info("definitions loaded",
			zap.Int("case_types", len(defs.CaseTypes)),
			zap.Int("step_configs", len(defs.Configs)),
			zap.Int("slas", len(defs.SLAs)),
		)
		return stores{
			cases:   bpm.NewMemCaseStore(),
			configs: configStore,
			audit:   audit.NewMemStore(),
		}, nil, nil

	case "postgres":
		dsn := os.Getenv(cfg.Database.DSNEnv)
		if dsn == "" {
			return stores{}, nil, fmt.Errorf("database: %s environment variable not set", cfg.Database.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return stores{}, nil, fmt.Errorf("database: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.Database.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return stores{}, nil, fmt.Errorf("database: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return stores{}, nil, fmt.Errorf("database: ping: %w", err)
		}

		logger.Info("connected to postgres")
		return stores{
			cases:   bpm.NewPgCaseStore(pool),
			configs: stepconfig.NewPgStore(pool),
			audit:   audit.NewPgStore(pool),
		}, pool.Close, nil

	default:
		return stores{}, nil, fmt.Errorf("unsupported database driver: %q", cfg.Database.Driver)
	}
}
