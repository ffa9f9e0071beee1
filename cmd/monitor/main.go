package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/opensoc/runwatch/internal/api"
	"github.com/opensoc/runwatch/internal/app/monitor"
	"github.com/opensoc/runwatch/internal/app/stats"
	"github.com/opensoc/runwatch/internal/config"
	"github.com/opensoc/runwatch/internal/infra/analysisapi"
	"github.com/opensoc/runwatch/internal/infra/eventbus/kafka"
	recoveryStore "github.com/opensoc/runwatch/internal/infra/storage/recovery/postgres"
	"github.com/opensoc/runwatch/pkg/common/logger"
	"github.com/opensoc/runwatch/pkg/common/otel"
)

var build = "develop"

const serviceType = "run-monitor"

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.TraceID(ctx),
			}

			// Add any error-specific attributes.
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.TraceID(ctx)
	}

	svcName := fmt.Sprintf("RUN-MONITOR-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"build":    build,
		"app":      serviceType,
	}

	log := logger.NewWithMetadata(os.Stdout, logger.LevelInfo, svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, log, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, hostname string) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// -------------------------------------------------------------------------
	// Configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// -------------------------------------------------------------------------
	// Database
	log.Info(ctx, "startup", "status", "initializing database support")

	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("parsing db config: %w", err)
	}
	poolCfg.MinConns = cfg.Postgres.MinConns
	poolCfg.MaxConns = cfg.Postgres.MaxConns
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating db pool: %w", err)
	}
	defer pool.Close()

	if err := runMigrations(pool); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// -------------------------------------------------------------------------
	// Start Tracing Support
	log.Info(ctx, "startup", "status", "initializing tracing support")

	traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      cfg.Otel.ServiceName,
		ExporterEndpoint: cfg.Otel.ExporterEndpoint,
		ExcludedRoutes: map[string]struct{}{
			"/v1/health":    {},
			"/v1/readiness": {},
		},
		Probability: cfg.Otel.Probability,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"hostname":         hostname,
		},
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(ctx)

	tracer := traceProvider.Tracer(cfg.Otel.ServiceName)

	// -------------------------------------------------------------------------
	// Event Bus
	log.Info(ctx, "startup", "status", "initializing event bus")

	mp := otel.MeterProvider()
	metricCollector, err := monitor.NewMonitorMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	kafkaClient, err := kafka.NewClient(&kafka.ClientConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID,
	})
	if err != nil {
		return fmt.Errorf("creating kafka client: %w", err)
	}
	defer kafkaClient.Close()

	bus, err := kafka.ConnectEventBus(&kafka.EventBusConfig{
		Brokers:        cfg.Kafka.Brokers,
		LifecycleTopic: cfg.Kafka.LifecycleTopic,
		ProgressTopic:  cfg.Kafka.ProgressTopic,
		GroupID:        cfg.Kafka.GroupID,
		ClientID:       cfg.Kafka.ClientID,
		ServiceType:    serviceType,
	}, kafkaClient, log, metricCollector, tracer)
	if err != nil {
		return fmt.Errorf("connecting event bus: %w", err)
	}
	defer bus.Close()

	// -------------------------------------------------------------------------
	// Monitor wiring

	platformClient := analysisapi.NewClient(cfg.Platform.BaseURL, log)
	recovery := recoveryStore.NewRecoveryStore(pool, tracer)
	statsCollector := stats.NewCollector(log)
	defer statsCollector.Stop()

	monitorCfg := monitor.Config{
		PollInterval:          cfg.Monitor.PollInterval,
		StagnationTimeout:     cfg.Monitor.StagnationTimeout,
		DetectionWindow:       cfg.Monitor.DetectionWindow,
		MaxUninformativePolls: cfg.Monitor.MaxUninformativePolls,
		OverlaySettle:         cfg.Monitor.OverlaySettle,
		FastRefreshDelay:      cfg.Monitor.FastRefreshDelay,
		CommandRPS:            cfg.Monitor.CommandRPS,
		CommandBurst:          cfg.Monitor.CommandBurst,
	}

	registry := monitor.NewRegistry(func(resourceID uuid.UUID) *monitor.RunMonitor {
		return monitor.NewRunMonitor(
			resourceID,
			platformClient,
			platformClient,
			bus,
			recovery,
			monitorCfg,
			metricCollector,
			tracer,
			log,
			monitor.WithStatsNotifier(statsCollector),
		)
	}, log)
	defer registry.StopAll()

	// -------------------------------------------------------------------------
	// API Service

	log.Info(ctx, "startup", "status", "initializing API support")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	server := api.NewServer(cfg.API.Addr(), log, tracer, registry)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start(serverCtx)
	}()

	// -------------------------------------------------------------------------
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		defer log.Info(ctx, "shutdown", "status", "shutdown complete", "signal", sig)

		serverCancel()
		if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

// runMigrations brings the recovery schema up to date before any monitor
// touches it.
func runMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	migrations, err := migrate.NewWithDatabaseInstance("file://db/migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := migrations.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
