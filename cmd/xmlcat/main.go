package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/xmlcat/internal/adapters/driven/kafka"
	"github.com/custodia-labs/xmlcat/internal/adapters/driven/postgres"
	postgresqueue "github.com/custodia-labs/xmlcat/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/xmlcat/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/xmlcat/internal/adapters/driven/redis"
	"github.com/custodia-labs/xmlcat/internal/adapters/driven/xmltree"
	"github.com/custodia-labs/xmlcat/internal/adapters/driving/http"
	"github.com/custodia-labs/xmlcat/internal/config"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driving"
	"github.com/custodia-labs/xmlcat/internal/core/services"
	"github.com/custodia-labs/xmlcat/internal/logger"
	"github.com/custodia-labs/xmlcat/internal/metrics"
	"github.com/custodia-labs/xmlcat/internal/worker"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("XMLCAT_CONFIG"), "path to a YAML config file")
	flag.Parse()

	// Get run mode from environment (RUN_MODE) or command line arg
	mode := getEnv("RUN_MODE", "all")
	if flag.NArg() > 0 {
		mode = flag.Arg(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(mode, cfg); err != nil {
		slog.Error("xmlcat exited with error", "error", err)
		os.Exit(1)
	}
}

func run(mode string, cfg *config.Config) error {
	switch mode {
	case "api", "worker", "all":
	default:
		return fmt.Errorf("unknown mode: %s (use: api, worker, or all)", mode)
	}
	slog.Info("xmlcat starting", "version", version, "mode", mode)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ===== Metrics =====
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(reg)
		if cfg.Metrics.Port > 0 {
			shutdown := m.StartServer(cfg.Metrics.Port)
			defer func() {
				_ = shutdown(context.Background())
			}()
		}
	}

	// ===== PostgreSQL =====
	slog.Info("connecting to postgres")
	pgCfg := postgres.DefaultConfig(cfg.Postgres.URL)
	if cfg.Postgres.MaxOpenConns > 0 {
		pgCfg.MaxOpenConns = cfg.Postgres.MaxOpenConns
	}
	if cfg.Postgres.MaxIdleConns > 0 {
		pgCfg.MaxIdleConns = cfg.Postgres.MaxIdleConns
	}
	if cfg.Postgres.ConnMaxLifetime > 0 {
		pgCfg.ConnMaxLifetime = cfg.Postgres.ConnMaxLifetime
	}
	if cfg.Postgres.ConnMaxIdleTime > 0 {
		pgCfg.ConnMaxIdleTime = cfg.Postgres.ConnMaxIdleTime
	}
	db, err := postgres.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		return err
	}

	// ===== Redis (optional) =====
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
		slog.Info("redis connected")
	}

	// ===== Task Queue (Redis if available, otherwise PostgreSQL) =====
	var taskQueue driven.TaskQueue
	if redisClient != nil {
		taskQueue, err = redisqueue.NewQueue(ctx, redisClient, redisqueue.DefaultNamespace, fmt.Sprintf("worker-%d", os.Getpid()))
		if err != nil {
			return fmt.Errorf("create task queue: %w", err)
		}
		slog.Info("using redis task queue")
	} else {
		pgQueue := postgresqueue.NewQueue(db.DB)
		if err := pgQueue.EnsureSchema(ctx); err != nil {
			return err
		}
		taskQueue = pgQueue
		slog.Info("using postgres task queue")
	}
	defer taskQueue.Close()

	// ===== Distributed Lock (Redis if available, otherwise PostgreSQL advisory locks) =====
	var lock driven.DistributedLock
	if redisClient != nil {
		lock = redisadapter.NewLock(redisClient, redisadapter.DefaultLockPrefix)
		slog.Info("using redis distributed lock")
	} else {
		lock = postgres.NewAdvisoryLock(db)
		slog.Info("using postgres advisory lock")
	}

	// ===== Event publisher (optional) =====
	var events driven.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
		events = publisher
		slog.Info("publishing index events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	catalog := services.NewCatalogService(services.CatalogConfig{
		Resources: postgres.NewResourceStore(db),
		Indexes:   postgres.NewIndexStore(db),
		Views:     postgres.NewIndexViewStore(db),
		Executor:  postgres.NewQueryExecutor(db, slog.Default()),
		Parser:    xmltree.NewParser(),
		Lock:      lock,
		Queue:     taskQueue,
		Events:    events,
		Metrics:   m,
		Reindex: services.ReindexConfig{
			Concurrency: cfg.Reindex.Concurrency,
			LockTTL:     cfg.Reindex.LockTTL,
		},
		Logger: slog.Default(),
	})

	if mode == "worker" || mode == "all" {
		w := worker.NewWorker(worker.WorkerConfig{
			TaskQueue:      taskQueue,
			Indexer:        catalog,
			Logger:         slog.Default(),
			Concurrency:    cfg.Worker.Concurrency,
			DequeueTimeout: cfg.Worker.DequeueTimeout,
		})
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		defer w.Stop()
	}

	if mode == "worker" {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping")
		return nil
	}
	return runAPI(ctx, cfg, catalog, m, db, taskQueue)
}

// runAPI serves HTTP until ctx is cancelled
func runAPI(
	ctx context.Context,
	cfg *config.Config,
	catalog driving.CatalogService,
	m *metrics.Metrics,
	db http.Pinger,
	queue http.Pinger,
) error {
	serverCfg := http.DefaultConfig()
	serverCfg.Port = cfg.Server.Port
	serverCfg.Version = version
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	serverCfg.WriteTimeout = cfg.Server.WriteTimeout
	serverCfg.MaxBodyBytes = cfg.Server.MaxBodyBytes
	serverCfg.ExposeMetrics = cfg.Metrics.Port == 0

	server := http.NewServer(serverCfg, catalog, m, db, queue)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
