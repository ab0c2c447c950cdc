package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/client"
	"github.com/Ramsey-B/fern/internal/repositories/conflict"
	"github.com/Ramsey-B/fern/internal/repositories/listing"
	notificationrepo "github.com/Ramsey-B/fern/internal/repositories/notification"
	"github.com/Ramsey-B/fern/internal/repositories/preference"
	"github.com/Ramsey-B/fern/pkg/classify"
	"github.com/Ramsey-B/fern/pkg/criteria"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/dedup"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/geo"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/notification"
	"github.com/Ramsey-B/fern/pkg/portals"
	"github.com/Ramsey-B/fern/pkg/processor"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/scheduler"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.AppName, cfg.OtelExporterEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	sqlDB, err := sqlx.Open(cfg.DatabaseDriver, cfg.DatabaseDSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	db := database.NewDatabaseInstance(sqlDB, logger)

	boot := startup.New(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&startup.Func{
		Name: "database",
		StartFunc: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("ping database: %w", err)
			}
			return database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			}).MigratePostgres(sqlDB, cfg.DatabaseName)
		},
		StopFunc: func(context.Context) error { return db.Close() },
	})

	var redisClient *redis.Client
	if cfg.RedisHost != "" {
		boot.AddDependency(&startup.Func{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				redisClient, err = redis.NewClient(ctx, redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				return err
			},
			StopFunc: func(context.Context) error { return redisClient.Close() },
		})
	} else {
		logger.Warn("REDIS_HOST not set, dedup runs without cross-instance locks")
	}

	// infrastructure first; the services below need a live redis client
	if err := boot.Start(ctx); err != nil {
		return err
	}

	producer := kafka.NewProducer(kafka.ProducerConfigFrom(cfg), logger)
	emitter := events.NewEmitter(producer, logger)

	listings := listing.NewRepository(db, logger)
	clients := client.NewRepository(db, logger)
	preferences := preference.NewRepository(db, logger)
	conflicts := conflict.NewRepository(db, logger)
	notifications := notificationrepo.NewRepository(db, logger)

	area := geo.NewFilter(geo.Config{
		EarthRadiusKm:       cfg.EarthRadiusKm,
		DefaultRadiusMeters: cfg.DefaultRadiusMeters,
	}, logger)
	engine := matching.NewEngine(matching.Config{WorkerCount: cfg.MatchWorkerCount}, logger,
		criteria.NewMatcher(area), clients, preferences)

	opts := []dedup.ServiceOption{dedup.WithEmitter(emitter)}
	if redisClient != nil {
		opts = append(opts, dedup.WithLocker(redis.NewLocker(redisClient, "fern:lock:", cfg.DedupLockTTL, cfg.DedupLockWait)))
	}
	ingest := dedup.NewService(dedup.Config{
		PriceTolerancePct:  cfg.DedupPriceTolerancePct,
		SizeToleranceSqm:   cfg.DedupSizeToleranceSqm,
		MaxConflictRetries: cfg.IngestMaxConflictRetries,
	}, logger, classify.NewClassifier(logger), listings, conflicts, opts...)

	tracker := notification.NewTracker(notifications, logger)
	registry := portals.NewRegistry()
	proc := processor.NewProcessor(logger, registry, ingest, engine, tracker, emitter, listings)

	checker := health.NewChecker(cfg.AppVersion)
	checker.AddProbe("database", db.PingContext)
	if redisClient != nil {
		checker.AddProbe("redis", redisClient.Ping)
	}

	boot.AddDependency(&startup.Func{
		Name:     "kafka-producer",
		StopFunc: func(context.Context) error { return producer.Close() },
	})

	if cfg.KafkaConsumerEnabled {
		consumer := kafka.NewConsumer(cfg, logger, proc.HandleMessage)
		boot.AddDependency(&startup.Func{
			Name:      "kafka-consumer",
			Parents:   []string{"database", "kafka-producer"},
			StartFunc: consumer.Start,
			StopFunc:  func(context.Context) error { return consumer.Stop() },
		})
		checker.AddProbe("kafka", func(context.Context) error {
			if !consumer.Health() {
				return errors.New("consumer is not running")
			}
			return nil
		})
	}

	if cfg.RematchEnabled {
		sched := scheduler.New(logger, proc, cfg.RematchCron, cfg.RematchTimeout)
		boot.AddDependency(&startup.Func{
			Name:      "rematch-scheduler",
			Parents:   []string{"database", "kafka-producer"},
			StartFunc: sched.Start,
			StopFunc:  sched.Stop,
		})
	}

	server := newServer(cfg, logger, checker, handlers{
		listings:    listings,
		clients:     clients,
		preferences: preferences,
		conflicts:   conflicts,
		registry:    registry,
		ingest:      ingest,
		engine:      engine,
		tracker:     tracker,
		processor:   proc,
	})
	boot.AddDependency(&startup.Func{
		Name:      "http",
		Parents:   []string{"database"},
		StartFunc: server.Start,
		StopFunc:  server.Stop,
	})

	if err := boot.Start(ctx); err != nil {
		stopAll(boot, logger)
		return err
	}
	checker.SetReady(true)
	logger.WithField("port", cfg.Port).Info("fern is ready")

	<-ctx.Done()
	checker.SetReady(false)
	logger.Info("Shutting down")
	return stopAll(boot, logger)
}

func stopAll(boot *startup.Startup, logger ectologger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := boot.Stop(ctx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		return err
	}
	return nil
}

func newLogger(cfg config.Config) (ectologger.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	zapConfig.Level = level

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}
