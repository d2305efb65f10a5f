// cmd/worker-manager/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"solvency-workers/internal/common/aws"
	"solvency-workers/internal/common/camunda"
	"solvency-workers/internal/common/config"
	"solvency-workers/internal/common/database"
	"solvency-workers/internal/common/logger"
	"solvency-workers/internal/common/observability"
	"solvency-workers/internal/solvency/cache"
	"solvency-workers/internal/solvency/repository"
	"solvency-workers/internal/solvency/search"
	"solvency-workers/pkg/registry"

	cr "solvency-workers/internal/workers/solvency/calculate-rating"
	fa "solvency-workers/internal/workers/solvency/fetch-assessment"
	sa "solvency-workers/internal/workers/solvency/save-assessment"
	srn "solvency-workers/internal/workers/solvency/send-rating-notification"
	vq "solvency-workers/internal/workers/solvency/validate-questionnaire"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func workerTimeout(cfg *config.Config, taskType string) time.Duration {
	return config.GetDuration(config.GetWorkerConfig(cfg, taskType).Timeout)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})

	zapLog.Info("Starting solvency worker manager...", zap.String("environment", cfg.App.Environment))

	ctx := context.Background()

	obs := observability.New(cfg.Observability.ServiceName)
	tracing, err := observability.NewTracing(
		cfg.Observability.ServiceName,
		cfg.Observability.JaegerEndpoint,
		cfg.Observability.SampleRatio,
	)
	if err != nil {
		zapLog.Fatal("tracing init failed", zap.Error(err))
	}

	// --- Activity registry ---
	reg, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("activity registry load failed", zap.String("path", cfg.Registry.Path), zap.Error(err))
	}
	if err := reg.Validate(); err != nil {
		zapLog.Fatal("activity registry invalid", zap.Error(err))
	}

	taskTypes := []string{vq.TaskType, cr.TaskType, sa.TaskType, fa.TaskType, srn.TaskType}
	if missing := reg.Missing(taskTypes); len(missing) > 0 {
		zapLog.Fatal("task types missing from activity registry", zap.Strings("taskTypes", missing))
	}

	// --- Zeebe client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	brokers, err := zeebe.Brokers(ctx)
	if err != nil {
		zapLog.Warn("zeebe topology unavailable", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully", zap.Strings("brokers", brokers))

	// --- PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	zapLog.Info("Redis connected successfully")

	// --- Elasticsearch, only when ratings are indexed ---
	var indexer *search.Indexer
	if cfg.Solvency.IndexEnabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		indexer = search.NewIndexer(esClient.Client, cfg.Solvency.SearchIndex)
		if err := indexer.EnsureIndex(ctx); err != nil {
			zapLog.Fatal("rating index setup failed", zap.String("index", indexer.Index()), zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully", zap.String("index", indexer.Index()))
	}

	// --- AWS clients, only for enabled channels ---
	var (
		emailSender    srn.EmailSender
		eventPublisher srn.EventPublisher
	)
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SNS.Enabled {
		awsCfg, err := aws.LoadConfig(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws config failed", zap.Error(err))
		}
		if cfg.Notifications.Email.Enabled {
			emailSender = aws.NewSESClient(awsCfg)
		}
		if cfg.Notifications.SNS.Enabled {
			eventPublisher = aws.NewSNSClient(awsCfg)
		}
	}

	repo := repository.New(pg.DB)
	ratingCache := cache.New(rdb.Client, cfg.Solvency.CacheKeyspace, time.Duration(cfg.Solvency.CacheTTL)*time.Second)

	// --- Register workers ---
	workers := camunda.NewWorkerSet(zeebe.GetClient(), zapLog)

	workers.Start(vq.TaskType, config.GetWorkerConfig(cfg, vq.TaskType),
		vq.NewHandler(&vq.Config{Timeout: workerTimeout(cfg, vq.TaskType)}, obs, log))

	workers.Start(cr.TaskType, config.GetWorkerConfig(cfg, cr.TaskType),
		cr.NewHandler(&cr.Config{Timeout: workerTimeout(cfg, cr.TaskType)}, obs, log))

	workers.Start(sa.TaskType, config.GetWorkerConfig(cfg, sa.TaskType),
		sa.NewHandler(&sa.Config{Timeout: workerTimeout(cfg, sa.TaskType)}, sa.Dependencies{
			Repository:    repo,
			Cache:         ratingCache,
			Indexer:       indexer,
			Tracing:       tracing,
			Observability: obs,
		}, log))

	workers.Start(fa.TaskType, config.GetWorkerConfig(cfg, fa.TaskType),
		fa.NewHandler(&fa.Config{Timeout: workerTimeout(cfg, fa.TaskType)}, fa.Dependencies{
			Repository:    repo,
			Cache:         ratingCache,
			Tracing:       tracing,
			Observability: obs,
		}, log))

	notifier, err := srn.NewHandler(
		srn.ConfigFrom(cfg.Notifications, workerTimeout(cfg, srn.TaskType)),
		emailSender, eventPublisher, obs, log,
	)
	if err != nil {
		zapLog.Fatal("failed to create send-rating-notification handler", zap.Error(err))
	}
	workers.Start(srn.TaskType, config.GetWorkerConfig(cfg, srn.TaskType), notifier)

	zapLog.Info("Workers registered", zap.Strings("taskTypes", workers.TaskTypes()))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(map[string]func(context.Context) error{
		"postgres": pg.Ping,
		"redis":    rdb.Ping,
		"zeebe":    zeebe.HealthCheck,
	}))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.App.HTTPAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.App.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	workers.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error flushing traces", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping meter provider", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		zapLog.Error("Error closing Redis", zap.Error(err))
	}
	if err := pg.Close(); err != nil {
		zapLog.Error("Error closing PostgreSQL", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}
