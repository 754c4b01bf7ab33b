package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/gymcheckin/internal/config"
	"example.com/gymcheckin/internal/logging"
	"example.com/gymcheckin/internal/outbox"
	httptransport "example.com/gymcheckin/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(outbox.NewPostgresDLQStore(pool), logger.Named("dlq"), cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.Handler())
	metricsCfg := httptransport.ServerConfig{Address: cfg.MetricsAddress, ShutdownTimeout: 10 * time.Second}
	go func() {
		if err := httptransport.Serve(ctx, httptransport.NewServer(metricsCfg, metricsMux), metricsCfg, logger); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	logger.Info("dlq manager started",
		zap.Duration("interval", cfg.DLQPollInterval),
		zap.Int("max_retries", cfg.DLQMaxRetries),
	)

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("dlq manager shutting down")
			return
		case <-ticker.C:
			requeued, err := manager.RunOnce(ctx, cfg.DLQBatchSize)
			if err != nil {
				logger.Error("dlq replay failed", zap.Error(err))
			} else if requeued > 0 {
				logger.Info("dlq entries requeued", zap.Int("count", requeued))
			}
		}
	}
}
