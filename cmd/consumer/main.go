package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"example.com/gymcheckin/internal/config"
	"example.com/gymcheckin/internal/consumer"
	"example.com/gymcheckin/internal/logging"
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

	handler := consumer.NewPersistenceHandler(pool, logger.Named("event_log"))

	var wg sync.WaitGroup
	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		topicLogger := logger.Named("consumer").With(zap.String("topic", topic), zap.String("group", cfg.ConsumerGroupID))
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(topicLogger))

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()

			topicLogger.Info("consumer started")
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				topicLogger.Error("consumer stopped", zap.Error(err))
			}
		}()
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.Handler())
	metricsCfg := httptransport.ServerConfig{Address: cfg.MetricsAddress, ShutdownTimeout: 10 * time.Second}
	if err := httptransport.Serve(ctx, httptransport.NewServer(metricsCfg, metricsMux), metricsCfg, logger); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}

	logger.Info("consumer shutdown requested")
	stop()
	wg.Wait()
}
