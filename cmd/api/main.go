package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"example.com/gymcheckin/internal/api"
	"example.com/gymcheckin/internal/auth"
	"example.com/gymcheckin/internal/cache"
	"example.com/gymcheckin/internal/config"
	"example.com/gymcheckin/internal/domain"
	"example.com/gymcheckin/internal/logging"
	"example.com/gymcheckin/internal/outbox"
	"example.com/gymcheckin/internal/persistence/postgres"
	httptransport "example.com/gymcheckin/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("resolve timezone", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	gyms := postgres.NewGymRepository(pool)
	var checkIns domain.CheckInRepository = postgres.NewCheckInRepository(pool)

	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, daily cache will degrade to postgres", zap.Error(err))
		}
		checkIns = cache.NewDailyCheckInCache(checkIns, rdb, logger.Named("cache"))
	}

	publisher := outbox.NewEventPublisher(cfg.KafkaBrokers)
	defer publisher.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(outbox.NewPostgresStore(pool), publisher, registry,
		logger.Named("outbox"), cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	service := domain.NewService(gyms, checkIns,
		domain.WithClock(func() time.Time { return time.Now().In(loc) }),
		domain.WithLogger(logger.Named("checkin")),
	)

	mux := http.NewServeMux()
	api.NewHandler(service, logger.Named("api")).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
	})

	serverCfg := httptransport.ServerConfig{Address: cfg.HTTPAddress}
	server := httptransport.NewServer(serverCfg, api.RequestLogger(logger.Named("http"), authMiddleware.Wrap(mux)))

	logger.Info("gym check-in api starting",
		zap.String("address", cfg.HTTPAddress),
		zap.String("timezone", loc.String()),
		zap.Bool("daily_cache", cfg.RedisAddr != ""),
	)
	if err := httptransport.Serve(ctx, server, serverCfg, logger); err != nil {
		logger.Error("http server stopped", zap.Error(err))
	}

	stop()
	dispatcher.Wait()
}
