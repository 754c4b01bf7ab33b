package main

import (
	"errors"
	"flag"

	"go.uber.org/zap"

	"example.com/gymcheckin/internal/config"
	"example.com/gymcheckin/internal/db/migrate"
	"example.com/gymcheckin/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	err = migrate.Run(cfg.PostgresURL, *direction)
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("schema already up to date", zap.String("direction", *direction))
	case err != nil:
		logger.Fatal("migration failed", zap.String("direction", *direction), zap.Error(err))
	default:
		logger.Info("migrations applied", zap.String("direction", *direction))
	}
}
