package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	clts "whalewatch/clients"
	"whalewatch/config"
	"whalewatch/internal/app"
	"whalewatch/internal/storage"
	"whalewatch/internal/storage/memory"
	"whalewatch/internal/storage/migrations"
	"whalewatch/internal/storage/postgres"
)

const connectTimeout = 30 * time.Second

func main() {
	// Optional .env for local development; env vars win in production.
	_ = godotenv.Load()

	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.IsProd {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if result := cfg.Validate(); !result.Valid {
		for _, e := range result.Errors {
			logger.Error("invalid configuration", zap.String("field", e.Field), zap.String("message", e.Message))
		}
		os.Exit(1)
	}

	logger.Info("starting whalewatch", zap.Bool("isProd", cfg.IsProd))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := buildStores(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer cleanup()

	logger.Info("instantiating clients")
	clients := clts.NewClients(logger, cfg)
	defer clients.Close()

	runner := app.NewRunner(logger, cfg, clients, stores)
	if err := runner.Run(ctx); err != nil {
		logger.Error("runner exited with error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// buildStores selects PostgreSQL when a database URL is configured, with an
// in-memory fallback for local runs.
func buildStores(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*storage.Stores, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no DATABASE_URL set, using in-memory storage (state is lost on restart)")
		return memory.NewStores(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := postgres.NewPool(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	if err := migrations.RunPostgresMigrations(connectCtx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	logger.Info("connected to postgres")
	return postgres.NewStores(pool), pool.Close, nil
}
