package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-catering/internal/app"
	"github.com/odyssey-erp/odyssey-catering/internal/masterdata"
	"github.com/odyssey-erp/odyssey-catering/internal/platform/db"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping bootstrap")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("schema applied", slog.Any("files", applied))

	result, err := masterdata.NewService(masterdata.NewRepository(pool), logger).Seed(ctx)
	if err != nil {
		logger.Error("seed master data", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("master data seeded", slog.Int("units", result.Units), slog.Int("categories", result.Categories))
}
