package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-catering/internal/app"
	"github.com/odyssey-erp/odyssey-catering/internal/balances"
	"github.com/odyssey-erp/odyssey-catering/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-catering/internal/inventory"
	"github.com/odyssey-erp/odyssey-catering/internal/masterdata"
	"github.com/odyssey-erp/odyssey-catering/internal/observability"
	"github.com/odyssey-erp/odyssey-catering/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-catering/internal/platform/db"
	"github.com/odyssey-erp/odyssey-catering/internal/procurement"
	"github.com/odyssey-erp/odyssey-catering/internal/recipes"
	"github.com/odyssey-erp/odyssey-catering/internal/sales"
	"github.com/odyssey-erp/odyssey-catering/internal/shared"
	"github.com/odyssey-erp/odyssey-catering/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := cache.NewOptional(ctx, cfg.RedisAddr, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	runner := db.NewTxRunner(dbpool, cfg.PGLockTimeout)
	auditLogger := shared.NewAuditLogger(dbpool)
	recalc := balances.NewRecalculator(metrics)

	inventoryRepo := inventory.NewRepository(runner)
	inventoryService := inventory.NewService(inventoryRepo, inventory.ServiceConfig{
		Audit:  auditLogger,
		Logger: logger,
	})

	recipeRepo := recipes.NewRepository(runner)
	recipeSource := recipes.NewCachedSource(recipeRepo, redisClient, cfg.RecipeCacheTTL, logger)
	expander := recipes.NewExpander(recipeSource)
	recipeService := recipes.NewService(recipeRepo, recipeSource, recipeSource, auditLogger, logger)

	fulfillmentService := fulfillment.NewService(fulfillment.NewRepository(runner), inventoryRepo, fulfillment.ServiceConfig{
		Locker:  shared.NewLocker(redisClient, cfg.DeliveryLockTTL),
		Metrics: metrics,
		Audit:   auditLogger,
		Logger:  logger,
	})

	salesService := sales.NewService(sales.NewRepository(runner), recalc, auditLogger, logger)
	procurementService := procurement.NewService(procurement.NewRepository(runner), recalc, auditLogger, logger)
	masterdataService := masterdata.NewService(masterdata.NewRepository(dbpool), logger)
	reconciler := balances.NewReconciler(balances.NewRepository(runner), recalc, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("job inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		DB:                 dbpool,
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		RecipesHandler:     recipes.NewHandler(logger, recipeService, expander),
		FulfillmentHandler: fulfillment.NewHandler(logger, fulfillmentService),
		SalesHandler:       sales.NewHandler(logger, salesService),
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		MasterDataHandler:  masterdata.NewHandler(logger, masterdataService),
		BalancesHandler:    balances.NewHandler(logger, reconciler),
		JobHandler:         jobs.NewHandler(inspector, jobClient, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
