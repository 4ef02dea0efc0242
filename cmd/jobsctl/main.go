package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/odyssey-erp/odyssey-catering/internal/app"
)

const usage = "usage: jobsctl trigger <reconcile|repair|cleanup> | jobsctl stats"

func main() {
	if app.InTestMode() {
		return
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	cli := NewJobsCLI(cfg.RedisAddr, cfg.IdempotencyRetention)
	defer func() {
		if err := cli.Close(); err != nil {
			logger.Warn("close jobs cli", slog.Any("error", err))
		}
	}()

	if err := run(cli, os.Args[1:]); err != nil {
		logger.Error("jobsctl", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cli *JobsCLI, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case len(args) == 2 && args[0] == "trigger":
		info, err := cli.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case len(args) == 1 && args[0] == "stats":
		stats, err := cli.InspectQueue()
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		return fmt.Errorf("%s", usage)
	}
	return nil
}
