package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// New creates a new Redis client and verifies the connection.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  pingTimeout,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// NewOptional behaves like New but degrades to a nil client when Redis cannot be
// reached. Callers treat a nil client as "no cache, no distributed lock".
func NewOptional(ctx context.Context, addr string, logger *slog.Logger) *redis.Client {
	client, err := New(ctx, addr)
	if err != nil {
		if logger != nil {
			logger.Warn("redis unavailable, continuing without cache and locks", slog.String("addr", addr), slog.Any("error", err))
		}
		return nil
	}
	return client
}
