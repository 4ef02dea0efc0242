package recipes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const defaultCacheTTL = 10 * time.Minute

// CachedSource is a Redis read-through cache in front of another Source. Concurrent
// misses for the same menu item share one backing lookup. Redis failures fall back to
// the backing source.
//
// Entries are keyed by a per-menu-item generation that Invalidate increments, so a
// load that started before an invalidation can only write an entry nobody reads.
type CachedSource struct {
	next   Source
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedSource wraps next. A nil client disables caching.
func NewCachedSource(next Source, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedSource{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func generationKey(menuItemID int64) string {
	return fmt.Sprintf("recipes:menu:%d:gen", menuItemID)
}

func cacheKey(menuItemID, generation int64) string {
	return fmt.Sprintf("recipes:menu:%d:v%d", menuItemID, generation)
}

func (c *CachedSource) generation(ctx context.Context, menuItemID int64) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey(menuItemID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Recipe returns the cached recipe or loads it from the backing source.
func (c *CachedSource) Recipe(ctx context.Context, menuItemID int64) (Recipe, error) {
	if c.rdb == nil {
		return c.next.Recipe(ctx, menuItemID)
	}
	gen, err := c.generation(ctx, menuItemID)
	if err != nil {
		c.warn("read recipe generation", generationKey(menuItemID), err)
		return c.next.Recipe(ctx, menuItemID)
	}
	key := cacheKey(menuItemID, gen)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var recipe Recipe
		jsonErr := json.Unmarshal(raw, &recipe)
		if jsonErr == nil {
			return recipe, nil
		}
		c.warn("decode cached recipe", key, jsonErr)
	case !errors.Is(err, redis.Nil):
		c.warn("read cached recipe", key, err)
	}

	ch := c.group.DoChan(key, func() (any, error) {
		recipe, err := c.next.Recipe(ctx, menuItemID)
		if err != nil {
			return Recipe{}, err
		}
		if payload, err := json.Marshal(recipe); err == nil {
			if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				c.warn("write cached recipe", key, err)
			}
		}
		return recipe, nil
	})
	select {
	case <-ctx.Done():
		return Recipe{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Recipe{}, res.Err
		}
		return res.Val.(Recipe), nil
	}
}

// Invalidate moves menuItemID to a fresh generation. Entries of older generations
// expire with their TTL.
func (c *CachedSource) Invalidate(ctx context.Context, menuItemID int64) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Incr(ctx, generationKey(menuItemID)).Err()
}

func (c *CachedSource) warn(msg, key string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.String("key", key), slog.Any("error", err))
	}
}
