package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// DeliveryLockKey builds redis keys for order delivery critical sections.
func DeliveryLockKey(orderID int64) string {
	return fmt.Sprintf("fulfillment:order:%d:lock", orderID)
}

// ErrLockUnavailable indicates the lock backend could not be reached.
var ErrLockUnavailable = errors.New("lock backend unavailable")

// Locker guards critical sections across processes using Redis.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewLocker builds a Locker. A nil client yields a nil Locker, which is a no-op.
func NewLocker(rdb *redis.Client, ttl time.Duration) *Locker {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: redislock.New(rdb), ttl: ttl}
}

// Acquire obtains the lock for key. The returned release func must be called once the
// critical section ends. ErrConcurrentModification is returned when another holder owns
// the key; ErrLockUnavailable wraps backend failures.
func (l *Locker) Acquire(ctx context.Context, key string) (func(context.Context), error) {
	if l == nil {
		return func(context.Context) {}, nil
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("lock %s: %w", key, ErrConcurrentModification)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	return func(ctx context.Context) {
		_ = lock.Release(ctx)
	}, nil
}
