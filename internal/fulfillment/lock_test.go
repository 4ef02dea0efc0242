package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

func TestDeliverHonoursOrderLock(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := shared.NewLocker(rdb, time.Second)

	store, _, _ := newFixture()
	svc := NewService(store, store, ServiceConfig{Locker: locker})
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, CreateOrderInput{Lines: []Line{{InventoryItemID: riceID, Quantity: 10}}})
	require.NoError(t, err)

	release, err := locker.Acquire(ctx, shared.DeliveryLockKey(order.ID))
	require.NoError(t, err)
	_, err = svc.Deliver(ctx, order.ID, 0)
	require.ErrorIs(t, err, shared.ErrConcurrentModification)
	require.True(t, store.quantity(riceID).Equal(d("100")))

	release(ctx)
	result, err := svc.Deliver(ctx, order.ID, 0)
	require.NoError(t, err)
	require.Equal(t, OutcomeDelivered, result.Outcome)
	require.False(t, mr.Exists(shared.DeliveryLockKey(order.ID)))
}

func TestDeliverFallsBackToRowLockWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, _, _ := newFixture()
	svc := NewService(store, store, ServiceConfig{Locker: shared.NewLocker(rdb, time.Second)})
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, CreateOrderInput{Lines: []Line{{InventoryItemID: riceID, Quantity: 10}}})
	require.NoError(t, err)

	mr.Close()
	result, err := svc.Deliver(ctx, order.ID, 0)
	require.NoError(t, err)
	require.Equal(t, OutcomeDelivered, result.Outcome)
	require.True(t, store.quantity(riceID).Equal(d("90")))
}
