package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-catering/internal/inventory"
	"github.com/odyssey-erp/odyssey-catering/internal/recipes"
	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

type storeState struct {
	items     map[int64]inventory.Item
	movements []inventory.Movement
	orders    map[int64]Order
	recipes   map[int64]recipes.Recipe
	nextOrder int64
	nextMove  int64
}

func (s storeState) clone() storeState {
	out := storeState{
		items:     make(map[int64]inventory.Item, len(s.items)),
		orders:    make(map[int64]Order, len(s.orders)),
		recipes:   make(map[int64]recipes.Recipe, len(s.recipes)),
		nextOrder: s.nextOrder,
		nextMove:  s.nextMove,
	}
	for k, v := range s.items {
		out.items[k] = v
	}
	for k, v := range s.orders {
		v.Lines = append([]Line(nil), v.Lines...)
		v.MenuLines = append([]MenuLine(nil), v.MenuLines...)
		out.orders[k] = v
	}
	for k, v := range s.recipes {
		v.Rows = append([]recipes.Row(nil), v.Rows...)
		out.recipes[k] = v
	}
	out.movements = append([]inventory.Movement(nil), s.movements...)
	return out
}

// memoryStore behaves like a database with serialisable transactions: writes of a
// failed transaction are discarded.
type memoryStore struct {
	mu    sync.Mutex
	state storeState
	// failMarkDelivered fails the status transition after stock was deducted.
	failMarkDelivered bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{state: storeState{
		items:   map[int64]inventory.Item{},
		orders:  map[int64]Order{},
		recipes: map[int64]recipes.Recipe{},
	}}
}

func (m *memoryStore) addItem(id int64, name, qty string) {
	m.state.items[id] = inventory.Item{ID: id, StockCode: name, Name: name, Quantity: decimal.RequireFromString(qty)}
}

// setRecipe replaces the bill of materials of menuItemID.
func (m *memoryStore) setRecipe(menuItemID int64, rows ...recipes.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.recipes[menuItemID] = recipes.Recipe{MenuItemID: menuItemID, Rows: rows}
}

func (m *memoryStore) quantity(id int64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.items[id].Quantity
}

func (m *memoryStore) movementsFor(ref string) []inventory.Movement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []inventory.Movement
	for _, mv := range m.state.movements {
		if mv.RefID == ref {
			out = append(out, mv)
		}
	}
	return out
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	working := m.state.clone()
	if err := fn(ctx, &memoryTx{store: m, state: &working}); err != nil {
		return err
	}
	m.state = working
	return nil
}

func (m *memoryStore) GetOrder(ctx context.Context, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (m *memoryStore) GetItems(ctx context.Context, ids []int64) (map[int64]inventory.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[int64]inventory.Item{}
	for _, id := range ids {
		if item, ok := m.state.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

type memoryTx struct {
	store *memoryStore
	state *storeState
}

func (tx *memoryTx) Stock() inventory.TxRepository { return tx }

func (tx *memoryTx) Recipes() recipes.Source { return tx }

func (tx *memoryTx) Recipe(ctx context.Context, menuItemID int64) (recipes.Recipe, error) {
	recipe, ok := tx.state.recipes[menuItemID]
	if !ok {
		return recipes.Recipe{}, recipes.ErrRecipeLookup
	}
	return recipe, nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	return inventory.Item{}, errors.New("not supported")
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, id int64) (inventory.Item, error) {
	item, ok := tx.state.items[id]
	if !ok {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	return item, nil
}

func (tx *memoryTx) UpdateItemQuantity(ctx context.Context, id int64, qty decimal.Decimal) error {
	item := tx.state.items[id]
	item.Quantity = qty
	tx.state.items[id] = item
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, mv inventory.Movement) (int64, error) {
	tx.state.nextMove++
	mv.ID = tx.state.nextMove
	tx.state.movements = append(tx.state.movements, mv)
	return mv.ID, nil
}

func (tx *memoryTx) CountItemReferences(ctx context.Context, id int64) (int64, error) { return 0, nil }

func (tx *memoryTx) DeleteItem(ctx context.Context, id int64) error { return nil }

func (tx *memoryTx) ClaimIdempotencyKey(ctx context.Context, key, module string) error { return nil }

func (tx *memoryTx) InsertOrder(ctx context.Context, order Order) (Order, error) {
	tx.state.nextOrder++
	order.ID = tx.state.nextOrder
	order.Number = fmt.Sprintf("ORD-%06d", order.ID)
	order.Status = StatusPending
	order.Lines, order.MenuLines = nil, nil
	tx.state.orders[order.ID] = order
	return order, nil
}

func (tx *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	o, ok := tx.state.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (tx *memoryTx) ReplaceLines(ctx context.Context, orderID int64, lines []Line, menuLines []MenuLine) error {
	o := tx.state.orders[orderID]
	o.Lines = append([]Line{}, lines...)
	o.MenuLines = append([]MenuLine{}, menuLines...)
	tx.state.orders[orderID] = o
	return nil
}

func (tx *memoryTx) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	if tx.store.failMarkDelivered {
		return errors.New("connection reset")
	}
	o := tx.state.orders[id]
	if o.Status == StatusDelivered {
		return ErrOrderDelivered
	}
	o.Status = StatusDelivered
	o.DeliveredAt = &at
	tx.state.orders[id] = o
	return nil
}

func (tx *memoryTx) DeleteOrder(ctx context.Context, id int64) error {
	if _, ok := tx.state.orders[id]; !ok {
		return ErrOrderNotFound
	}
	delete(tx.state.orders, id)
	return nil
}

type countingMetrics struct {
	mu         sync.Mutex
	outcomes   map[string]int
	shortfalls int
}

func (c *countingMetrics) ObserveDelivery(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[outcome]++
}

func (c *countingMetrics) ObserveShortfalls(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shortfalls += n
}

const (
	riceID    int64 = 1
	oilID     int64 = 2
	saltID    int64 = 3
	comboID   int64 = 10
	serviceID int64 = 11
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture() (*memoryStore, *Service, *countingMetrics) {
	store := newMemoryStore()
	store.addItem(riceID, "Rice", "100")
	store.addItem(oilID, "Oil", "5")
	store.addItem(saltID, "Salt", "2")
	store.setRecipe(comboID, recipes.Row{InventoryItemID: riceID, QuantityPerUnit: d("5")})
	store.setRecipe(serviceID)
	metrics := &countingMetrics{}
	return store, NewService(store, store, ServiceConfig{Metrics: metrics}), metrics
}

func TestDeliverMergesDirectAndRecipeDemand(t *testing.T) {
	store, svc, metrics := newFixture()
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		Name:      "Order A",
		Lines:     []Line{{InventoryItemID: riceID, Quantity: 30}},
		MenuLines: []MenuLine{{MenuItemID: comboID, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)

	result, err := svc.Deliver(ctx, order.ID, 7)
	require.NoError(t, err)
	require.Equal(t, OutcomeDelivered, result.Outcome)
	require.Equal(t, StatusDelivered, result.Order.Status)
	require.True(t, store.quantity(riceID).Equal(d("60")))

	movements := store.movementsFor(order.Number)
	require.Len(t, movements, 1)
	require.Equal(t, inventory.DirectionOut, movements[0].Direction)
	require.True(t, movements[0].Quantity.Equal(d("40")))
	require.Equal(t, RefModule, movements[0].RefModule)
	require.Equal(t, int64(7), movements[0].CreatedBy)
	require.Equal(t, 1, metrics.outcomes["delivered"])

	stored, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DeliveredAt)
}

func TestValidateOrderReportsEveryShortfall(t *testing.T) {
	store, svc, _ := newFixture()
	ctx := context.Background()

	err := svc.ValidateOrder(ctx, Order{Lines: []Line{
		{InventoryItemID: oilID, Quantity: 8},
		{InventoryItemID: saltID, Quantity: 3},
		{InventoryItemID: riceID, Quantity: 1},
	}})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Shortfalls, 2)
	require.Equal(t, oilID, stockErr.Shortfalls[0].ItemID)
	require.True(t, stockErr.Shortfalls[0].Short.Equal(d("3")))
	require.True(t, stockErr.Shortfalls[1].Short.Equal(d("1")))

	_, err = svc.CreateOrder(ctx, CreateOrderInput{Lines: []Line{{InventoryItemID: oilID, Quantity: 8}}})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Empty(t, store.state.orders)
}

func TestDeliverRejectsShortOrderWithoutMutation(t *testing.T) {
	store, svc, metrics := newFixture()
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, CreateOrderInput{Lines: []Line{{InventoryItemID: oilID, Quantity: 4}}})
	require.NoError(t, err)

	// stock drops between booking and delivery
	store.addItem(oilID, "Oil", "1")
	_, err = svc.Deliver(ctx, order.ID, 0)
	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.True(t, stockErr.Shortfalls[0].Short.Equal(d("3")))
	require.True(t, store.quantity(oilID).Equal(d("1")))

	stored, _ := svc.GetOrder(ctx, order.ID)
	require.Equal(t, StatusPending, stored.Status)
	require.Equal(t, 1, metrics.outcomes["insufficient_stock"])
}

func TestDeliverIsAllOrNothingAcrossItems(t *testing.T) {
	store, svc, _ := newFixture()
	ctx := context.Background()
	// recipe demand is not checked at booking, so the order is accepted
	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		Lines:     []Line{{InventoryItemID: riceID, Quantity: 10}, {InventoryItemID: saltID, Quantity: 1}},
		MenuLines: []MenuLine{{MenuItemID: comboID, Quantity: 19}},
	})
	require.NoError(t, err)

	_, err = svc.Deliver(ctx, order.ID, 0)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.True(t, store.quantity(riceID).Equal(d("100")))
	require.True(t, store.quantity(saltID).Equal(d("2")))
	require.Empty(t, store.movementsFor(order.Number))
}

func TestDeliverRollsBackWhenStatusTransitionFails(t *testing.T) {
	store, svc, _ := newFixture()
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, CreateOrderInput{Lines: []Line{{InventoryItemID: riceID, Quantity: 10}}})
	require.NoError(t, err)

	store.failMarkDelivered = true
	_, err = svc.Deliver(ctx, order.ID, 0)
	require.Error(t, err)
	require.True(t, store.quantity(riceID).Equal(d("100")))
	require.Empty(t, store.movementsFor(order.Number))
}

func TestDeliverTwiceDeductsOnce(t *testing.T) {
	store, svc, metrics := newFixture()
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, CreateOrderInput{Lines: []Line{{InventoryItemID: riceID, Quantity: 10}}})
	require.NoError(t, err)

	first, err := svc.Deliver(ctx, order.ID, 0)
	require.NoError(t, err)
	second, err := svc.Deliver(ctx, order.ID, 0)
	require.NoError(t, err)
	require.Equal(t, OutcomeDelivered, first.Outcome)
	require.Equal(t, OutcomeAlreadyDelivered, second.Outcome)
	require.Empty(t, second.Movements)
	require.True(t, store.quantity(riceID).Equal(d("90")))
	require.Len(t, store.movementsFor(order.Number), 1)
	require.Equal(t, 1, metrics.outcomes["already_delivered"])
}

func TestDeliverEmptyRecipeSucceedsWithoutStock(t *testing.T) {
	store, svc, _ := newFixture()
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, CreateOrderInput{MenuLines: []MenuLine{{MenuItemID: serviceID, Quantity: 3}}})
	require.NoError(t, err)

	result, err := svc.Deliver(ctx, order.ID, 0)
	require.NoError(t, err)
	require.Equal(t, OutcomeDelivered, result.Outcome)
	require.Empty(t, result.Movements)
	require.True(t, store.quantity(riceID).Equal(d("100")))
}

func TestDeliverRejectsOrderWithoutItems(t *testing.T) {
	_, svc, _ := newFixture()
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, CreateOrderInput{Name: "empty"})
	require.NoError(t, err)

	_, err = svc.Deliver(ctx, order.ID, 0)
	require.ErrorIs(t, err, ErrNoItems)
	require.ErrorIs(t, err, shared.ErrUnprocessable)

	_, err = svc.Deliver(ctx, 404, 0)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecipeLookupFailureAbortsDelivery(t *testing.T) {
	store, svc, _ := newFixture()
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		Lines:     []Line{{InventoryItemID: riceID, Quantity: 1}},
		MenuLines: []MenuLine{{MenuItemID: 999, Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = svc.Deliver(ctx, order.ID, 0)
	require.ErrorIs(t, err, recipes.ErrRecipeLookup)
	require.True(t, store.quantity(riceID).Equal(d("100")))
}

func TestDeliverUsesRecipeCurrentAtDelivery(t *testing.T) {
	store, svc, _ := newFixture()
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, CreateOrderInput{MenuLines: []MenuLine{{MenuItemID: comboID, Quantity: 2}}})
	require.NoError(t, err)

	store.setRecipe(comboID,
		recipes.Row{InventoryItemID: riceID, QuantityPerUnit: d("7")},
		recipes.Row{InventoryItemID: saltID, QuantityPerUnit: d("0.5")},
	)
	result, err := svc.Deliver(ctx, order.ID, 0)
	require.NoError(t, err)
	require.Len(t, result.Movements, 2)
	require.True(t, store.quantity(riceID).Equal(d("86")))
	require.True(t, store.quantity(saltID).Equal(d("1")))
}

func TestInvalidQuantityRejectedBeforeStockCheck(t *testing.T) {
	_, svc, _ := newFixture()
	ctx := context.Background()
	_, err := svc.CreateOrder(ctx, CreateOrderInput{Lines: []Line{{InventoryItemID: oilID, Quantity: 0}, {InventoryItemID: oilID, Quantity: 500}}})
	require.ErrorIs(t, err, shared.ErrInvalidQuantity)
	_, err = svc.CreateOrder(ctx, CreateOrderInput{MenuLines: []MenuLine{{MenuItemID: comboID, Quantity: -1}}})
	require.ErrorIs(t, err, shared.ErrInvalidQuantity)
	_, err = svc.CreateOrder(ctx, CreateOrderInput{TotalAmount: d("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestConcurrentDeliveriesNeverOversell(t *testing.T) {
	store, svc, _ := newFixture()
	ctx := context.Background()
	var ids []int64
	for i := 0; i < 8; i++ {
		order, err := svc.CreateOrder(ctx, CreateOrderInput{Lines: []Line{{InventoryItemID: riceID, Quantity: 30}}})
		require.NoError(t, err)
		ids = append(ids, order.ID)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	delivered := 0
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if res, err := svc.Deliver(ctx, id, 0); err == nil && res.Outcome == OutcomeDelivered {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	require.Equal(t, 3, delivered)
	require.True(t, store.quantity(riceID).Equal(d("10")))
}

func TestUpdateLinesOnlyWhilePending(t *testing.T) {
	_, svc, _ := newFixture()
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, CreateOrderInput{Lines: []Line{{InventoryItemID: riceID, Quantity: 1}}})
	require.NoError(t, err)

	updated, err := svc.UpdateOrderLines(ctx, order.ID, []Line{{InventoryItemID: oilID, Quantity: 2}}, nil, 0)
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	require.Equal(t, oilID, updated.Lines[0].InventoryItemID)

	_, err = svc.UpdateOrderLines(ctx, order.ID, []Line{{InventoryItemID: oilID, Quantity: 6}}, nil, 0)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	_, err = svc.Deliver(ctx, order.ID, 0)
	require.NoError(t, err)
	_, err = svc.UpdateOrderLines(ctx, order.ID, []Line{{InventoryItemID: riceID, Quantity: 1}}, nil, 0)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestDeleteOrderKeepsMovements(t *testing.T) {
	store, svc, _ := newFixture()
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, CreateOrderInput{Lines: []Line{{InventoryItemID: riceID, Quantity: 5}}})
	require.NoError(t, err)
	_, err = svc.Deliver(ctx, order.ID, 0)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOrder(ctx, order.ID, 0))
	_, err = svc.GetOrder(ctx, order.ID)
	require.ErrorIs(t, err, ErrOrderNotFound)
	require.Len(t, store.movementsFor(order.Number), 1)
	require.ErrorIs(t, svc.DeleteOrder(ctx, order.ID, 0), shared.ErrNotFound)
}

func TestDueAmount(t *testing.T) {
	o := Order{TotalAmount: d("68000.00"), ReceivedAmount: d("20000.00")}
	require.True(t, o.DueAmount().Equal(d("48000")))
	o.ReceivedAmount = d("70000")
	require.True(t, o.DueAmount().IsZero())
}

func TestMergedDemandSortsIDs(t *testing.T) {
	store, _, _ := newFixture()
	source := &memoryTx{store: store, state: &store.state}
	demand, ids, err := mergedDemand(context.Background(), recipes.NewExpander(source), Order{
		Lines:     []Line{{InventoryItemID: saltID, Quantity: 1}, {InventoryItemID: riceID, Quantity: 2}},
		MenuLines: []MenuLine{{MenuItemID: comboID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.True(t, sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }))
	require.True(t, demand[riceID].Equal(d("7")))
}
