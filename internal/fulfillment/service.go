package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/inventory"
	"github.com/odyssey-erp/odyssey-catering/internal/recipes"
	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// RepositoryPort abstracts order persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
}

// StockReader reads committed quantities without locking.
type StockReader interface {
	GetItems(ctx context.Context, ids []int64) (map[int64]inventory.Item, error)
}

// Locker guards the per-order delivery critical section across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context), error)
}

// Metrics receives delivery outcomes.
type Metrics interface {
	ObserveDelivery(outcome string)
	ObserveShortfalls(n int)
}

// Service coordinates order intake and delivery.
type Service struct {
	repo     RepositoryPort
	stock   StockReader
	locker  Locker
	metrics Metrics
	audit   shared.AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Locker  Locker
	Metrics Metrics
	Audit   shared.AuditPort
	Logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, stock StockReader, cfg ServiceConfig) *Service {
	return &Service{
		repo:    repo,
		stock:   stock,
		locker:  cfg.Locker,
		metrics: cfg.Metrics,
		audit:   cfg.Audit,
		logger:  cfg.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func validateLines(lines []Line, menuLines []MenuLine) error {
	for _, l := range lines {
		if l.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if l.InventoryItemID <= 0 {
			return fmt.Errorf("fulfillment: line references no inventory item: %w", shared.ErrValidation)
		}
	}
	for _, l := range menuLines {
		if l.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if l.MenuItemID <= 0 {
			return fmt.Errorf("fulfillment: line references no menu item: %w", shared.ErrValidation)
		}
	}
	return nil
}

// ValidateOrder checks every direct line against current stock and reports all
// shortfalls at once. Menu lines are checked only at delivery.
func (s *Service) ValidateOrder(ctx context.Context, order Order) error {
	if err := validateLines(order.Lines, order.MenuLines); err != nil {
		return err
	}
	demand, ids := directDemand(order.Lines)
	if len(ids) == 0 {
		return nil
	}
	items, err := s.stock.GetItems(ctx, ids)
	if err != nil {
		return err
	}
	var shortfalls []inventory.Shortfall
	for _, id := range ids {
		item, ok := items[id]
		if !ok {
			return fmt.Errorf("%w: id %d", inventory.ErrItemNotFound, id)
		}
		if item.Quantity.LessThan(demand[id]) {
			shortfalls = append(shortfalls, inventory.NewShortfall(item, demand[id]))
		}
	}
	if len(shortfalls) > 0 {
		s.observeShortfalls(len(shortfalls))
		return &inventory.InsufficientStockError{Shortfalls: shortfalls}
	}
	return nil
}

// ValidateExisting runs ValidateOrder against a stored order.
func (s *Service) ValidateExisting(ctx context.Context, orderID int64) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return s.ValidateOrder(ctx, order)
}

// CreateOrder validates and stores a new PENDING order.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (Order, error) {
	if err := validateLines(input.Lines, input.MenuLines); err != nil {
		return Order{}, err
	}
	if input.TotalAmount.IsNegative() {
		return Order{}, ErrInvalidAmount
	}
	draft := Order{
		Name:         strings.TrimSpace(input.Name),
		CustomerName: strings.TrimSpace(input.CustomerName),
		EventDate:    input.EventDate,
		TotalAmount:  input.TotalAmount.Round(2),
		Lines:        input.Lines,
		MenuLines:    input.MenuLines,
	}
	if err := s.ValidateOrder(ctx, draft); err != nil {
		return Order{}, err
	}
	var created Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.InsertOrder(ctx, draft)
		if err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, order.ID, draft.Lines, draft.MenuLines); err != nil {
			return err
		}
		created, err = tx.GetOrderForUpdate(ctx, order.ID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, input.ActorID, "order:create", created, nil)
	return created, nil
}

// UpdateOrderLines replaces the lines of a PENDING order after re-validating direct stock.
func (s *Service) UpdateOrderLines(ctx context.Context, orderID int64, lines []Line, menuLines []MenuLine, actorID int64) (Order, error) {
	if err := validateLines(lines, menuLines); err != nil {
		return Order{}, err
	}
	if err := s.ValidateOrder(ctx, Order{Lines: lines, MenuLines: menuLines}); err != nil {
		return Order{}, err
	}
	var updated Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == StatusDelivered {
			return ErrOrderDelivered
		}
		if err := tx.ReplaceLines(ctx, orderID, lines, menuLines); err != nil {
			return err
		}
		updated, err = tx.GetOrderForUpdate(ctx, orderID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "order:update_lines", updated, nil)
	return updated, nil
}

// DeleteOrder removes an order with its lines and payments. Stock movements remain.
func (s *Service) DeleteOrder(ctx context.Context, orderID int64, actorID int64) error {
	var deleted Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		deleted = order
		return tx.DeleteOrder(ctx, orderID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "order:delete", deleted, nil)
	return nil
}

// GetOrder returns an order with its lines.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// Deliver deducts the merged direct and recipe demand of the order and marks it
// DELIVERED in one transaction. A second call reports OutcomeAlreadyDelivered and
// changes nothing.
func (s *Service) Deliver(ctx context.Context, orderID int64, actorID int64) (DeliveryResult, error) {
	release, err := s.acquire(ctx, orderID)
	if err != nil {
		s.observeDelivery("contended")
		return DeliveryResult{}, err
	}
	defer release(context.WithoutCancel(ctx))

	var result DeliveryResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == StatusDelivered {
			result = DeliveryResult{Outcome: OutcomeAlreadyDelivered, Order: order}
			if order.DeliveredAt != nil {
				result.DeliveredAt = *order.DeliveredAt
			}
			return nil
		}
		if !order.HasItems() {
			return ErrNoItems
		}
		if err := validateLines(order.Lines, order.MenuLines); err != nil {
			return err
		}
		// recipes are read in this transaction, never from the cache
		demand, ids, err := mergedDemand(ctx, recipes.NewExpander(tx.Recipes()), order)
		if err != nil {
			return err
		}

		// lock in id order so concurrent deliveries sharing items cannot deadlock
		stock := tx.Stock()
		var shortfalls []inventory.Shortfall
		for _, id := range ids {
			item, err := stock.GetItemForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if item.Quantity.LessThan(demand[id]) {
				shortfalls = append(shortfalls, inventory.NewShortfall(item, demand[id]))
			}
		}
		if len(shortfalls) > 0 {
			s.observeShortfalls(len(shortfalls))
			return &inventory.InsufficientStockError{Shortfalls: shortfalls}
		}

		at := s.now()
		movements := make([]inventory.Movement, 0, len(ids))
		for _, id := range ids {
			m, err := inventory.ApplyMovement(ctx, stock, inventory.MovementParams{
				ItemID:    id,
				Direction: inventory.DirectionOut,
				Delta:     demand[id],
				Note:      fmt.Sprintf("delivery of %s", order.Number),
				RefModule: RefModule,
				RefID:     order.Number,
				ActorID:   actorID,
				At:        at,
			})
			if err != nil {
				return err
			}
			movements = append(movements, m)
		}
		if err := tx.MarkDelivered(ctx, order.ID, at); err != nil {
			return err
		}
		order.Status = StatusDelivered
		order.DeliveredAt = &at
		result = DeliveryResult{Outcome: OutcomeDelivered, Order: order, Movements: movements, DeliveredAt: at}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, inventory.ErrInsufficientStock):
			s.observeDelivery("insufficient_stock")
		case errors.Is(err, shared.ErrConcurrentModification):
			s.observeDelivery("contended")
		default:
			s.observeDelivery("failed")
		}
		return DeliveryResult{}, err
	}
	if result.Outcome == OutcomeAlreadyDelivered {
		s.observeDelivery("already_delivered")
		return result, nil
	}
	s.observeDelivery("delivered")
	deliveryID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("DELIVER:%s", result.Order.Number)))
	s.recordAudit(ctx, actorID, "order:deliver", result.Order, map[string]any{
		"delivery_id": deliveryID.String(),
		"movements":   len(result.Movements),
	})
	return result, nil
}

func (s *Service) acquire(ctx context.Context, orderID int64) (func(context.Context), error) {
	noop := func(context.Context) {}
	if s.locker == nil {
		return noop, nil
	}
	release, err := s.locker.Acquire(ctx, shared.DeliveryLockKey(orderID))
	if err != nil {
		if errors.Is(err, shared.ErrLockUnavailable) {
			// the order row lock still serialises deliveries
			if s.logger != nil {
				s.logger.Warn("delivery lock unavailable, relying on row lock", slog.Int64("order_id", orderID), slog.Any("error", err))
			}
			return noop, nil
		}
		return nil, err
	}
	return release, nil
}

// mergedDemand sums direct and recipe-derived demand per inventory item and returns
// the item ids in ascending order.
func mergedDemand(ctx context.Context, expander *recipes.Expander, order Order) (map[int64]decimal.Decimal, []int64, error) {
	demand, _ := directDemand(order.Lines)
	for _, ml := range order.MenuLines {
		expanded, err := expander.Expand(ctx, ml.MenuItemID, decimal.NewFromInt(ml.Quantity))
		if err != nil {
			return nil, nil, err
		}
		for id, qty := range expanded {
			demand[id] = demand[id].Add(qty)
		}
	}
	ids := make([]int64, 0, len(demand))
	for id, qty := range demand {
		if qty.IsPositive() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return demand, ids, nil
}

func directDemand(lines []Line) (map[int64]decimal.Decimal, []int64) {
	demand := make(map[int64]decimal.Decimal, len(lines))
	for _, l := range lines {
		demand[l.InventoryItemID] = demand[l.InventoryItemID].Add(decimal.NewFromInt(l.Quantity))
	}
	ids := make([]int64, 0, len(demand))
	for id := range demand {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return demand, ids
}

func (s *Service) observeDelivery(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveDelivery(outcome)
	}
}

func (s *Service) observeShortfalls(n int) {
	if s.metrics != nil {
		s.metrics.ObserveShortfalls(n)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, order Order, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = order.Number
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", order.ID),
		Meta:     meta,
	})
}
