package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id int64) (Item, error)
	UpdateItem(ctx context.Context, id int64, input UpdateItemInput) (Item, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// Service is the stock ledger: every quantity change goes through it and leaves a movement.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Audit  shared.AuditPort
	Logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	return &Service{
		repo:   repo,
		audit:  cfg.Audit,
		logger: cfg.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// MovementParams describes one ledger posting.
type MovementParams struct {
	ItemID    int64
	Direction Direction
	Delta     decimal.Decimal
	Note      string
	RefModule string
	RefID     string
	ActorID   int64
	At        time.Time
}

// ApplyMovement changes an item's quantity and appends the matching movement inside tx.
// IN and OUT take a positive magnitude; ADJUST takes a signed non-zero delta. No path
// may leave the quantity negative.
func ApplyMovement(ctx context.Context, tx TxRepository, params MovementParams) (Movement, error) {
	if !params.Direction.Valid() {
		return Movement{}, ErrInvalidDirection
	}
	if params.ItemID == 0 {
		return Movement{}, ErrItemNotFound
	}
	var signed decimal.Decimal
	switch params.Direction {
	case DirectionIn:
		if !params.Delta.IsPositive() {
			return Movement{}, ErrInvalidQuantity
		}
		signed = params.Delta
	case DirectionOut:
		if !params.Delta.IsPositive() {
			return Movement{}, ErrInvalidQuantity
		}
		signed = params.Delta.Neg()
	case DirectionAdjust:
		if params.Delta.IsZero() {
			return Movement{}, ErrInvalidQuantity
		}
		signed = params.Delta
	}

	item, err := tx.GetItemForUpdate(ctx, params.ItemID)
	if err != nil {
		return Movement{}, err
	}
	newQty := item.Quantity.Add(signed)
	if newQty.IsNegative() {
		return Movement{}, &InsufficientStockError{Shortfalls: []Shortfall{NewShortfall(item, signed.Neg())}}
	}
	if err := tx.UpdateItemQuantity(ctx, item.ID, newQty); err != nil {
		return Movement{}, err
	}
	at := params.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	movement := Movement{
		ItemID:       item.ID,
		Direction:    params.Direction,
		Quantity:     signed.Abs(),
		Delta:        signed,
		BalanceAfter: newQty,
		Note:         params.Note,
		RefModule:    params.RefModule,
		RefID:        params.RefID,
		CreatedBy:    params.ActorID,
		CreatedAt:    at,
	}
	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	movement.ID = id
	return movement, nil
}

// Adjust applies delta to the item's quantity and records the movement atomically.
// An idempotency key is claimed in the same transaction, so a failed attempt leaves
// it free for the retry.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (Movement, error) {
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.IdempotencyKey != "" {
			key := fmt.Sprintf("inventory:adjust:%d:%s", input.ItemID, input.IdempotencyKey)
			if err := tx.ClaimIdempotencyKey(ctx, key, "inventory"); err != nil {
				return err
			}
		}
		var err error
		movement, err = ApplyMovement(ctx, tx, MovementParams{
			ItemID:    input.ItemID,
			Direction: input.Direction,
			Delta:     input.Delta,
			Note:      input.Note,
			RefModule: input.RefModule,
			RefID:     input.RefID,
			ActorID:   input.ActorID,
			At:        s.now(),
		})
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, input.ActorID, fmt.Sprintf("inventory:%s", movement.Direction), movement.ItemID, map[string]any{
		"delta":         movement.Delta.String(),
		"balance_after": movement.BalanceAfter.String(),
		"note":          movement.Note,
	})
	return movement, nil
}

// CurrentQuantity returns the committed on-hand quantity.
func (s *Service) CurrentQuantity(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return decimal.Zero, err
	}
	return item.Quantity, nil
}

// GetItem returns a single item.
func (s *Service) GetItem(ctx context.Context, itemID int64) (Item, error) {
	return s.repo.GetItem(ctx, itemID)
}

// CreateItem registers a new item. Opening stock is posted as an IN movement so the
// movement log explains the full quantity history.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Item{}, fmt.Errorf("inventory: name required: %w", shared.ErrValidation)
	}
	if input.UnitCost.IsNegative() {
		return Item{}, ErrInvalidUnitCost
	}
	if input.OpeningQuantity.IsNegative() {
		return Item{}, ErrInvalidQuantity
	}
	if input.Type == "" {
		input.Type = ItemTypeRaw
	}
	var created Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.InsertItem(ctx, Item{
			Name:        input.Name,
			Description: input.Description,
			Type:        input.Type,
			UnitCost:    input.UnitCost,
			UOMID:       input.UOMID,
			CategoryID:  input.CategoryID,
			SupplierID:  input.SupplierID,
		})
		if err != nil {
			return err
		}
		if input.OpeningQuantity.IsPositive() {
			m, err := ApplyMovement(ctx, tx, MovementParams{
				ItemID:    item.ID,
				Direction: DirectionIn,
				Delta:     input.OpeningQuantity,
				Note:      "opening stock",
				RefModule: "INVENTORY",
				RefID:     item.StockCode,
				ActorID:   input.ActorID,
				At:        s.now(),
			})
			if err != nil {
				return err
			}
			item.Quantity = m.BalanceAfter
		}
		created = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:create", created.ID, map[string]any{"stock_code": created.StockCode})
	return created, nil
}

// UpdateItem edits descriptive fields and unit cost.
func (s *Service) UpdateItem(ctx context.Context, itemID int64, input UpdateItemInput) (Item, error) {
	if input.UnitCost != nil && input.UnitCost.IsNegative() {
		return Item{}, ErrInvalidUnitCost
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return Item{}, fmt.Errorf("inventory: name required: %w", shared.ErrValidation)
	}
	return s.repo.UpdateItem(ctx, itemID, input)
}

// DeleteItem removes an item that nothing references.
func (s *Service) DeleteItem(ctx context.Context, itemID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetItemForUpdate(ctx, itemID); err != nil {
			return err
		}
		refs, err := tx.CountItemReferences(ctx, itemID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrItemReferenced
		}
		return tx.DeleteItem(ctx, itemID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "inventory:delete", itemID, nil)
	return nil
}

// ListMovements lists movement history.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ItemID == 0 && filter.RefID == "" {
		return nil, fmt.Errorf("inventory: item or reference required: %w", shared.ErrValidation)
	}
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, itemID int64, meta map[string]any) {
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_item",
		EntityID: fmt.Sprintf("%d", itemID),
		Meta:     meta,
	})
}
