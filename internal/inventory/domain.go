package inventory

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// Direction enumerates supported stock movements.
type Direction string

const (
	// DirectionIn represents an inbound movement.
	DirectionIn Direction = "IN"
	// DirectionOut represents an outbound movement.
	DirectionOut Direction = "OUT"
	// DirectionAdjust applies an explicit signed delta.
	DirectionAdjust Direction = "ADJUST"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	switch d {
	case DirectionIn, DirectionOut, DirectionAdjust:
		return true
	}
	return false
}

// ItemType classifies inventory items.
type ItemType string

const (
	ItemTypeRaw        ItemType = "RAW"
	ItemTypeAsset      ItemType = "ASSET"
	ItemTypeConsumable ItemType = "CONSUMABLE"
)

// Item is a stock-keeping unit with its authoritative on-hand quantity.
type Item struct {
	ID          int64           `json:"id"`
	StockCode   string          `json:"stock_code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        ItemType        `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	UOMID       int64           `json:"uom_id"`
	CategoryID  int64           `json:"category_id"`
	SupplierID  int64           `json:"supplier_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Movement is an immutable audit record of a quantity change.
type Movement struct {
	ID           int64           `json:"id"`
	ItemID       int64           `json:"item_id"`
	Direction    Direction       `json:"direction"`
	Quantity     decimal.Decimal `json:"quantity"`
	Delta        decimal.Decimal `json:"delta"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Note         string          `json:"note"`
	RefModule    string          `json:"ref_module"`
	RefID        string          `json:"ref_id"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AdjustInput describes a request to change an item's quantity.
type AdjustInput struct {
	ItemID    int64
	Delta     decimal.Decimal
	Direction Direction
	Note      string
	RefModule string
	RefID     string
	ActorID   int64
	// IdempotencyKey, when set, makes a retried request a no-op.
	IdempotencyKey string
}

// CreateItemInput describes item intake.
type CreateItemInput struct {
	Name            string
	Description     string
	Type            ItemType
	OpeningQuantity decimal.Decimal
	UnitCost        decimal.Decimal
	UOMID           int64
	CategoryID      int64
	SupplierID      int64
	ActorID         int64
}

// UpdateItemInput edits descriptive fields. Quantity is never edited here.
type UpdateItemInput struct {
	Name        *string
	Description *string
	UnitCost    *decimal.Decimal
	SupplierID  *int64
}

// Shortfall describes one item that cannot cover requested demand.
type Shortfall struct {
	ItemID    int64           `json:"item_id"`
	StockCode string          `json:"stock_code"`
	Name      string          `json:"name"`
	Requested decimal.Decimal `json:"requested"`
	Available decimal.Decimal `json:"available"`
	Short     decimal.Decimal `json:"short"`
}

// NewShortfall computes the missing quantity.
func NewShortfall(item Item, requested decimal.Decimal) Shortfall {
	return Shortfall{
		ItemID:    item.ID,
		StockCode: item.StockCode,
		Name:      item.Name,
		Requested: requested,
		Available: item.Quantity,
		Short:     requested.Sub(item.Quantity),
	}
}

// InsufficientStockError lists every shortfall found by a validation pass.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		label := s.StockCode
		if s.Name != "" {
			label = fmt.Sprintf("%s (%s)", s.Name, s.StockCode)
		}
		parts = append(parts, fmt.Sprintf("%s short by %s", label, s.Short.String()))
	}
	return fmt.Sprintf("%s: %s", ErrInsufficientStock.Error(), strings.Join(parts, ", "))
}

// StatusCode maps the error to 409 Conflict.
func (e *InsufficientStockError) StatusCode() int { return http.StatusConflict }

// ProblemExtensions exposes the shortfall list to API clients.
func (e *InsufficientStockError) ProblemExtensions() map[string]any {
	return map[string]any{"shortfalls": e.Shortfalls}
}

// Is lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

var (
	// ErrInsufficientStock is matched by InsufficientStockError.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrItemNotFound indicates the item does not exist.
	ErrItemNotFound = fmt.Errorf("inventory item %w", shared.ErrNotFound)
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = fmt.Errorf("inventory: %w", shared.ErrInvalidQuantity)
	// ErrInvalidDirection indicates an unknown movement direction.
	ErrInvalidDirection = fmt.Errorf("inventory: unknown direction: %w", shared.ErrValidation)
	// ErrInvalidUnitCost indicates invalid cost value.
	ErrInvalidUnitCost = fmt.Errorf("inventory: unit cost must be >= 0: %w", shared.ErrValidation)
	// ErrItemReferenced blocks deleting an item still used by orders, recipes or movements.
	ErrItemReferenced = fmt.Errorf("inventory: item is still referenced: %w", shared.ErrConflict)
)
