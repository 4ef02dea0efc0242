package fulfillment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/inventory"
	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// Status enumerates order lifecycle states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
)

// RefModule tags stock movements produced by deliveries.
const RefModule = "ORDER"

// Line demands an inventory item directly.
type Line struct {
	ID              int64  `json:"id"`
	InventoryItemID int64  `json:"inventory_item_id"`
	Quantity        int64  `json:"quantity"`
	Note            string `json:"note"`
}

// MenuLine demands a menu item; its stock impact comes from the recipe.
type MenuLine struct {
	ID         int64  `json:"id"`
	MenuItemID int64  `json:"menu_item_id"`
	Quantity   int64  `json:"quantity"`
	Note       string `json:"note"`
}

// Order is a customer catering order.
type Order struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	Name           string          `json:"name"`
	CustomerName   string          `json:"customer_name"`
	EventDate      *time.Time      `json:"event_date,omitempty"`
	Status         Status          `json:"status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ReceivedAmount decimal.Decimal `json:"received_amount"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	Lines          []Line          `json:"lines"`
	MenuLines      []MenuLine      `json:"menu_lines"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DueAmount is the part of the total not yet received.
func (o Order) DueAmount() decimal.Decimal {
	due := o.TotalAmount.Sub(o.ReceivedAmount)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// HasItems reports whether the order demands anything at all.
func (o Order) HasItems() bool {
	return len(o.Lines) > 0 || len(o.MenuLines) > 0
}

// CreateOrderInput captures order intake.
type CreateOrderInput struct {
	Name         string
	CustomerName string
	EventDate    *time.Time
	TotalAmount  decimal.Decimal
	Lines        []Line
	MenuLines    []MenuLine
	ActorID      int64
}

// Outcome distinguishes how a delivery call ended.
type Outcome string

const (
	OutcomeDelivered        Outcome = "DELIVERED"
	OutcomeAlreadyDelivered Outcome = "ALREADY_DELIVERED"
)

// DeliveryResult reports a completed or skipped delivery.
type DeliveryResult struct {
	Outcome     Outcome              `json:"outcome"`
	Order       Order                `json:"order"`
	Movements   []inventory.Movement `json:"movements"`
	DeliveredAt time.Time            `json:"delivered_at"`
}

var (
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = fmt.Errorf("order %w", shared.ErrNotFound)
	// ErrNoItems indicates an order with neither direct nor menu lines.
	ErrNoItems = fmt.Errorf("fulfillment: order has no items: %w", shared.ErrUnprocessable)
	// ErrOrderDelivered blocks edits after delivery.
	ErrOrderDelivered = fmt.Errorf("fulfillment: order already delivered: %w", shared.ErrConflict)
	// ErrInvalidQuantity indicates a zero or negative line quantity.
	ErrInvalidQuantity = fmt.Errorf("fulfillment: %w", shared.ErrInvalidQuantity)
	// ErrInvalidAmount indicates a negative order total.
	ErrInvalidAmount = fmt.Errorf("fulfillment: total amount must be >= 0: %w", shared.ErrValidation)
)
