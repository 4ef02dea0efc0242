package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// ============================================================================
// ORDER PAYMENTS
// ============================================================================

// PaymentMethod enumerates how a customer paid.
type PaymentMethod string

const (
	MethodCash PaymentMethod = "Cash"
	MethodBank PaymentMethod = "Bank"
	MethodCard PaymentMethod = "Card"
)

// Valid reports whether m is supported.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBank, MethodCard:
		return true
	}
	return false
}

// Payment is money received against an order.
type Payment struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method"`
	PaidOn    time.Time       `json:"paid_on"`
	CreatedAt time.Time       `json:"created_at"`
}

// PaymentInput describes a payment write.
type PaymentInput struct {
	Amount  decimal.Decimal
	Method  PaymentMethod
	PaidOn  time.Time
	ActorID int64
}

// ============================================================================
// QUOTES
// ============================================================================

// Quote is a priced proposal with an order-level discount.
type Quote struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	CustomerName string          `json:"customer_name"`
	DiscountPct  decimal.Decimal `json:"discount_pct"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	CreatedAt    time.Time       `json:"created_at"`
	Items        []QuoteItem     `json:"items"`
}

// QuoteItem is one priced line on a quote.
type QuoteItem struct {
	ID          int64           `json:"id"`
	QuoteID     int64           `json:"quote_id"`
	MenuItemID  *int64          `json:"menu_item_id,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// CreateQuoteInput describes a quote header.
type CreateQuoteInput struct {
	CustomerName string
	DiscountPct  decimal.Decimal
	ActorID      int64
}

// QuoteItemInput describes a quote item write.
type QuoteItemInput struct {
	MenuItemID  *int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	ActorID     int64
}

var (
	// ErrPaymentNotFound indicates a missing order payment.
	ErrPaymentNotFound = fmt.Errorf("payment %w", shared.ErrNotFound)
	// ErrQuoteNotFound indicates a missing quote.
	ErrQuoteNotFound = fmt.Errorf("quote %w", shared.ErrNotFound)
	// ErrQuoteItemNotFound indicates a missing quote item.
	ErrQuoteItemNotFound = fmt.Errorf("quote item %w", shared.ErrNotFound)
	// ErrInvalidAmount indicates a non-positive payment.
	ErrInvalidAmount = fmt.Errorf("sales: amount must be greater than zero: %w", shared.ErrValidation)
	// ErrInvalidMethod indicates an unsupported payment method.
	ErrInvalidMethod = fmt.Errorf("sales: unsupported payment method: %w", shared.ErrValidation)
	// ErrInvalidDiscount indicates a discount outside [0,100].
	ErrInvalidDiscount = fmt.Errorf("sales: discount must be between 0 and 100: %w", shared.ErrValidation)
	// ErrInvalidPrice indicates a negative unit price.
	ErrInvalidPrice = fmt.Errorf("sales: unit price must be >= 0: %w", shared.ErrValidation)
)
