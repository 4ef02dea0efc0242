package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// SupplierType classifies suppliers.
type SupplierType string

const (
	SupplierIndividual SupplierType = "IND"
	SupplierBusiness   SupplierType = "BUS"
)

// POStatus enumerates purchase order states.
type POStatus string

const (
	POStatusPending   POStatus = "PENDING"
	POStatusPartial   POStatus = "PARTIAL"
	POStatusCompleted POStatus = "COMPLETED"
	POStatusCancelled POStatus = "CANCELLED"
)

// PaymentMethod enumerates supported payment methods.
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

// RefModule tags stock movements produced by receiving.
const RefModule = "PURCHASE_ORDER"

// Supplier is a vendor with derived purchase and payment totals.
type Supplier struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           SupplierType    `json:"type"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	TotalPurchases decimal.Decimal `json:"total_purchases"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
}

// BalanceDue is what is still owed to the supplier.
func (s Supplier) BalanceDue() decimal.Decimal {
	return s.TotalPurchases.Sub(s.TotalPaid)
}

// SupplierPayment is money paid to a supplier.
type SupplierPayment struct {
	ID         int64           `json:"id"`
	SupplierID int64           `json:"supplier_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method"`
	Reference  string          `json:"reference"`
	Notes      string          `json:"notes"`
	PaidOn     time.Time       `json:"paid_on"`
}

// PurchaseOrder is an order placed with a supplier.
type PurchaseOrder struct {
	ID           int64           `json:"id"`
	SupplierID   int64           `json:"supplier_id"`
	Number       string          `json:"number"`
	Status       POStatus        `json:"status"`
	OrderDate    time.Time       `json:"order_date"`
	ExpectedDate *time.Time      `json:"expected_date,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Notes        string          `json:"notes"`
	Items        []POItem        `json:"items"`
}

// POItem is one purchased inventory line.
type POItem struct {
	ID              int64           `json:"id"`
	PurchaseOrderID int64           `json:"purchase_order_id"`
	InventoryItemID int64           `json:"inventory_item_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
}

// CreateSupplierInput describes supplier intake.
type CreateSupplierInput struct {
	Name    string
	Type    SupplierType
	Email   string
	Phone   string
	ActorID int64
}

// PaymentInput describes a supplier payment write.
type PaymentInput struct {
	Amount    decimal.Decimal
	Method    PaymentMethod
	Reference string
	Notes     string
	PaidOn    time.Time
	ActorID   int64
}

// CreatePOInput describes a purchase order header.
type CreatePOInput struct {
	OrderDate    time.Time
	ExpectedDate *time.Time
	Notes        string
	ActorID      int64
}

// ItemInput describes a purchase order item write.
type ItemInput struct {
	InventoryItemID int64
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	ActorID         int64
}

var (
	// ErrSupplierNotFound indicates a missing supplier.
	ErrSupplierNotFound = fmt.Errorf("supplier %w", shared.ErrNotFound)
	// ErrPaymentNotFound indicates a missing supplier payment.
	ErrPaymentNotFound = fmt.Errorf("supplier payment %w", shared.ErrNotFound)
	// ErrPurchaseOrderNotFound indicates a missing purchase order.
	ErrPurchaseOrderNotFound = fmt.Errorf("purchase order %w", shared.ErrNotFound)
	// ErrItemNotFound indicates a missing purchase order item.
	ErrItemNotFound = fmt.Errorf("purchase order item %w", shared.ErrNotFound)
	// ErrInvalidAmount indicates a non-positive payment amount.
	ErrInvalidAmount = fmt.Errorf("procurement: amount must be greater than zero: %w", shared.ErrValidation)
	// ErrInvalidPrice indicates a negative unit price.
	ErrInvalidPrice = fmt.Errorf("procurement: unit price must be >= 0: %w", shared.ErrValidation)
	// ErrInvalidState indicates an operation not allowed in the purchase order's status.
	ErrInvalidState = fmt.Errorf("procurement: invalid purchase order state: %w", shared.ErrConflict)
	// ErrEmptyPurchaseOrder blocks receiving a purchase order without items.
	ErrEmptyPurchaseOrder = fmt.Errorf("procurement: purchase order has no items: %w", shared.ErrUnprocessable)
)
