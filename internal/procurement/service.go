package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-catering/internal/balances"
	"github.com/odyssey-erp/odyssey-catering/internal/inventory"
	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	ListPayments(ctx context.Context, supplierID int64) ([]SupplierPayment, error)
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
}

// Service orchestrates supplier, payment and purchase order flows. Every write that
// touches a constituent row recalculates the affected totals in the same transaction.
type Service struct {
	repo   RepositoryPort
	recalc *balances.Recalculator
	audit  shared.AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, recalc *balances.Recalculator, audit shared.AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, recalc: recalc, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CreateSupplier registers a supplier with a generated SUP code.
func (s *Service) CreateSupplier(ctx context.Context, input CreateSupplierInput) (Supplier, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Supplier{}, fmt.Errorf("procurement: supplier name required: %w", shared.ErrValidation)
	}
	if input.Type == "" {
		input.Type = SupplierBusiness
	}
	var created Supplier
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertSupplier(ctx, Supplier{Name: name, Type: input.Type, Email: input.Email, Phone: input.Phone})
		return err
	})
	if err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, input.ActorID, "supplier:create", "supplier", created.ID, map[string]any{"code": created.Code})
	return created, nil
}

// GetSupplier returns a supplier.
func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

// ListPayments returns a supplier's payments.
func (s *Service) ListPayments(ctx context.Context, supplierID int64) ([]SupplierPayment, error) {
	if _, err := s.repo.GetSupplier(ctx, supplierID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, supplierID)
}

func (s *Service) normalisePayment(input PaymentInput) (PaymentInput, error) {
	if !input.Amount.IsPositive() {
		return input, ErrInvalidAmount
	}
	if input.Method == "" {
		input.Method = MethodCash
	}
	if !input.Method.Valid() {
		return input, fmt.Errorf("procurement: unknown payment method %q: %w", input.Method, shared.ErrValidation)
	}
	if input.PaidOn.IsZero() {
		input.PaidOn = s.now().Truncate(24 * time.Hour)
	}
	input.Amount = balances.Round2(input.Amount)
	return input, nil
}

// RecordPayment stores a supplier payment and recalculates supplier totals.
func (s *Service) RecordPayment(ctx context.Context, supplierID int64, input PaymentInput) (SupplierPayment, error) {
	input, err := s.normalisePayment(input)
	if err != nil {
		return SupplierPayment{}, err
	}
	var payment SupplierPayment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st := tx.Balances()
		if _, _, err := st.SupplierForUpdate(ctx, supplierID); err != nil {
			return err
		}
		var err error
		payment, err = tx.InsertPayment(ctx, SupplierPayment{
			SupplierID: supplierID,
			Amount:     input.Amount,
			Method:     input.Method,
			Reference:  input.Reference,
			Notes:      input.Notes,
			PaidOn:     input.PaidOn,
		})
		if err != nil {
			return err
		}
		_, _, err = s.recalc.RecalcSupplierTotals(ctx, st, supplierID)
		return err
	})
	if err != nil {
		return SupplierPayment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "supplier_payment:create", "supplier_payment", payment.ID, map[string]any{"amount": payment.Amount.String()})
	return payment, nil
}

// UpdatePayment edits a supplier payment and recalculates supplier totals.
func (s *Service) UpdatePayment(ctx context.Context, paymentID int64, input PaymentInput) (SupplierPayment, error) {
	input, err := s.normalisePayment(input)
	if err != nil {
		return SupplierPayment{}, err
	}
	var payment SupplierPayment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		payment = current
		payment.Amount = input.Amount
		payment.Method = input.Method
		payment.Reference = input.Reference
		payment.Notes = input.Notes
		payment.PaidOn = input.PaidOn
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}
		_, _, err = s.recalc.RecalcSupplierTotals(ctx, tx.Balances(), payment.SupplierID)
		return err
	})
	if err != nil {
		return SupplierPayment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "supplier_payment:update", "supplier_payment", payment.ID, map[string]any{"amount": payment.Amount.String()})
	return payment, nil
}

// DeletePayment removes a supplier payment and recalculates supplier totals.
func (s *Service) DeletePayment(ctx context.Context, paymentID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		payment, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, paymentID); err != nil {
			return err
		}
		_, _, err = s.recalc.RecalcSupplierTotals(ctx, tx.Balances(), payment.SupplierID)
		return err
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "supplier_payment:delete", "supplier_payment", paymentID, nil)
	return nil
}

// CreatePurchaseOrder opens an empty PENDING purchase order.
func (s *Service) CreatePurchaseOrder(ctx context.Context, supplierID int64, input CreatePOInput) (PurchaseOrder, error) {
	if input.OrderDate.IsZero() {
		input.OrderDate = s.now().Truncate(24 * time.Hour)
	}
	if input.ExpectedDate != nil && input.ExpectedDate.Before(input.OrderDate) {
		return PurchaseOrder{}, fmt.Errorf("procurement: expected date before order date: %w", shared.ErrValidation)
	}
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, _, err := tx.Balances().SupplierForUpdate(ctx, supplierID); err != nil {
			return err
		}
		var err error
		po, err = tx.InsertPurchaseOrder(ctx, PurchaseOrder{SupplierID: supplierID, OrderDate: input.OrderDate, ExpectedDate: input.ExpectedDate, Notes: input.Notes})
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "purchase_order:create", "purchase_order", po.ID, map[string]any{"number": po.Number})
	return po, nil
}

// GetPurchaseOrder returns a purchase order with items.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

// DeletePurchaseOrder removes a purchase order and recalculates its supplier.
func (s *Service) DeletePurchaseOrder(ctx context.Context, poID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPurchaseOrderForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if err := tx.DeletePurchaseOrder(ctx, poID); err != nil {
			return err
		}
		_, _, err = s.recalc.RecalcSupplierTotals(ctx, tx.Balances(), po.SupplierID)
		return err
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "purchase_order:delete", "purchase_order", poID, nil)
	return nil
}

// CancelPurchaseOrder marks an unreceived purchase order CANCELLED.
func (s *Service) CancelPurchaseOrder(ctx context.Context, poID int64, actorID int64) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPurchaseOrderForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusPending && po.Status != POStatusPartial {
			return ErrInvalidState
		}
		po.Status = POStatusCancelled
		return tx.UpdatePurchaseOrderStatus(ctx, poID, POStatusCancelled)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, actorID, "purchase_order:cancel", "purchase_order", poID, nil)
	return po, nil
}

func validateItem(input ItemInput) error {
	if input.InventoryItemID <= 0 {
		return fmt.Errorf("procurement: inventory item required: %w", shared.ErrValidation)
	}
	if !input.Quantity.IsPositive() {
		return fmt.Errorf("procurement: %w", shared.ErrInvalidQuantity)
	}
	if input.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

func editable(po PurchaseOrder) error {
	if po.Status == POStatusCompleted || po.Status == POStatusCancelled {
		return ErrInvalidState
	}
	return nil
}

// AddItem adds a line and recalculates the purchase order and supplier totals.
func (s *Service) AddItem(ctx context.Context, poID int64, input ItemInput) (POItem, error) {
	if err := validateItem(input); err != nil {
		return POItem{}, err
	}
	var item POItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPurchaseOrderForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if err := editable(po); err != nil {
			return err
		}
		if err := requireStockItem(ctx, tx, input.InventoryItemID); err != nil {
			return err
		}
		item, err = tx.InsertItem(ctx, POItem{
			PurchaseOrderID: poID,
			InventoryItemID: input.InventoryItemID,
			Quantity:        input.Quantity,
			UnitPrice:       input.UnitPrice,
			TotalPrice:      balances.LineTotal(input.Quantity, input.UnitPrice),
		})
		if err != nil {
			return err
		}
		return s.recalc.RecalcPurchaseOrderChain(ctx, tx.Balances(), poID)
	})
	if err != nil {
		return POItem{}, err
	}
	s.recordAudit(ctx, input.ActorID, "purchase_order_item:create", "purchase_order_item", item.ID, map[string]any{"total_price": item.TotalPrice.String()})
	return item, nil
}

func requireStockItem(ctx context.Context, tx TxRepository, id int64) error {
	exists, err := tx.InventoryItemExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: id %d", inventory.ErrItemNotFound, id)
	}
	return nil
}

// UpdateItem edits a line and recalculates totals.
func (s *Service) UpdateItem(ctx context.Context, itemID int64, input ItemInput) (POItem, error) {
	if err := validateItem(input); err != nil {
		return POItem{}, err
	}
	var item POItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		po, err := tx.GetPurchaseOrderForUpdate(ctx, current.PurchaseOrderID)
		if err != nil {
			return err
		}
		if err := editable(po); err != nil {
			return err
		}
		if err := requireStockItem(ctx, tx, input.InventoryItemID); err != nil {
			return err
		}
		item = current
		item.InventoryItemID = input.InventoryItemID
		item.Quantity = input.Quantity
		item.UnitPrice = input.UnitPrice
		item.TotalPrice = balances.LineTotal(input.Quantity, input.UnitPrice)
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		return s.recalc.RecalcPurchaseOrderChain(ctx, tx.Balances(), item.PurchaseOrderID)
	})
	if err != nil {
		return POItem{}, err
	}
	s.recordAudit(ctx, input.ActorID, "purchase_order_item:update", "purchase_order_item", item.ID, map[string]any{"total_price": item.TotalPrice.String()})
	return item, nil
}

// DeleteItem removes a line and recalculates totals.
func (s *Service) DeleteItem(ctx context.Context, itemID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		po, err := tx.GetPurchaseOrderForUpdate(ctx, item.PurchaseOrderID)
		if err != nil {
			return err
		}
		if err := editable(po); err != nil {
			return err
		}
		if err := tx.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		return s.recalc.RecalcPurchaseOrderChain(ctx, tx.Balances(), item.PurchaseOrderID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "purchase_order_item:delete", "purchase_order_item", itemID, nil)
	return nil
}

// ReceivePurchaseOrder posts one IN movement per item and completes the purchase order.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, poID int64, actorID int64) (PurchaseOrder, []inventory.Movement, error) {
	var (
		po        PurchaseOrder
		movements []inventory.Movement
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPurchaseOrderForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if err := editable(po); err != nil {
			return err
		}
		if len(po.Items) == 0 {
			return ErrEmptyPurchaseOrder
		}
		at := s.now()
		stock := tx.Stock()
		movements = make([]inventory.Movement, 0, len(po.Items))
		for _, item := range po.Items {
			m, err := inventory.ApplyMovement(ctx, stock, inventory.MovementParams{
				ItemID:    item.InventoryItemID,
				Direction: inventory.DirectionIn,
				Delta:     item.Quantity,
				Note:      fmt.Sprintf("received on %s", po.Number),
				RefModule: RefModule,
				RefID:     po.Number,
				ActorID:   actorID,
				At:        at,
			})
			if err != nil {
				return err
			}
			movements = append(movements, m)
		}
		po.Status = POStatusCompleted
		return tx.UpdatePurchaseOrderStatus(ctx, poID, POStatusCompleted)
	})
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	receiptID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("RECEIVE:%s", po.Number)))
	s.recordAudit(ctx, actorID, "purchase_order:receive", "purchase_order", poID, map[string]any{
		"receipt_id": receiptID.String(),
		"movements":  len(movements),
	})
	return po, movements, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
