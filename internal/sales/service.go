package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/balances"
	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPayments(ctx context.Context, orderID int64) ([]Payment, error)
	GetQuote(ctx context.Context, id int64) (Quote, error)
}

// Service provides order payment and quote operations. Each write recalculates the
// parent's derived total before its transaction commits.
type Service struct {
	repo   RepositoryPort
	recalc *balances.Recalculator
	audit  shared.AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, recalc *balances.Recalculator, audit shared.AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, recalc: recalc, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// ============================================================================
// ORDER PAYMENT OPERATIONS
// ============================================================================

func (s *Service) normalisePayment(input PaymentInput) (PaymentInput, error) {
	if !input.Amount.IsPositive() {
		return input, ErrInvalidAmount
	}
	if input.Method == "" {
		input.Method = MethodCash
	}
	if !input.Method.Valid() {
		return input, ErrInvalidMethod
	}
	if input.PaidOn.IsZero() {
		input.PaidOn = s.now().Truncate(24 * time.Hour)
	}
	input.Amount = balances.Round2(input.Amount)
	return input, nil
}

// RecordPayment stores a payment and refreshes the order's received amount.
func (s *Service) RecordPayment(ctx context.Context, orderID int64, input PaymentInput) (Payment, error) {
	input, err := s.normalisePayment(input)
	if err != nil {
		return Payment{}, err
	}
	var payment Payment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st := tx.Balances()
		if _, err := st.OrderForUpdate(ctx, orderID); err != nil {
			return err
		}
		var err error
		payment, err = tx.InsertPayment(ctx, Payment{OrderID: orderID, Amount: input.Amount, Method: input.Method, PaidOn: input.PaidOn})
		if err != nil {
			return err
		}
		_, err = s.recalc.RecalcOrderReceived(ctx, st, orderID)
		return err
	})
	if err != nil {
		return Payment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "payment:create", "payment", payment.ID, map[string]any{
		"order_id": orderID,
		"amount":   payment.Amount.String(),
	})
	return payment, nil
}

// UpdatePayment edits a payment and refreshes the order's received amount.
func (s *Service) UpdatePayment(ctx context.Context, paymentID int64, input PaymentInput) (Payment, error) {
	input, err := s.normalisePayment(input)
	if err != nil {
		return Payment{}, err
	}
	var payment Payment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		payment = current
		payment.Amount = input.Amount
		payment.Method = input.Method
		payment.PaidOn = input.PaidOn
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}
		_, err = s.recalc.RecalcOrderReceived(ctx, tx.Balances(), payment.OrderID)
		return err
	})
	if err != nil {
		return Payment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "payment:update", "payment", payment.ID, map[string]any{"amount": payment.Amount.String()})
	return payment, nil
}

// DeletePayment removes a payment and refreshes the order's received amount.
func (s *Service) DeletePayment(ctx context.Context, paymentID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		payment, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, paymentID); err != nil {
			return err
		}
		_, err = s.recalc.RecalcOrderReceived(ctx, tx.Balances(), payment.OrderID)
		return err
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "payment:delete", "payment", paymentID, nil)
	return nil
}

// ListPayments returns payments recorded against an order.
func (s *Service) ListPayments(ctx context.Context, orderID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, orderID)
}

// ============================================================================
// QUOTE OPERATIONS
// ============================================================================

// CreateQuote opens an empty quote.
func (s *Service) CreateQuote(ctx context.Context, input CreateQuoteInput) (Quote, error) {
	if !balances.ValidDiscount(input.DiscountPct) {
		return Quote{}, ErrInvalidDiscount
	}
	var quote Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		quote, err = tx.InsertQuote(ctx, Quote{CustomerName: strings.TrimSpace(input.CustomerName), DiscountPct: input.DiscountPct})
		return err
	})
	if err != nil {
		return Quote{}, err
	}
	s.recordAudit(ctx, input.ActorID, "quote:create", "quote", quote.ID, map[string]any{"number": quote.Number})
	return quote, nil
}

// GetQuote returns a quote with its items.
func (s *Service) GetQuote(ctx context.Context, id int64) (Quote, error) {
	return s.repo.GetQuote(ctx, id)
}

// SetDiscount changes a quote's discount and recalculates its total.
func (s *Service) SetDiscount(ctx context.Context, quoteID int64, pct decimal.Decimal, actorID int64) (decimal.Decimal, error) {
	if !balances.ValidDiscount(pct) {
		return decimal.Zero, ErrInvalidDiscount
	}
	var total decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st := tx.Balances()
		if _, _, err := st.QuoteForUpdate(ctx, quoteID); err != nil {
			return err
		}
		if err := tx.SetQuoteDiscount(ctx, quoteID, pct); err != nil {
			return err
		}
		var err error
		total, err = s.recalc.RecalcQuoteTotal(ctx, st, quoteID)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.recordAudit(ctx, actorID, "quote:discount", "quote", quoteID, map[string]any{
		"discount_pct": pct.String(),
		"total":        total.String(),
	})
	return total, nil
}

// DeleteQuote removes a quote and its items.
func (s *Service) DeleteQuote(ctx context.Context, quoteID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, _, err := tx.Balances().QuoteForUpdate(ctx, quoteID); err != nil {
			return err
		}
		return tx.DeleteQuote(ctx, quoteID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "quote:delete", "quote", quoteID, nil)
	return nil
}

func validateQuoteItem(input QuoteItemInput) error {
	if !input.Quantity.IsPositive() {
		return fmt.Errorf("sales: %w", shared.ErrInvalidQuantity)
	}
	if input.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

// AddQuoteItem adds a line and recalculates the quote total.
func (s *Service) AddQuoteItem(ctx context.Context, quoteID int64, input QuoteItemInput) (QuoteItem, error) {
	if err := validateQuoteItem(input); err != nil {
		return QuoteItem{}, err
	}
	var item QuoteItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st := tx.Balances()
		if _, _, err := st.QuoteForUpdate(ctx, quoteID); err != nil {
			return err
		}
		var err error
		item, err = tx.InsertQuoteItem(ctx, QuoteItem{
			QuoteID:     quoteID,
			MenuItemID:  input.MenuItemID,
			Description: input.Description,
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
			LineTotal:   balances.LineTotal(input.Quantity, input.UnitPrice),
		})
		if err != nil {
			return err
		}
		_, err = s.recalc.RecalcQuoteTotal(ctx, st, quoteID)
		return err
	})
	if err != nil {
		return QuoteItem{}, err
	}
	s.recordAudit(ctx, input.ActorID, "quote_item:create", "quote_item", item.ID, map[string]any{"line_total": item.LineTotal.String()})
	return item, nil
}

// UpdateQuoteItem edits a line and recalculates the quote total.
func (s *Service) UpdateQuoteItem(ctx context.Context, itemID int64, input QuoteItemInput) (QuoteItem, error) {
	if err := validateQuoteItem(input); err != nil {
		return QuoteItem{}, err
	}
	var item QuoteItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetQuoteItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		st := tx.Balances()
		if _, _, err := st.QuoteForUpdate(ctx, current.QuoteID); err != nil {
			return err
		}
		item = current
		item.MenuItemID = input.MenuItemID
		item.Description = input.Description
		item.Quantity = input.Quantity
		item.UnitPrice = input.UnitPrice
		item.LineTotal = balances.LineTotal(input.Quantity, input.UnitPrice)
		if err := tx.UpdateQuoteItem(ctx, item); err != nil {
			return err
		}
		_, err = s.recalc.RecalcQuoteTotal(ctx, st, item.QuoteID)
		return err
	})
	if err != nil {
		return QuoteItem{}, err
	}
	s.recordAudit(ctx, input.ActorID, "quote_item:update", "quote_item", item.ID, map[string]any{"line_total": item.LineTotal.String()})
	return item, nil
}

// DeleteQuoteItem removes a line and recalculates the quote total.
func (s *Service) DeleteQuoteItem(ctx context.Context, itemID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetQuoteItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		st := tx.Balances()
		if _, _, err := st.QuoteForUpdate(ctx, item.QuoteID); err != nil {
			return err
		}
		if err := tx.DeleteQuoteItem(ctx, itemID); err != nil {
			return err
		}
		_, err = s.recalc.RecalcQuoteTotal(ctx, st, item.QuoteID)
		return err
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "quote_item:delete", "quote_item", itemID, nil)
	return nil
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
