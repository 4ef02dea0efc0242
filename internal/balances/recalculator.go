package balances

import (
	"context"

	"github.com/shopspring/decimal"
)

// Kinds of derived totals.
const (
	KindQuote         = "quote"
	KindPurchaseOrder = "purchase_order"
	KindSupplier      = "supplier"
	KindOrder         = "order"
)

// Metrics receives recalculation counts.
type Metrics interface {
	ObserveRecalc(kind string)
	ObserveDrift(kind string, n int)
}

// Recalculator recomputes derived totals from live rows. Every hook runs inside the
// transaction of the mutation that triggered it, so both commit or neither does.
type Recalculator struct {
	metrics Metrics
}

// NewRecalculator builds Recalculator. metrics may be nil.
func NewRecalculator(metrics Metrics) *Recalculator {
	return &Recalculator{metrics: metrics}
}

func (r *Recalculator) observe(kind string) {
	if r != nil && r.metrics != nil {
		r.metrics.ObserveRecalc(kind)
	}
}

func computeQuote(ctx context.Context, st Store, id int64) (stored, computed decimal.Decimal, err error) {
	pct, stored, err := st.QuoteForUpdate(ctx, id)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	lines, err := st.QuoteLineTotals(ctx, id)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return stored, QuoteTotal(lines, pct), nil
}

func computePurchaseOrder(ctx context.Context, st Store, id int64) (supplierID int64, stored, computed decimal.Decimal, err error) {
	supplierID, stored, err = st.PurchaseOrderForUpdate(ctx, id)
	if err != nil {
		return 0, decimal.Zero, decimal.Zero, err
	}
	items, err := st.PurchaseOrderItemTotals(ctx, id)
	if err != nil {
		return 0, decimal.Zero, decimal.Zero, err
	}
	return supplierID, stored, PurchaseOrderTotal(items), nil
}

type supplierTotals struct {
	purchases decimal.Decimal
	paid      decimal.Decimal
}

func (t supplierTotals) equal(o supplierTotals) bool {
	return t.purchases.Equal(o.purchases) && t.paid.Equal(o.paid)
}

func computeSupplier(ctx context.Context, st Store, id int64) (stored, computed supplierTotals, err error) {
	stored.purchases, stored.paid, err = st.SupplierForUpdate(ctx, id)
	if err != nil {
		return stored, computed, err
	}
	poTotals, err := st.SupplierPurchaseOrderTotals(ctx, id)
	if err != nil {
		return stored, computed, err
	}
	payments, err := st.SupplierPaymentAmounts(ctx, id)
	if err != nil {
		return stored, computed, err
	}
	computed.purchases, computed.paid = SupplierTotals(poTotals, payments)
	return stored, computed, nil
}

func computeOrder(ctx context.Context, st Store, id int64) (stored, computed decimal.Decimal, err error) {
	stored, err = st.OrderForUpdate(ctx, id)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	payments, err := st.OrderPaymentAmounts(ctx, id)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return stored, ReceivedAmount(payments), nil
}

// RecalcQuoteTotal rewrites quotes.total_amount.
func (r *Recalculator) RecalcQuoteTotal(ctx context.Context, st Store, quoteID int64) (decimal.Decimal, error) {
	_, total, err := computeQuote(ctx, st, quoteID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := st.SetQuoteTotal(ctx, quoteID, total); err != nil {
		return decimal.Zero, err
	}
	r.observe(KindQuote)
	return total, nil
}

// RecalcPurchaseOrderTotal rewrites purchase_orders.total_amount and returns the owning supplier.
func (r *Recalculator) RecalcPurchaseOrderTotal(ctx context.Context, st Store, poID int64) (int64, decimal.Decimal, error) {
	supplierID, _, total, err := computePurchaseOrder(ctx, st, poID)
	if err != nil {
		return 0, decimal.Zero, err
	}
	if err := st.SetPurchaseOrderTotal(ctx, poID, total); err != nil {
		return 0, decimal.Zero, err
	}
	r.observe(KindPurchaseOrder)
	return supplierID, total, nil
}

// RecalcSupplierTotals rewrites suppliers.total_purchases and total_paid.
func (r *Recalculator) RecalcSupplierTotals(ctx context.Context, st Store, supplierID int64) (purchases, paid decimal.Decimal, err error) {
	_, totals, err := computeSupplier(ctx, st, supplierID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if err := st.SetSupplierTotals(ctx, supplierID, totals.purchases, totals.paid); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	r.observe(KindSupplier)
	return totals.purchases, totals.paid, nil
}

// RecalcPurchaseOrderChain recomputes a purchase order and then its supplier.
func (r *Recalculator) RecalcPurchaseOrderChain(ctx context.Context, st Store, poID int64) error {
	supplierID, _, err := r.RecalcPurchaseOrderTotal(ctx, st, poID)
	if err != nil {
		return err
	}
	_, _, err = r.RecalcSupplierTotals(ctx, st, supplierID)
	return err
}

// RecalcOrderReceived rewrites orders.received_amount.
func (r *Recalculator) RecalcOrderReceived(ctx context.Context, st Store, orderID int64) (decimal.Decimal, error) {
	_, received, err := computeOrder(ctx, st, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := st.SetOrderReceived(ctx, orderID, received); err != nil {
		return decimal.Zero, err
	}
	r.observe(KindOrder)
	return received, nil
}
