package balances

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// Store reads constituent rows and writes derived totals inside the caller's
// transaction. The *ForUpdate methods lock the parent row and return its stored totals.
type Store interface {
	QuoteForUpdate(ctx context.Context, id int64) (discountPct, total decimal.Decimal, err error)
	QuoteLineTotals(ctx context.Context, id int64) ([]decimal.Decimal, error)
	SetQuoteTotal(ctx context.Context, id int64, total decimal.Decimal) error

	PurchaseOrderForUpdate(ctx context.Context, id int64) (supplierID int64, total decimal.Decimal, err error)
	PurchaseOrderItemTotals(ctx context.Context, id int64) ([]decimal.Decimal, error)
	SetPurchaseOrderTotal(ctx context.Context, id int64, total decimal.Decimal) error

	SupplierForUpdate(ctx context.Context, id int64) (purchases, paid decimal.Decimal, err error)
	SupplierPurchaseOrderTotals(ctx context.Context, id int64) ([]decimal.Decimal, error)
	SupplierPaymentAmounts(ctx context.Context, id int64) ([]decimal.Decimal, error)
	SetSupplierTotals(ctx context.Context, id int64, purchases, paid decimal.Decimal) error

	OrderForUpdate(ctx context.Context, id int64) (received decimal.Decimal, err error)
	OrderPaymentAmounts(ctx context.Context, id int64) ([]decimal.Decimal, error)
	SetOrderReceived(ctx context.Context, id int64, received decimal.Decimal) error
}

var (
	// ErrQuoteNotFound indicates a missing quote.
	ErrQuoteNotFound = fmt.Errorf("quote %w", shared.ErrNotFound)
	// ErrPurchaseOrderNotFound indicates a missing purchase order.
	ErrPurchaseOrderNotFound = fmt.Errorf("purchase order %w", shared.ErrNotFound)
	// ErrSupplierNotFound indicates a missing supplier.
	ErrSupplierNotFound = fmt.Errorf("supplier %w", shared.ErrNotFound)
	// ErrOrderNotFound indicates a missing order.
	ErrOrderNotFound = fmt.Errorf("order %w", shared.ErrNotFound)
)

type pgStore struct {
	tx pgx.Tx
}

// NewPgStore binds a Store to an open transaction.
func NewPgStore(tx pgx.Tx) Store {
	return &pgStore{tx: tx}
}

func notFound(err error, target error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return target
	}
	return err
}

func (s *pgStore) column(ctx context.Context, sql string, id int64) ([]decimal.Decimal, error) {
	rows, err := s.tx.Query(ctx, sql, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	values := []decimal.Decimal{}
	for rows.Next() {
		var v decimal.Decimal
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *pgStore) exec(ctx context.Context, target error, sql string, args ...any) error {
	tag, err := s.tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return target
	}
	return nil
}

func (s *pgStore) QuoteForUpdate(ctx context.Context, id int64) (decimal.Decimal, decimal.Decimal, error) {
	var pct, total decimal.Decimal
	err := s.tx.QueryRow(ctx, `SELECT discount_pct, total_amount FROM quotes WHERE id=$1 FOR UPDATE`, id).Scan(&pct, &total)
	return pct, total, notFound(err, ErrQuoteNotFound)
}

func (s *pgStore) QuoteLineTotals(ctx context.Context, id int64) ([]decimal.Decimal, error) {
	return s.column(ctx, `SELECT line_total FROM quote_items WHERE quote_id=$1`, id)
}

func (s *pgStore) SetQuoteTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	return s.exec(ctx, ErrQuoteNotFound, `UPDATE quotes SET total_amount=$2 WHERE id=$1`, id, total)
}

func (s *pgStore) PurchaseOrderForUpdate(ctx context.Context, id int64) (int64, decimal.Decimal, error) {
	var supplierID int64
	var total decimal.Decimal
	err := s.tx.QueryRow(ctx, `SELECT supplier_id, total_amount FROM purchase_orders WHERE id=$1 FOR UPDATE`, id).Scan(&supplierID, &total)
	return supplierID, total, notFound(err, ErrPurchaseOrderNotFound)
}

func (s *pgStore) PurchaseOrderItemTotals(ctx context.Context, id int64) ([]decimal.Decimal, error) {
	return s.column(ctx, `SELECT total_price FROM purchase_order_items WHERE purchase_order_id=$1`, id)
}

func (s *pgStore) SetPurchaseOrderTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	return s.exec(ctx, ErrPurchaseOrderNotFound, `UPDATE purchase_orders SET total_amount=$2 WHERE id=$1`, id, total)
}

func (s *pgStore) SupplierForUpdate(ctx context.Context, id int64) (decimal.Decimal, decimal.Decimal, error) {
	var purchases, paid decimal.Decimal
	err := s.tx.QueryRow(ctx, `SELECT total_purchases, total_paid FROM suppliers WHERE id=$1 FOR UPDATE`, id).Scan(&purchases, &paid)
	return purchases, paid, notFound(err, ErrSupplierNotFound)
}

func (s *pgStore) SupplierPurchaseOrderTotals(ctx context.Context, id int64) ([]decimal.Decimal, error) {
	return s.column(ctx, `SELECT total_amount FROM purchase_orders WHERE supplier_id=$1`, id)
}

func (s *pgStore) SupplierPaymentAmounts(ctx context.Context, id int64) ([]decimal.Decimal, error) {
	return s.column(ctx, `SELECT amount FROM supplier_payments WHERE supplier_id=$1`, id)
}

func (s *pgStore) SetSupplierTotals(ctx context.Context, id int64, purchases, paid decimal.Decimal) error {
	return s.exec(ctx, ErrSupplierNotFound, `UPDATE suppliers SET total_purchases=$2, total_paid=$3, updated_at=NOW() WHERE id=$1`, id, purchases, paid)
}

func (s *pgStore) OrderForUpdate(ctx context.Context, id int64) (decimal.Decimal, error) {
	var received decimal.Decimal
	err := s.tx.QueryRow(ctx, `SELECT received_amount FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&received)
	return received, notFound(err, ErrOrderNotFound)
}

func (s *pgStore) OrderPaymentAmounts(ctx context.Context, id int64) ([]decimal.Decimal, error) {
	return s.column(ctx, `SELECT amount FROM payments WHERE order_id=$1`, id)
}

func (s *pgStore) SetOrderReceived(ctx context.Context, id int64, received decimal.Decimal) error {
	return s.exec(ctx, ErrOrderNotFound, `UPDATE orders SET received_amount=$2, updated_at=NOW() WHERE id=$1`, id, received)
}
