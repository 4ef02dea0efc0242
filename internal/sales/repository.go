package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/balances"
	"github.com/odyssey-erp/odyssey-catering/internal/platform/db"
)

// TxRepository exposes transactional operations. Balances is bound to the same
// transaction so derived totals commit with the payment or item write.
type TxRepository interface {
	Balances() balances.Store

	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error)
	UpdatePayment(ctx context.Context, p Payment) error
	DeletePayment(ctx context.Context, id int64) error

	InsertQuote(ctx context.Context, q Quote) (Quote, error)
	SetQuoteDiscount(ctx context.Context, id int64, pct decimal.Decimal) error
	DeleteQuote(ctx context.Context, id int64) error
	InsertQuoteItem(ctx context.Context, item QuoteItem) (QuoteItem, error)
	GetQuoteItemForUpdate(ctx context.Context, id int64) (QuoteItem, error)
	UpdateQuoteItem(ctx context.Context, item QuoteItem) error
	DeleteQuoteItem(ctx context.Context, id int64) error
}

// Repository wraps PostgreSQL access for sales flows.
type Repository struct {
	runner *db.TxRunner
}

// NewRepository constructs a repository.
func NewRepository(runner *db.TxRunner) *Repository {
	return &Repository{runner: runner}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func noRows(err error, target error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return target
	}
	return err
}

// ListPayments returns an order's payments oldest first.
func (r *Repository) ListPayments(ctx context.Context, orderID int64) ([]Payment, error) {
	rows, err := r.runner.Pool().Query(ctx, `SELECT id, order_id, amount, method, paid_on, created_at FROM payments WHERE order_id=$1 ORDER BY paid_on, id`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		var p Payment
		err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.PaidOn, &p.CreatedAt)
		return p, err
	})
}

// GetQuote returns a quote with its items.
func (r *Repository) GetQuote(ctx context.Context, id int64) (Quote, error) {
	pool := r.runner.Pool()
	var q Quote
	err := pool.QueryRow(ctx, `SELECT id, number, customer_name, discount_pct, total_amount, created_at FROM quotes WHERE id=$1`, id).
		Scan(&q.ID, &q.Number, &q.CustomerName, &q.DiscountPct, &q.TotalAmount, &q.CreatedAt)
	if err != nil {
		return Quote{}, noRows(err, ErrQuoteNotFound)
	}
	rows, err := pool.Query(ctx, `SELECT id, quote_id, menu_item_id, description, quantity, unit_price, line_total FROM quote_items WHERE quote_id=$1 ORDER BY id`, id)
	if err != nil {
		return Quote{}, err
	}
	q.Items, err = pgx.CollectRows(rows, scanQuoteItem)
	if err != nil {
		return Quote{}, err
	}
	return q, nil
}

func scanQuoteItem(row pgx.CollectableRow) (QuoteItem, error) {
	var item QuoteItem
	err := row.Scan(&item.ID, &item.QuoteID, &item.MenuItemID, &item.Description, &item.Quantity, &item.UnitPrice, &item.LineTotal)
	return item, err
}

func (t *txRepo) Balances() balances.Store {
	return balances.NewPgStore(t.tx)
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO payments (order_id, amount, method, paid_on) VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		p.OrderID, p.Amount, string(p.Method), p.PaidOn).Scan(&p.ID, &p.CreatedAt)
	return p, err
}

func (t *txRepo) GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error) {
	var p Payment
	err := t.tx.QueryRow(ctx, `SELECT id, order_id, amount, method, paid_on, created_at FROM payments WHERE id=$1 FOR UPDATE`, id).
		Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.PaidOn, &p.CreatedAt)
	return p, noRows(err, ErrPaymentNotFound)
}

func (t *txRepo) UpdatePayment(ctx context.Context, p Payment) error {
	_, err := t.tx.Exec(ctx, `UPDATE payments SET amount=$2, method=$3, paid_on=$4 WHERE id=$1`, p.ID, p.Amount, string(p.Method), p.PaidOn)
	return err
}

func (t *txRepo) DeletePayment(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM payments WHERE id=$1`, id)
	return err
}

func (t *txRepo) InsertQuote(ctx context.Context, q Quote) (Quote, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO quotes (number, customer_name, discount_pct)
VALUES ('QUO-' || LPAD(nextval('quote_number_seq')::text, 6, '0'), $1, $2)
RETURNING id, number, created_at`, q.CustomerName, q.DiscountPct).Scan(&q.ID, &q.Number, &q.CreatedAt)
	if err != nil {
		return Quote{}, err
	}
	q.Items = []QuoteItem{}
	return q, nil
}

func (t *txRepo) SetQuoteDiscount(ctx context.Context, id int64, pct decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotes SET discount_pct=$2 WHERE id=$1`, id, pct)
	return err
}

func (t *txRepo) DeleteQuote(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM quotes WHERE id=$1`, id)
	return err
}

func (t *txRepo) InsertQuoteItem(ctx context.Context, item QuoteItem) (QuoteItem, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO quote_items (quote_id, menu_item_id, description, quantity, unit_price, line_total) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		item.QuoteID, item.MenuItemID, item.Description, item.Quantity, item.UnitPrice, item.LineTotal).Scan(&item.ID)
	return item, err
}

func (t *txRepo) GetQuoteItemForUpdate(ctx context.Context, id int64) (QuoteItem, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, quote_id, menu_item_id, description, quantity, unit_price, line_total FROM quote_items WHERE id=$1 FOR UPDATE`, id)
	if err != nil {
		return QuoteItem{}, err
	}
	item, err := pgx.CollectExactlyOneRow(rows, scanQuoteItem)
	return item, noRows(err, ErrQuoteItemNotFound)
}

func (t *txRepo) UpdateQuoteItem(ctx context.Context, item QuoteItem) error {
	_, err := t.tx.Exec(ctx, `UPDATE quote_items SET menu_item_id=$2, description=$3, quantity=$4, unit_price=$5, line_total=$6 WHERE id=$1`,
		item.ID, item.MenuItemID, item.Description, item.Quantity, item.UnitPrice, item.LineTotal)
	return err
}

func (t *txRepo) DeleteQuoteItem(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM quote_items WHERE id=$1`, id)
	return err
}
