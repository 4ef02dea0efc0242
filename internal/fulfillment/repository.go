package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-catering/internal/inventory"
	"github.com/odyssey-erp/odyssey-catering/internal/platform/db"
	"github.com/odyssey-erp/odyssey-catering/internal/recipes"
)

// TxRepository exposes order operations bound to one transaction together with the
// stock ledger and recipe reads of the same transaction.
type TxRepository interface {
	Stock() inventory.TxRepository
	Recipes() recipes.Source
	InsertOrder(ctx context.Context, order Order) (Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	ReplaceLines(ctx context.Context, orderID int64, lines []Line, menuLines []MenuLine) error
	MarkDelivered(ctx context.Context, id int64, at time.Time) error
	DeleteOrder(ctx context.Context, id int64) error
}

// Repository persists orders in PostgreSQL.
type Repository struct {
	runner *db.TxRunner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.TxRunner) *Repository {
	return &Repository{runner: runner}
}

type txRepository struct {
	tx      pgx.Tx
	stock   inventory.TxRepository
	recipes recipes.Source
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("fulfillment repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, stock: inventory.NewTxRepository(tx), recipes: recipes.NewTxSource(tx)})
	})
}

// GetOrder reads an order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	if r == nil {
		return Order{}, errors.New("fulfillment repository not initialised")
	}
	return loadOrder(ctx, r.runner.Pool(), id, "")
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const orderColumns = `id, number, order_name, customer_name, event_date, status, total_amount, received_amount, delivered_at, created_at`

func loadOrder(ctx context.Context, q querier, id int64, suffix string) (Order, error) {
	var o Order
	err := q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`+suffix, id).
		Scan(&o.ID, &o.Number, &o.Name, &o.CustomerName, &o.EventDate, &o.Status, &o.TotalAmount, &o.ReceivedAmount, &o.DeliveredAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, inventory_item_id, quantity, note FROM order_lines WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	o.Lines = []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.InventoryItemID, &l.Quantity, &l.Note); err != nil {
			rows.Close()
			return Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Order{}, err
	}
	rows, err = q.Query(ctx, `SELECT id, menu_item_id, quantity, note FROM order_menu_lines WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	o.MenuLines = []MenuLine{}
	for rows.Next() {
		var l MenuLine
		if err := rows.Scan(&l.ID, &l.MenuItemID, &l.Quantity, &l.Note); err != nil {
			return Order{}, err
		}
		o.MenuLines = append(o.MenuLines, l)
	}
	return o, rows.Err()
}

func (r *txRepository) Stock() inventory.TxRepository {
	return r.stock
}

func (r *txRepository) Recipes() recipes.Source {
	return r.recipes
}

func (r *txRepository) InsertOrder(ctx context.Context, order Order) (Order, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO orders (number, order_name, customer_name, event_date, status, total_amount)
VALUES ('ORD-' || LPAD(nextval('order_number_seq')::text, 6, '0'), $1, $2, $3, $4, $5)
RETURNING id, number, created_at`, order.Name, order.CustomerName, order.EventDate, string(StatusPending), order.TotalAmount).
		Scan(&order.ID, &order.Number, &order.CreatedAt)
	if err != nil {
		return Order{}, err
	}
	order.Status = StatusPending
	return order, nil
}

// GetOrderForUpdate locks the order row; lines are read under that lock.
func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return loadOrder(ctx, r.tx, id, " FOR UPDATE")
}

func (r *txRepository) ReplaceLines(ctx context.Context, orderID int64, lines []Line, menuLines []MenuLine) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM order_lines WHERE order_id=$1`, orderID); err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM order_menu_lines WHERE order_id=$1`, orderID); err != nil {
		return err
	}
	if len(lines) == 0 && len(menuLines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`INSERT INTO order_lines (order_id, inventory_item_id, quantity, note) VALUES ($1, $2, $3, $4)`, orderID, l.InventoryItemID, l.Quantity, l.Note)
	}
	for _, l := range menuLines {
		batch.Queue(`INSERT INTO order_menu_lines (order_id, menu_item_id, quantity, note) VALUES ($1, $2, $3, $4)`, orderID, l.MenuItemID, l.Quantity, l.Note)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE orders SET status=$2, delivered_at=$3, updated_at=NOW() WHERE id=$1 AND status=$4`, id, string(StatusDelivered), at, string(StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderDelivered
	}
	return nil
}

func (r *txRepository) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
