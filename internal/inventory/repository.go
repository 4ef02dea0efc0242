package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/platform/db"
	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	runner *db.TxRunner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.TxRunner) *Repository {
	return &Repository{runner: runner}
}

// TxRepository exposes transactional operations used by the ledger. Implementations
// must hold the row lock taken by GetItemForUpdate until the transaction ends.
type TxRepository interface {
	InsertItem(ctx context.Context, item Item) (Item, error)
	GetItemForUpdate(ctx context.Context, id int64) (Item, error)
	UpdateItemQuantity(ctx context.Context, id int64, qty decimal.Decimal) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	CountItemReferences(ctx context.Context, id int64) (int64, error)
	DeleteItem(ctx context.Context, id int64) error
	// ClaimIdempotencyKey returns shared.ErrIdempotencyConflict when key was claimed
	// by a committed transaction.
	ClaimIdempotencyKey(ctx context.Context, key, module string) error
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	ItemID    int64
	RefModule string
	RefID     string
	Limit     int
	Offset    int
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds ledger operations to an already open transaction so other
// modules can deduct stock atomically with their own writes.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const itemColumns = `id, stock_code, name, description, item_type, quantity, unit_cost, COALESCE(uom_id, 0), COALESCE(category_id, 0), COALESCE(supplier_id, 0), created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.StockCode, &item.Name, &item.Description, &item.Type, &item.Quantity, &item.UnitCost, &item.UOMID, &item.CategoryID, &item.SupplierID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// GetItem reads the committed state of an item.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	if r == nil {
		return Item{}, errors.New("inventory repository not initialised")
	}
	return scanItem(r.runner.Pool().QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1`, id))
}

// GetItems reads several items at once; missing ids are absent from the result.
func (r *Repository) GetItems(ctx context.Context, ids []int64) (map[int64]Item, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.runner.Pool().Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) { return scanItem(row) })
	if err != nil {
		return nil, err
	}
	items := make(map[int64]Item, len(list))
	for _, item := range list {
		items[item.ID] = item
	}
	return items, nil
}

// UpdateItem edits descriptive fields.
func (r *Repository) UpdateItem(ctx context.Context, id int64, input UpdateItemInput) (Item, error) {
	if r == nil {
		return Item{}, errors.New("inventory repository not initialised")
	}
	sets := []string{"updated_at=NOW()"}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if input.Name != nil {
		add("name", *input.Name)
	}
	if input.Description != nil {
		add("description", *input.Description)
	}
	if input.UnitCost != nil {
		add("unit_cost", *input.UnitCost)
	}
	if input.SupplierID != nil {
		add("supplier_id", nullInt(*input.SupplierID))
	}
	query := fmt.Sprintf(`UPDATE inventory_items SET %s WHERE id=$1 RETURNING `+itemColumns, strings.Join(sets, ", "))
	return scanItem(r.runner.Pool().QueryRow(ctx, query, args...))
}

// ListMovements returns movements newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.runner.Pool().Query(ctx, `SELECT id, item_id, direction, quantity, delta, balance_after, note, ref_module, ref_id, COALESCE(created_by, 0), created_at
FROM stock_movements
WHERE ($1::bigint = 0 OR item_id = $1::bigint) AND ($2::text = '' OR ref_module = $2::text) AND ($3::text = '' OR ref_id = $3::text)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`, filter.ItemID, filter.RefModule, filter.RefID, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	movements, err := pgx.CollectRows(rows, scanMovement)
	if err != nil {
		return nil, err
	}
	if movements == nil {
		movements = []Movement{}
	}
	return movements, nil
}

func scanMovement(row pgx.CollectableRow) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.ItemID, &m.Direction, &m.Quantity, &m.Delta, &m.BalanceAfter, &m.Note, &m.RefModule, &m.RefID, &m.CreatedBy, &m.CreatedAt)
	return m, err
}

func (r *txRepository) ClaimIdempotencyKey(ctx context.Context, key, module string) error {
	return shared.ClaimIdempotencyKey(ctx, r.tx, key, module)
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `INSERT INTO inventory_items (stock_code, name, description, item_type, quantity, unit_cost, uom_id, category_id, supplier_id)
VALUES ('STK-' || LPAD(nextval('stock_code_seq')::text, 4, '0'), $1, $2, $3, 0, $4, $5, $6, $7)
RETURNING `+itemColumns, item.Name, item.Description, string(item.Type), item.UnitCost, nullInt(item.UOMID), nullInt(item.CategoryID), nullInt(item.SupplierID)))
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, id int64) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateItemQuantity(ctx context.Context, id int64, qty decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_items SET quantity=$2, updated_at=NOW() WHERE id=$1`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (item_id, direction, quantity, delta, balance_after, note, ref_module, ref_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`, m.ItemID, string(m.Direction), m.Quantity, m.Delta, m.BalanceAfter, m.Note, m.RefModule, m.RefID, nullInt(m.CreatedBy), m.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) CountItemReferences(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM order_lines WHERE inventory_item_id=$1) +
  (SELECT COUNT(*) FROM recipe_items WHERE inventory_item_id=$1) +
  (SELECT COUNT(*) FROM purchase_order_items WHERE inventory_item_id=$1) +
  (SELECT COUNT(*) FROM stock_movements WHERE item_id=$1)`, id).Scan(&count)
	return count, err
}

func (r *txRepository) DeleteItem(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM inventory_items WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
