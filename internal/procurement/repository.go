package procurement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-catering/internal/balances"
	"github.com/odyssey-erp/odyssey-catering/internal/inventory"
	"github.com/odyssey-erp/odyssey-catering/internal/platform/db"
)

// TxRepository exposes transactional operations. Balances and Stock are bound to the
// same transaction so derived totals and receipts commit with the triggering write.
type TxRepository interface {
	Balances() balances.Store
	Stock() inventory.TxRepository

	InsertSupplier(ctx context.Context, s Supplier) (Supplier, error)
	InsertPayment(ctx context.Context, p SupplierPayment) (SupplierPayment, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (SupplierPayment, error)
	UpdatePayment(ctx context.Context, p SupplierPayment) error
	DeletePayment(ctx context.Context, id int64) error

	InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	GetPurchaseOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePurchaseOrderStatus(ctx context.Context, id int64, status POStatus) error
	DeletePurchaseOrder(ctx context.Context, id int64) error
	InsertItem(ctx context.Context, item POItem) (POItem, error)
	GetItemForUpdate(ctx context.Context, id int64) (POItem, error)
	UpdateItem(ctx context.Context, item POItem) error
	DeleteItem(ctx context.Context, id int64) error
	InventoryItemExists(ctx context.Context, id int64) (bool, error)
}

// Repository provides PostgreSQL backed persistence.
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
		return errors.New("procurement repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func noRows(err error, target error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return target
	}
	return err
}

const supplierColumns = `id, code, name, supplier_type, email, phone, total_purchases, total_paid, is_active, created_at`

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Type, &s.Email, &s.Phone, &s.TotalPurchases, &s.TotalPaid, &s.IsActive, &s.CreatedAt)
	return s, noRows(err, ErrSupplierNotFound)
}

// GetSupplier returns one supplier.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return scanSupplier(r.runner.Pool().QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id=$1`, id))
}

// ListPayments returns supplier payments newest first.
func (r *Repository) ListPayments(ctx context.Context, supplierID int64) ([]SupplierPayment, error) {
	rows, err := r.runner.Pool().Query(ctx, `SELECT id, supplier_id, amount, method, reference, notes, paid_on FROM supplier_payments WHERE supplier_id=$1 ORDER BY paid_on DESC, id DESC`, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	payments := []SupplierPayment{}
	for rows.Next() {
		var p SupplierPayment
		if err := rows.Scan(&p.ID, &p.SupplierID, &p.Amount, &p.Method, &p.Reference, &p.Notes, &p.PaidOn); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// GetPurchaseOrder returns a purchase order with its items.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadPurchaseOrder(ctx, r.runner.Pool(), id, "")
}

func loadPurchaseOrder(ctx context.Context, q querier, id int64, suffix string) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := q.QueryRow(ctx, `SELECT id, supplier_id, number, status, order_date, expected_date, total_amount, notes FROM purchase_orders WHERE id=$1`+suffix, id).
		Scan(&po.ID, &po.SupplierID, &po.Number, &po.Status, &po.OrderDate, &po.ExpectedDate, &po.TotalAmount, &po.Notes)
	if err != nil {
		return PurchaseOrder{}, noRows(err, ErrPurchaseOrderNotFound)
	}
	rows, err := q.Query(ctx, `SELECT id, purchase_order_id, inventory_item_id, quantity, unit_price, total_price FROM purchase_order_items WHERE purchase_order_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	po.Items = []POItem{}
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.PurchaseOrderID, &item.InventoryItemID, &item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return PurchaseOrder{}, err
		}
		po.Items = append(po.Items, item)
	}
	return po, rows.Err()
}

func (t *txRepo) Balances() balances.Store {
	return balances.NewPgStore(t.tx)
}

func (t *txRepo) Stock() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}

// InventoryItemExists reads without a row lock; receipts lock stock rows themselves.
func (t *txRepo) InventoryItemExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_items WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	return scanSupplier(t.tx.QueryRow(ctx, `INSERT INTO suppliers (code, name, supplier_type, email, phone)
VALUES ('SUP-' || LPAD(nextval('supplier_code_seq')::text, 4, '0'), $1, $2, $3, $4)
RETURNING `+supplierColumns, s.Name, string(s.Type), s.Email, s.Phone))
}

func (t *txRepo) InsertPayment(ctx context.Context, p SupplierPayment) (SupplierPayment, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO supplier_payments (supplier_id, amount, method, reference, notes, paid_on) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		p.SupplierID, p.Amount, string(p.Method), p.Reference, p.Notes, p.PaidOn).Scan(&p.ID)
	return p, err
}

func (t *txRepo) GetPaymentForUpdate(ctx context.Context, id int64) (SupplierPayment, error) {
	var p SupplierPayment
	err := t.tx.QueryRow(ctx, `SELECT id, supplier_id, amount, method, reference, notes, paid_on FROM supplier_payments WHERE id=$1 FOR UPDATE`, id).
		Scan(&p.ID, &p.SupplierID, &p.Amount, &p.Method, &p.Reference, &p.Notes, &p.PaidOn)
	return p, noRows(err, ErrPaymentNotFound)
}

func (t *txRepo) UpdatePayment(ctx context.Context, p SupplierPayment) error {
	_, err := t.tx.Exec(ctx, `UPDATE supplier_payments SET amount=$2, method=$3, reference=$4, notes=$5, paid_on=$6 WHERE id=$1`,
		p.ID, p.Amount, string(p.Method), p.Reference, p.Notes, p.PaidOn)
	return err
}

func (t *txRepo) DeletePayment(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM supplier_payments WHERE id=$1`, id)
	return err
}

func (t *txRepo) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (supplier_id, number, status, order_date, expected_date, notes)
VALUES ($1, 'PO-' || LPAD(nextval('purchase_order_number_seq')::text, 6, '0'), $2, $3, $4, $5)
RETURNING id, number`, po.SupplierID, string(POStatusPending), po.OrderDate, po.ExpectedDate, po.Notes).Scan(&po.ID, &po.Number)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Status = POStatusPending
	po.Items = []POItem{}
	return po, nil
}

func (t *txRepo) GetPurchaseOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadPurchaseOrder(ctx, t.tx, id, " FOR UPDATE")
}

func (t *txRepo) UpdatePurchaseOrderStatus(ctx context.Context, id int64, status POStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

func (t *txRepo) DeletePurchaseOrder(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id=$1`, id)
	return err
}

func (t *txRepo) InsertItem(ctx context.Context, item POItem) (POItem, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order_items (purchase_order_id, inventory_item_id, quantity, unit_price, total_price) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		item.PurchaseOrderID, item.InventoryItemID, item.Quantity, item.UnitPrice, item.TotalPrice).Scan(&item.ID)
	return item, err
}

func (t *txRepo) GetItemForUpdate(ctx context.Context, id int64) (POItem, error) {
	var item POItem
	err := t.tx.QueryRow(ctx, `SELECT id, purchase_order_id, inventory_item_id, quantity, unit_price, total_price FROM purchase_order_items WHERE id=$1 FOR UPDATE`, id).
		Scan(&item.ID, &item.PurchaseOrderID, &item.InventoryItemID, &item.Quantity, &item.UnitPrice, &item.TotalPrice)
	return item, noRows(err, ErrItemNotFound)
}

func (t *txRepo) UpdateItem(ctx context.Context, item POItem) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_order_items SET inventory_item_id=$2, quantity=$3, unit_price=$4, total_price=$5 WHERE id=$1`,
		item.ID, item.InventoryItemID, item.Quantity, item.UnitPrice, item.TotalPrice)
	return err
}

func (t *txRepo) DeleteItem(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE id=$1`, id)
	return err
}
