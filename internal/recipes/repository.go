package recipes

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-catering/internal/platform/db"
)

// Repository persists menu items and recipes.
type Repository struct {
	runner *db.TxRunner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.TxRunner) *Repository {
	return &Repository{runner: runner}
}

// Recipe loads the current bill of materials for menuItemID.
func (r *Repository) Recipe(ctx context.Context, menuItemID int64) (Recipe, error) {
	if r == nil {
		return Recipe{}, errors.New("recipes repository not initialised")
	}
	return loadRecipe(ctx, r.runner.Pool(), menuItemID)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TxSource reads recipes through an open transaction, so the rows are those visible
// to the caller's snapshot.
type TxSource struct {
	tx pgx.Tx
}

// NewTxSource binds a Source to tx.
func NewTxSource(tx pgx.Tx) *TxSource {
	return &TxSource{tx: tx}
}

// Recipe implements Source.
func (s *TxSource) Recipe(ctx context.Context, menuItemID int64) (Recipe, error) {
	return loadRecipe(ctx, s.tx, menuItemID)
}

func loadRecipe(ctx context.Context, q querier, menuItemID int64) (Recipe, error) {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM menu_items WHERE id=$1)`, menuItemID).Scan(&exists); err != nil {
		return Recipe{}, err
	}
	if !exists {
		return Recipe{}, ErrRecipeLookup
	}
	rows, err := q.Query(ctx, `SELECT inventory_item_id, quantity_per_unit FROM recipe_items WHERE menu_item_id=$1 ORDER BY inventory_item_id`, menuItemID)
	if err != nil {
		return Recipe{}, err
	}
	defer rows.Close()
	recipe := Recipe{MenuItemID: menuItemID, Rows: []Row{}}
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.InventoryItemID, &row.QuantityPerUnit); err != nil {
			return Recipe{}, err
		}
		recipe.Rows = append(recipe.Rows, row)
	}
	return recipe, rows.Err()
}

// CreateMenuItem inserts a catalog entry.
func (r *Repository) CreateMenuItem(ctx context.Context, item MenuItem) (MenuItem, error) {
	if r == nil {
		return MenuItem{}, errors.New("recipes repository not initialised")
	}
	err := r.runner.Pool().QueryRow(ctx, `INSERT INTO menu_items (name, price) VALUES ($1, $2) RETURNING id, created_at`, item.Name, item.Price).
		Scan(&item.ID, &item.CreatedAt)
	return item, err
}

// GetMenuItem loads one catalog entry.
func (r *Repository) GetMenuItem(ctx context.Context, id int64) (MenuItem, error) {
	if r == nil {
		return MenuItem{}, errors.New("recipes repository not initialised")
	}
	var item MenuItem
	err := r.runner.Pool().QueryRow(ctx, `SELECT id, name, price, created_at FROM menu_items WHERE id=$1`, id).
		Scan(&item.ID, &item.Name, &item.Price, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MenuItem{}, ErrRecipeLookup
	}
	return item, err
}

// ReplaceRecipe swaps the bill of materials in one transaction. The menu item row is
// locked so concurrent replacements serialise.
func (r *Repository) ReplaceRecipe(ctx context.Context, menuItemID int64, rows []Row) error {
	if r == nil {
		return errors.New("recipes repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx, `SELECT id FROM menu_items WHERE id=$1 FOR UPDATE`, menuItemID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRecipeLookup
			}
			return err
		}
		if len(rows) > 0 {
			ids := make([]int64, 0, len(rows))
			for _, row := range rows {
				ids = append(ids, row.InventoryItemID)
			}
			var found int
			if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_items WHERE id = ANY($1)`, ids).Scan(&found); err != nil {
				return err
			}
			if found != len(ids) {
				return ErrUnknownInventoryItem
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM recipe_items WHERE menu_item_id=$1`, menuItemID); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, row := range rows {
			batch.Queue(`INSERT INTO recipe_items (menu_item_id, inventory_item_id, quantity_per_unit) VALUES ($1, $2, $3)`, menuItemID, row.InventoryItemID, row.QuantityPerUnit)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}
