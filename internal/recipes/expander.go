package recipes

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// Source resolves the recipe of a menu item. Implementations return ErrRecipeLookup
// when the menu item does not exist and an empty recipe when it has no rows.
type Source interface {
	Recipe(ctx context.Context, menuItemID int64) (Recipe, error)
}

// Expander turns menu demand into raw inventory demand.
type Expander struct {
	source Source
}

// NewExpander builds Expander.
func NewExpander(source Source) *Expander {
	return &Expander{source: source}
}

// Expand returns inventory_item_id -> quantity_per_unit * quantity for every recipe row.
// Either the whole recipe resolves or nothing is returned.
func (e *Expander) Expand(ctx context.Context, menuItemID int64, quantity decimal.Decimal) (map[int64]decimal.Decimal, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("recipes: %w", shared.ErrInvalidQuantity)
	}
	recipe, err := e.source.Recipe(ctx, menuItemID)
	if err != nil {
		return nil, err
	}
	demand := make(map[int64]decimal.Decimal, len(recipe.Rows))
	for _, row := range recipe.Rows {
		demand[row.InventoryItemID] = demand[row.InventoryItemID].Add(row.QuantityPerUnit.Mul(quantity))
	}
	return demand, nil
}
