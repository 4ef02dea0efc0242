package recipes

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// MenuItem is a composite sellable item whose stock impact comes from its recipe.
type MenuItem struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

// Row is one bill-of-materials entry.
type Row struct {
	InventoryItemID int64           `json:"inventory_item_id"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

// Recipe is the full bill of materials for one menu item. An empty Rows slice means
// the item has no stock impact.
type Recipe struct {
	MenuItemID int64 `json:"menu_item_id"`
	Rows       []Row `json:"rows"`
}

// CreateMenuItemInput describes a new catalog entry.
type CreateMenuItemInput struct {
	Name    string
	Price   decimal.Decimal
	ActorID int64
}

var (
	// ErrRecipeLookup indicates the menu item itself does not exist.
	ErrRecipeLookup = fmt.Errorf("recipes: menu item %w", shared.ErrNotFound)
	// ErrUnknownInventoryItem indicates a recipe row references a missing inventory item.
	ErrUnknownInventoryItem = fmt.Errorf("recipes: inventory item %w", shared.ErrNotFound)
	// ErrInvalidRow indicates a malformed recipe row.
	ErrInvalidRow = fmt.Errorf("recipes: invalid recipe row: %w", shared.ErrValidation)
	// ErrDuplicateRow indicates an inventory item listed twice in one recipe.
	ErrDuplicateRow = fmt.Errorf("recipes: inventory item listed more than once: %w", shared.ErrValidation)
)
