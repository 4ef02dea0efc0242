package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/app"
	"github.com/odyssey-erp/odyssey-catering/internal/balances"
	"github.com/odyssey-erp/odyssey-catering/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-catering/internal/inventory"
	"github.com/odyssey-erp/odyssey-catering/internal/masterdata"
	"github.com/odyssey-erp/odyssey-catering/internal/platform/db"
	"github.com/odyssey-erp/odyssey-catering/internal/procurement"
	"github.com/odyssey-erp/odyssey-catering/internal/recipes"
)

// Demo data for a local environment: a supplier, a handful of stocked items, two
// menu items with recipes and one pending order. Not idempotent; run on an empty
// database after cmd/bootstrap.
func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	logger := app.NewLogger(cfg)
	runner := db.NewTxRunner(pool, cfg.PGLockTimeout)

	fmt.Println("→ Seeding master data...")
	if _, err := masterdata.NewService(masterdata.NewRepository(pool), logger).Seed(ctx); err != nil {
		log.Fatalf("seed master data: %v", err)
	}

	fmt.Println("→ Seeding supplier...")
	procurementService := procurement.NewService(procurement.NewRepository(runner), balances.NewRecalculator(nil), nil, logger)
	supplier, err := procurementService.CreateSupplier(ctx, procurement.CreateSupplierInput{
		Name:  "Pasar Induk Kramat Jati",
		Type:  procurement.SupplierBusiness,
		Phone: "021-555-0100",
	})
	if err != nil {
		log.Fatalf("seed supplier: %v", err)
	}

	fmt.Println("→ Seeding inventory...")
	inventoryRepo := inventory.NewRepository(runner)
	inventoryService := inventory.NewService(inventoryRepo, inventory.ServiceConfig{Logger: logger})
	stock := map[string]int64{}
	for _, seed := range []struct {
		name     string
		qty, cost string
	}{
		{"Beras", "50", "12000"},
		{"Ayam Fillet", "20", "45000"},
		{"Minyak Goreng", "10", "18000"},
		{"Kotak Nasi", "300", "1500"},
	} {
		item, err := inventoryService.CreateItem(ctx, inventory.CreateItemInput{
			Name:            seed.name,
			Type:            inventory.ItemTypeRaw,
			OpeningQuantity: decimal.RequireFromString(seed.qty),
			UnitCost:        decimal.RequireFromString(seed.cost),
			SupplierID:      supplier.ID,
		})
		if err != nil {
			log.Fatalf("seed item %s: %v", seed.name, err)
		}
		stock[seed.name] = item.ID
	}

	fmt.Println("→ Seeding menu and recipes...")
	recipeRepo := recipes.NewRepository(runner)
	recipeService := recipes.NewService(recipeRepo, nil, nil, nil, logger)
	nasiAyam, err := recipeService.CreateMenuItem(ctx, recipes.CreateMenuItemInput{Name: "Nasi Ayam Goreng", Price: decimal.NewFromInt(35000)})
	if err != nil {
		log.Fatalf("seed menu item: %v", err)
	}
	if _, err := recipeService.SetRecipe(ctx, nasiAyam.ID, []recipes.Row{
		{InventoryItemID: stock["Beras"], QuantityPerUnit: decimal.RequireFromString("0.15")},
		{InventoryItemID: stock["Ayam Fillet"], QuantityPerUnit: decimal.RequireFromString("0.2")},
		{InventoryItemID: stock["Minyak Goreng"], QuantityPerUnit: decimal.RequireFromString("0.02")},
		{InventoryItemID: stock["Kotak Nasi"], QuantityPerUnit: decimal.NewFromInt(1)},
	}, 0); err != nil {
		log.Fatalf("seed recipe: %v", err)
	}

	fmt.Println("→ Seeding order...")
	fulfillmentService := fulfillment.NewService(fulfillment.NewRepository(runner), inventoryRepo, fulfillment.ServiceConfig{Logger: logger})
	eventDate := time.Now().UTC().AddDate(0, 0, 7)
	order, err := fulfillmentService.CreateOrder(ctx, fulfillment.CreateOrderInput{
		Name:         "Rapat Tahunan",
		CustomerName: "PT Nusantara",
		EventDate:    &eventDate,
		TotalAmount:  decimal.NewFromInt(1750000),
		MenuLines:    []fulfillment.MenuLine{{MenuItemID: nasiAyam.ID, Quantity: 50}},
	})
	if err != nil {
		log.Fatalf("seed order: %v", err)
	}

	fmt.Printf("✓ Seed complete: supplier %s, order %s\n", supplier.Code, order.Number)
}
