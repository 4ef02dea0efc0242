package masterdata

import "context"

// Unit represents a unit of measure.
type Unit struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// Category groups inventory items.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DefaultUnits are seeded on bootstrap.
var DefaultUnits = []Unit{
	{Name: "Piece", Abbreviation: "pc"},
	{Name: "Kilogram", Abbreviation: "kg"},
	{Name: "Liter", Abbreviation: "L"},
	{Name: "Box", Abbreviation: "box"},
}

// DefaultCategories are seeded on bootstrap.
var DefaultCategories = []string{
	"General Supplies",
	"Protein",
	"Produce",
	"Staples",
	"Disposables",
	"Equipment",
}

// SeedResult reports how many rows a seed run inserted.
type SeedResult struct {
	Units      int `json:"units"`
	Categories int `json:"categories"`
}

// Repository interface for master data operations
type Repository interface {
	InsertUnits(ctx context.Context, units []Unit) (int, error)
	InsertCategories(ctx context.Context, names []string) (int, error)
	ListUnits(ctx context.Context) ([]Unit, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// Service interface for master data business logic
type Service interface {
	Seed(ctx context.Context) (SeedResult, error)
	ListUnits(ctx context.Context) ([]Unit, error)
	ListCategories(ctx context.Context) ([]Category, error)
}
