package masterdata

import (
	"context"
	"fmt"
	"log/slog"
)

// service implements Service interface
type service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new master data service
func NewService(repo Repository, logger *slog.Logger) Service {
	return &service{repo: repo, logger: logger}
}

// Seed inserts default units and categories. Existing rows are left untouched so the
// seed can run on every deploy.
func (s *service) Seed(ctx context.Context) (SeedResult, error) {
	var result SeedResult
	units, err := s.repo.InsertUnits(ctx, DefaultUnits)
	if err != nil {
		return result, fmt.Errorf("seed units: %w", err)
	}
	result.Units = units
	categories, err := s.repo.InsertCategories(ctx, DefaultCategories)
	if err != nil {
		return result, fmt.Errorf("seed categories: %w", err)
	}
	result.Categories = categories
	if s.logger != nil {
		s.logger.Info("master data seeded", slog.Int("units", result.Units), slog.Int("categories", result.Categories))
	}
	return result, nil
}

func (s *service) ListUnits(ctx context.Context) ([]Unit, error) {
	return s.repo.ListUnits(ctx)
}

func (s *service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}
