package recipes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// RepositoryPort abstracts recipe persistence.
type RepositoryPort interface {
	Source
	CreateMenuItem(ctx context.Context, item MenuItem) (MenuItem, error)
	GetMenuItem(ctx context.Context, id int64) (MenuItem, error)
	ReplaceRecipe(ctx context.Context, menuItemID int64, rows []Row) error
}

// Invalidator drops cached recipes after they change.
type Invalidator interface {
	Invalidate(ctx context.Context, menuItemID int64) error
}

// Service maintains the menu catalog entries and their bills of materials.
type Service struct {
	repo   RepositoryPort
	source Source
	cache  Invalidator
	audit  shared.AuditPort
	logger *slog.Logger
}

// NewService builds Service. source serves reads (typically a CachedSource over repo)
// and cache is notified after every recipe replacement; both may be nil.
func NewService(repo RepositoryPort, source Source, cache Invalidator, audit shared.AuditPort, logger *slog.Logger) *Service {
	if source == nil {
		source = repo
	}
	return &Service{repo: repo, source: source, cache: cache, audit: audit, logger: logger}
}

// CreateMenuItem registers a catalog entry with an empty recipe.
func (s *Service) CreateMenuItem(ctx context.Context, input CreateMenuItemInput) (MenuItem, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return MenuItem{}, fmt.Errorf("recipes: name required: %w", shared.ErrValidation)
	}
	if input.Price.IsNegative() {
		return MenuItem{}, fmt.Errorf("recipes: price must be >= 0: %w", shared.ErrValidation)
	}
	item, err := s.repo.CreateMenuItem(ctx, MenuItem{Name: name, Price: input.Price.Round(2)})
	if err != nil {
		return MenuItem{}, err
	}
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "menu_item:create",
		Entity:   "menu_item",
		EntityID: fmt.Sprintf("%d", item.ID),
	})
	return item, nil
}

// GetRecipe returns the current bill of materials.
func (s *Service) GetRecipe(ctx context.Context, menuItemID int64) (Recipe, error) {
	return s.source.Recipe(ctx, menuItemID)
}

// SetRecipe replaces the bill of materials of menuItemID. An empty rows slice clears it.
func (s *Service) SetRecipe(ctx context.Context, menuItemID int64, rows []Row, actorID int64) (Recipe, error) {
	seen := make(map[int64]struct{}, len(rows))
	for _, row := range rows {
		if row.InventoryItemID <= 0 || !row.QuantityPerUnit.IsPositive() {
			return Recipe{}, ErrInvalidRow
		}
		if _, dup := seen[row.InventoryItemID]; dup {
			return Recipe{}, ErrDuplicateRow
		}
		seen[row.InventoryItemID] = struct{}{}
	}
	if err := s.repo.ReplaceRecipe(ctx, menuItemID, rows); err != nil {
		return Recipe{}, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, menuItemID); err != nil && s.logger != nil {
			s.logger.Warn("invalidate recipe cache", slog.Int64("menu_item_id", menuItemID), slog.Any("error", err))
		}
	}
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actorID,
		Action:   "recipe:set",
		Entity:   "menu_item",
		EntityID: fmt.Sprintf("%d", menuItemID),
		Meta:     map[string]any{"rows": len(rows)},
	})
	return Recipe{MenuItemID: menuItemID, Rows: append([]Row{}, rows...)}, nil
}
