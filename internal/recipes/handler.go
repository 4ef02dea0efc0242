package recipes

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// Handler exposes menu items, recipes and expansion.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	expander  *Expander
	validator *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, expander *Expander) *Handler {
	return &Handler{logger: logger, service: service, expander: expander, validator: validator.New()}
}

// MountRoutes registers /menu-items routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createMenuItem)
	r.Get("/{id}/recipe", h.getRecipe)
	r.Put("/{id}/recipe", h.setRecipe)
	r.Get("/{id}/expand", h.expand)
}

type createMenuItemRequest struct {
	Name  string          `json:"name" validate:"required,max=200"`
	Price decimal.Decimal `json:"price"`
}

type recipeRowRequest struct {
	InventoryItemID int64           `json:"inventory_item_id" validate:"required,gt=0"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

type setRecipeRequest struct {
	Rows []recipeRowRequest `json:"rows" validate:"dive"`
}

func (h *Handler) createMenuItem(w http.ResponseWriter, r *http.Request) {
	var req createMenuItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.CreateMenuItem(r.Context(), CreateMenuItemInput{Name: req.Name, Price: req.Price, ActorID: httpx.ActorID(r)})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) getRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	recipe, err := h.service.GetRecipe(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recipe)
}

func (h *Handler) setRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setRecipeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows := make([]Row, 0, len(req.Rows))
	for _, row := range req.Rows {
		rows = append(rows, Row{InventoryItemID: row.InventoryItemID, QuantityPerUnit: row.QuantityPerUnit})
	}
	recipe, err := h.service.SetRecipe(r.Context(), id, rows, httpx.ActorID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recipe)
}

func (h *Handler) expand(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	qty, err := decimal.NewFromString(r.URL.Query().Get("qty"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("qty: %w", shared.ErrValidation))
		return
	}
	demand, err := h.expander.Expand(r.Context(), id, qty)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make(map[string]decimal.Decimal, len(demand))
	for itemID, q := range demand {
		out[fmt.Sprintf("%d", itemID)] = q
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"menu_item_id": id, "quantity": qty, "demand": out})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil && httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error("recipes request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
