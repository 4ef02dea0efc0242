package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/platform/httpx"
)

// Handler exposes the stock ledger over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/items", h.createItem)
	r.Get("/items/{id}", h.getItem)
	r.Patch("/items/{id}", h.updateItem)
	r.Delete("/items/{id}", h.deleteItem)
	r.Get("/items/{id}/quantity", h.getQuantity)
	r.Get("/items/{id}/movements", h.listMovements)
	r.Post("/items/{id}/adjust", h.adjust)
}

type createItemRequest struct {
	Name            string          `json:"name" validate:"required,max=200"`
	Description     string          `json:"description" validate:"max=2000"`
	Type            string          `json:"type" validate:"omitempty,oneof=RAW ASSET CONSUMABLE"`
	OpeningQuantity decimal.Decimal `json:"opening_quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	UOMID           int64           `json:"uom_id" validate:"gte=0"`
	CategoryID      int64           `json:"category_id" validate:"gte=0"`
	SupplierID      int64           `json:"supplier_id" validate:"gte=0"`
}

type updateItemRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	UnitCost    *decimal.Decimal `json:"unit_cost"`
	SupplierID  *int64           `json:"supplier_id" validate:"omitempty,gte=0"`
}

type adjustRequest struct {
	Direction string          `json:"direction" validate:"required,oneof=IN OUT ADJUST"`
	Delta     decimal.Decimal `json:"delta"`
	Note      string          `json:"note" validate:"max=500"`
	RefModule string          `json:"ref_module" validate:"max=50"`
	RefID     string          `json:"ref_id" validate:"max=100"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), CreateItemInput{
		Name:            req.Name,
		Description:     req.Description,
		Type:            ItemType(req.Type),
		OpeningQuantity: req.OpeningQuantity,
		UnitCost:        req.UnitCost,
		UOMID:           req.UOMID,
		CategoryID:      req.CategoryID,
		SupplierID:      req.SupplierID,
		ActorID:         httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, r, "create item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.UpdateItem(r.Context(), id, UpdateItemInput{
		Name:        req.Name,
		Description: req.Description,
		UnitCost:    req.UnitCost,
		SupplierID:  req.SupplierID,
	})
	if err != nil {
		h.fail(w, r, "update item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteItem(r.Context(), id, httpx.ActorID(r)); err != nil {
		h.fail(w, r, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	qty, err := h.service.CurrentQuantity(r.Context(), id)
	if err != nil {
		h.fail(w, r, "current quantity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item_id": id, "quantity": qty})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	movements, err := h.service.ListMovements(r.Context(), MovementFilter{
		ItemID:    id,
		RefModule: q.Get("ref_module"),
		RefID:     q.Get("ref_id"),
		Limit:     httpx.QueryInt(r, "limit", 50),
		Offset:    httpx.QueryInt(r, "offset", 0),
	})
	if err != nil {
		h.fail(w, r, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movement, err := h.service.Adjust(r.Context(), AdjustInput{
		ItemID:         id,
		Delta:          req.Delta,
		Direction:      Direction(req.Direction),
		Note:           req.Note,
		RefModule:      req.RefModule,
		RefID:          req.RefID,
		ActorID:        httpx.ActorID(r),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, r, "adjust stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if h.logger != nil && httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error("inventory request failed", slog.String("op", op), slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
