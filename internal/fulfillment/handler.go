package fulfillment

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/platform/httpx"
)

// Handler exposes order intake and delivery.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers /orders routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createOrder)
	r.Get("/{id}", h.getOrder)
	r.Put("/{id}/lines", h.updateLines)
	r.Delete("/{id}", h.deleteOrder)
	r.Post("/{id}/validate", h.validateOrder)
	r.Post("/{id}/deliver", h.deliver)
}

type lineRequest struct {
	InventoryItemID int64  `json:"inventory_item_id" validate:"required,gt=0"`
	Quantity        int64  `json:"quantity"`
	Note            string `json:"note" validate:"max=500"`
}

type menuLineRequest struct {
	MenuItemID int64  `json:"menu_item_id" validate:"required,gt=0"`
	Quantity   int64  `json:"quantity"`
	Note       string `json:"note" validate:"max=500"`
}

type linesRequest struct {
	Lines     []lineRequest     `json:"lines" validate:"dive"`
	MenuLines []menuLineRequest `json:"menu_lines" validate:"dive"`
}

type createOrderRequest struct {
	Name         string          `json:"name" validate:"max=200"`
	CustomerName string          `json:"customer_name" validate:"max=200"`
	EventDate    string          `json:"event_date" validate:"omitempty,datetime=2006-01-02"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	linesRequest
}

type orderView struct {
	Order
	DueAmount decimal.Decimal `json:"due_amount"`
}

func viewOf(o Order) orderView {
	return orderView{Order: o, DueAmount: o.DueAmount()}
}

func (req linesRequest) toDomain() ([]Line, []MenuLine) {
	lines := make([]Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, Line{InventoryItemID: l.InventoryItemID, Quantity: l.Quantity, Note: l.Note})
	}
	menuLines := make([]MenuLine, 0, len(req.MenuLines))
	for _, l := range req.MenuLines {
		menuLines = append(menuLines, MenuLine{MenuItemID: l.MenuItemID, Quantity: l.Quantity, Note: l.Note})
	}
	return lines, menuLines
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var eventDate *time.Time
	if req.EventDate != "" {
		parsed, _ := time.Parse("2006-01-02", req.EventDate)
		eventDate = &parsed
	}
	lines, menuLines := req.toDomain()
	order, err := h.service.CreateOrder(r.Context(), CreateOrderInput{
		Name:         req.Name,
		CustomerName: req.CustomerName,
		EventDate:    eventDate,
		TotalAmount:  req.TotalAmount,
		Lines:        lines,
		MenuLines:    menuLines,
		ActorID:      httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, r, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, viewOf(order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewOf(order))
}

func (h *Handler) updateLines(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req linesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines, menuLines := req.toDomain()
	order, err := h.service.UpdateOrderLines(r.Context(), id, lines, menuLines, httpx.ActorID(r))
	if err != nil {
		h.fail(w, r, "update order lines", err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewOf(order))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteOrder(r.Context(), id, httpx.ActorID(r)); err != nil {
		h.fail(w, r, "delete order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) validateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ValidateExisting(r.Context(), id); err != nil {
		h.fail(w, r, "validate order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order_id": id, "ok": true})
}

func (h *Handler) deliver(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Deliver(r.Context(), id, httpx.ActorID(r))
	if err != nil {
		h.fail(w, r, "deliver order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"outcome":      result.Outcome,
		"order":        viewOf(result.Order),
		"movements":    result.Movements,
		"delivered_at": result.DeliveredAt,
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if h.logger != nil && httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error("fulfillment request failed", slog.String("op", op), slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
