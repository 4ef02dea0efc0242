package sales

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// Handler wires HTTP routes for sales operations.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers payment and quote routes on the root router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Put("/payments/{id}", h.updatePayment)
	r.Delete("/payments/{id}", h.deletePayment)

	r.Post("/quotes", h.createQuote)
	r.Get("/quotes/{id}", h.getQuote)
	r.Delete("/quotes/{id}", h.deleteQuote)
	r.Patch("/quotes/{id}/discount", h.setDiscount)
	r.Post("/quotes/{id}/items", h.addQuoteItem)
	r.Put("/quote-items/{id}", h.updateQuoteItem)
	r.Delete("/quote-items/{id}", h.deleteQuoteItem)
}

// MountOrderRoutes registers payment routes nested under /orders.
func (h *Handler) MountOrderRoutes(r chi.Router) {
	r.Get("/{id}/payments", h.listPayments)
	r.Post("/{id}/payments", h.recordPayment)
}

// ============================================================================
// REQUESTS
// ============================================================================

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"omitempty,oneof=Cash Bank Card"`
	PaidOn string          `json:"paid_on" validate:"omitempty,datetime=2006-01-02"`
}

type quoteRequest struct {
	CustomerName string          `json:"customer_name" validate:"max=200"`
	DiscountPct  decimal.Decimal `json:"discount_pct"`
}

type discountRequest struct {
	DiscountPct decimal.Decimal `json:"discount_pct"`
}

type quoteItemRequest struct {
	MenuItemID  *int64          `json:"menu_item_id" validate:"omitempty,gt=0"`
	Description string          `json:"description" validate:"max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func paymentInput(r *http.Request, req paymentRequest) (PaymentInput, error) {
	input := PaymentInput{Amount: req.Amount, Method: PaymentMethod(req.Method), ActorID: httpx.ActorID(r)}
	if req.PaidOn != "" {
		paidOn, err := time.Parse("2006-01-02", req.PaidOn)
		if err != nil {
			return PaymentInput{}, fmt.Errorf("sales: invalid paid_on: %w", shared.ErrValidation)
		}
		input.PaidOn = paidOn
	}
	return input, nil
}

// ============================================================================
// PAYMENT HANDLERS
// ============================================================================

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	input, err := paymentInput(r, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.RecordPayment(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	input, err := paymentInput(r, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.UpdatePayment(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, "update payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePayment(r.Context(), id, httpx.ActorID(r)); err != nil {
		h.fail(w, r, "delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// QUOTE HANDLERS
// ============================================================================

func (h *Handler) createQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	quote, err := h.service.CreateQuote(r.Context(), CreateQuoteInput{
		CustomerName: req.CustomerName,
		DiscountPct:  req.DiscountPct,
		ActorID:      httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, r, "create quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) getQuote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	quote, err := h.service.GetQuote(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) deleteQuote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteQuote(r.Context(), id, httpx.ActorID(r)); err != nil {
		h.fail(w, r, "delete quote", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req discountRequest
	if !h.decode(w, r, &req) {
		return
	}
	total, err := h.service.SetDiscount(r.Context(), id, req.DiscountPct, httpx.ActorID(r))
	if err != nil {
		h.fail(w, r, "set discount", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quote_id": id, "discount_pct": req.DiscountPct, "total_amount": total})
}

func (h *Handler) addQuoteItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req quoteItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.AddQuoteItem(r.Context(), id, QuoteItemInput{
		MenuItemID:  req.MenuItemID,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		ActorID:     httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, r, "add quote item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) updateQuoteItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req quoteItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.UpdateQuoteItem(r.Context(), id, QuoteItemInput{
		MenuItemID:  req.MenuItemID,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		ActorID:     httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, r, "update quote item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deleteQuoteItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteQuoteItem(r.Context(), id, httpx.ActorID(r)); err != nil {
		h.fail(w, r, "delete quote item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if h.logger != nil && httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error("sales request failed", slog.String("op", op), slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
