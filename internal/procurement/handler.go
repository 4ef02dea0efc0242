package procurement

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

const dateLayout = "2006-01-02"

// Handler exposes supplier and purchase order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers procurement routes. Paths span several prefixes so the
// handler mounts on the root router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/suppliers", h.createSupplier)
	r.Get("/suppliers/{id}", h.getSupplier)
	r.Get("/suppliers/{id}/payments", h.listPayments)
	r.Post("/suppliers/{id}/payments", h.recordPayment)
	r.Put("/supplier-payments/{id}", h.updatePayment)
	r.Delete("/supplier-payments/{id}", h.deletePayment)

	r.Post("/suppliers/{id}/purchase-orders", h.createPurchaseOrder)
	r.Get("/purchase-orders/{id}", h.getPurchaseOrder)
	r.Delete("/purchase-orders/{id}", h.deletePurchaseOrder)
	r.Post("/purchase-orders/{id}/cancel", h.cancelPurchaseOrder)
	r.Post("/purchase-orders/{id}/receive", h.receivePurchaseOrder)
	r.Post("/purchase-orders/{id}/items", h.addItem)
	r.Put("/purchase-order-items/{id}", h.updateItem)
	r.Delete("/purchase-order-items/{id}", h.deleteItem)
}

type supplierRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Type  string `json:"type" validate:"omitempty,oneof=IND BUS"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"max=50"`
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"omitempty,oneof=Cash Bank Card"`
	Reference string          `json:"reference" validate:"max=100"`
	Notes     string          `json:"notes" validate:"max=1000"`
	PaidOn    string          `json:"paid_on" validate:"omitempty,datetime=2006-01-02"`
}

type purchaseOrderRequest struct {
	OrderDate    string `json:"order_date" validate:"omitempty,datetime=2006-01-02"`
	ExpectedDate string `json:"expected_date" validate:"omitempty,datetime=2006-01-02"`
	Notes        string `json:"notes" validate:"max=1000"`
}

type itemRequest struct {
	InventoryItemID int64           `json:"inventory_item_id" validate:"required,gt=0"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
}

type supplierView struct {
	Supplier
	BalanceDue decimal.Decimal `json:"balance_due"`
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

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("procurement: invalid date %q: %w", value, shared.ErrValidation)
	}
	return t, nil
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if !h.decode(w, r, &req) {
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), CreateSupplierInput{
		Name:    req.Name,
		Type:    SupplierType(req.Type),
		Email:   req.Email,
		Phone:   req.Phone,
		ActorID: httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, r, "create supplier", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplierView{Supplier: supplier, BalanceDue: supplier.BalanceDue()})
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	supplier, err := h.service.GetSupplier(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplierView{Supplier: supplier, BalanceDue: supplier.BalanceDue()})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list supplier payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (h *Handler) paymentInput(r *http.Request, req paymentRequest) (PaymentInput, error) {
	paidOn, err := parseDate(req.PaidOn)
	if err != nil {
		return PaymentInput{}, err
	}
	return PaymentInput{
		Amount:    req.Amount,
		Method:    PaymentMethod(req.Method),
		Reference: req.Reference,
		Notes:     req.Notes,
		PaidOn:    paidOn,
		ActorID:   httpx.ActorID(r),
	}, nil
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
	input, err := h.paymentInput(r, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.RecordPayment(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, "record supplier payment", err)
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
	input, err := h.paymentInput(r, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.UpdatePayment(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, "update supplier payment", err)
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
		h.fail(w, r, "delete supplier payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	supplierID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req purchaseOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	orderDate, err := parseDate(req.OrderDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreatePOInput{OrderDate: orderDate, Notes: req.Notes, ActorID: httpx.ActorID(r)}
	if req.ExpectedDate != "" {
		expected, err := parseDate(req.ExpectedDate)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.ExpectedDate = &expected
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), supplierID, input)
	if err != nil {
		h.fail(w, r, "create purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) deletePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePurchaseOrder(r.Context(), id, httpx.ActorID(r)); err != nil {
		h.fail(w, r, "delete purchase order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.CancelPurchaseOrder(r.Context(), id, httpx.ActorID(r))
	if err != nil {
		h.fail(w, r, "cancel purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) receivePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, movements, err := h.service.ReceivePurchaseOrder(r.Context(), id, httpx.ActorID(r))
	if err != nil {
		h.fail(w, r, "receive purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_order": po, "movements": movements})
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	poID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.AddItem(r.Context(), poID, ItemInput{
		InventoryItemID: req.InventoryItemID,
		Quantity:        req.Quantity,
		UnitPrice:       req.UnitPrice,
		ActorID:         httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, r, "add purchase order item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.UpdateItem(r.Context(), id, ItemInput{
		InventoryItemID: req.InventoryItemID,
		Quantity:        req.Quantity,
		UnitPrice:       req.UnitPrice,
		ActorID:         httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, r, "update purchase order item", err)
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
		h.fail(w, r, "delete purchase order item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if h.logger != nil && httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error("procurement request failed", slog.String("op", op), slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
