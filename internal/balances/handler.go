package balances

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-catering/internal/platform/httpx"
)

// Handler exposes reconciliation to operators.
type Handler struct {
	logger     *slog.Logger
	reconciler *Reconciler
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, reconciler *Reconciler) *Handler {
	return &Handler{logger: logger, reconciler: reconciler}
}

// MountRoutes registers /admin/balances routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/drift", h.drift)
	r.Post("/repair", h.repair)
}

func (h *Handler) drift(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.reconciler.Check(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if drifts == nil {
		drifts = []Drift{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"drifts": drifts})
}

func (h *Handler) repair(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.reconciler.Repair(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if repaired == nil {
		repaired = []Drift{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"repaired": repaired})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if h.logger != nil && httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error("balance reconciliation failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
