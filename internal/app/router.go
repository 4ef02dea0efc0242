package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-catering/internal/balances"
	"github.com/odyssey-erp/odyssey-catering/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-catering/internal/inventory"
	"github.com/odyssey-erp/odyssey-catering/internal/masterdata"
	"github.com/odyssey-erp/odyssey-catering/internal/observability"
	"github.com/odyssey-erp/odyssey-catering/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-catering/internal/procurement"
	"github.com/odyssey-erp/odyssey-catering/internal/recipes"
	"github.com/odyssey-erp/odyssey-catering/internal/sales"
	"github.com/odyssey-erp/odyssey-catering/jobs"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	DB                 Pinger
	InventoryHandler   *inventory.Handler
	RecipesHandler     *recipes.Handler
	FulfillmentHandler *fulfillment.Handler
	SalesHandler       *sales.Handler
	ProcurementHandler *procurement.Handler
	MasterDataHandler  *masterdata.Handler
	BalancesHandler    *balances.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if params.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.DB.Ping(ctx); err != nil {
				if params.Logger != nil {
					params.Logger.Warn("healthz database ping", slog.Any("error", err))
				}
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		httpx.JSON(w, code, map[string]string{"status": status})
	})

	if params.InventoryHandler != nil {
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
	}
	if params.RecipesHandler != nil {
		r.Route("/menu-items", params.RecipesHandler.MountRoutes)
	}
	if params.FulfillmentHandler != nil || params.SalesHandler != nil {
		r.Route("/orders", func(r chi.Router) {
			if params.FulfillmentHandler != nil {
				params.FulfillmentHandler.MountRoutes(r)
			}
			if params.SalesHandler != nil {
				params.SalesHandler.MountOrderRoutes(r)
			}
		})
	}
	if params.SalesHandler != nil {
		params.SalesHandler.MountRoutes(r)
	}
	if params.ProcurementHandler != nil {
		params.ProcurementHandler.MountRoutes(r)
	}
	if params.MasterDataHandler != nil {
		params.MasterDataHandler.MountRoutes(r)
	}
	if params.BalancesHandler != nil {
		r.Route("/admin/balances", params.BalancesHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/admin/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
