package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklot-erp/stocklot/internal/bom"
	"github.com/stocklot-erp/stocklot/internal/forecast"
	"github.com/stocklot-erp/stocklot/internal/inventory"
	"github.com/stocklot-erp/stocklot/internal/masterdata/companies"
	"github.com/stocklot-erp/stocklot/internal/masterdata/components"
	"github.com/stocklot-erp/stocklot/internal/masterdata/locations"
	"github.com/stocklot-erp/stocklot/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Pool             *pgxpool.Pool
	CompanyHandler   *companies.Handler
	ComponentHandler *components.Handler
	LocationHandler  *locations.Handler
	BOMHandler       *bom.Handler
	InventoryHandler *inventory.Handler
	ForecastHandler  *forecast.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Stocklot defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if params.CompanyHandler != nil {
			api.Route("/companies", params.CompanyHandler.MountRoutes)
		}
		if params.ComponentHandler != nil {
			api.Route("/components", params.ComponentHandler.MountRoutes)
		}
		if params.LocationHandler != nil {
			api.Route("/locations", params.LocationHandler.MountRoutes)
		}
		if params.BOMHandler != nil {
			api.Route("/bom", params.BOMHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			api.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.ForecastHandler != nil {
			api.Route("/forecasts", params.ForecastHandler.MountRoutes)
		}
	})

	return r
}
