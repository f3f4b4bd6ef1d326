package forecast

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stocklot-erp/stocklot/internal/platform/httpx"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the forecast endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{componentID}", h.single)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query, ok := h.queryFrom(w, r)
	if !ok {
		return
	}
	forecasts, err := h.service.GetForecast(r.Context(), query)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": forecasts})
}

func (h *Handler) single(w http.ResponseWriter, r *http.Request) {
	query, ok := h.queryFrom(w, r)
	if !ok {
		return
	}
	componentID, err := strconv.ParseInt(chi.URLParam(r, "componentID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	query.ComponentID = componentID

	forecasts, err := h.service.GetForecast(r.Context(), query)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if len(forecasts) == 0 {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no forecast for component")
		return
	}
	httpx.JSON(w, http.StatusOK, forecasts[0])
}

func (h *Handler) queryFrom(w http.ResponseWriter, r *http.Request) (Query, bool) {
	q := r.URL.Query()
	companyID, err := strconv.ParseInt(q.Get("company_id"), 10, 64)
	if err != nil || companyID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id required")
		return Query{}, false
	}
	query := Query{CompanyID: companyID}
	if v := q.Get("location_id"); v != "" {
		if query.LocationID, err = strconv.ParseInt(v, 10, 64); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid location id")
			return Query{}, false
		}
	}
	// Explicit window parameters bypass the cache. Only the named fields
	// override; the rest keep the configured defaults.
	lookbackStr, safetyStr := q.Get("lookback_days"), q.Get("safety_days")
	if lookbackStr != "" || safetyStr != "" {
		cfg := Config{SafetyDays: -1}
		if lookbackStr != "" {
			if cfg.LookbackDays, err = strconv.Atoi(lookbackStr); err != nil || cfg.LookbackDays <= 0 {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid lookback_days")
				return Query{}, false
			}
		}
		if safetyStr != "" {
			if cfg.SafetyDays, err = strconv.Atoi(safetyStr); err != nil || cfg.SafetyDays < 0 {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid safety_days")
				return Query{}, false
			}
		}
		query.Config = &cfg
	}
	return query, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrComponentNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error("forecast failed", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
