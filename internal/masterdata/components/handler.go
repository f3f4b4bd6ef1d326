package components

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stocklot-erp/stocklot/internal/masterdata/shared"
	"github.com/stocklot-erp/stocklot/internal/platform/httpx"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers component CRUD routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.deactivate)
}

type componentForm struct {
	CompanyID    int64   `json:"company_id" validate:"required,gt=0"`
	SKU          string  `json:"sku" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	Unit         string  `json:"unit" validate:"required"`
	CostPerUnit  float64 `json:"cost_per_unit" validate:"gte=0"`
	ReorderPoint float64 `json:"reorder_point" validate:"gte=0"`
	LeadTimeDays int     `json:"lead_time_days" validate:"gte=0"`
	IsActive     bool    `json:"is_active"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := shared.ListFilters{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
	}
	if q.Get("company_id") != "" {
		if id, err := strconv.ParseInt(q.Get("company_id"), 10, 64); err == nil {
			filters.CompanyID = &id
		}
	}
	if q.Get("is_active") != "" {
		isActive := q.Get("is_active") == "true"
		filters.IsActive = &isActive
	}
	filters.Normalize()

	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list components failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": list, "total": total})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	component, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "component not found")
			return
		}
		h.logger.Error("get component failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, component)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form componentForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	component, err := h.service.Create(r.Context(), Component{
		CompanyID:    form.CompanyID,
		SKU:          form.SKU,
		Name:         form.Name,
		Unit:         form.Unit,
		CostPerUnit:  form.CostPerUnit,
		ReorderPoint: form.ReorderPoint,
		LeadTimeDays: form.LeadTimeDays,
		IsActive:     form.IsActive,
	})
	if err != nil {
		h.respondServiceError(w, err, "create component")
		return
	}
	httpx.JSON(w, http.StatusCreated, component)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	var form componentForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err = h.service.Update(r.Context(), id, Component{
		CompanyID:    form.CompanyID,
		SKU:          form.SKU,
		Name:         form.Name,
		Unit:         form.Unit,
		CostPerUnit:  form.CostPerUnit,
		ReorderPoint: form.ReorderPoint,
		LeadTimeDays: form.LeadTimeDays,
		IsActive:     form.IsActive,
	})
	if err != nil {
		h.respondServiceError(w, err, "update component")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		h.respondServiceError(w, err, "deactivate component")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidID), errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrRequiredField):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
