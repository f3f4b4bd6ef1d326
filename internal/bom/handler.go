package bom

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stocklot-erp/stocklot/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the BOM module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers BOM routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/versions", h.listVersions)
	r.Post("/versions", h.createVersion)
	r.Get("/versions/{id}", h.showVersion)
	r.Get("/versions/{id}/cost", h.showCost)
	r.Post("/versions/{id}/activate", h.activateVersion)
}

type createVersionRequest struct {
	CompanyID int64              `json:"company_id" validate:"required,gt=0"`
	SKU       string             `json:"sku" validate:"required"`
	Notes     string             `json:"notes"`
	Activate  bool               `json:"activate"`
	Lines     []versionLineInput `json:"lines" validate:"required,min=1,dive"`
}

type versionLineInput struct {
	ComponentID     int64   `json:"component_id" validate:"required,gt=0"`
	QuantityPerUnit float64 `json:"quantity_per_unit" validate:"required,gt=0"`
}

func (h *Handler) listVersions(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	sku := r.URL.Query().Get("sku")
	if companyID <= 0 || sku == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id and sku are required")
		return
	}
	versions, err := h.service.ListVersions(r.Context(), companyID, sku)
	if err != nil {
		h.logger.Error("list bom versions failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": versions})
}

func (h *Handler) createVersion(w http.ResponseWriter, r *http.Request) {
	var req createVersionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateVersionInput{CompanyID: req.CompanyID, SKU: req.SKU, Notes: req.Notes, Activate: req.Activate}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ComponentID: line.ComponentID, QuantityPerUnit: line.QuantityPerUnit})
	}
	version, err := h.service.CreateVersion(r.Context(), input)
	if err != nil {
		h.respondServiceError(w, err, "create bom version")
		return
	}
	httpx.JSON(w, http.StatusCreated, version)
}

func (h *Handler) showVersion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid version id")
		return
	}
	version, lines, err := h.service.GetVersion(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, "get bom version")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"version": version, "lines": lines})
}

func (h *Handler) showCost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid version id")
		return
	}
	resolved, err := h.service.ResolveVersion(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, "resolve bom version")
		return
	}
	units := int64(1)
	if v := r.URL.Query().Get("units"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			units = parsed
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"version_id": resolved.Version.ID,
		"unit_cost":  resolved.UnitCost().String(),
		"total_cost": resolved.TotalCost(units).String(),
		"units":      units,
	})
}

func (h *Handler) activateVersion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid version id")
		return
	}
	if err := h.service.Activate(r.Context(), id); err != nil {
		h.respondServiceError(w, err, "activate bom version")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrVersionNotFound), errors.Is(err, ErrNoActiveVersion):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrEmptyBOM):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
