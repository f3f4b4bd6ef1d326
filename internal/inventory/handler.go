package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stocklot-erp/stocklot/internal/platform/httpx"
	"github.com/stocklot-erp/stocklot/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the ledger endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions/receipt", h.recordReceipt)
	r.Post("/transactions/adjustment", h.recordAdjustment)
	r.Post("/transactions/initial", h.recordInitial)
	r.Post("/transactions/transfer", h.recordTransfer)
	r.Get("/transactions", h.listTransactions)
	r.Get("/transactions/{id}/lines", h.transactionLines)

	r.Post("/builds", h.recordBuild)
	r.Post("/builds/check-inventory", h.checkInventory)
	r.Post("/builds/check-expired", h.checkExpired)

	r.Get("/quantities/{componentID}", h.quantity)
	r.Post("/quantities", h.quantities)
	r.Get("/quantities/{componentID}/by-location", h.quantitiesByLocation)
	r.Get("/lots/{componentID}", h.lots)
}

type lotForm struct {
	LotNumber  string     `json:"lot_number" validate:"required"`
	ExpiryDate *time.Time `json:"expiry_date"`
	Supplier   string     `json:"supplier"`
}

type receiptForm struct {
	CompanyID           int64    `json:"company_id" validate:"required,gt=0"`
	ComponentID         int64    `json:"component_id" validate:"required,gt=0"`
	LocationID          int64    `json:"location_id" validate:"required,gt=0"`
	Quantity            float64  `json:"quantity" validate:"required,gt=0"`
	CostPerUnit         float64  `json:"cost_per_unit" validate:"gte=0"`
	Date                string   `json:"date"`
	Notes               string   `json:"notes"`
	Lot                 *lotForm `json:"lot"`
	UpdateComponentCost bool     `json:"update_component_cost"`
}

func (h *Handler) recordReceipt(w http.ResponseWriter, r *http.Request) {
	var form receiptForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parseDate(form.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date")
		return
	}
	input := ReceiptInput{
		CompanyID:           form.CompanyID,
		ComponentID:         form.ComponentID,
		LocationID:          form.LocationID,
		Quantity:            form.Quantity,
		CostPerUnit:         form.CostPerUnit,
		Date:                date,
		Notes:               form.Notes,
		UpdateComponentCost: form.UpdateComponentCost,
		ActorID:             actorID(r),
		IdempotencyKey:      idempotencyKey(r),
	}
	if form.Lot != nil {
		input.Lot = &LotInput{
			LotNumber:  form.Lot.LotNumber,
			ExpiryDate: form.Lot.ExpiryDate,
			Supplier:   form.Lot.Supplier,
		}
	}
	result, err := h.service.RecordReceipt(r.Context(), input)
	if err != nil {
		h.respondError(w, "record receipt failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type adjustmentForm struct {
	CompanyID   int64   `json:"company_id" validate:"required,gt=0"`
	ComponentID int64   `json:"component_id" validate:"required,gt=0"`
	LocationID  int64   `json:"location_id" validate:"required,gt=0"`
	Quantity    float64 `json:"quantity" validate:"required"`
	Reason      string  `json:"reason" validate:"required"`
	Date        string  `json:"date"`
}

func (h *Handler) recordAdjustment(w http.ResponseWriter, r *http.Request) {
	var form adjustmentForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parseDate(form.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date")
		return
	}
	result, err := h.service.RecordAdjustment(r.Context(), AdjustmentInput{
		CompanyID:      form.CompanyID,
		ComponentID:    form.ComponentID,
		LocationID:     form.LocationID,
		Quantity:       form.Quantity,
		Reason:         form.Reason,
		Date:           date,
		ActorID:        actorID(r),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		h.respondError(w, "record adjustment failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type initialForm struct {
	CompanyID   int64   `json:"company_id" validate:"required,gt=0"`
	ComponentID int64   `json:"component_id" validate:"required,gt=0"`
	LocationID  int64   `json:"location_id" validate:"required,gt=0"`
	Quantity    float64 `json:"quantity" validate:"required"`
	CostPerUnit float64 `json:"cost_per_unit" validate:"gte=0"`
	Date        string  `json:"date"`
	Notes       string  `json:"notes"`
}

func (h *Handler) recordInitial(w http.ResponseWriter, r *http.Request) {
	var form initialForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parseDate(form.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date")
		return
	}
	result, err := h.service.RecordInitial(r.Context(), InitialInput{
		CompanyID:      form.CompanyID,
		ComponentID:    form.ComponentID,
		LocationID:     form.LocationID,
		Quantity:       form.Quantity,
		CostPerUnit:    form.CostPerUnit,
		Date:           date,
		Notes:          form.Notes,
		ActorID:        actorID(r),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		h.respondError(w, "record initial balance failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type transferForm struct {
	CompanyID      int64   `json:"company_id" validate:"required,gt=0"`
	ComponentID    int64   `json:"component_id"`
	SKU            string  `json:"sku"`
	FromLocationID int64   `json:"from_location_id" validate:"required,gt=0"`
	ToLocationID   int64   `json:"to_location_id" validate:"required,gt=0"`
	Quantity       float64 `json:"quantity" validate:"required,gt=0"`
	Date           string  `json:"date"`
	Notes          string  `json:"notes"`
}

func (h *Handler) recordTransfer(w http.ResponseWriter, r *http.Request) {
	var form transferForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parseDate(form.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date")
		return
	}
	result, err := h.service.RecordTransfer(r.Context(), TransferInput{
		CompanyID:      form.CompanyID,
		ComponentID:    form.ComponentID,
		SKU:            form.SKU,
		FromLocationID: form.FromLocationID,
		ToLocationID:   form.ToLocationID,
		Quantity:       form.Quantity,
		Date:           date,
		Notes:          form.Notes,
		ActorID:        actorID(r),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		h.respondError(w, "record transfer failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type buildForm struct {
	CompanyID                  int64                     `json:"company_id" validate:"required,gt=0"`
	SKU                        string                    `json:"sku" validate:"required"`
	BOMVersionID               int64                     `json:"bom_version_id"`
	UnitsToBuild               int64                     `json:"units_to_build" validate:"required,gt=0"`
	SourceLocationID           int64                     `json:"source_location_id"`
	OutputLocationID           int64                     `json:"output_location_id"`
	OutputQuantity             float64                   `json:"output_quantity" validate:"gte=0"`
	DefectCount                int64                     `json:"defect_count" validate:"gte=0"`
	ManualAllocations          map[int64][]LotAllocation `json:"manual_allocations"`
	AllowInsufficientInventory bool                      `json:"allow_insufficient_inventory"`
	AllowExpiredLots           bool                      `json:"allow_expired_lots"`
	Date                       string                    `json:"date"`
	Notes                      string                    `json:"notes"`
}

func (h *Handler) buildInput(w http.ResponseWriter, r *http.Request) (BuildInput, bool) {
	var form buildForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return BuildInput{}, false
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return BuildInput{}, false
	}
	date, err := parseDate(form.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date")
		return BuildInput{}, false
	}
	return BuildInput{
		CompanyID:                  form.CompanyID,
		SKU:                        form.SKU,
		BOMVersionID:               form.BOMVersionID,
		UnitsToBuild:               form.UnitsToBuild,
		SourceLocationID:           form.SourceLocationID,
		OutputLocationID:           form.OutputLocationID,
		OutputQuantity:             form.OutputQuantity,
		DefectCount:                form.DefectCount,
		ManualAllocations:          form.ManualAllocations,
		AllowInsufficientInventory: form.AllowInsufficientInventory,
		AllowExpiredLots:           form.AllowExpiredLots,
		Date:                       date,
		Notes:                      form.Notes,
		ActorID:                    actorID(r),
		IdempotencyKey:             idempotencyKey(r),
	}, true
}

func (h *Handler) recordBuild(w http.ResponseWriter, r *http.Request) {
	input, ok := h.buildInput(w, r)
	if !ok {
		return
	}
	result, err := h.service.RecordBuild(r.Context(), input)
	if err != nil {
		h.respondError(w, "record build failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) checkInventory(w http.ResponseWriter, r *http.Request) {
	input, ok := h.buildInput(w, r)
	if !ok {
		return
	}
	shortages, err := h.service.CheckInsufficientInventory(r.Context(), input)
	if err != nil {
		h.respondError(w, "check inventory failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sufficient": len(shortages) == 0,
		"shortages":  shortages,
	})
}

func (h *Handler) checkExpired(w http.ResponseWriter, r *http.Request) {
	input, ok := h.buildInput(w, r)
	if !ok {
		return
	}
	expired, err := h.service.CheckExpiredLots(r.Context(), input)
	if err != nil {
		h.respondError(w, "check expired lots failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"clear":   len(expired) == 0,
		"expired": expired,
	})
}

func (h *Handler) quantity(w http.ResponseWriter, r *http.Request) {
	componentID, err := strconv.ParseInt(chi.URLParam(r, "componentID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	var locationID int64
	if v := r.URL.Query().Get("location_id"); v != "" {
		if locationID, err = strconv.ParseInt(v, 10, 64); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid location id")
			return
		}
	}
	qty, err := h.service.GetQuantity(r.Context(), componentID, locationID)
	if err != nil {
		h.respondError(w, "get quantity failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"component_id": componentID, "location_id": locationID, "quantity": qty})
}

type quantitiesForm struct {
	ComponentIDs []int64 `json:"component_ids" validate:"required,min=1"`
	LocationID   int64   `json:"location_id"`
}

func (h *Handler) quantities(w http.ResponseWriter, r *http.Request) {
	var form quantitiesForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quantities, err := h.service.GetQuantities(r.Context(), form.ComponentIDs, form.LocationID)
	if err != nil {
		h.respondError(w, "get quantities failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quantities": quantities})
}

func (h *Handler) quantitiesByLocation(w http.ResponseWriter, r *http.Request) {
	componentID, err := strconv.ParseInt(chi.URLParam(r, "componentID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	byLocation, err := h.service.GetQuantitiesByLocation(r.Context(), componentID)
	if err != nil {
		h.respondError(w, "get quantities by location failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"component_id": componentID, "by_location": byLocation})
}

func (h *Handler) lots(w http.ResponseWriter, r *http.Request) {
	componentID, err := strconv.ParseInt(chi.URLParam(r, "componentID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	lots, err := h.service.GetLotStocks(r.Context(), componentID)
	if err != nil {
		h.respondError(w, "get lots failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": lots})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := TransactionFilter{}
	if v := q.Get("company_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.CompanyID = id
		}
	}
	if v := q.Get("type"); v != "" {
		filter.Type = TransactionType(strings.ToUpper(v))
	}
	if v := q.Get("component_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.ComponentID = id
		}
	}
	if v := q.Get("location_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.LocationID = id
		}
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from timestamp")
			return
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to timestamp")
			return
		}
		filter.To = to
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			filter.Limit = limit
		}
	}
	txs, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list transactions failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": txs})
}

func (h *Handler) transactionLines(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transaction id")
		return
	}
	lines, err := h.service.GetTransactionLines(r.Context(), id)
	if err != nil {
		h.respondError(w, "get transaction lines failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": lines})
}

// respondError maps ledger errors onto problem responses. Gate failures
// return 409 with the structured payload so clients can render shortages or
// expired draws without re-running the checks.
func (h *Handler) respondError(w http.ResponseWriter, msg string, err error) {
	var insufficient *InsufficientInventoryError
	var expiredLots *ExpiredLotsError
	switch {
	case errors.As(err, &insufficient):
		httpx.ProblemWith(w, http.StatusConflict, "Insufficient Inventory", err.Error(), map[string]any{"shortages": insufficient.Items})
	case errors.As(err, &expiredLots):
		httpx.ProblemWith(w, http.StatusConflict, "Expired Lots", err.Error(), map[string]any{"expired": expiredLots.Items})
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrOverrideNotPermitted):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrComponentNotFound), errors.Is(err, ErrLocationNotFound), errors.Is(err, ErrLotNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrZeroQuantity),
		errors.Is(err, ErrSameLocation),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrEntityAmbiguous),
		errors.Is(err, ErrDefectExceedsUnits),
		errors.Is(err, ErrNoOutputLocation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(msg, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func idempotencyKey(r *http.Request) string {
	return r.Header.Get("Idempotency-Key")
}

// actorID identifies who posted a document, for the created_by column and
// the audit trail. An auth layer upstream of this service sets the header;
// absent or malformed reads as 0 (system).
func actorID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
