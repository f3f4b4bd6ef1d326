package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stocklot-erp/stocklot/internal/bom"
	"github.com/stocklot-erp/stocklot/internal/masterdata/companies"
	"github.com/stocklot-erp/stocklot/internal/shared"
)

// CompanyPort exposes the company settings a build depends on.
type CompanyPort interface {
	Get(ctx context.Context, id int64) (companies.Company, error)
}

// BOMPort resolves bill-of-materials versions outside the commit
// transaction. The commit itself re-resolves in-tx so the recorded cost
// snapshot matches the consumption snapshot.
type BOMPort interface {
	GetActiveVersion(ctx context.Context, companyID int64, sku string) (bom.Version, []bom.Line, error)
	ResolveVersion(ctx context.Context, id int64) (bom.Resolved, error)
}

// DefectAlert carries the facts of a build whose defect rate crossed the
// company threshold.
type DefectAlert struct {
	CompanyID       int64   `json:"company_id"`
	TransactionCode string  `json:"transaction_code"`
	SKU             string  `json:"sku"`
	UnitsBuilt      int64   `json:"units_built"`
	DefectCount     int64   `json:"defect_count"`
	DefectRate      float64 `json:"defect_rate"`
	Threshold       float64 `json:"threshold"`
}

// AlertPort enqueues defect alerts for background delivery.
type AlertPort interface {
	EnqueueDefectAlert(ctx context.Context, alert DefectAlert) error
}

// BuildInput describes one build run.
type BuildInput struct {
	CompanyID int64
	SKU       string
	// BOMVersionID zero resolves the SKU's active version.
	BOMVersionID int64
	UnitsToBuild int64
	// SourceLocationID zero falls back to the company default location.
	SourceLocationID int64
	// OutputLocationID zero falls back to the company default location.
	OutputLocationID int64
	// OutputQuantity zero defaults to UnitsToBuild. Fewer finished units
	// than built units means scrap beyond the defect count.
	OutputQuantity float64
	DefectCount    int64
	// ManualAllocations bypass FEFO per component. Validated against lot
	// balances but not against expiry order.
	ManualAllocations map[int64][]LotAllocation
	// AllowInsufficientInventory drives balances negative instead of
	// failing the sufficiency gate.
	AllowInsufficientInventory bool
	// AllowExpiredLots consumes expired lots instead of failing the
	// expiry gate. Requires the company's override permission.
	AllowExpiredLots bool
	Date             time.Time
	Notes            string
	ActorID          int64
	IdempotencyKey   string
}

// Shortage is one component the build cannot cover from on-hand stock.
type Shortage struct {
	ComponentID  int64   `json:"component_id"`
	ComponentSKU string  `json:"component_sku"`
	Required     float64 `json:"required"`
	Available    float64 `json:"available"`
	Shortage     float64 `json:"shortage"`
}

// InsufficientInventoryError gates a build that would drive balances
// negative.
type InsufficientInventoryError struct {
	Items []Shortage
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for %d component(s)", len(e.Items))
}

// ExpiredConsumption is one draw a build would take from an expired lot.
type ExpiredConsumption struct {
	ComponentID int64      `json:"component_id"`
	LotID       int64      `json:"lot_id"`
	LotNumber   string     `json:"lot_number"`
	Quantity    float64    `json:"quantity"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

// ExpiredLotsError gates a build that would consume expired lots.
type ExpiredLotsError struct {
	Items []ExpiredConsumption
}

func (e *ExpiredLotsError) Error() string {
	return fmt.Sprintf("inventory: build would consume %d expired lot draw(s)", len(e.Items))
}

// Build gate errors.
var (
	ErrOverrideNotPermitted = errors.New("inventory: company may not override lot expiry")
	ErrNoOutputLocation     = errors.New("inventory: no output location given and company has no default")
	ErrDefectExceedsUnits   = errors.New("inventory: defect count exceeds units built")
)

// requirement is one component's consumption for a run, derived from the
// resolved BOM.
type requirement struct {
	componentID  int64
	componentSKU string
	quantity     float64
	costPerUnit  float64
}

func buildRequirements(resolved bom.Resolved, units int64) []requirement {
	reqs := make([]requirement, 0, len(resolved.Lines))
	for _, line := range resolved.Lines {
		reqs = append(reqs, requirement{
			componentID:  line.ComponentID,
			componentSKU: line.ComponentSKU,
			quantity:     line.QuantityPerUnit * float64(units),
			costPerUnit:  line.CostPerUnit.InexactFloat64(),
		})
	}
	return reqs
}

func (s *Service) validateBuild(input *BuildInput) error {
	if input.CompanyID <= 0 {
		return fmt.Errorf("inventory: company required")
	}
	if input.SKU == "" {
		return fmt.Errorf("inventory: sku required")
	}
	if input.UnitsToBuild <= 0 {
		return ErrInvalidQuantity
	}
	if input.DefectCount < 0 || input.DefectCount > input.UnitsToBuild {
		return ErrDefectExceedsUnits
	}
	if input.OutputQuantity < 0 {
		return ErrInvalidQuantity
	}
	if input.OutputQuantity == 0 {
		input.OutputQuantity = float64(input.UnitsToBuild)
	}
	return nil
}

// resolveBuildVersion picks the explicit version or the SKU's active one.
func (s *Service) resolveBuildVersion(ctx context.Context, input BuildInput) (int64, error) {
	if input.BOMVersionID > 0 {
		return input.BOMVersionID, nil
	}
	version, _, err := s.bom.GetActiveVersion(ctx, input.CompanyID, input.SKU)
	if err != nil {
		return 0, err
	}
	return version.ID, nil
}

// CheckInsufficientInventory reports which components a build would overdraw.
// An empty slice means the sufficiency gate passes. This is a preview over
// committed state; RecordBuild re-checks inside its transaction.
func (s *Service) CheckInsufficientInventory(ctx context.Context, input BuildInput) ([]Shortage, error) {
	if err := s.validateBuild(&input); err != nil {
		return nil, err
	}
	versionID, err := s.resolveBuildVersion(ctx, input)
	if err != nil {
		return nil, err
	}
	resolved, err := s.bom.ResolveVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	reqs := buildRequirements(resolved, input.UnitsToBuild)
	ids := make([]int64, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, req.componentID)
	}
	available, err := s.repo.GetQuantities(ctx, ids, input.SourceLocationID)
	if err != nil {
		return nil, err
	}
	return shortagesFor(reqs, available), nil
}

// CheckExpiredLots reports the expired lot draws a FEFO (or overridden)
// allocation of the build would take. An empty slice means the expiry gate
// passes.
func (s *Service) CheckExpiredLots(ctx context.Context, input BuildInput) ([]ExpiredConsumption, error) {
	if err := s.validateBuild(&input); err != nil {
		return nil, err
	}
	versionID, err := s.resolveBuildVersion(ctx, input)
	if err != nil {
		return nil, err
	}
	resolved, err := s.bom.ResolveVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var expired []ExpiredConsumption
	for _, req := range buildRequirements(resolved, input.UnitsToBuild) {
		lots, err := s.repo.GetLotStocks(ctx, req.componentID)
		if err != nil {
			return nil, err
		}
		if len(lots) == 0 {
			continue
		}
		alloc := input.ManualAllocations[req.componentID]
		if alloc == nil {
			alloc = AllocateFEFO(lots, req.quantity, false, now)
		}
		expired = append(expired, expiredDrawsFor(req.componentID, lots, alloc, now)...)
	}
	return expired, nil
}

// RecordBuild converts components into finished goods in one atomic
// transaction. Both gates are re-evaluated inside the transaction, so a
// passing preview can still fail here if stock moved in between.
func (s *Service) RecordBuild(ctx context.Context, input BuildInput) (TransactionResult, error) {
	if err := s.validateBuild(&input); err != nil {
		return TransactionResult{}, err
	}
	company, err := s.companies.Get(ctx, input.CompanyID)
	if err != nil {
		return TransactionResult{}, err
	}
	if input.AllowExpiredLots && !company.CanOverrideExpiry {
		return TransactionResult{}, ErrOverrideNotPermitted
	}
	if input.SourceLocationID == 0 {
		input.SourceLocationID = company.DefaultLocationID
	}
	if input.OutputLocationID == 0 {
		input.OutputLocationID = company.DefaultLocationID
	}
	if input.SourceLocationID == 0 || input.OutputLocationID == 0 {
		return TransactionResult{}, ErrNoOutputLocation
	}
	versionID, err := s.resolveBuildVersion(ctx, input)
	if err != nil {
		return TransactionResult{}, err
	}

	var result TransactionResult
	err = s.withIdempotency(ctx, input.IdempotencyKey, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			result, err = s.commitBuild(ctx, tx, input, versionID)
			return err
		})
	})
	if err != nil {
		s.buildGated(err)
		return TransactionResult{}, err
	}

	if s.metrics != nil {
		s.metrics.BuildCommitted()
		s.metrics.TransactionPosted(string(TransactionTypeBuild))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory:BUILD",
			Entity:   "inventory_tx",
			EntityID: result.Transaction.Code,
			Meta: map[string]any{
				"sku":            input.SKU,
				"bom_version_id": versionID,
				"units":          input.UnitsToBuild,
				"defects":        input.DefectCount,
			},
		})
	}
	s.maybeDefectAlert(ctx, company, result.Transaction)
	return result, nil
}

func (s *Service) commitBuild(ctx context.Context, tx TxRepository, input BuildInput, versionID int64) (TransactionResult, error) {
	if err := tx.LocationActive(ctx, input.SourceLocationID); err != nil {
		return TransactionResult{}, err
	}
	if input.OutputLocationID != input.SourceLocationID {
		if err := tx.LocationActive(ctx, input.OutputLocationID); err != nil {
			return TransactionResult{}, err
		}
	}

	resolved, err := tx.ResolveBOM(ctx, versionID)
	if err != nil {
		return TransactionResult{}, err
	}
	if len(resolved.Lines) == 0 {
		return TransactionResult{}, bom.ErrEmptyBOM
	}
	reqs := buildRequirements(resolved, input.UnitsToBuild)

	// Sufficiency gate, against the same snapshot the writes will see.
	available := make(map[int64]float64, len(reqs))
	for _, req := range reqs {
		qty, err := tx.GetQuantity(ctx, req.componentID, input.SourceLocationID)
		if err != nil {
			return TransactionResult{}, err
		}
		available[req.componentID] = qty
	}
	if shortages := shortagesFor(reqs, available); len(shortages) > 0 && !input.AllowInsufficientInventory {
		return TransactionResult{}, &InsufficientInventoryError{Items: shortages}
	}

	// Lot allocation, with the lot rows locked until commit.
	now := time.Now().UTC()
	allocations := make(map[int64][]LotAllocation, len(reqs))
	var expired []ExpiredConsumption
	for _, req := range reqs {
		lots, err := tx.GetLotStocksForUpdate(ctx, req.componentID)
		if err != nil {
			return TransactionResult{}, err
		}
		if len(lots) == 0 {
			continue
		}
		alloc, ok := input.ManualAllocations[req.componentID]
		if ok {
			if err := ValidateOverrides(lots, alloc); err != nil {
				return TransactionResult{}, err
			}
			if AllocatedTotal(alloc) > req.quantity {
				return TransactionResult{}, fmt.Errorf("inventory: manual allocation for component %d exceeds requirement %g", req.componentID, req.quantity)
			}
		} else {
			// Expired lots stay eligible here: FEFO reaches them
			// first, so their presence trips the gate below even
			// when fresh stock alone would cover the requirement,
			// and an override consumes them before anything fresh.
			alloc = AllocateFEFO(lots, req.quantity, false, now)
		}
		expired = append(expired, expiredDrawsFor(req.componentID, lots, alloc, now)...)
		allocations[req.componentID] = alloc
	}
	if len(expired) > 0 && !input.AllowExpiredLots {
		return TransactionResult{}, &ExpiredLotsError{Items: expired}
	}

	header := Transaction{
		Code:           s.newCode("BLD"),
		Type:           TransactionTypeBuild,
		CompanyID:      input.CompanyID,
		LocationID:     input.SourceLocationID,
		DestLocationID: input.OutputLocationID,
		SKU:            input.SKU,
		BOMVersionID:   versionID,
		UnitsBuilt:     input.UnitsToBuild,
		UnitCost:       resolved.UnitCost().InexactFloat64(),
		TotalCost:      resolved.TotalCost(input.UnitsToBuild).InexactFloat64(),
		DefectCount:    input.DefectCount,
		Notes:          input.Notes,
		Date:           txDate(input.Date),
		CreatedBy:      input.ActorID,
	}
	txID, err := tx.InsertTransaction(ctx, header)
	if err != nil {
		return TransactionResult{}, err
	}
	header.ID = txID

	var lines []TransactionLine
	for _, req := range reqs {
		remaining := req.quantity
		for _, alloc := range allocations[req.componentID] {
			line := TransactionLine{
				TransactionID:  txID,
				ComponentID:    req.componentID,
				LocationID:     input.SourceLocationID,
				QuantityChange: -alloc.Quantity,
				CostPerUnit:    req.costPerUnit,
				LotID:          alloc.LotID,
			}
			if line.ID, err = tx.InsertTransactionLine(ctx, line); err != nil {
				return TransactionResult{}, err
			}
			if err := tx.DecrementLotBalance(ctx, alloc.LotID, alloc.Quantity); err != nil {
				return TransactionResult{}, err
			}
			lines = append(lines, line)
			remaining -= alloc.Quantity
		}
		// Consumption beyond lot-tracked stock draws from the
		// untracked balance.
		if remaining > 0 {
			line := TransactionLine{
				TransactionID:  txID,
				ComponentID:    req.componentID,
				LocationID:     input.SourceLocationID,
				QuantityChange: -remaining,
				CostPerUnit:    req.costPerUnit,
			}
			if line.ID, err = tx.InsertTransactionLine(ctx, line); err != nil {
				return TransactionResult{}, err
			}
			lines = append(lines, line)
		}
		if _, err := tx.ApplyBalanceDelta(ctx, req.componentID, input.SourceLocationID, -req.quantity); err != nil {
			return TransactionResult{}, err
		}
	}

	fgLine := FinishedGoodsLine{
		TransactionID:  txID,
		SKU:            input.SKU,
		LocationID:     input.OutputLocationID,
		QuantityChange: input.OutputQuantity,
	}
	if fgLine.ID, err = tx.InsertFinishedGoodsLine(ctx, fgLine); err != nil {
		return TransactionResult{}, err
	}
	if _, err := tx.ApplyFinishedGoodsDelta(ctx, input.SKU, input.OutputLocationID, input.OutputQuantity); err != nil {
		return TransactionResult{}, err
	}

	return TransactionResult{
		Transaction:        header,
		Lines:              lines,
		FinishedGoodsLines: []FinishedGoodsLine{fgLine},
	}, nil
}

func (s *Service) buildGated(err error) {
	if s.metrics == nil {
		return
	}
	var insufficient *InsufficientInventoryError
	var expiredErr *ExpiredLotsError
	switch {
	case errors.As(err, &insufficient):
		s.metrics.BuildGated("insufficient_inventory")
	case errors.As(err, &expiredErr):
		s.metrics.BuildGated("expired_lots")
	}
}

// maybeDefectAlert enqueues an alert when the run's defect rate crossed the
// company threshold. Delivery is best effort; the build stays committed.
func (s *Service) maybeDefectAlert(ctx context.Context, company companies.Company, tx Transaction) {
	if s.alerts == nil || tx.DefectCount == 0 || tx.UnitsBuilt == 0 {
		return
	}
	threshold := company.DefectRateThreshold
	if threshold <= 0 {
		threshold = s.defectRateThreshold
	}
	if threshold <= 0 {
		return
	}
	rate := float64(tx.DefectCount) / float64(tx.UnitsBuilt)
	if rate < threshold {
		return
	}
	alert := DefectAlert{
		CompanyID:       company.ID,
		TransactionCode: tx.Code,
		SKU:             tx.SKU,
		UnitsBuilt:      tx.UnitsBuilt,
		DefectCount:     tx.DefectCount,
		DefectRate:      rate,
		Threshold:       threshold,
	}
	if err := s.alerts.EnqueueDefectAlert(ctx, alert); err != nil {
		s.logger.Error("defect alert enqueue failed", "tx", tx.Code, "error", err)
	}
}

func shortagesFor(reqs []requirement, available map[int64]float64) []Shortage {
	var shortages []Shortage
	for _, req := range reqs {
		have := available[req.componentID]
		if have < req.quantity {
			shortages = append(shortages, Shortage{
				ComponentID:  req.componentID,
				ComponentSKU: req.componentSKU,
				Required:     req.quantity,
				Available:    have,
				Shortage:     req.quantity - have,
			})
		}
	}
	return shortages
}

func expiredDrawsFor(componentID int64, lots []LotStock, alloc []LotAllocation, now time.Time) []ExpiredConsumption {
	byID := make(map[int64]LotStock, len(lots))
	for _, lot := range lots {
		byID[lot.LotID] = lot
	}
	var expired []ExpiredConsumption
	for _, draw := range ExpiredDraws(lots, alloc, now) {
		lot := byID[draw.LotID]
		expired = append(expired, ExpiredConsumption{
			ComponentID: componentID,
			LotID:       lot.LotID,
			LotNumber:   lot.LotNumber,
			Quantity:    draw.Quantity,
			ExpiryDate:  lot.ExpiryDate,
		})
	}
	return expired
}
