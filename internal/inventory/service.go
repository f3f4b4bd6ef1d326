package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stocklot-erp/stocklot/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetQuantity(ctx context.Context, componentID, locationID int64) (float64, error)
	GetQuantities(ctx context.Context, componentIDs []int64, locationID int64) (map[int64]float64, error)
	GetQuantitiesByLocation(ctx context.Context, componentID int64) (map[int64]float64, error)
	GetFinishedGoodsQuantity(ctx context.Context, sku string, locationID int64) (float64, error)
	GetLotStocks(ctx context.Context, componentID int64) ([]LotStock, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	GetTransactionLines(ctx context.Context, transactionID int64) ([]TransactionLine, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort abstracts ledger metrics.
type MetricsPort interface {
	TransactionPosted(txType string)
	BuildCommitted()
	BuildGated(gate string)
}

// Service is the transaction writer: the only creator of ledger rows and the
// only mutator of balances.
type Service struct {
	repo        RepositoryPort
	companies   CompanyPort
	bom         BOMPort
	alerts      AlertPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     MetricsPort
	logger      *slog.Logger

	warningMultiplier   float64
	defectRateThreshold float64
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// WarningMultiplier widens the reorder point into the warning band.
	// Zero means DefaultWarningMultiplier.
	WarningMultiplier float64
	// DefectRateThreshold applies to companies without their own. Zero
	// disables the fallback.
	DefectRateThreshold float64
}

// NewService builds Service. audit, idem, metrics and alerts may be nil;
// the corresponding behavior is skipped. companies and boms are required
// for builds only.
func NewService(repo RepositoryPort, companies CompanyPort, boms BOMPort, alerts AlertPort, audit AuditPort, idem *shared.IdempotencyStore, metrics MetricsPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	multiplier := cfg.WarningMultiplier
	if multiplier <= 1 {
		multiplier = DefaultWarningMultiplier
	}
	return &Service{
		repo:                repo,
		companies:           companies,
		bom:                 boms,
		alerts:              alerts,
		audit:               audit,
		idempotency:         idem,
		metrics:             metrics,
		logger:              logger,
		warningMultiplier:   multiplier,
		defectRateThreshold: cfg.DefectRateThreshold,
	}
}

// RecordReceipt posts inbound stock, optionally creating or topping up a lot.
func (s *Service) RecordReceipt(ctx context.Context, input ReceiptInput) (TransactionResult, error) {
	if input.ComponentID <= 0 || input.LocationID <= 0 {
		return TransactionResult{}, fmt.Errorf("inventory: component and location required")
	}
	if input.Quantity <= 0 {
		return TransactionResult{}, ErrInvalidQuantity
	}
	if input.CostPerUnit < 0 {
		return TransactionResult{}, fmt.Errorf("inventory: cost per unit must be >= 0")
	}
	if input.Lot != nil && input.Lot.LotNumber == "" {
		return TransactionResult{}, fmt.Errorf("inventory: lot number required when lot details given")
	}

	var result TransactionResult
	err := s.withIdempotency(ctx, input.IdempotencyKey, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := tx.ComponentActive(ctx, input.ComponentID); err != nil {
				return err
			}
			if err := tx.LocationActive(ctx, input.LocationID); err != nil {
				return err
			}
			header := Transaction{
				Code:       s.newCode("RCPT"),
				Type:       TransactionTypeReceipt,
				CompanyID:  input.CompanyID,
				LocationID: input.LocationID,
				Notes:      input.Notes,
				Date:       txDate(input.Date),
				CreatedBy:  input.ActorID,
			}
			txID, err := tx.InsertTransaction(ctx, header)
			if err != nil {
				return err
			}
			header.ID = txID

			var lotID int64
			if input.Lot != nil {
				lotID, err = s.receiveLot(ctx, tx, input)
				if err != nil {
					return err
				}
			}

			line := TransactionLine{
				TransactionID:  txID,
				ComponentID:    input.ComponentID,
				LocationID:     input.LocationID,
				QuantityChange: input.Quantity,
				CostPerUnit:    input.CostPerUnit,
				LotID:          lotID,
			}
			lineID, err := tx.InsertTransactionLine(ctx, line)
			if err != nil {
				return err
			}
			line.ID = lineID

			if _, err := tx.ApplyBalanceDelta(ctx, input.ComponentID, input.LocationID, input.Quantity); err != nil {
				return err
			}
			if input.UpdateComponentCost {
				if err := tx.UpdateComponentCost(ctx, input.ComponentID, input.CostPerUnit); err != nil {
					return err
				}
			}
			result = TransactionResult{Transaction: header, Lines: []TransactionLine{line}}
			return nil
		})
	})
	if err != nil {
		return TransactionResult{}, err
	}
	s.committed(ctx, result.Transaction, input.ActorID, map[string]any{
		"component_id": input.ComponentID,
		"location_id":  input.LocationID,
		"qty":          input.Quantity,
	})
	return result, nil
}

// RecordAdjustment posts a signed correction with a required reason.
func (s *Service) RecordAdjustment(ctx context.Context, input AdjustmentInput) (TransactionResult, error) {
	if input.ComponentID <= 0 || input.LocationID <= 0 {
		return TransactionResult{}, fmt.Errorf("inventory: component and location required")
	}
	if input.Quantity == 0 {
		return TransactionResult{}, ErrZeroQuantity
	}
	if input.Reason == "" {
		return TransactionResult{}, ErrReasonRequired
	}

	var result TransactionResult
	err := s.withIdempotency(ctx, input.IdempotencyKey, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := tx.ComponentActive(ctx, input.ComponentID); err != nil {
				return err
			}
			if err := tx.LocationActive(ctx, input.LocationID); err != nil {
				return err
			}
			cost, err := tx.GetComponentCost(ctx, input.ComponentID)
			if err != nil {
				return err
			}
			header := Transaction{
				Code:       s.newCode("ADJ"),
				Type:       TransactionTypeAdjustment,
				CompanyID:  input.CompanyID,
				LocationID: input.LocationID,
				Notes:      input.Reason,
				Date:       txDate(input.Date),
				CreatedBy:  input.ActorID,
			}
			txID, err := tx.InsertTransaction(ctx, header)
			if err != nil {
				return err
			}
			header.ID = txID
			line := TransactionLine{
				TransactionID:  txID,
				ComponentID:    input.ComponentID,
				LocationID:     input.LocationID,
				QuantityChange: input.Quantity,
				CostPerUnit:    cost,
			}
			lineID, err := tx.InsertTransactionLine(ctx, line)
			if err != nil {
				return err
			}
			line.ID = lineID
			if _, err := tx.ApplyBalanceDelta(ctx, input.ComponentID, input.LocationID, input.Quantity); err != nil {
				return err
			}
			result = TransactionResult{Transaction: header, Lines: []TransactionLine{line}}
			return nil
		})
	})
	if err != nil {
		return TransactionResult{}, err
	}
	s.committed(ctx, result.Transaction, input.ActorID, map[string]any{
		"component_id": input.ComponentID,
		"location_id":  input.LocationID,
		"qty":          input.Quantity,
		"reason":       input.Reason,
	})
	return result, nil
}

// RecordInitial posts an opening balance as a signed delta, so it composes
// with anything already on hand.
func (s *Service) RecordInitial(ctx context.Context, input InitialInput) (TransactionResult, error) {
	if input.ComponentID <= 0 || input.LocationID <= 0 {
		return TransactionResult{}, fmt.Errorf("inventory: component and location required")
	}
	if input.Quantity == 0 {
		return TransactionResult{}, ErrZeroQuantity
	}
	if input.CostPerUnit < 0 {
		return TransactionResult{}, fmt.Errorf("inventory: cost per unit must be >= 0")
	}

	var result TransactionResult
	err := s.withIdempotency(ctx, input.IdempotencyKey, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := tx.ComponentActive(ctx, input.ComponentID); err != nil {
				return err
			}
			if err := tx.LocationActive(ctx, input.LocationID); err != nil {
				return err
			}
			header := Transaction{
				Code:       s.newCode("INIT"),
				Type:       TransactionTypeInitial,
				CompanyID:  input.CompanyID,
				LocationID: input.LocationID,
				Notes:      input.Notes,
				Date:       txDate(input.Date),
				CreatedBy:  input.ActorID,
			}
			txID, err := tx.InsertTransaction(ctx, header)
			if err != nil {
				return err
			}
			header.ID = txID
			line := TransactionLine{
				TransactionID:  txID,
				ComponentID:    input.ComponentID,
				LocationID:     input.LocationID,
				QuantityChange: input.Quantity,
				CostPerUnit:    input.CostPerUnit,
			}
			lineID, err := tx.InsertTransactionLine(ctx, line)
			if err != nil {
				return err
			}
			line.ID = lineID
			if _, err := tx.ApplyBalanceDelta(ctx, input.ComponentID, input.LocationID, input.Quantity); err != nil {
				return err
			}
			result = TransactionResult{Transaction: header, Lines: []TransactionLine{line}}
			return nil
		})
	})
	if err != nil {
		return TransactionResult{}, err
	}
	s.committed(ctx, result.Transaction, input.ActorID, map[string]any{
		"component_id": input.ComponentID,
		"location_id":  input.LocationID,
		"qty":          input.Quantity,
	})
	return result, nil
}

// RecordTransfer moves stock between two locations as a pair of signed lines
// in one transaction. The pair always sums to zero.
func (s *Service) RecordTransfer(ctx context.Context, input TransferInput) (TransactionResult, error) {
	hasComponent := input.ComponentID > 0
	hasSKU := input.SKU != ""
	if hasComponent == hasSKU {
		return TransactionResult{}, ErrEntityAmbiguous
	}
	if input.FromLocationID <= 0 || input.ToLocationID <= 0 {
		return TransactionResult{}, fmt.Errorf("inventory: source and destination location required")
	}
	if input.FromLocationID == input.ToLocationID {
		return TransactionResult{}, ErrSameLocation
	}
	if input.Quantity <= 0 {
		return TransactionResult{}, ErrInvalidQuantity
	}

	var result TransactionResult
	err := s.withIdempotency(ctx, input.IdempotencyKey, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := tx.LocationActive(ctx, input.FromLocationID); err != nil {
				return err
			}
			if err := tx.LocationActive(ctx, input.ToLocationID); err != nil {
				return err
			}
			header := Transaction{
				Code:           s.newCode("TRF"),
				Type:           TransactionTypeTransfer,
				CompanyID:      input.CompanyID,
				LocationID:     input.FromLocationID,
				DestLocationID: input.ToLocationID,
				SKU:            input.SKU,
				Notes:          input.Notes,
				Date:           txDate(input.Date),
				CreatedBy:      input.ActorID,
			}

			if hasComponent {
				if err := tx.ComponentActive(ctx, input.ComponentID); err != nil {
					return err
				}
				available, err := tx.GetQuantity(ctx, input.ComponentID, input.FromLocationID)
				if err != nil {
					return err
				}
				if available < input.Quantity {
					return ErrInsufficientStock
				}
				cost, err := tx.GetComponentCost(ctx, input.ComponentID)
				if err != nil {
					return err
				}
				txID, err := tx.InsertTransaction(ctx, header)
				if err != nil {
					return err
				}
				header.ID = txID
				outLine := TransactionLine{TransactionID: txID, ComponentID: input.ComponentID, LocationID: input.FromLocationID, QuantityChange: -input.Quantity, CostPerUnit: cost}
				inLine := TransactionLine{TransactionID: txID, ComponentID: input.ComponentID, LocationID: input.ToLocationID, QuantityChange: input.Quantity, CostPerUnit: cost}
				if outLine.ID, err = tx.InsertTransactionLine(ctx, outLine); err != nil {
					return err
				}
				if inLine.ID, err = tx.InsertTransactionLine(ctx, inLine); err != nil {
					return err
				}
				if _, err := tx.ApplyBalanceDelta(ctx, input.ComponentID, input.FromLocationID, -input.Quantity); err != nil {
					return err
				}
				if _, err := tx.ApplyBalanceDelta(ctx, input.ComponentID, input.ToLocationID, input.Quantity); err != nil {
					return err
				}
				result = TransactionResult{Transaction: header, Lines: []TransactionLine{outLine, inLine}}
				return nil
			}

			available, err := tx.GetFinishedGoodsQuantity(ctx, input.SKU, input.FromLocationID)
			if err != nil {
				return err
			}
			if available < input.Quantity {
				return ErrInsufficientStock
			}
			txID, err := tx.InsertTransaction(ctx, header)
			if err != nil {
				return err
			}
			header.ID = txID
			outLine := FinishedGoodsLine{TransactionID: txID, SKU: input.SKU, LocationID: input.FromLocationID, QuantityChange: -input.Quantity}
			inLine := FinishedGoodsLine{TransactionID: txID, SKU: input.SKU, LocationID: input.ToLocationID, QuantityChange: input.Quantity}
			if outLine.ID, err = tx.InsertFinishedGoodsLine(ctx, outLine); err != nil {
				return err
			}
			if inLine.ID, err = tx.InsertFinishedGoodsLine(ctx, inLine); err != nil {
				return err
			}
			if _, err := tx.ApplyFinishedGoodsDelta(ctx, input.SKU, input.FromLocationID, -input.Quantity); err != nil {
				return err
			}
			if _, err := tx.ApplyFinishedGoodsDelta(ctx, input.SKU, input.ToLocationID, input.Quantity); err != nil {
				return err
			}
			result = TransactionResult{Transaction: header, FinishedGoodsLines: []FinishedGoodsLine{outLine, inLine}}
			return nil
		})
	})
	if err != nil {
		return TransactionResult{}, err
	}
	s.committed(ctx, result.Transaction, input.ActorID, map[string]any{
		"component_id":  input.ComponentID,
		"sku":           input.SKU,
		"from_location": input.FromLocationID,
		"to_location":   input.ToLocationID,
		"qty":           input.Quantity,
	})
	return result, nil
}

// GetQuantity reads the on-hand balance for a component; locationID 0 means
// all locations.
func (s *Service) GetQuantity(ctx context.Context, componentID, locationID int64) (float64, error) {
	if componentID <= 0 {
		return 0, ErrComponentNotFound
	}
	return s.repo.GetQuantity(ctx, componentID, locationID)
}

// GetQuantities batch-reads balances; every requested ID is present in the
// result, defaulting to zero.
func (s *Service) GetQuantities(ctx context.Context, componentIDs []int64, locationID int64) (map[int64]float64, error) {
	return s.repo.GetQuantities(ctx, componentIDs, locationID)
}

// GetQuantitiesByLocation breaks a component's balance down per location.
func (s *Service) GetQuantitiesByLocation(ctx context.Context, componentID int64) (map[int64]float64, error) {
	if componentID <= 0 {
		return nil, ErrComponentNotFound
	}
	return s.repo.GetQuantitiesByLocation(ctx, componentID)
}

// GetFinishedGoodsQuantity reads the finished-goods balance for a SKU.
func (s *Service) GetFinishedGoodsQuantity(ctx context.Context, sku string, locationID int64) (float64, error) {
	return s.repo.GetFinishedGoodsQuantity(ctx, sku, locationID)
}

// GetLotStocks lists a component's lots with positive remaining balance.
func (s *Service) GetLotStocks(ctx context.Context, componentID int64) ([]LotStock, error) {
	if componentID <= 0 {
		return nil, ErrComponentNotFound
	}
	return s.repo.GetLotStocks(ctx, componentID)
}

// ListTransactions returns headers matching the filter.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

// GetTransactionLines returns the lines of one transaction.
func (s *Service) GetTransactionLines(ctx context.Context, transactionID int64) ([]TransactionLine, error) {
	return s.repo.GetTransactionLines(ctx, transactionID)
}

// ReorderStatus derives the reorder status for an on-hand quantity.
func (s *Service) ReorderStatus(onHand, reorderPoint float64) ReorderStatus {
	return ReorderStatusFor(onHand, reorderPoint, s.warningMultiplier)
}

func (s *Service) receiveLot(ctx context.Context, tx TxRepository, input ReceiptInput) (int64, error) {
	lot, err := tx.GetLotByNumber(ctx, input.ComponentID, input.Lot.LotNumber)
	switch {
	case err == nil:
		if err := tx.TopUpLot(ctx, lot.ID, input.Quantity); err != nil {
			return 0, err
		}
		return lot.ID, nil
	case errors.Is(err, ErrLotNotFound):
		return tx.CreateLot(ctx, Lot{
			ComponentID:      input.ComponentID,
			LotNumber:        input.Lot.LotNumber,
			ExpiryDate:       input.Lot.ExpiryDate,
			ReceivedQuantity: input.Quantity,
			Supplier:         input.Lot.Supplier,
		})
	default:
		return 0, err
	}
}

// withIdempotency reserves the key before the work and releases it when the
// work fails, matching the retry semantics of the write endpoints.
func (s *Service) withIdempotency(ctx context.Context, key string, fn func() error) error {
	if s.idempotency == nil || key == "" {
		return fn()
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_ = s.idempotency.Delete(ctx, key)
		return err
	}
	return nil
}

func (s *Service) committed(ctx context.Context, tx Transaction, actorID int64, meta map[string]any) {
	if s.metrics != nil {
		s.metrics.TransactionPosted(string(tx.Type))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   fmt.Sprintf("inventory:%s", tx.Type),
			Entity:   "inventory_tx",
			EntityID: tx.Code,
			Meta:     meta,
		})
	}
}

func (s *Service) newCode(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

func txDate(d time.Time) time.Time {
	if d.IsZero() {
		return time.Now().UTC()
	}
	return d
}
