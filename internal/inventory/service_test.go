package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stocklot-erp/stocklot/internal/bom"
	"github.com/stocklot-erp/stocklot/internal/masterdata/companies"
)

type memoryState struct {
	balances       map[string]float64
	fgBalances     map[string]float64
	lots           map[int64]*memoryLot
	transactions   []Transaction
	lines          []TransactionLine
	fgLines        []FinishedGoodsLine
	componentCosts map[int64]float64
	inactiveComps  map[int64]bool
	inactiveLocs   map[int64]bool
	boms           map[int64]bom.Resolved
	nextID         int64
}

type memoryLot struct {
	componentID int64
	stock       LotStock
}

func balKey(componentID, locationID int64) string {
	return fmt.Sprintf("%d:%d", componentID, locationID)
}

func fgKey(sku string, locationID int64) string {
	return fmt.Sprintf("%s:%d", sku, locationID)
}

func newMemoryState() *memoryState {
	return &memoryState{
		balances:       make(map[string]float64),
		fgBalances:     make(map[string]float64),
		lots:           make(map[int64]*memoryLot),
		componentCosts: make(map[int64]float64),
		inactiveComps:  make(map[int64]bool),
		inactiveLocs:   make(map[int64]bool),
		boms:           make(map[int64]bom.Resolved),
	}
}

func (s *memoryState) clone() *memoryState {
	out := newMemoryState()
	for k, v := range s.balances {
		out.balances[k] = v
	}
	for k, v := range s.fgBalances {
		out.fgBalances[k] = v
	}
	for k, v := range s.lots {
		stock := v.stock
		out.lots[k] = &memoryLot{componentID: v.componentID, stock: stock}
	}
	out.transactions = append(out.transactions, s.transactions...)
	out.lines = append(out.lines, s.lines...)
	out.fgLines = append(out.fgLines, s.fgLines...)
	for k, v := range s.componentCosts {
		out.componentCosts[k] = v
	}
	for k, v := range s.inactiveComps {
		out.inactiveComps[k] = v
	}
	for k, v := range s.inactiveLocs {
		out.inactiveLocs[k] = v
	}
	out.boms = s.boms
	out.nextID = s.nextID
	return out
}

type memoryRepo struct {
	state *memoryState
	// failOn makes the named tx operation error, for rollback tests.
	failOn string
}

type memoryTx struct {
	state  *memoryState
	failOn string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: newMemoryState()}
}

// WithTx runs fn against a copy of the state and publishes it only on
// success, mirroring transactional rollback.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{state: staged, failOn: r.failOn}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) GetQuantity(ctx context.Context, componentID, locationID int64) (float64, error) {
	return (&memoryTx{state: r.state}).GetQuantity(ctx, componentID, locationID)
}

func (r *memoryRepo) GetQuantities(ctx context.Context, componentIDs []int64, locationID int64) (map[int64]float64, error) {
	out := make(map[int64]float64, len(componentIDs))
	for _, id := range componentIDs {
		qty, err := r.GetQuantity(ctx, id, locationID)
		if err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, nil
}

func (r *memoryRepo) GetQuantitiesByLocation(ctx context.Context, componentID int64) (map[int64]float64, error) {
	out := make(map[int64]float64)
	for key, qty := range r.state.balances {
		var comp, loc int64
		fmt.Sscanf(key, "%d:%d", &comp, &loc)
		if comp == componentID {
			out[loc] = qty
		}
	}
	return out, nil
}

func (r *memoryRepo) GetFinishedGoodsQuantity(ctx context.Context, sku string, locationID int64) (float64, error) {
	return (&memoryTx{state: r.state}).GetFinishedGoodsQuantity(ctx, sku, locationID)
}

func (r *memoryRepo) GetLotStocks(ctx context.Context, componentID int64) ([]LotStock, error) {
	return (&memoryTx{state: r.state}).GetLotStocksForUpdate(ctx, componentID)
}

func (r *memoryRepo) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	result := make([]Transaction, len(r.state.transactions))
	copy(result, r.state.transactions)
	return result, nil
}

func (r *memoryRepo) GetTransactionLines(ctx context.Context, transactionID int64) ([]TransactionLine, error) {
	var out []TransactionLine
	for _, line := range r.state.lines {
		if line.TransactionID == transactionID {
			out = append(out, line)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, t Transaction) (int64, error) {
	if tx.failOn == "insert_tx" {
		return 0, errors.New("boom")
	}
	tx.state.nextID++
	t.ID = tx.state.nextID
	tx.state.transactions = append(tx.state.transactions, t)
	return t.ID, nil
}

func (tx *memoryTx) InsertTransactionLine(ctx context.Context, line TransactionLine) (int64, error) {
	if tx.failOn == "insert_line" {
		return 0, errors.New("boom")
	}
	tx.state.nextID++
	line.ID = tx.state.nextID
	tx.state.lines = append(tx.state.lines, line)
	return line.ID, nil
}

func (tx *memoryTx) InsertFinishedGoodsLine(ctx context.Context, line FinishedGoodsLine) (int64, error) {
	if tx.failOn == "insert_fg_line" {
		return 0, errors.New("boom")
	}
	tx.state.nextID++
	line.ID = tx.state.nextID
	tx.state.fgLines = append(tx.state.fgLines, line)
	return line.ID, nil
}

func (tx *memoryTx) ApplyBalanceDelta(ctx context.Context, componentID, locationID int64, delta float64) (float64, error) {
	key := balKey(componentID, locationID)
	tx.state.balances[key] += delta
	return tx.state.balances[key], nil
}

func (tx *memoryTx) ApplyFinishedGoodsDelta(ctx context.Context, sku string, locationID int64, delta float64) (float64, error) {
	key := fgKey(sku, locationID)
	tx.state.fgBalances[key] += delta
	return tx.state.fgBalances[key], nil
}

func (tx *memoryTx) GetQuantity(ctx context.Context, componentID, locationID int64) (float64, error) {
	if locationID == 0 {
		var total float64
		for key, qty := range tx.state.balances {
			var comp, loc int64
			fmt.Sscanf(key, "%d:%d", &comp, &loc)
			if comp == componentID {
				total += qty
			}
		}
		return total, nil
	}
	return tx.state.balances[balKey(componentID, locationID)], nil
}

func (tx *memoryTx) GetFinishedGoodsQuantity(ctx context.Context, sku string, locationID int64) (float64, error) {
	if locationID == 0 {
		var total float64
		for key, qty := range tx.state.fgBalances {
			if strings.HasPrefix(key, sku+":") {
				total += qty
			}
		}
		return total, nil
	}
	return tx.state.fgBalances[fgKey(sku, locationID)], nil
}

func (tx *memoryTx) GetLotStocksForUpdate(ctx context.Context, componentID int64) ([]LotStock, error) {
	var out []LotStock
	for _, lot := range tx.state.lots {
		if lot.componentID == componentID && lot.stock.Remaining > 0 {
			out = append(out, lot.stock)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetLotByNumber(ctx context.Context, componentID int64, lotNumber string) (Lot, error) {
	for _, lot := range tx.state.lots {
		if lot.componentID == componentID && lot.stock.LotNumber == lotNumber {
			return Lot{ID: lot.stock.LotID, ComponentID: componentID, LotNumber: lotNumber, ExpiryDate: lot.stock.ExpiryDate}, nil
		}
	}
	return Lot{}, ErrLotNotFound
}

func (tx *memoryTx) CreateLot(ctx context.Context, lot Lot) (int64, error) {
	tx.state.nextID++
	id := tx.state.nextID
	tx.state.lots[id] = &memoryLot{
		componentID: lot.ComponentID,
		stock: LotStock{
			LotID:      id,
			LotNumber:  lot.LotNumber,
			ExpiryDate: lot.ExpiryDate,
			Remaining:  lot.ReceivedQuantity,
		},
	}
	return id, nil
}

func (tx *memoryTx) TopUpLot(ctx context.Context, lotID int64, quantity float64) error {
	lot, ok := tx.state.lots[lotID]
	if !ok {
		return ErrLotNotFound
	}
	lot.stock.Remaining += quantity
	return nil
}

func (tx *memoryTx) DecrementLotBalance(ctx context.Context, lotID int64, quantity float64) error {
	lot, ok := tx.state.lots[lotID]
	if !ok {
		return ErrLotNotFound
	}
	lot.stock.Remaining -= quantity
	return nil
}

func (tx *memoryTx) ComponentActive(ctx context.Context, id int64) error {
	if tx.state.inactiveComps[id] {
		return ErrComponentNotFound
	}
	return nil
}

func (tx *memoryTx) LocationActive(ctx context.Context, id int64) error {
	if tx.state.inactiveLocs[id] {
		return ErrLocationNotFound
	}
	return nil
}

func (tx *memoryTx) GetComponentCost(ctx context.Context, id int64) (float64, error) {
	return tx.state.componentCosts[id], nil
}

func (tx *memoryTx) UpdateComponentCost(ctx context.Context, id int64, costPerUnit float64) error {
	tx.state.componentCosts[id] = costPerUnit
	return nil
}

func (tx *memoryTx) ResolveBOM(ctx context.Context, versionID int64) (bom.Resolved, error) {
	resolved, ok := tx.state.boms[versionID]
	if !ok {
		return bom.Resolved{}, bom.ErrVersionNotFound
	}
	return resolved, nil
}

// memoryBOM serves BOMPort lookups from the same state as the repo.
type memoryBOM struct {
	repo *memoryRepo
}

func (b *memoryBOM) GetActiveVersion(ctx context.Context, companyID int64, sku string) (bom.Version, []bom.Line, error) {
	for _, resolved := range b.repo.state.boms {
		v := resolved.Version
		if v.CompanyID == companyID && v.SKU == sku && v.IsActive {
			return v, nil, nil
		}
	}
	return bom.Version{}, nil, bom.ErrNoActiveVersion
}

func (b *memoryBOM) ResolveVersion(ctx context.Context, id int64) (bom.Resolved, error) {
	resolved, ok := b.repo.state.boms[id]
	if !ok {
		return bom.Resolved{}, bom.ErrVersionNotFound
	}
	return resolved, nil
}

type memoryCompanies struct {
	items map[int64]companies.Company
}

func (c *memoryCompanies) Get(ctx context.Context, id int64) (companies.Company, error) {
	company, ok := c.items[id]
	if !ok {
		return companies.Company{}, errors.New("company not found")
	}
	return company, nil
}

type memoryAlerts struct {
	sent []DefectAlert
}

func (a *memoryAlerts) EnqueueDefectAlert(ctx context.Context, alert DefectAlert) error {
	a.sent = append(a.sent, alert)
	return nil
}

func newTestService(repo *memoryRepo, company companies.Company, alerts AlertPort) *Service {
	comps := &memoryCompanies{items: map[int64]companies.Company{company.ID: company}}
	return NewService(repo, comps, &memoryBOM{repo: repo}, alerts, nil, nil, nil, nil, ServiceConfig{})
}

func TestRecordReceiptCreatesAndTopsUpLot(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, companies.Company{ID: 1}, nil)
	ctx := context.Background()

	expiry := time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC)
	result, err := svc.RecordReceipt(ctx, ReceiptInput{
		CompanyID: 1, ComponentID: 10, LocationID: 1,
		Quantity: 10, CostPerUnit: 2.5,
		Lot: &LotInput{LotNumber: "L-100", ExpiryDate: &expiry},
	})
	require.NoError(t, err)
	require.Equal(t, TransactionTypeReceipt, result.Transaction.Type)
	require.Len(t, result.Lines, 1)
	require.NotZero(t, result.Lines[0].LotID)
	require.InDelta(t, 2.5, result.Lines[0].CostPerUnit, 0.0001)

	qty, err := svc.GetQuantity(ctx, 10, 1)
	require.NoError(t, err)
	require.InDelta(t, 10, qty, 0.0001)

	// Same lot number tops up instead of creating a sibling.
	_, err = svc.RecordReceipt(ctx, ReceiptInput{
		CompanyID: 1, ComponentID: 10, LocationID: 1,
		Quantity: 7, CostPerUnit: 2.5,
		Lot: &LotInput{LotNumber: "L-100"},
	})
	require.NoError(t, err)

	lots, err := svc.GetLotStocks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	require.InDelta(t, 17, lots[0].Remaining, 0.0001)
}

func TestRecordReceiptUpdatesComponentCost(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.componentCosts[10] = 1.0
	svc := newTestService(repo, companies.Company{ID: 1}, nil)

	_, err := svc.RecordReceipt(context.Background(), ReceiptInput{
		CompanyID: 1, ComponentID: 10, LocationID: 1,
		Quantity: 5, CostPerUnit: 3.0, UpdateComponentCost: true,
	})
	require.NoError(t, err)
	require.InDelta(t, 3.0, repo.state.componentCosts[10], 0.0001)
}

func TestRecordReceiptRejectsNonPositiveQuantity(t *testing.T) {
	svc := newTestService(newMemoryRepo(), companies.Company{ID: 1}, nil)
	_, err := svc.RecordReceipt(context.Background(), ReceiptInput{CompanyID: 1, ComponentID: 10, LocationID: 1, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.RecordReceipt(context.Background(), ReceiptInput{CompanyID: 1, ComponentID: 10, LocationID: 1, Quantity: -3})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRecordAdjustmentRequiresReason(t *testing.T) {
	svc := newTestService(newMemoryRepo(), companies.Company{ID: 1}, nil)
	_, err := svc.RecordAdjustment(context.Background(), AdjustmentInput{CompanyID: 1, ComponentID: 10, LocationID: 1, Quantity: 5})
	require.ErrorIs(t, err, ErrReasonRequired)
}

func TestBalanceEqualsSumOfLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, companies.Company{ID: 1}, nil)
	ctx := context.Background()

	_, err := svc.RecordInitial(ctx, InitialInput{CompanyID: 1, ComponentID: 10, LocationID: 1, Quantity: 5})
	require.NoError(t, err)
	_, err = svc.RecordAdjustment(ctx, AdjustmentInput{CompanyID: 1, ComponentID: 10, LocationID: 1, Quantity: -3, Reason: "cycle count"})
	require.NoError(t, err)
	_, err = svc.RecordReceipt(ctx, ReceiptInput{CompanyID: 1, ComponentID: 10, LocationID: 1, Quantity: 4, CostPerUnit: 1})
	require.NoError(t, err)

	var sum float64
	for _, line := range repo.state.lines {
		sum += line.QuantityChange
	}
	qty, err := svc.GetQuantity(ctx, 10, 1)
	require.NoError(t, err)
	require.InDelta(t, sum, qty, 0.0001)
	require.InDelta(t, 6, qty, 0.0001)
}

func TestRecordInitialComposesWithExistingBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, companies.Company{ID: 1}, nil)
	ctx := context.Background()

	_, err := svc.RecordInitial(ctx, InitialInput{CompanyID: 1, ComponentID: 10, LocationID: 1, Quantity: 5})
	require.NoError(t, err)
	_, err = svc.RecordInitial(ctx, InitialInput{CompanyID: 1, ComponentID: 10, LocationID: 1, Quantity: 3})
	require.NoError(t, err)

	qty, err := svc.GetQuantity(ctx, 10, 1)
	require.NoError(t, err)
	require.InDelta(t, 8, qty, 0.0001)
}

func TestRecordTransferPairsSumToZero(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, companies.Company{ID: 1}, nil)
	ctx := context.Background()

	_, err := svc.RecordInitial(ctx, InitialInput{CompanyID: 1, ComponentID: 10, LocationID: 1, Quantity: 10})
	require.NoError(t, err)

	result, err := svc.RecordTransfer(ctx, TransferInput{CompanyID: 1, ComponentID: 10, FromLocationID: 1, ToLocationID: 2, Quantity: 4})
	require.NoError(t, err)
	require.Len(t, result.Lines, 2)
	require.InDelta(t, 0, result.Lines[0].QuantityChange+result.Lines[1].QuantityChange, 0.0001)

	from, err := svc.GetQuantity(ctx, 10, 1)
	require.NoError(t, err)
	require.InDelta(t, 6, from, 0.0001)
	to, err := svc.GetQuantity(ctx, 10, 2)
	require.NoError(t, err)
	require.InDelta(t, 4, to, 0.0001)
	total, err := svc.GetQuantity(ctx, 10, 0)
	require.NoError(t, err)
	require.InDelta(t, 10, total, 0.0001)
}

func TestRecordTransferInsufficientSource(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, companies.Company{ID: 1}, nil)
	ctx := context.Background()

	_, err := svc.RecordInitial(ctx, InitialInput{CompanyID: 1, ComponentID: 10, LocationID: 1, Quantity: 3})
	require.NoError(t, err)

	_, err = svc.RecordTransfer(ctx, TransferInput{CompanyID: 1, ComponentID: 10, FromLocationID: 1, ToLocationID: 2, Quantity: 5})
	require.ErrorIs(t, err, ErrInsufficientStock)

	qty, err := svc.GetQuantity(ctx, 10, 1)
	require.NoError(t, err)
	require.InDelta(t, 3, qty, 0.0001)
}

func TestRecordTransferValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), companies.Company{ID: 1}, nil)
	ctx := context.Background()

	_, err := svc.RecordTransfer(ctx, TransferInput{CompanyID: 1, ComponentID: 10, FromLocationID: 1, ToLocationID: 1, Quantity: 5})
	require.ErrorIs(t, err, ErrSameLocation)

	_, err = svc.RecordTransfer(ctx, TransferInput{CompanyID: 1, FromLocationID: 1, ToLocationID: 2, Quantity: 5})
	require.ErrorIs(t, err, ErrEntityAmbiguous)

	_, err = svc.RecordTransfer(ctx, TransferInput{CompanyID: 1, ComponentID: 10, SKU: "FG-1", FromLocationID: 1, ToLocationID: 2, Quantity: 5})
	require.ErrorIs(t, err, ErrEntityAmbiguous)
}

func TestTransferFinishedGoods(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.fgBalances[fgKey("FG-1", 1)] = 8
	svc := newTestService(repo, companies.Company{ID: 1}, nil)
	ctx := context.Background()

	result, err := svc.RecordTransfer(ctx, TransferInput{CompanyID: 1, SKU: "FG-1", FromLocationID: 1, ToLocationID: 2, Quantity: 3})
	require.NoError(t, err)
	require.Len(t, result.FinishedGoodsLines, 2)

	from, err := svc.GetFinishedGoodsQuantity(ctx, "FG-1", 1)
	require.NoError(t, err)
	require.InDelta(t, 5, from, 0.0001)
	to, err := svc.GetFinishedGoodsQuantity(ctx, "FG-1", 2)
	require.NoError(t, err)
	require.InDelta(t, 3, to, 0.0001)
}

func TestGetQuantitiesDefaultsMissingToZero(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, companies.Company{ID: 1}, nil)
	ctx := context.Background()

	_, err := svc.RecordInitial(ctx, InitialInput{CompanyID: 1, ComponentID: 10, LocationID: 1, Quantity: 5})
	require.NoError(t, err)

	quantities, err := svc.GetQuantities(ctx, []int64{10, 99}, 1)
	require.NoError(t, err)
	require.InDelta(t, 5, quantities[10], 0.0001)
	qty, ok := quantities[99]
	require.True(t, ok)
	require.InDelta(t, 0, qty, 0.0001)
}

func TestReorderStatusBoundaries(t *testing.T) {
	require.Equal(t, ReorderStatusOK, ReorderStatusFor(100, 0, DefaultWarningMultiplier))
	require.Equal(t, ReorderStatusOK, ReorderStatusFor(0, 0, DefaultWarningMultiplier))
	require.Equal(t, ReorderStatusCritical, ReorderStatusFor(10, 10, DefaultWarningMultiplier))
	require.Equal(t, ReorderStatusCritical, ReorderStatusFor(0, 10, DefaultWarningMultiplier))
	require.Equal(t, ReorderStatusWarning, ReorderStatusFor(15, 10, DefaultWarningMultiplier))
	require.Equal(t, ReorderStatusWarning, ReorderStatusFor(10.5, 10, DefaultWarningMultiplier))
	require.Equal(t, ReorderStatusOK, ReorderStatusFor(16, 10, DefaultWarningMultiplier))
}
