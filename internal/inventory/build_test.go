package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stocklot-erp/stocklot/internal/bom"
	"github.com/stocklot-erp/stocklot/internal/masterdata/companies"
)

// widgetBOM is two resistors and one enclosure per unit.
func widgetBOM() bom.Resolved {
	return bom.Resolved{
		Version: bom.Version{ID: 7, CompanyID: 1, SKU: "WIDGET", Revision: 1, IsActive: true},
		Lines: []bom.ResolvedLine{
			{ComponentID: 10, ComponentSKU: "RES-01", QuantityPerUnit: 2, CostPerUnit: decimal.NewFromFloat(2)},
			{ComponentID: 20, ComponentSKU: "ENC-01", QuantityPerUnit: 1, CostPerUnit: decimal.NewFromFloat(10)},
		},
	}
}

func newBuildFixture(company companies.Company, alerts AlertPort) (*memoryRepo, *Service) {
	repo := newMemoryRepo()
	repo.state.boms[7] = widgetBOM()
	svc := newTestService(repo, company, alerts)
	return repo, svc
}

func TestRecordBuildHappyPath(t *testing.T) {
	repo, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1}, nil)
	ctx := context.Background()
	repo.state.balances[balKey(10, 1)] = 100
	repo.state.balances[balKey(20, 1)] = 50

	result, err := svc.RecordBuild(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10,
	})
	require.NoError(t, err)
	require.Equal(t, TransactionTypeBuild, result.Transaction.Type)
	require.InDelta(t, 14, result.Transaction.UnitCost, 0.0001)
	require.InDelta(t, 140, result.Transaction.TotalCost, 0.0001)
	require.EqualValues(t, 10, result.Transaction.UnitsBuilt)

	// 2 per unit and 1 per unit, all consumption negative.
	require.InDelta(t, 80, repo.state.balances[balKey(10, 1)], 0.0001)
	require.InDelta(t, 40, repo.state.balances[balKey(20, 1)], 0.0001)
	for _, line := range result.Lines {
		require.Negative(t, line.QuantityChange)
	}

	// Output defaults to units built, credited at the company default.
	require.Len(t, result.FinishedGoodsLines, 1)
	fg, err := svc.GetFinishedGoodsQuantity(ctx, "WIDGET", 1)
	require.NoError(t, err)
	require.InDelta(t, 10, fg, 0.0001)
}

func TestRecordBuildExplicitOutputLocationAndQuantity(t *testing.T) {
	repo, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1}, nil)
	ctx := context.Background()
	repo.state.balances[balKey(10, 1)] = 100
	repo.state.balances[balKey(20, 1)] = 50

	result, err := svc.RecordBuild(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10,
		OutputLocationID: 2, OutputQuantity: 9, DefectCount: 1,
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, result.Transaction.DestLocationID)

	fg, err := svc.GetFinishedGoodsQuantity(ctx, "WIDGET", 2)
	require.NoError(t, err)
	require.InDelta(t, 9, fg, 0.0001)
	fgDefault, err := svc.GetFinishedGoodsQuantity(ctx, "WIDGET", 1)
	require.NoError(t, err)
	require.InDelta(t, 0, fgDefault, 0.0001)
}

func TestRecordBuildConsumesLotsFEFO(t *testing.T) {
	repo, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1}, nil)
	ctx := context.Background()
	repo.state.balances[balKey(10, 1)] = 100
	repo.state.balances[balKey(20, 1)] = 50
	repo.state.lots[1] = &memoryLot{componentID: 10, stock: LotStock{LotID: 1, LotNumber: "L-1", ExpiryDate: datePtr(2030, 1, 1), Remaining: 6}}
	repo.state.lots[2] = &memoryLot{componentID: 10, stock: LotStock{LotID: 2, LotNumber: "L-2", ExpiryDate: datePtr(2031, 1, 1), Remaining: 50}}

	result, err := svc.RecordBuild(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10,
	})
	require.NoError(t, err)

	// 20 units of component 10: 6 from the earlier lot, 14 from the later.
	require.InDelta(t, 0, repo.state.lots[1].stock.Remaining, 0.0001)
	require.InDelta(t, 36, repo.state.lots[2].stock.Remaining, 0.0001)

	var lotLines int
	for _, line := range result.Lines {
		if line.LotID != 0 {
			lotLines++
		}
	}
	require.Equal(t, 2, lotLines)
}

func TestRecordBuildInsufficientInventoryGate(t *testing.T) {
	repo, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1}, nil)
	ctx := context.Background()
	repo.state.balances[balKey(10, 1)] = 40
	repo.state.balances[balKey(20, 1)] = 50

	_, err := svc.RecordBuild(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 50,
	})
	var gate *InsufficientInventoryError
	require.ErrorAs(t, err, &gate)
	require.Len(t, gate.Items, 1)
	require.EqualValues(t, 10, gate.Items[0].ComponentID)
	require.InDelta(t, 100, gate.Items[0].Required, 0.0001)
	require.InDelta(t, 40, gate.Items[0].Available, 0.0001)
	require.InDelta(t, 60, gate.Items[0].Shortage, 0.0001)

	// Gate failure writes nothing.
	require.Empty(t, repo.state.transactions)
	require.InDelta(t, 40, repo.state.balances[balKey(10, 1)], 0.0001)
	require.InDelta(t, 50, repo.state.balances[balKey(20, 1)], 0.0001)
}

func TestRecordBuildAllowInsufficientDrivesNegative(t *testing.T) {
	repo, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1}, nil)
	ctx := context.Background()
	repo.state.balances[balKey(10, 1)] = 10
	repo.state.balances[balKey(20, 1)] = 10

	_, err := svc.RecordBuild(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10,
		AllowInsufficientInventory: true,
	})
	require.NoError(t, err)
	require.InDelta(t, -10, repo.state.balances[balKey(10, 1)], 0.0001)
}

func TestRecordBuildExpiredLotsGate(t *testing.T) {
	repo, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1, CanOverrideExpiry: true}, nil)
	ctx := context.Background()
	repo.state.balances[balKey(10, 1)] = 100
	repo.state.balances[balKey(20, 1)] = 50
	expiredAt := time.Now().UTC().Add(-24 * time.Hour)
	fresh := time.Now().UTC().Add(365 * 24 * time.Hour)
	repo.state.lots[1] = &memoryLot{componentID: 10, stock: LotStock{LotID: 1, LotNumber: "OLD", ExpiryDate: &expiredAt, Remaining: 15}}
	repo.state.lots[2] = &memoryLot{componentID: 10, stock: LotStock{LotID: 2, LotNumber: "NEW", ExpiryDate: &fresh, Remaining: 10}}

	// Fresh stock covers only 10 of the 20 required, so FEFO must dip
	// into the expired lot.
	_, err := svc.RecordBuild(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10,
	})
	var gate *ExpiredLotsError
	require.ErrorAs(t, err, &gate)
	require.Len(t, gate.Items, 1)
	require.Equal(t, "OLD", gate.Items[0].LotNumber)
	require.Empty(t, repo.state.transactions)

	// The override consumes the expired lot first.
	_, err = svc.RecordBuild(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10,
		AllowExpiredLots: true,
	})
	require.NoError(t, err)
	require.InDelta(t, 0, repo.state.lots[1].stock.Remaining, 0.0001)
	require.InDelta(t, 5, repo.state.lots[2].stock.Remaining, 0.0001)
}

func TestRecordBuildExpiredLotGatesDespiteFreshStock(t *testing.T) {
	repo, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1, CanOverrideExpiry: true}, nil)
	ctx := context.Background()
	repo.state.balances[balKey(10, 1)] = 200
	repo.state.balances[balKey(20, 1)] = 50
	expiredAt := time.Now().UTC().Add(-24 * time.Hour)
	fresh := time.Now().UTC().Add(365 * 24 * time.Hour)
	repo.state.lots[1] = &memoryLot{componentID: 10, stock: LotStock{LotID: 1, LotNumber: "OLD", ExpiryDate: &expiredAt, Remaining: 15}}
	repo.state.lots[2] = &memoryLot{componentID: 10, stock: LotStock{LotID: 2, LotNumber: "NEW", ExpiryDate: &fresh, Remaining: 100}}

	// The fresh lot alone covers the 20 required, but the expired lot is
	// first in expiry order, so it must surface instead of being skipped.
	_, err := svc.RecordBuild(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10,
	})
	var gate *ExpiredLotsError
	require.ErrorAs(t, err, &gate)
	require.Len(t, gate.Items, 1)
	require.Equal(t, "OLD", gate.Items[0].LotNumber)
	require.InDelta(t, 15, gate.Items[0].Quantity, 0.0001)
	require.Empty(t, repo.state.transactions)

	// The preview agrees with the commit gate.
	expired, err := svc.CheckExpiredLots(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10,
	})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, "OLD", expired[0].LotNumber)

	// With the override the expired lot drains before the fresh one.
	_, err = svc.RecordBuild(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10,
		AllowExpiredLots: true,
	})
	require.NoError(t, err)
	require.InDelta(t, 0, repo.state.lots[1].stock.Remaining, 0.0001)
	require.InDelta(t, 95, repo.state.lots[2].stock.Remaining, 0.0001)
}

func TestRecordBuildOverrideNotPermitted(t *testing.T) {
	_, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1, CanOverrideExpiry: false}, nil)

	_, err := svc.RecordBuild(context.Background(), BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 1,
		AllowExpiredLots: true,
	})
	require.ErrorIs(t, err, ErrOverrideNotPermitted)
}

func TestRecordBuildManualAllocationBypassesFEFO(t *testing.T) {
	repo, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1}, nil)
	ctx := context.Background()
	repo.state.balances[balKey(10, 1)] = 100
	repo.state.balances[balKey(20, 1)] = 50
	repo.state.lots[1] = &memoryLot{componentID: 10, stock: LotStock{LotID: 1, LotNumber: "L-1", ExpiryDate: datePtr(2030, 1, 1), Remaining: 50}}
	repo.state.lots[2] = &memoryLot{componentID: 10, stock: LotStock{LotID: 2, LotNumber: "L-2", ExpiryDate: datePtr(2031, 1, 1), Remaining: 50}}

	_, err := svc.RecordBuild(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10,
		ManualAllocations: map[int64][]LotAllocation{10: {{LotID: 2, Quantity: 20}}},
	})
	require.NoError(t, err)
	require.InDelta(t, 50, repo.state.lots[1].stock.Remaining, 0.0001)
	require.InDelta(t, 30, repo.state.lots[2].stock.Remaining, 0.0001)
}

func TestRecordBuildManualAllocationOverdraw(t *testing.T) {
	repo, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1}, nil)
	repo.state.balances[balKey(10, 1)] = 100
	repo.state.balances[balKey(20, 1)] = 50
	repo.state.lots[1] = &memoryLot{componentID: 10, stock: LotStock{LotID: 1, LotNumber: "L-1", Remaining: 5}}

	_, err := svc.RecordBuild(context.Background(), BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10,
		ManualAllocations: map[int64][]LotAllocation{10: {{LotID: 1, Quantity: 8}}},
	})
	require.Error(t, err)
	require.Empty(t, repo.state.transactions)
}

func TestRecordBuildAtomicRollback(t *testing.T) {
	repo, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1}, nil)
	ctx := context.Background()
	repo.state.balances[balKey(10, 1)] = 100
	repo.state.balances[balKey(20, 1)] = 50
	repo.failOn = "insert_fg_line"

	_, err := svc.RecordBuild(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10,
	})
	require.Error(t, err)

	// Consumption already staged in the transaction must not survive it.
	require.InDelta(t, 100, repo.state.balances[balKey(10, 1)], 0.0001)
	require.InDelta(t, 50, repo.state.balances[balKey(20, 1)], 0.0001)
	require.Empty(t, repo.state.transactions)
	require.Empty(t, repo.state.lines)
}

func TestRecordBuildValidation(t *testing.T) {
	_, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1}, nil)
	ctx := context.Background()

	_, err := svc.RecordBuild(ctx, BuildInput{CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.RecordBuild(ctx, BuildInput{CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 5, DefectCount: 6})
	require.ErrorIs(t, err, ErrDefectExceedsUnits)
}

func TestRecordBuildNoOutputLocation(t *testing.T) {
	_, svc := newBuildFixture(companies.Company{ID: 1}, nil)

	_, err := svc.RecordBuild(context.Background(), BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 1,
	})
	require.ErrorIs(t, err, ErrNoOutputLocation)
}

func TestRecordBuildDefectAlert(t *testing.T) {
	alerts := &memoryAlerts{}
	repo, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1, DefectRateThreshold: 0.05}, alerts)
	ctx := context.Background()
	repo.state.balances[balKey(10, 1)] = 100
	repo.state.balances[balKey(20, 1)] = 50

	_, err := svc.RecordBuild(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10, DefectCount: 1,
	})
	require.NoError(t, err)
	require.Len(t, alerts.sent, 1)
	require.InDelta(t, 0.1, alerts.sent[0].DefectRate, 0.0001)

	// Under the threshold no alert goes out.
	_, err = svc.RecordBuild(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 100, DefectCount: 1,
	})
	require.NoError(t, err)
	require.Len(t, alerts.sent, 1)
}

func TestCheckInsufficientInventoryPreview(t *testing.T) {
	repo, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1}, nil)
	ctx := context.Background()
	repo.state.balances[balKey(10, 1)] = 100
	repo.state.balances[balKey(20, 1)] = 3

	shortages, err := svc.CheckInsufficientInventory(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10, SourceLocationID: 1,
	})
	require.NoError(t, err)
	require.Len(t, shortages, 1)
	require.EqualValues(t, 20, shortages[0].ComponentID)
	require.InDelta(t, 7, shortages[0].Shortage, 0.0001)
	require.Empty(t, repo.state.transactions)
}

func TestCheckExpiredLotsPreview(t *testing.T) {
	repo, svc := newBuildFixture(companies.Company{ID: 1, DefaultLocationID: 1}, nil)
	ctx := context.Background()
	expiredAt := time.Now().UTC().Add(-24 * time.Hour)
	repo.state.lots[1] = &memoryLot{componentID: 10, stock: LotStock{LotID: 1, LotNumber: "OLD", ExpiryDate: &expiredAt, Remaining: 30}}

	expired, err := svc.CheckExpiredLots(ctx, BuildInput{
		CompanyID: 1, SKU: "WIDGET", BOMVersionID: 7, UnitsToBuild: 10,
	})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, "OLD", expired[0].LotNumber)
	require.InDelta(t, 20, expired[0].Quantity, 0.0001)
}
