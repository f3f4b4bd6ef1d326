package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stocklot-erp/stocklot/internal/inventory"
)

type memoryRepo struct {
	components     []ComponentInfo
	nets           map[int64]float64
	companyConfigs map[int64]Config
	// lastSince records the window start the service asked for.
	lastSince    time.Time
	lastExcluded []inventory.TransactionType
	lastLocation int64
}

func (r *memoryRepo) GetComponent(ctx context.Context, id int64) (ComponentInfo, error) {
	for _, c := range r.components {
		if c.ID == id {
			return c, nil
		}
	}
	return ComponentInfo{}, ErrComponentNotFound
}

func (r *memoryRepo) ListActiveComponents(ctx context.Context, companyID int64) ([]ComponentInfo, error) {
	result := make([]ComponentInfo, len(r.components))
	copy(result, r.components)
	return result, nil
}

func (r *memoryRepo) GetCompanyConfig(ctx context.Context, companyID int64) (*Config, error) {
	if cfg, ok := r.companyConfigs[companyID]; ok {
		return &cfg, nil
	}
	return nil, nil
}

func (r *memoryRepo) ConsumptionNet(ctx context.Context, componentIDs []int64, since time.Time, excluded []inventory.TransactionType, locationID int64) (map[int64]float64, error) {
	r.lastSince = since
	r.lastExcluded = excluded
	r.lastLocation = locationID
	out := make(map[int64]float64, len(componentIDs))
	for _, id := range componentIDs {
		out[id] = r.nets[id]
	}
	return out, nil
}

type memoryBalances struct {
	quantities map[int64]float64
}

func (b *memoryBalances) GetQuantities(ctx context.Context, componentIDs []int64, locationID int64) (map[int64]float64, error) {
	out := make(map[int64]float64, len(componentIDs))
	for _, id := range componentIDs {
		out[id] = b.quantities[id]
	}
	return out, nil
}

func TestForecastSteadyConsumption(t *testing.T) {
	repo := &memoryRepo{
		components: []ComponentInfo{{ID: 10, SKU: "RES-01", Name: "Resistor", LeadTimeDays: 7, ReorderPoint: 20}},
		nets:       map[int64]float64{10: -300},
	}
	balances := &memoryBalances{quantities: map[int64]float64{10: 100}}
	svc := NewService(repo, balances, nil, nil, DefaultConfig(30, 3))

	forecasts, err := svc.GetForecast(context.Background(), Query{CompanyID: 1, ComponentID: 10})
	require.NoError(t, err)
	require.Len(t, forecasts, 1)

	f := forecasts[0]
	require.InDelta(t, 10, f.AverageDailyConsumption, 0.0001)
	require.NotNil(t, f.DaysUntilRunout)
	require.Equal(t, 10, *f.DaysUntilRunout)
	require.NotNil(t, f.RunoutDate)
	require.InDelta(t, 100, f.RecommendedReorderQty, 0.0001)
	require.NotNil(t, f.RecommendedReorderDate)
	require.Equal(t, f.RunoutDate.AddDate(0, 0, -7), *f.RecommendedReorderDate)
}

func TestForecastZeroConsumption(t *testing.T) {
	repo := &memoryRepo{
		components: []ComponentInfo{{ID: 10, SKU: "RES-01", LeadTimeDays: 7}},
		nets:       map[int64]float64{10: 0},
	}
	balances := &memoryBalances{quantities: map[int64]float64{10: 50}}
	svc := NewService(repo, balances, nil, nil, DefaultConfig(30, 3))

	forecasts, err := svc.GetForecast(context.Background(), Query{CompanyID: 1, ComponentID: 10})
	require.NoError(t, err)

	f := forecasts[0]
	require.InDelta(t, 0, f.AverageDailyConsumption, 0.0001)
	require.Nil(t, f.DaysUntilRunout)
	require.Nil(t, f.RunoutDate)
	require.InDelta(t, 0, f.RecommendedReorderQty, 0.0001)
	require.Nil(t, f.RecommendedReorderDate)
}

func TestForecastPositiveNetMeansNoSignal(t *testing.T) {
	// Restocking more than consuming yields a positive net; that is not a
	// consumption signal.
	require.InDelta(t, 0, DailyRate(120, 30), 0.0001)
	require.InDelta(t, 0, DailyRate(0, 30), 0.0001)
	require.InDelta(t, 4, DailyRate(-120, 30), 0.0001)
}

func TestForecastImmediateRunout(t *testing.T) {
	today := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	days, date := Runout(-5, 2, today)
	require.NotNil(t, days)
	require.Equal(t, 0, *days)
	require.Equal(t, today, *date)
}

func TestForecastAllComponentsDefaultsMissingToZero(t *testing.T) {
	repo := &memoryRepo{
		components: []ComponentInfo{
			{ID: 10, SKU: "RES-01", LeadTimeDays: 7},
			{ID: 20, SKU: "ENC-01", LeadTimeDays: 14},
		},
		nets: map[int64]float64{10: -60},
	}
	balances := &memoryBalances{quantities: map[int64]float64{10: 30}}
	svc := NewService(repo, balances, nil, nil, DefaultConfig(30, 0))

	forecasts, err := svc.GetForecast(context.Background(), Query{CompanyID: 1})
	require.NoError(t, err)
	require.Len(t, forecasts, 2)

	require.InDelta(t, 2, forecasts[0].AverageDailyConsumption, 0.0001)
	require.InDelta(t, 0, forecasts[1].AverageDailyConsumption, 0.0001)
	require.InDelta(t, 0, forecasts[1].QuantityOnHand, 0.0001)
}

func TestForecastWindowAndExclusions(t *testing.T) {
	repo := &memoryRepo{
		components: []ComponentInfo{{ID: 10, SKU: "RES-01"}},
		nets:       map[int64]float64{},
	}
	svc := NewService(repo, &memoryBalances{quantities: map[int64]float64{}}, nil, nil, DefaultConfig(14, 0))

	_, err := svc.GetForecast(context.Background(), Query{CompanyID: 1, ComponentID: 10, LocationID: 3})
	require.NoError(t, err)

	require.Equal(t, int64(3), repo.lastLocation)
	require.Contains(t, repo.lastExcluded, inventory.TransactionTypeInitial)
	wantSince := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -14)
	require.Equal(t, wantSince, repo.lastSince)
}

func TestForecastCompanyConfigOverridesDefaults(t *testing.T) {
	repo := &memoryRepo{
		components:     []ComponentInfo{{ID: 10, SKU: "RES-01", LeadTimeDays: 5}},
		nets:           map[int64]float64{10: -100},
		companyConfigs: map[int64]Config{1: {LookbackDays: 10, SafetyDays: 5, ExcludedTypes: []inventory.TransactionType{inventory.TransactionTypeInitial}}},
	}
	balances := &memoryBalances{quantities: map[int64]float64{10: 100}}
	svc := NewService(repo, balances, nil, nil, DefaultConfig(30, 0))

	forecasts, err := svc.GetForecast(context.Background(), Query{CompanyID: 1, ComponentID: 10})
	require.NoError(t, err)

	// The company row's 10-day window applies, not the 30-day default.
	wantSince := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -10)
	require.Equal(t, wantSince, repo.lastSince)
	require.InDelta(t, 10, forecasts[0].AverageDailyConsumption, 0.0001)
	// Safety days from the row pad the recommendation: 10 * (5 + 5).
	require.InDelta(t, 100, forecasts[0].RecommendedReorderQty, 0.0001)
}

func TestForecastCompanyConfigFallsBackFieldwise(t *testing.T) {
	repo := &memoryRepo{
		components:     []ComponentInfo{{ID: 10, SKU: "RES-01"}},
		nets:           map[int64]float64{},
		companyConfigs: map[int64]Config{1: {LookbackDays: 7, SafetyDays: -1}},
	}
	svc := NewService(repo, &memoryBalances{quantities: map[int64]float64{}}, nil, nil, DefaultConfig(30, 3))

	_, err := svc.GetForecast(context.Background(), Query{CompanyID: 1, ComponentID: 10})
	require.NoError(t, err)

	wantSince := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -7)
	require.Equal(t, wantSince, repo.lastSince)
	// Exclusions the row leaves unset come from the defaults.
	require.Contains(t, repo.lastExcluded, inventory.TransactionTypeInitial)
}

func TestForecastQueryConfigKeepsUnnamedDefaults(t *testing.T) {
	repo := &memoryRepo{
		components: []ComponentInfo{{ID: 10, SKU: "RES-01", LeadTimeDays: 7}},
		nets:       map[int64]float64{10: -140},
	}
	balances := &memoryBalances{quantities: map[int64]float64{10: 100}}
	svc := NewService(repo, balances, nil, nil, DefaultConfig(30, 3))

	// Only the lookback is named; safety days stay at the configured 3.
	forecasts, err := svc.GetForecast(context.Background(), Query{
		CompanyID: 1, ComponentID: 10,
		Config: &Config{LookbackDays: 14, SafetyDays: -1},
	})
	require.NoError(t, err)

	wantSince := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -14)
	require.Equal(t, wantSince, repo.lastSince)
	// 140 over 14 days = 10/day; qty = 10 * (7 lead + 3 safety).
	require.InDelta(t, 100, forecasts[0].RecommendedReorderQty, 0.0001)
}

func TestForecastReorderStatus(t *testing.T) {
	repo := &memoryRepo{
		components: []ComponentInfo{{ID: 10, SKU: "RES-01", ReorderPoint: 50}},
		nets:       map[int64]float64{10: -30},
	}
	balances := &memoryBalances{quantities: map[int64]float64{10: 40}}
	svc := NewService(repo, balances, nil, nil, DefaultConfig(30, 0))

	forecasts, err := svc.GetForecast(context.Background(), Query{CompanyID: 1, ComponentID: 10})
	require.NoError(t, err)
	require.Equal(t, inventory.ReorderStatusCritical, forecasts[0].ReorderStatus)
}

func TestBelowReorderPoint(t *testing.T) {
	forecasts := []Forecast{
		{ComponentID: 1, ReorderStatus: inventory.ReorderStatusOK},
		{ComponentID: 2, ReorderStatus: inventory.ReorderStatusWarning},
		{ComponentID: 3, ReorderStatus: inventory.ReorderStatusCritical},
	}
	low := BelowReorderPoint(forecasts)
	require.Len(t, low, 2)
	require.EqualValues(t, 2, low[0].ComponentID)
	require.EqualValues(t, 3, low[1].ComponentID)
}
