package bom

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	versions map[int64]Version
	lines    map[int64][]Line
	resolved map[int64]Resolved
	nextID   int64
	active   map[string]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		versions: make(map[int64]Version),
		lines:    make(map[int64][]Line),
		resolved: make(map[int64]Resolved),
		active:   make(map[string]int64),
	}
}

func (r *fakeRepo) GetVersion(ctx context.Context, id int64) (Version, []Line, error) {
	v, ok := r.versions[id]
	if !ok {
		return Version{}, nil, ErrVersionNotFound
	}
	return v, r.lines[id], nil
}

func (r *fakeRepo) GetActiveVersion(ctx context.Context, companyID int64, sku string) (Version, []Line, error) {
	id, ok := r.active[sku]
	if !ok {
		return Version{}, nil, ErrNoActiveVersion
	}
	return r.versions[id], r.lines[id], nil
}

func (r *fakeRepo) ResolveVersion(ctx context.Context, id int64) (Resolved, error) {
	res, ok := r.resolved[id]
	if !ok {
		return Resolved{}, ErrVersionNotFound
	}
	return res, nil
}

func (r *fakeRepo) CreateVersion(ctx context.Context, version Version, lines []Line, activate bool) (Version, error) {
	r.nextID++
	version.ID = r.nextID
	version.Revision = 1
	version.IsActive = activate
	r.versions[version.ID] = version
	r.lines[version.ID] = lines
	if activate {
		r.active[version.SKU] = version.ID
	}
	return version, nil
}

func (r *fakeRepo) Activate(ctx context.Context, id int64) error {
	v, ok := r.versions[id]
	if !ok {
		return ErrVersionNotFound
	}
	r.active[v.SKU] = id
	return nil
}

func (r *fakeRepo) ListVersions(ctx context.Context, companyID int64, sku string) ([]Version, error) {
	var result []Version
	for _, v := range r.versions {
		if v.CompanyID == companyID && v.SKU == sku {
			result = append(result, v)
		}
	}
	return result, nil
}

func TestCreateVersionValidation(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	_, err := svc.CreateVersion(ctx, CreateVersionInput{CompanyID: 1, SKU: "WIDGET-1"})
	require.ErrorIs(t, err, ErrEmptyBOM)

	_, err = svc.CreateVersion(ctx, CreateVersionInput{CompanyID: 1, SKU: "WIDGET-1", Lines: []LineInput{{ComponentID: 7, QuantityPerUnit: 0}}})
	require.Error(t, err)

	_, err = svc.CreateVersion(ctx, CreateVersionInput{CompanyID: 1, SKU: "WIDGET-1", Lines: []LineInput{
		{ComponentID: 7, QuantityPerUnit: 2},
		{ComponentID: 7, QuantityPerUnit: 1},
	}})
	require.Error(t, err)

	version, err := svc.CreateVersion(ctx, CreateVersionInput{CompanyID: 1, SKU: "WIDGET-1", Activate: true, Lines: []LineInput{
		{ComponentID: 7, QuantityPerUnit: 2},
		{ComponentID: 8, QuantityPerUnit: 0.5},
	}})
	require.NoError(t, err)
	require.True(t, version.IsActive)
}

func TestCostRollup(t *testing.T) {
	resolved := Resolved{
		Version: Version{ID: 1, SKU: "WIDGET-1"},
		Lines: []ResolvedLine{
			{ComponentID: 7, QuantityPerUnit: 2, CostPerUnit: decimal.NewFromFloat(1.25)},
			{ComponentID: 8, QuantityPerUnit: 0.5, CostPerUnit: decimal.NewFromFloat(10)},
		},
	}
	// 2*1.25 + 0.5*10 = 7.50
	require.True(t, resolved.UnitCost().Equal(decimal.NewFromFloat(7.5)))
	require.True(t, resolved.TotalCost(4).Equal(decimal.NewFromFloat(30)))
}

func TestCostRollupExactDecimal(t *testing.T) {
	// 0.1 + 0.2 style sums stay exact under decimal arithmetic.
	resolved := Resolved{
		Lines: []ResolvedLine{
			{QuantityPerUnit: 1, CostPerUnit: decimal.RequireFromString("0.1")},
			{QuantityPerUnit: 1, CostPerUnit: decimal.RequireFromString("0.2")},
		},
	}
	require.Equal(t, "0.3", resolved.UnitCost().String())
}
