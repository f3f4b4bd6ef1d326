package forecast

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklot-erp/stocklot/internal/inventory"
)

// ErrComponentNotFound indicates the requested component does not exist or
// is inactive.
var ErrComponentNotFound = errors.New("forecast: component not found")

// ComponentInfo is the slice of the component record the engine needs.
type ComponentInfo struct {
	ID           int64
	SKU          string
	Name         string
	ReorderPoint float64
	LeadTimeDays int
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetComponent(ctx context.Context, id int64) (ComponentInfo, error) {
	var c ComponentInfo
	err := r.pool.QueryRow(ctx,
		`SELECT id, sku, name, reorder_point, lead_time_days FROM components WHERE id = $1 AND is_active = TRUE`, id).
		Scan(&c.ID, &c.SKU, &c.Name, &c.ReorderPoint, &c.LeadTimeDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ComponentInfo{}, ErrComponentNotFound
		}
		return ComponentInfo{}, err
	}
	return c, nil
}

func (r *Repository) ListActiveComponents(ctx context.Context, companyID int64) ([]ComponentInfo, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, sku, name, reorder_point, lead_time_days FROM components WHERE company_id = $1 AND is_active = TRUE ORDER BY sku`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ComponentInfo
	for rows.Next() {
		var c ComponentInfo
		if err := rows.Scan(&c.ID, &c.SKU, &c.Name, &c.ReorderPoint, &c.LeadTimeDays); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCompanyConfig loads the company's forecast window settings. A company
// without a row returns nil and the caller falls back to the service
// defaults.
func (r *Repository) GetCompanyConfig(ctx context.Context, companyID int64) (*Config, error) {
	var (
		cfg   Config
		types []string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT lookback_days, safety_days, excluded_types FROM forecast_configs WHERE company_id = $1`, companyID).
		Scan(&cfg.LookbackDays, &cfg.SafetyDays, &types)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if types != nil {
		cfg.ExcludedTypes = make([]inventory.TransactionType, 0, len(types))
		for _, t := range types {
			cfg.ExcludedTypes = append(cfg.ExcludedTypes, inventory.TransactionType(t))
		}
	}
	return &cfg, nil
}

// ConsumptionNet sums signed line deltas per component over the window,
// skipping excluded transaction types. A location filter scopes lines to
// that location, which naturally includes that location's leg of transfers.
// Every requested ID is present in the result, defaulting to zero.
func (r *Repository) ConsumptionNet(ctx context.Context, componentIDs []int64, since time.Time, excluded []inventory.TransactionType, locationID int64) (map[int64]float64, error) {
	out := make(map[int64]float64, len(componentIDs))
	for _, id := range componentIDs {
		out[id] = 0
	}
	if len(componentIDs) == 0 {
		return out, nil
	}

	types := make([]string, 0, len(excluded))
	for _, t := range excluded {
		types = append(types, string(t))
	}

	query := `SELECT l.component_id, COALESCE(SUM(l.quantity_change), 0)
		FROM inventory_tx_lines l
		JOIN inventory_transactions t ON t.id = l.transaction_id
		WHERE l.component_id = ANY($1) AND t.tx_date >= $2 AND NOT (t.type = ANY($3))`
	args := []any{componentIDs, since, types}
	if locationID > 0 {
		query += ` AND l.location_id = $4`
		args = append(args, locationID)
	}
	query += ` GROUP BY l.component_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var net float64
		if err := rows.Scan(&id, &net); err != nil {
			return nil, err
		}
		out[id] = net
	}
	return out, rows.Err()
}
