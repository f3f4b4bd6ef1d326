package components

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stocklot-erp/stocklot/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Component, int, error)
	Get(ctx context.Context, id int64) (Component, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]Component, error)
	Create(ctx context.Context, component Component) (Component, error)
	Update(ctx context.Context, id int64, component Component) error
	UpdateCost(ctx context.Context, id int64, costPerUnit float64) error
	Deactivate(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const componentColumns = `id, company_id, sku, name, unit, cost_per_unit, reorder_point, lead_time_days, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Component, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.CompanyID != nil {
		argCount++
		where += ` AND company_id = $` + strconv.Itoa(argCount)
		args = append(args, *filters.CompanyID)
	}
	if filters.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR sku ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		where += ` AND is_active = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM components`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + componentColumns + ` FROM components` + where + ` ORDER BY sku ASC`
	limit := filters.Limit
	if limit <= 0 {
		limit = shared.DefaultLimit
	}
	page := filters.Page
	if page <= 0 {
		page = shared.DefaultPage
	}
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, (page-1)*limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, c)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Component, error) {
	row := r.db.QueryRow(ctx, `SELECT `+componentColumns+` FROM components WHERE id = $1`, id)
	c, err := scanComponent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Component{}, shared.ErrNotFound
		}
		return Component{}, err
	}
	return c, nil
}

// GetMany returns components keyed by ID. Missing IDs are simply absent;
// callers decide whether that is an error.
func (r *repository) GetMany(ctx context.Context, ids []int64) (map[int64]Component, error) {
	result := make(map[int64]Component, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+componentColumns+` FROM components WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		result[c.ID] = c
	}
	return result, rows.Err()
}

func (r *repository) Create(ctx context.Context, component Component) (Component, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO components (company_id, sku, name, unit, cost_per_unit, reorder_point, lead_time_days, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
RETURNING `+componentColumns,
		component.CompanyID, component.SKU, component.Name, component.Unit, component.CostPerUnit, component.ReorderPoint, component.LeadTimeDays, component.IsActive)
	return scanComponent(row)
}

func (r *repository) Update(ctx context.Context, id int64, component Component) error {
	tag, err := r.db.Exec(ctx, `UPDATE components SET sku=$2, name=$3, unit=$4, cost_per_unit=$5, reorder_point=$6, lead_time_days=$7, is_active=$8, updated_at=NOW() WHERE id=$1`,
		id, component.SKU, component.Name, component.Unit, component.CostPerUnit, component.ReorderPoint, component.LeadTimeDays, component.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) UpdateCost(ctx context.Context, id int64, costPerUnit float64) error {
	tag, err := r.db.Exec(ctx, `UPDATE components SET cost_per_unit=$2, updated_at=NOW() WHERE id=$1`, id, costPerUnit)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE components SET is_active=false, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanComponent(row pgx.Row) (Component, error) {
	var c Component
	err := row.Scan(&c.ID, &c.CompanyID, &c.SKU, &c.Name, &c.Unit, &c.CostPerUnit, &c.ReorderPoint, &c.LeadTimeDays, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
