package companies

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stocklot-erp/stocklot/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Company, int, error)
	Get(ctx context.Context, id int64) (Company, error)
	Create(ctx context.Context, company Company) (Company, error)
	Update(ctx context.Context, id int64, company Company) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const companyColumns = `id, code, name, can_override_expiry, defect_rate_threshold, default_location_id, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Company, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM companies`).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = shared.DefaultLimit
	}
	page := filters.Page
	if page <= 0 {
		page = shared.DefaultPage
	}
	rows, err := r.db.Query(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY name ASC LIMIT $1 OFFSET $2`, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, err
		}
		companies = append(companies, c)
	}
	return companies, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Company, error) {
	row := r.db.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
	c, err := scanCompany(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, shared.ErrNotFound
		}
		return Company{}, err
	}
	return c, nil
}

func (r *repository) Create(ctx context.Context, company Company) (Company, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO companies (code, name, can_override_expiry, defect_rate_threshold, default_location_id, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
RETURNING `+companyColumns,
		company.Code, company.Name, company.CanOverrideExpiry, company.DefectRateThreshold, company.DefaultLocationID, company.IsActive)
	return scanCompany(row)
}

func (r *repository) Update(ctx context.Context, id int64, company Company) error {
	tag, err := r.db.Exec(ctx, `UPDATE companies SET code=$2, name=$3, can_override_expiry=$4, defect_rate_threshold=$5, default_location_id=$6, is_active=$7, updated_at=NOW() WHERE id=$1`,
		id, company.Code, company.Name, company.CanOverrideExpiry, company.DefectRateThreshold, company.DefaultLocationID, company.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanCompany(row pgx.Row) (Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.CanOverrideExpiry, &c.DefectRateThreshold, &c.DefaultLocationID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
