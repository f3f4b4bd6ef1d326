package locations

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stocklot-erp/stocklot/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Location, int, error)
	Get(ctx context.Context, id int64) (Location, error)
	Create(ctx context.Context, location Location) (Location, error)
	Update(ctx context.Context, id int64, location Location) error
	Deactivate(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const locationColumns = `id, company_id, code, name, type, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Location, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if filters.CompanyID != nil {
		args = append(args, *filters.CompanyID)
		where += ` AND company_id = $1`
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM locations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+locationColumns+` FROM locations`+where+` ORDER BY code ASC`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, l)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Location, error) {
	row := r.db.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id)
	l, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, shared.ErrNotFound
		}
		return Location{}, err
	}
	return l, nil
}

func (r *repository) Create(ctx context.Context, location Location) (Location, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO locations (company_id, code, name, type, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
RETURNING `+locationColumns,
		location.CompanyID, location.Code, location.Name, string(location.Type), location.IsActive)
	return scanLocation(row)
}

func (r *repository) Update(ctx context.Context, id int64, location Location) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET code=$2, name=$3, type=$4, is_active=$5, updated_at=NOW() WHERE id=$1`,
		id, location.Code, location.Name, string(location.Type), location.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET is_active=false, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanLocation(row pgx.Row) (Location, error) {
	var l Location
	var typ string
	err := row.Scan(&l.ID, &l.CompanyID, &l.Code, &l.Name, &typ, &l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	l.Type = LocationType(typ)
	return l, err
}
