package bom

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists BOM versions and lines in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetVersion loads one version with its lines.
func (r *Repository) GetVersion(ctx context.Context, id int64) (Version, []Line, error) {
	var v Version
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, sku, revision, is_active, notes, created_at FROM bom_versions WHERE id=$1`, id).
		Scan(&v.ID, &v.CompanyID, &v.SKU, &v.Revision, &v.IsActive, &v.Notes, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, nil, ErrVersionNotFound
		}
		return Version{}, nil, err
	}
	lines, err := r.linesFor(ctx, v.ID)
	if err != nil {
		return Version{}, nil, err
	}
	return v, lines, nil
}

// GetActiveVersion loads the active version for a SKU.
func (r *Repository) GetActiveVersion(ctx context.Context, companyID int64, sku string) (Version, []Line, error) {
	var v Version
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, sku, revision, is_active, notes, created_at
FROM bom_versions WHERE company_id=$1 AND sku=$2 AND is_active ORDER BY revision DESC LIMIT 1`, companyID, sku).
		Scan(&v.ID, &v.CompanyID, &v.SKU, &v.Revision, &v.IsActive, &v.Notes, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, nil, ErrNoActiveVersion
		}
		return Version{}, nil, err
	}
	lines, err := r.linesFor(ctx, v.ID)
	if err != nil {
		return Version{}, nil, err
	}
	return v, lines, nil
}

// ResolveVersion joins a version's lines with current component costs.
func (r *Repository) ResolveVersion(ctx context.Context, id int64) (Resolved, error) {
	v, _, err := r.GetVersion(ctx, id)
	if err != nil {
		return Resolved{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT l.component_id, c.sku, c.name, l.quantity_per_unit, c.cost_per_unit
FROM bom_lines l JOIN components c ON c.id = l.component_id
WHERE l.version_id = $1 ORDER BY l.id ASC`, id)
	if err != nil {
		return Resolved{}, err
	}
	defer rows.Close()

	resolved := Resolved{Version: v}
	for rows.Next() {
		var line ResolvedLine
		var cost float64
		if err := rows.Scan(&line.ComponentID, &line.ComponentSKU, &line.ComponentName, &line.QuantityPerUnit, &cost); err != nil {
			return Resolved{}, err
		}
		line.CostPerUnit = decimal.NewFromFloat(cost)
		resolved.Lines = append(resolved.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return Resolved{}, err
	}
	if len(resolved.Lines) == 0 {
		return Resolved{}, ErrEmptyBOM
	}
	return resolved, nil
}

// CreateVersion inserts a version with its lines, deactivating the previous
// active revision when activate is set.
func (r *Repository) CreateVersion(ctx context.Context, version Version, lines []Line, activate bool) (Version, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Version{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if activate {
		if _, err := tx.Exec(ctx, `UPDATE bom_versions SET is_active=false WHERE company_id=$1 AND sku=$2 AND is_active`, version.CompanyID, version.SKU); err != nil {
			return Version{}, err
		}
	}
	err = tx.QueryRow(ctx, `INSERT INTO bom_versions (company_id, sku, revision, is_active, notes, created_at)
VALUES ($1, $2, COALESCE((SELECT MAX(revision)+1 FROM bom_versions WHERE company_id=$1 AND sku=$2), 1), $3, $4, NOW())
RETURNING id, revision, created_at`, version.CompanyID, version.SKU, activate, version.Notes).
		Scan(&version.ID, &version.Revision, &version.CreatedAt)
	if err != nil {
		return Version{}, err
	}
	version.IsActive = activate
	for _, line := range lines {
		if _, err := tx.Exec(ctx, `INSERT INTO bom_lines (version_id, component_id, quantity_per_unit) VALUES ($1, $2, $3)`,
			version.ID, line.ComponentID, line.QuantityPerUnit); err != nil {
			return Version{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Version{}, err
	}
	return version, nil
}

// Activate marks a version active and deactivates its siblings.
func (r *Repository) Activate(ctx context.Context, id int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var companyID int64
	var sku string
	err = tx.QueryRow(ctx, `SELECT company_id, sku FROM bom_versions WHERE id=$1`, id).Scan(&companyID, &sku)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionNotFound
		}
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE bom_versions SET is_active=false WHERE company_id=$1 AND sku=$2 AND is_active`, companyID, sku); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE bom_versions SET is_active=true WHERE id=$1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListVersions lists all revisions for a SKU, newest first.
func (r *Repository) ListVersions(ctx context.Context, companyID int64, sku string) ([]Version, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, sku, revision, is_active, notes, created_at
FROM bom_versions WHERE company_id=$1 AND sku=$2 ORDER BY revision DESC`, companyID, sku)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.CompanyID, &v.SKU, &v.Revision, &v.IsActive, &v.Notes, &v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (r *Repository) linesFor(ctx context.Context, versionID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, version_id, component_id, quantity_per_unit FROM bom_lines WHERE version_id=$1 ORDER BY id ASC`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.VersionID, &l.ComponentID, &l.QuantityPerUnit); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
