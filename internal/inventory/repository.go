package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stocklot-erp/stocklot/internal/bom"
	"github.com/stocklot-erp/stocklot/internal/platform/db"
)

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations available inside one atomic unit.
type TxRepository interface {
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	InsertTransactionLine(ctx context.Context, line TransactionLine) (int64, error)
	InsertFinishedGoodsLine(ctx context.Context, line FinishedGoodsLine) (int64, error)
	ApplyBalanceDelta(ctx context.Context, componentID, locationID int64, delta float64) (float64, error)
	ApplyFinishedGoodsDelta(ctx context.Context, sku string, locationID int64, delta float64) (float64, error)
	GetQuantity(ctx context.Context, componentID, locationID int64) (float64, error)
	GetFinishedGoodsQuantity(ctx context.Context, sku string, locationID int64) (float64, error)
	GetLotStocksForUpdate(ctx context.Context, componentID int64) ([]LotStock, error)
	GetLotByNumber(ctx context.Context, componentID int64, lotNumber string) (Lot, error)
	CreateLot(ctx context.Context, lot Lot) (int64, error)
	TopUpLot(ctx context.Context, lotID int64, quantity float64) error
	DecrementLotBalance(ctx context.Context, lotID int64, quantity float64) error
	ComponentActive(ctx context.Context, id int64) error
	LocationActive(ctx context.Context, id int64) error
	GetComponentCost(ctx context.Context, id int64) (float64, error)
	UpdateComponentCost(ctx context.Context, id int64, costPerUnit float64) error
	ResolveBOM(ctx context.Context, versionID int64) (bom.Resolved, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction. All
// ledger mutation goes through here; a failed callback rolls the whole unit
// back so a half-applied transaction is never observable.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetQuantity returns the on-hand quantity of a component at a location, or
// summed across locations when locationID is zero. Missing balance rows read
// as zero.
func (r *Repository) GetQuantity(ctx context.Context, componentID, locationID int64) (float64, error) {
	return getQuantity(ctx, r.pool, componentID, locationID)
}

// GetQuantities returns quantities for a batch of components. Every requested
// ID is present in the result, defaulting to zero.
func (r *Repository) GetQuantities(ctx context.Context, componentIDs []int64, locationID int64) (map[int64]float64, error) {
	result := make(map[int64]float64, len(componentIDs))
	for _, id := range componentIDs {
		result[id] = 0
	}
	if len(componentIDs) == 0 {
		return result, nil
	}
	query := `SELECT component_id, SUM(quantity) FROM inventory_balances WHERE component_id = ANY($1)`
	args := []interface{}{componentIDs}
	if locationID != 0 {
		query += ` AND location_id = $2`
		args = append(args, locationID)
	}
	query += ` GROUP BY component_id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var qty float64
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		result[id] = qty
	}
	return result, rows.Err()
}

// GetQuantitiesByLocation returns a component's balances keyed by location.
func (r *Repository) GetQuantitiesByLocation(ctx context.Context, componentID int64) (map[int64]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT location_id, quantity FROM inventory_balances WHERE component_id = $1`, componentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[int64]float64)
	for rows.Next() {
		var locationID int64
		var qty float64
		if err := rows.Scan(&locationID, &qty); err != nil {
			return nil, err
		}
		result[locationID] = qty
	}
	return result, rows.Err()
}

// GetFinishedGoodsQuantity mirrors GetQuantity for the finished-goods ledger.
func (r *Repository) GetFinishedGoodsQuantity(ctx context.Context, sku string, locationID int64) (float64, error) {
	return getFinishedGoodsQuantity(ctx, r.pool, sku, locationID)
}

// GetLotStocks lists lots of a component with positive remaining balance.
func (r *Repository) GetLotStocks(ctx context.Context, componentID int64) ([]LotStock, error) {
	return getLotStocks(ctx, r.pool, componentID, false)
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	CompanyID   int64
	ComponentID int64
	LocationID  int64
	Type        TransactionType
	From        time.Time
	To          time.Time
	Limit       int
}

// ListTransactions returns transaction headers, newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := `SELECT DISTINCT t.id, t.code, t.type, t.company_id, t.location_id, t.dest_location_id, t.sku, t.bom_version_id,
t.units_built, t.unit_cost, t.total_cost, t.defect_count, t.notes, t.tx_date, t.created_by, t.created_at
FROM inventory_transactions t`
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 0
	if filter.ComponentID != 0 {
		query += ` JOIN inventory_tx_lines l ON l.transaction_id = t.id`
		argCount++
		where += ` AND l.component_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.ComponentID)
	}
	if filter.CompanyID != 0 {
		argCount++
		where += ` AND t.company_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.CompanyID)
	}
	if filter.LocationID != 0 {
		argCount++
		where += ` AND (t.location_id = $` + strconv.Itoa(argCount) + ` OR t.dest_location_id = $` + strconv.Itoa(argCount) + `)`
		args = append(args, filter.LocationID)
	}
	if filter.Type != "" {
		argCount++
		where += ` AND t.type = $` + strconv.Itoa(argCount)
		args = append(args, string(filter.Type))
	}
	if !filter.From.IsZero() {
		argCount++
		where += ` AND t.tx_date >= $` + strconv.Itoa(argCount)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		argCount++
		where += ` AND t.tx_date <= $` + strconv.Itoa(argCount)
		args = append(args, filter.To)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	argCount++
	query += where + ` ORDER BY t.id DESC LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// GetTransactionLines returns the lines of one transaction.
func (r *Repository) GetTransactionLines(ctx context.Context, transactionID int64) ([]TransactionLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, transaction_id, component_id, location_id, quantity_change, cost_per_unit, lot_id
FROM inventory_tx_lines WHERE transaction_id = $1 ORDER BY id ASC`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []TransactionLine
	for rows.Next() {
		var line TransactionLine
		var locationID, lotID *int64
		if err := rows.Scan(&line.ID, &line.TransactionID, &line.ComponentID, &locationID, &line.QuantityChange, &line.CostPerUnit, &lotID); err != nil {
			return nil, err
		}
		if locationID != nil {
			line.LocationID = *locationID
		}
		if lotID != nil {
			line.LotID = *lotID
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// --- transactional operations ---

func (r *txRepository) InsertTransaction(ctx context.Context, tx Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_transactions
(code, type, company_id, location_id, dest_location_id, sku, bom_version_id, units_built, unit_cost, total_cost, defect_count, notes, tx_date, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW()) RETURNING id`,
		tx.Code, string(tx.Type), tx.CompanyID, nullInt(tx.LocationID), nullInt(tx.DestLocationID), nullStr(tx.SKU),
		nullInt(tx.BOMVersionID), tx.UnitsBuilt, tx.UnitCost, tx.TotalCost, tx.DefectCount, tx.Notes, tx.Date, nullInt(tx.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertTransactionLine(ctx context.Context, line TransactionLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_tx_lines
(transaction_id, component_id, location_id, quantity_change, cost_per_unit, lot_id)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		line.TransactionID, line.ComponentID, nullInt(line.LocationID), line.QuantityChange, line.CostPerUnit, nullInt(line.LotID)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertFinishedGoodsLine(ctx context.Context, line FinishedGoodsLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO finished_goods_lines
(transaction_id, sku, location_id, quantity_change)
VALUES ($1,$2,$3,$4) RETURNING id`,
		line.TransactionID, line.SKU, line.LocationID, line.QuantityChange).Scan(&id)
	return id, err
}

// ApplyBalanceDelta upserts-with-increment so concurrent writers on the same
// key cannot lose updates. Returns the new quantity.
func (r *txRepository) ApplyBalanceDelta(ctx context.Context, componentID, locationID int64, delta float64) (float64, error) {
	var qty float64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_balances (component_id, location_id, quantity, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (component_id, location_id)
DO UPDATE SET quantity = inventory_balances.quantity + EXCLUDED.quantity, updated_at = NOW()
RETURNING quantity`, componentID, locationID, delta).Scan(&qty)
	return qty, err
}

func (r *txRepository) ApplyFinishedGoodsDelta(ctx context.Context, sku string, locationID int64, delta float64) (float64, error) {
	var qty float64
	err := r.tx.QueryRow(ctx, `INSERT INTO finished_goods_balances (sku, location_id, quantity, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (sku, location_id)
DO UPDATE SET quantity = finished_goods_balances.quantity + EXCLUDED.quantity, updated_at = NOW()
RETURNING quantity`, sku, locationID, delta).Scan(&qty)
	return qty, err
}

func (r *txRepository) GetQuantity(ctx context.Context, componentID, locationID int64) (float64, error) {
	return getQuantity(ctx, r.tx, componentID, locationID)
}

func (r *txRepository) GetFinishedGoodsQuantity(ctx context.Context, sku string, locationID int64) (float64, error) {
	return getFinishedGoodsQuantity(ctx, r.tx, sku, locationID)
}

func (r *txRepository) GetLotStocksForUpdate(ctx context.Context, componentID int64) ([]LotStock, error) {
	return getLotStocks(ctx, r.tx, componentID, true)
}

func (r *txRepository) GetLotByNumber(ctx context.Context, componentID int64, lotNumber string) (Lot, error) {
	var lot Lot
	err := r.tx.QueryRow(ctx, `SELECT id, component_id, lot_number, expiry_date, received_quantity, supplier, created_at
FROM lots WHERE component_id = $1 AND lot_number = $2`, componentID, lotNumber).
		Scan(&lot.ID, &lot.ComponentID, &lot.LotNumber, &lot.ExpiryDate, &lot.ReceivedQuantity, &lot.Supplier, &lot.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lot{}, ErrLotNotFound
		}
		return Lot{}, err
	}
	return lot, nil
}

func (r *txRepository) CreateLot(ctx context.Context, lot Lot) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO lots (component_id, lot_number, expiry_date, received_quantity, supplier, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
		lot.ComponentID, lot.LotNumber, lot.ExpiryDate, lot.ReceivedQuantity, nullStr(lot.Supplier)).Scan(&id)
	if err != nil {
		return 0, err
	}
	if _, err := r.tx.Exec(ctx, `INSERT INTO lot_balances (lot_id, quantity) VALUES ($1, $2)`, id, lot.ReceivedQuantity); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *txRepository) TopUpLot(ctx context.Context, lotID int64, quantity float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE lots SET received_quantity = received_quantity + $2 WHERE id = $1`, lotID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	_, err = r.tx.Exec(ctx, `UPDATE lot_balances SET quantity = quantity + $2 WHERE lot_id = $1`, lotID, quantity)
	return err
}

func (r *txRepository) DecrementLotBalance(ctx context.Context, lotID int64, quantity float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE lot_balances SET quantity = quantity - $2 WHERE lot_id = $1`, lotID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (r *txRepository) ComponentActive(ctx context.Context, id int64) error {
	var active bool
	err := r.tx.QueryRow(ctx, `SELECT is_active FROM components WHERE id = $1`, id).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrComponentNotFound
		}
		return err
	}
	if !active {
		return ErrComponentNotFound
	}
	return nil
}

func (r *txRepository) LocationActive(ctx context.Context, id int64) error {
	var active bool
	err := r.tx.QueryRow(ctx, `SELECT is_active FROM locations WHERE id = $1`, id).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLocationNotFound
		}
		return err
	}
	if !active {
		return ErrLocationNotFound
	}
	return nil
}

func (r *txRepository) GetComponentCost(ctx context.Context, id int64) (float64, error) {
	var cost float64
	err := r.tx.QueryRow(ctx, `SELECT cost_per_unit FROM components WHERE id = $1`, id).Scan(&cost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrComponentNotFound
		}
		return 0, err
	}
	return cost, nil
}

func (r *txRepository) UpdateComponentCost(ctx context.Context, id int64, costPerUnit float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE components SET cost_per_unit = $2, updated_at = NOW() WHERE id = $1`, id, costPerUnit)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrComponentNotFound
	}
	return nil
}

// ResolveBOM loads the version's lines with component costs inside the same
// snapshot as the eventual consumption, so the cost snapshot the build
// records cannot drift from the costs it consumed at.
func (r *txRepository) ResolveBOM(ctx context.Context, versionID int64) (bom.Resolved, error) {
	var v bom.Version
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, sku, revision, is_active, notes, created_at FROM bom_versions WHERE id=$1`, versionID).
		Scan(&v.ID, &v.CompanyID, &v.SKU, &v.Revision, &v.IsActive, &v.Notes, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return bom.Resolved{}, bom.ErrVersionNotFound
		}
		return bom.Resolved{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT l.component_id, c.sku, c.name, l.quantity_per_unit, c.cost_per_unit
FROM bom_lines l JOIN components c ON c.id = l.component_id
WHERE l.version_id = $1 ORDER BY l.id ASC`, versionID)
	if err != nil {
		return bom.Resolved{}, err
	}
	defer rows.Close()
	resolved := bom.Resolved{Version: v}
	for rows.Next() {
		var line bom.ResolvedLine
		var cost float64
		if err := rows.Scan(&line.ComponentID, &line.ComponentSKU, &line.ComponentName, &line.QuantityPerUnit, &cost); err != nil {
			return bom.Resolved{}, err
		}
		line.CostPerUnit = decimal.NewFromFloat(cost)
		resolved.Lines = append(resolved.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return bom.Resolved{}, err
	}
	if len(resolved.Lines) == 0 {
		return bom.Resolved{}, bom.ErrEmptyBOM
	}
	return resolved, nil
}

// --- shared query helpers ---

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getQuantity(ctx context.Context, q querier, componentID, locationID int64) (float64, error) {
	var qty float64
	if locationID != 0 {
		err := q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM inventory_balances WHERE component_id=$1 AND location_id=$2`, componentID, locationID).Scan(&qty)
		return qty, err
	}
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM inventory_balances WHERE component_id=$1`, componentID).Scan(&qty)
	return qty, err
}

func getFinishedGoodsQuantity(ctx context.Context, q querier, sku string, locationID int64) (float64, error) {
	var qty float64
	if locationID != 0 {
		err := q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM finished_goods_balances WHERE sku=$1 AND location_id=$2`, sku, locationID).Scan(&qty)
		return qty, err
	}
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM finished_goods_balances WHERE sku=$1`, sku).Scan(&qty)
	return qty, err
}

func getLotStocks(ctx context.Context, q querier, componentID int64, forUpdate bool) ([]LotStock, error) {
	query := `SELECT l.id, l.lot_number, l.expiry_date, b.quantity
FROM lots l JOIN lot_balances b ON b.lot_id = l.id
WHERE l.component_id = $1 AND b.quantity > 0
ORDER BY l.id ASC`
	if forUpdate {
		query += ` FOR UPDATE OF b`
	}
	rows, err := q.Query(ctx, query, componentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stocks []LotStock
	for rows.Next() {
		var s LotStock
		if err := rows.Scan(&s.LotID, &s.LotNumber, &s.ExpiryDate, &s.Remaining); err != nil {
			return nil, err
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var typ string
	var locationID, destLocationID, bomVersionID, createdBy *int64
	var sku *string
	err := row.Scan(&t.ID, &t.Code, &typ, &t.CompanyID, &locationID, &destLocationID, &sku, &bomVersionID,
		&t.UnitsBuilt, &t.UnitCost, &t.TotalCost, &t.DefectCount, &t.Notes, &t.Date, &createdBy, &t.CreatedAt)
	if err != nil {
		return Transaction{}, err
	}
	t.Type = TransactionType(typ)
	if locationID != nil {
		t.LocationID = *locationID
	}
	if destLocationID != nil {
		t.DestLocationID = *destLocationID
	}
	if bomVersionID != nil {
		t.BOMVersionID = *bomVersionID
	}
	if createdBy != nil {
		t.CreatedBy = *createdBy
	}
	if sku != nil {
		t.SKU = *sku
	}
	return t, nil
}

func nullInt(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func nullStr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
