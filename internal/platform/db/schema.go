package db

// Schema holds the DDL applied by scripts/migrate, in dependency order.
// Kept next to the pool so the schema tests can cross-check it against the
// columns the repositories actually reference.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS companies (
		id BIGSERIAL PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		can_override_expiry BOOLEAN NOT NULL DEFAULT FALSE,
		defect_rate_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
		default_location_id BIGINT NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS locations (
		id BIGSERIAL PRIMARY KEY,
		company_id BIGINT NOT NULL REFERENCES companies(id),
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (company_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS components (
		id BIGSERIAL PRIMARY KEY,
		company_id BIGINT NOT NULL REFERENCES companies(id),
		sku TEXT NOT NULL,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		cost_per_unit DOUBLE PRECISION NOT NULL DEFAULT 0,
		reorder_point DOUBLE PRECISION NOT NULL DEFAULT 0,
		lead_time_days INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (company_id, sku)
	)`,
	`CREATE TABLE IF NOT EXISTS bom_versions (
		id BIGSERIAL PRIMARY KEY,
		company_id BIGINT NOT NULL REFERENCES companies(id),
		sku TEXT NOT NULL,
		revision INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (company_id, sku, revision)
	)`,
	`CREATE TABLE IF NOT EXISTS bom_lines (
		id BIGSERIAL PRIMARY KEY,
		version_id BIGINT NOT NULL REFERENCES bom_versions(id) ON DELETE CASCADE,
		component_id BIGINT NOT NULL REFERENCES components(id),
		quantity_per_unit DOUBLE PRECISION NOT NULL,
		UNIQUE (version_id, component_id)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_transactions (
		id BIGSERIAL PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		company_id BIGINT NOT NULL REFERENCES companies(id),
		location_id BIGINT,
		dest_location_id BIGINT,
		sku TEXT,
		bom_version_id BIGINT,
		units_built BIGINT,
		unit_cost DOUBLE PRECISION,
		total_cost DOUBLE PRECISION,
		defect_count BIGINT,
		notes TEXT NOT NULL DEFAULT '',
		tx_date TIMESTAMPTZ NOT NULL,
		created_by BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_transactions_tx_date ON inventory_transactions (tx_date DESC)`,
	`CREATE TABLE IF NOT EXISTS inventory_tx_lines (
		id BIGSERIAL PRIMARY KEY,
		transaction_id BIGINT NOT NULL REFERENCES inventory_transactions(id) ON DELETE CASCADE,
		component_id BIGINT NOT NULL REFERENCES components(id),
		location_id BIGINT,
		quantity_change DOUBLE PRECISION NOT NULL,
		cost_per_unit DOUBLE PRECISION NOT NULL DEFAULT 0,
		lot_id BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_tx_lines_component ON inventory_tx_lines (component_id)`,
	`CREATE TABLE IF NOT EXISTS finished_goods_lines (
		id BIGSERIAL PRIMARY KEY,
		transaction_id BIGINT NOT NULL REFERENCES inventory_transactions(id) ON DELETE CASCADE,
		sku TEXT NOT NULL,
		location_id BIGINT NOT NULL,
		quantity_change DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_balances (
		component_id BIGINT NOT NULL REFERENCES components(id),
		location_id BIGINT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (component_id, location_id)
	)`,
	`CREATE TABLE IF NOT EXISTS finished_goods_balances (
		sku TEXT NOT NULL,
		location_id BIGINT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (sku, location_id)
	)`,
	`CREATE TABLE IF NOT EXISTS lots (
		id BIGSERIAL PRIMARY KEY,
		component_id BIGINT NOT NULL REFERENCES components(id),
		lot_number TEXT NOT NULL,
		expiry_date DATE,
		received_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
		supplier TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (component_id, lot_number)
	)`,
	`CREATE TABLE IF NOT EXISTS lot_balances (
		lot_id BIGINT PRIMARY KEY REFERENCES lots(id) ON DELETE CASCADE,
		quantity DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS forecast_configs (
		company_id BIGINT PRIMARY KEY REFERENCES companies(id),
		lookback_days INTEGER NOT NULL,
		safety_days INTEGER NOT NULL,
		excluded_types TEXT[] NOT NULL DEFAULT '{INITIAL}',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		actor_id BIGINT,
		action TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		meta JSONB,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		key TEXT PRIMARY KEY,
		module TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}
