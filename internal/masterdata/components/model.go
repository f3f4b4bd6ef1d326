package components

import "time"

// Component represents a purchasable part consumed by builds.
type Component struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Unit      string `json:"unit"`

	// CostPerUnit is the standing cost. Historical transaction lines
	// snapshot the cost at posting time, so edits here never rewrite
	// committed ledger rows.
	CostPerUnit float64 `json:"cost_per_unit"`

	ReorderPoint float64 `json:"reorder_point"`
	LeadTimeDays int     `json:"lead_time_days"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
