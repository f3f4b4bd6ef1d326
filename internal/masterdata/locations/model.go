package locations

import "time"

// LocationType distinguishes raw-material warehouses from finished-goods stores.
type LocationType string

const (
	LocationTypeWarehouse     LocationType = "WAREHOUSE"
	LocationTypeFinishedGoods LocationType = "FINISHED_GOODS"
)

// Location is a physical or logical place stock lives at.
type Location struct {
	ID        int64        `json:"id"`
	CompanyID int64        `json:"company_id"`
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	Type      LocationType `json:"type"`
	IsActive  bool         `json:"is_active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
