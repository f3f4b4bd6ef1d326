// Package inventory implements the stock ledger: immutable transactions,
// derived balances, lot tracking with FEFO allocation, and the build
// orchestrator that turns a BOM into component consumption plus finished
// goods output.
package inventory

import (
	"errors"
	"time"
)

// TransactionType enumerates supported ledger events.
type TransactionType string

const (
	// TransactionTypeReceipt represents inbound stock from a supplier.
	TransactionTypeReceipt TransactionType = "RECEIPT"
	// TransactionTypeAdjustment represents a manual signed correction.
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
	// TransactionTypeInitial represents an opening balance entry.
	TransactionTypeInitial TransactionType = "INITIAL"
	// TransactionTypeBuild converts components into finished goods.
	TransactionTypeBuild TransactionType = "BUILD"
	// TransactionTypeTransfer moves stock between two locations.
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

// Transaction is the immutable header of one ledger event. Corrections are
// new transactions, never edits.
type Transaction struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Type           TransactionType `json:"type"`
	CompanyID      int64           `json:"company_id"`
	LocationID     int64           `json:"location_id,omitempty"`
	DestLocationID int64           `json:"dest_location_id,omitempty"`
	SKU            string          `json:"sku,omitempty"`
	BOMVersionID   int64           `json:"bom_version_id,omitempty"`
	UnitsBuilt     int64           `json:"units_built,omitempty"`
	UnitCost       float64         `json:"unit_cost,omitempty"`
	TotalCost      float64         `json:"total_cost,omitempty"`
	DefectCount    int64           `json:"defect_count,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	Date           time.Time       `json:"date"`
	CreatedBy      int64           `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TransactionLine is one signed component quantity delta. Positive means
// inflow, negative means consumption.
type TransactionLine struct {
	ID             int64   `json:"id"`
	TransactionID  int64   `json:"transaction_id"`
	ComponentID    int64   `json:"component_id"`
	LocationID     int64   `json:"location_id,omitempty"`
	QuantityChange float64 `json:"quantity_change"`
	CostPerUnit    float64 `json:"cost_per_unit"`
	LotID          int64   `json:"lot_id,omitempty"`
}

// FinishedGoodsLine is one signed SKU quantity delta at a location.
type FinishedGoodsLine struct {
	ID             int64   `json:"id"`
	TransactionID  int64   `json:"transaction_id"`
	SKU            string  `json:"sku"`
	LocationID     int64   `json:"location_id"`
	QuantityChange float64 `json:"quantity_change"`
}

// Balance is the derived on-hand quantity of a component at a location. It
// equals the sum of all committed line deltas for that key.
type Balance struct {
	ComponentID int64     `json:"component_id"`
	LocationID  int64     `json:"location_id"`
	Quantity    float64   `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Lot is a traceable batch of a component.
type Lot struct {
	ID               int64      `json:"id"`
	ComponentID      int64      `json:"component_id"`
	LotNumber        string     `json:"lot_number"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
	ReceivedQuantity float64    `json:"received_quantity"`
	Supplier         string     `json:"supplier,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// LotStock pairs a lot with its remaining balance, the allocator's working
// unit.
type LotStock struct {
	LotID      int64      `json:"lot_id"`
	LotNumber  string     `json:"lot_number"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	Remaining  float64    `json:"remaining"`
}

// LotInput describes lot details attached to a receipt.
type LotInput struct {
	LotNumber  string     `json:"lot_number"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	Supplier   string     `json:"supplier,omitempty"`
}

// ReceiptInput describes an inbound receipt.
type ReceiptInput struct {
	CompanyID   int64
	ComponentID int64
	LocationID  int64
	Quantity    float64
	CostPerUnit float64
	Date        time.Time
	Notes       string
	// Lot optionally creates or tops up a lot by the receipt quantity.
	Lot *LotInput
	// UpdateComponentCost also moves the component's standing cost to
	// CostPerUnit. Historical lines keep their snapshots either way.
	UpdateComponentCost bool
	ActorID             int64
	IdempotencyKey      string
}

// AdjustmentInput describes a manual signed correction.
type AdjustmentInput struct {
	CompanyID      int64
	ComponentID    int64
	LocationID     int64
	Quantity       float64
	Reason         string
	Date           time.Time
	ActorID        int64
	IdempotencyKey string
}

// InitialInput sets an opening balance. Modeled as a signed delta so it
// composes with any balance already present.
type InitialInput struct {
	CompanyID      int64
	ComponentID    int64
	LocationID     int64
	Quantity       float64
	CostPerUnit    float64
	Date           time.Time
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// TransferInput moves stock between two locations. Exactly one of
// ComponentID or SKU must be set: components move on the component ledger,
// SKUs on the finished-goods ledger.
type TransferInput struct {
	CompanyID      int64
	ComponentID    int64
	SKU            string
	FromLocationID int64
	ToLocationID   int64
	Quantity       float64
	Date           time.Time
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// TransactionResult is a committed transaction with its lines.
type TransactionResult struct {
	Transaction        Transaction         `json:"transaction"`
	Lines              []TransactionLine   `json:"lines,omitempty"`
	FinishedGoodsLines []FinishedGoodsLine `json:"finished_goods_lines,omitempty"`
}

// Validation errors.
var (
	ErrInvalidQuantity   = errors.New("inventory: quantity must be positive")
	ErrZeroQuantity      = errors.New("inventory: quantity must be non zero")
	ErrSameLocation      = errors.New("inventory: source and destination location must differ")
	ErrReasonRequired    = errors.New("inventory: adjustment reason required")
	ErrInsufficientStock = errors.New("inventory: insufficient stock at source location")
	ErrEntityAmbiguous   = errors.New("inventory: exactly one of component or sku required")
	ErrComponentNotFound = errors.New("inventory: component not found")
	ErrLocationNotFound  = errors.New("inventory: location not found or inactive")
	ErrLotNotFound       = errors.New("inventory: lot not found")
)
