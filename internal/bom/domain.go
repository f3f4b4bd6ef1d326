// Package bom maintains versioned bills of materials and their cost rollups.
package bom

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Version is one revision of the recipe for a finished SKU. At most one
// version per SKU is active at a time.
type Version struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	SKU       string    `json:"sku"`
	Revision  int       `json:"revision"`
	IsActive  bool      `json:"is_active"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// Line names a required component and the quantity consumed per built unit.
type Line struct {
	ID              int64   `json:"id"`
	VersionID       int64   `json:"version_id"`
	ComponentID     int64   `json:"component_id"`
	QuantityPerUnit float64 `json:"quantity_per_unit"`
}

// ResolvedLine is a BOM line joined with the component's current unit cost.
type ResolvedLine struct {
	ComponentID     int64
	ComponentSKU    string
	ComponentName   string
	QuantityPerUnit float64
	CostPerUnit     decimal.Decimal
}

// Resolved is a version with its lines priced at current component costs.
type Resolved struct {
	Version Version
	Lines   []ResolvedLine
}

// UnitCost returns the cost of building one unit at current component costs.
func (r Resolved) UnitCost() decimal.Decimal {
	total := decimal.Zero
	for _, line := range r.Lines {
		qty := decimal.NewFromFloat(line.QuantityPerUnit)
		total = total.Add(qty.Mul(line.CostPerUnit))
	}
	return total
}

// TotalCost returns the cost of building the given number of units.
func (r Resolved) TotalCost(units int64) decimal.Decimal {
	return r.UnitCost().Mul(decimal.NewFromInt(units))
}

var (
	// ErrNoActiveVersion indicates the SKU has no active BOM version.
	ErrNoActiveVersion = errors.New("bom: no active version for sku")
	// ErrEmptyBOM indicates a version without lines.
	ErrEmptyBOM = errors.New("bom: version has no lines")
	// ErrVersionNotFound indicates a missing version.
	ErrVersionNotFound = errors.New("bom: version not found")
)
