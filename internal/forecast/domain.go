// Package forecast projects stockouts and reorder recommendations from the
// ledger's historical consumption.
package forecast

import (
	"math"
	"time"

	"github.com/stocklot-erp/stocklot/internal/inventory"
)

// Config controls the consumption-rate window. Companies may carry their own
// row; the service falls back to the process defaults field by field.
type Config struct {
	// LookbackDays is the size of the consumption window.
	LookbackDays int
	// SafetyDays pads the reorder quantity beyond the lead time. Negative
	// means unset.
	SafetyDays int
	// ExcludedTypes are transaction types that do not count as consumption
	// signal. Opening balances are excluded by default.
	ExcludedTypes []inventory.TransactionType
}

// merged fills unset fields from defaults. LookbackDays must be positive and
// SafetyDays non-negative to count as set, so a query naming only one of
// them keeps the configured value for the other.
func (c Config) merged(defaults Config) Config {
	if c.LookbackDays <= 0 {
		c.LookbackDays = defaults.LookbackDays
	}
	if c.SafetyDays < 0 {
		c.SafetyDays = defaults.SafetyDays
	}
	if c.ExcludedTypes == nil {
		c.ExcludedTypes = defaults.ExcludedTypes
	}
	return c
}

// DefaultConfig is used when a query names no config.
func DefaultConfig(lookbackDays, safetyDays int) Config {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	if safetyDays < 0 {
		safetyDays = 0
	}
	return Config{
		LookbackDays:  lookbackDays,
		SafetyDays:    safetyDays,
		ExcludedTypes: []inventory.TransactionType{inventory.TransactionTypeInitial},
	}
}

// Forecast is the projection for one component.
type Forecast struct {
	ComponentID             int64                   `json:"component_id"`
	ComponentSKU            string                  `json:"component_sku"`
	ComponentName           string                  `json:"component_name"`
	QuantityOnHand          float64                 `json:"quantity_on_hand"`
	AverageDailyConsumption float64                 `json:"average_daily_consumption"`
	DaysUntilRunout         *int                    `json:"days_until_runout"`
	RunoutDate              *time.Time              `json:"runout_date"`
	RecommendedReorderQty   float64                 `json:"recommended_reorder_qty"`
	RecommendedReorderDate  *time.Time              `json:"recommended_reorder_date"`
	ReorderPoint            float64                 `json:"reorder_point"`
	ReorderStatus           inventory.ReorderStatus `json:"reorder_status"`
}

// DailyRate derives the average daily consumption from the net signed change
// over the window. A zero or positive net means no consumption signal.
func DailyRate(netChange float64, lookbackDays int) float64 {
	if lookbackDays <= 0 || netChange >= 0 {
		return 0
	}
	return -netChange / float64(lookbackDays)
}

// Runout projects when on-hand stock reaches zero. A non-positive rate means
// infinite runway and both returns are nil. Non-positive stock runs out
// today.
func Runout(onHand, dailyRate float64, today time.Time) (*int, *time.Time) {
	if dailyRate <= 0 {
		return nil, nil
	}
	if onHand <= 0 {
		days := 0
		date := today
		return &days, &date
	}
	days := int(math.Floor(onHand / dailyRate))
	date := today.AddDate(0, 0, days)
	return &days, &date
}

// Recommendation sizes and dates the reorder. Quantity covers the lead time
// plus the safety buffer at the current rate; the date backs the lead time
// out of the runout date when one is known.
func Recommendation(dailyRate float64, leadTimeDays, safetyDays int, runoutDate *time.Time) (float64, *time.Time) {
	if dailyRate <= 0 {
		return 0, nil
	}
	qty := math.Ceil(dailyRate * float64(leadTimeDays+safetyDays))
	if runoutDate == nil {
		return qty, nil
	}
	date := runoutDate.AddDate(0, 0, -leadTimeDays)
	return qty, &date
}
