package inventory

import (
	"fmt"
	"sort"
	"time"
)

// LotAllocation is one draw against a specific lot.
type LotAllocation struct {
	LotID    int64   `json:"lot_id"`
	Quantity float64 `json:"quantity"`
}

// AllocateFEFO selects lots for consumption in first-expiry-first-out order.
// Lots without an expiry date are treated as never expiring and sort last.
// When excludeExpired is set, lots already expired at now are skipped;
// otherwise they stay eligible, which callers use to detect that expired
// stock would be drawn.
//
// The returned allocations sum to min(required, total available). A zero
// requirement yields an empty allocation; a shortfall yields a partial one,
// and whether that is fatal is the caller's call.
func AllocateFEFO(lots []LotStock, required float64, excludeExpired bool, now time.Time) []LotAllocation {
	if required <= 0 {
		return nil
	}

	eligible := make([]LotStock, 0, len(lots))
	for _, lot := range lots {
		if lot.Remaining <= 0 {
			continue
		}
		if excludeExpired && lotExpired(lot, now) {
			continue
		}
		eligible = append(eligible, lot)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i].ExpiryDate, eligible[j].ExpiryDate
		switch {
		case a == nil && b == nil:
			return eligible[i].LotID < eligible[j].LotID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return eligible[i].LotID < eligible[j].LotID
		default:
			return a.Before(*b)
		}
	})

	var allocations []LotAllocation
	remaining := required
	for _, lot := range eligible {
		if remaining <= 0 {
			break
		}
		take := lot.Remaining
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, LotAllocation{LotID: lot.LotID, Quantity: take})
		remaining -= take
	}
	return allocations
}

// AllocatedTotal sums the quantities of an allocation.
func AllocatedTotal(allocations []LotAllocation) float64 {
	var total float64
	for _, a := range allocations {
		total += a.Quantity
	}
	return total
}

// ValidateOverrides checks a manual allocation against the component's lot
// stocks. Overrides bypass FEFO ordering but may not exceed any lot's
// remaining balance or reference unknown lots.
func ValidateOverrides(lots []LotStock, overrides []LotAllocation) error {
	byID := make(map[int64]LotStock, len(lots))
	for _, lot := range lots {
		byID[lot.LotID] = lot
	}
	for _, o := range overrides {
		lot, ok := byID[o.LotID]
		if !ok {
			return fmt.Errorf("inventory: override references unknown lot %d: %w", o.LotID, ErrLotNotFound)
		}
		if o.Quantity <= 0 {
			return fmt.Errorf("inventory: override quantity for lot %d must be positive", o.LotID)
		}
		if o.Quantity > lot.Remaining {
			return fmt.Errorf("inventory: override for lot %s exceeds remaining %g", lot.LotNumber, lot.Remaining)
		}
	}
	return nil
}

// ExpiredDraws returns the subset of an allocation that would draw from lots
// already expired at now.
func ExpiredDraws(lots []LotStock, allocations []LotAllocation, now time.Time) []LotAllocation {
	byID := make(map[int64]LotStock, len(lots))
	for _, lot := range lots {
		byID[lot.LotID] = lot
	}
	var expired []LotAllocation
	for _, a := range allocations {
		if lot, ok := byID[a.LotID]; ok && lotExpired(lot, now) {
			expired = append(expired, a)
		}
	}
	return expired
}

func lotExpired(lot LotStock, now time.Time) bool {
	return lot.ExpiryDate != nil && lot.ExpiryDate.Before(now)
}
