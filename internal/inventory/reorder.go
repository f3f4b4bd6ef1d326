package inventory

// ReorderStatus classifies on-hand quantity against the reorder point.
type ReorderStatus string

const (
	ReorderStatusOK       ReorderStatus = "ok"
	ReorderStatusWarning  ReorderStatus = "warning"
	ReorderStatusCritical ReorderStatus = "critical"
)

// DefaultWarningMultiplier widens the reorder point into a warning band.
const DefaultWarningMultiplier = 1.5

// ReorderStatusFor derives the status; it is never stored. A reorder point
// of zero means the component is not tracked and always reads ok.
func ReorderStatusFor(onHand, reorderPoint, warningMultiplier float64) ReorderStatus {
	if reorderPoint <= 0 {
		return ReorderStatusOK
	}
	if warningMultiplier <= 1 {
		warningMultiplier = DefaultWarningMultiplier
	}
	switch {
	case onHand <= reorderPoint:
		return ReorderStatusCritical
	case onHand <= reorderPoint*warningMultiplier:
		return ReorderStatusWarning
	default:
		return ReorderStatusOK
	}
}
