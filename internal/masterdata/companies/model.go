package companies

import "time"

// Company represents a brand/tenant owning components, SKUs and locations.
type Company struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`

	// CanOverrideExpiry permits builds to consume expired lots when the
	// caller explicitly asks for it. When false the override flag on a
	// build request is ignored.
	CanOverrideExpiry bool `json:"can_override_expiry"`

	// DefectRateThreshold triggers a post-build alert when the recorded
	// defect rate exceeds it. Zero disables the alert.
	DefectRateThreshold float64 `json:"defect_rate_threshold"`

	// DefaultLocationID receives finished goods when a build names no
	// output location.
	DefaultLocationID int64 `json:"default_location_id"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
