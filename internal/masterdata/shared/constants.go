package shared

// Pagination defaults for master data listings.
const (
	DefaultPage  = 1
	DefaultLimit = 25
	MaxLimit     = 200
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"
)
