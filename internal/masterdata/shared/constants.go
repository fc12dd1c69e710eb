package shared

const (
	// Default pagination
	DefaultLimit = 100
	MaxLimit     = 1000

	// Sort directions
	SortAsc  = "asc"
	SortDesc = "desc"
)
