// Package pagination provides offset-based pagination helpers shared by
// list endpoints.
package pagination

const (
	// DefaultLimit is applied when a request does not set a page size
	DefaultLimit = 50
	// MaxLimit caps the page size a client may request
	MaxLimit = 500
)

// PageParams holds normalized pagination parameters
type PageParams struct {
	Limit  int
	Offset int
}

// Normalize clamps raw limit/offset values from a request into a valid
// PageParams
func Normalize(limit, offset int) PageParams {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return PageParams{Limit: limit, Offset: offset}
}

// PageInfo describes the page returned by a list endpoint
type PageInfo struct {
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	TotalCount int64 `json:"totalCount"`
	HasMore    bool  `json:"hasMore"`
}

// NewPageInfo builds a PageInfo from the applied parameters and totals
func NewPageInfo(params PageParams, totalCount int64, returned int) PageInfo {
	return PageInfo{
		Limit:      params.Limit,
		Offset:     params.Offset,
		TotalCount: totalCount,
		HasMore:    int64(params.Offset+returned) < totalCount,
	}
}
