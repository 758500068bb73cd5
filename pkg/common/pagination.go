package common

import (
	"net/http"
	"strconv"
)

// PageParams is a zero-based page request. A zero Size means "use the default".
type PageParams struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// ExtractPageParams reads ?page and ?size. Missing, malformed or negative
// values fall back to page 0 and the default size; clamping is left to the
// domain configuration.
func ExtractPageParams(r *http.Request) PageParams {
	var params PageParams

	if page := r.URL.Query().Get("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			params.Page = p
		}
	}

	if size := r.URL.Query().Get("size"); size != "" {
		if s, err := strconv.Atoi(size); err == nil && s > 0 {
			params.Size = s
		}
	}

	return params
}

// Offset is the number of rows skipped before this page
func (p PageParams) Offset() int {
	return p.Page * p.Size
}

// CalculateTotalPages calculates total number of pages
func CalculateTotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := total / pageSize
	if total%pageSize > 0 {
		pages++
	}
	return pages
}
