package shared

import (
	"math"
	"strconv"
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 200 {
		perPage = 200
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// ParsePagination reads page and perPage query values, ignoring malformed input.
func ParsePagination(page, perPage string, total int) Pagination {
	p, _ := strconv.Atoi(page)
	pp, _ := strconv.Atoi(perPage)
	return NewPagination(p, pp, total)
}

// Bounds returns the slice window [start, end) of the current page. Pages past
// the last one yield an empty window at Total.
func (p Pagination) Bounds() (int, int) {
	if p.PerPage <= 0 || p.Page < 1 || p.Page-1 > p.Total/p.PerPage {
		return p.Total, p.Total
	}
	start := (p.Page - 1) * p.PerPage
	if start > p.Total {
		start = p.Total
	}
	end := start + p.PerPage
	if end > p.Total {
		end = p.Total
	}
	return start, end
}
