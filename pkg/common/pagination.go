package common

import (
	"math"
	"net/http"
	"strconv"
)

// PaginationInfo contains pagination details
type PaginationInfo struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// PaginationParams represents pagination parameters
type PaginationParams struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// ExtractPaginationParams reads page and page_size from the query string.
// Missing or malformed values are left as zero for Normalize to fill in.
func ExtractPaginationParams(r *http.Request) PaginationParams {
	var params PaginationParams
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && page > 0 {
		params.Page = page
	}
	if size, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && size > 0 {
		params.PageSize = size
	}
	return params
}

// Normalize applies the default page size and clamps it to maxSize.
func (p PaginationParams) Normalize(defaultSize, maxSize int) PaginationParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultSize
	}
	if maxSize > 0 && p.PageSize > maxSize {
		p.PageSize = maxSize
	}
	return p
}

// CalculateOffset calculates the offset for database queries. It saturates
// at math.MaxInt instead of overflowing for huge page numbers.
func (p PaginationParams) CalculateOffset() int {
	if p.Page <= 1 || p.PageSize <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// Window returns the slice bounds of the page within total items. Pages
// past the end yield an empty window at total.
func (p PaginationParams) Window(total int) (start, end int) {
	if total <= 0 {
		return 0, 0
	}
	if p.PageSize <= 0 {
		return total, total
	}
	if p.Page > 1 && p.Page-1 > (total-1)/p.PageSize {
		return total, total
	}
	start = p.CalculateOffset()
	end = total
	if p.PageSize < total-start {
		end = start + p.PageSize
	}
	return start, end
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

// BuildPaginationMeta builds pagination metadata
func BuildPaginationMeta(page, pageSize, total int) *PaginationInfo {
	totalPages := CalculateTotalPages(total, pageSize)

	return &PaginationInfo{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
