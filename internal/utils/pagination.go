package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// Page size bounds shared by every listing endpoint
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination is the paging metadata returned with list responses
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// ParsePage reads page and page_size from the query string, falling back to defaults on bad input
func ParsePage(c *gin.Context) (page, pageSize int) {
	page = 1                   // Default page number
	pageSize = DefaultPageSize // Default page size
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v // Set page if valid
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= MaxPageSize {
			pageSize = v // Set page size within limits
		}
	}
	return page, pageSize
}

// NewPagination computes the paging metadata for a result set
func NewPagination(page, pageSize int, total int64) Pagination {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}

// Offset returns the row offset of the page
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}
