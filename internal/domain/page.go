package domain

import "math"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxPageNumber keeps Offset from overflowing at any page size.
	MaxPageNumber = math.MaxInt / MaxPageSize
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Page is a zero-based page request. SortField is only honoured by account
// listings.
type Page struct {
	Number    int
	Size      int
	SortField string
	SortDir   SortDirection
}

func (p Page) Offset() int {
	return p.Number * p.Size
}

type PageResult[T any] struct {
	Items         []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
}

func NewPageResult[T any](items []T, page Page, total int64) *PageResult[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if page.Size > 0 {
		pages = int((total + int64(page.Size) - 1) / int64(page.Size))
	}
	return &PageResult[T]{
		Items:         items,
		Page:          page.Number,
		Size:          page.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}
