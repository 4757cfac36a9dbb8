package models

// Default and maximum page sizes for list endpoints.
const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// Page is a 1-based page request.
type Page struct {
	Page    int
	PerPage int
}

// Normalize clamps the page request to sane bounds.
func (p Page) Normalize() Page {
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	return p
}

// Offset returns the row offset for the (normalized) page.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PerPage
}

// PageResult is one page of results plus paging metadata.
type PageResult[T any] struct {
	Items       []T `json:"data"`
	Total       int `json:"total"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
}

// NewPageResult builds a PageResult, never returning a nil Items slice.
func NewPageResult[T any](items []T, total int, page Page) *PageResult[T] {
	n := page.Normalize()
	if items == nil {
		items = make([]T, 0)
	}
	last := 1
	if total > 0 {
		last = (total + n.PerPage - 1) / n.PerPage
	}
	return &PageResult[T]{
		Items:       items,
		Total:       total,
		PerPage:     n.PerPage,
		CurrentPage: n.Page,
		LastPage:    last,
	}
}
