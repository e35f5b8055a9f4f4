package product

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
)

// Sort selects the ordering of search results.
type Sort string

const (
	SortNewest    Sort = "newest"
	SortOldest    Sort = "oldest"
	SortPriceLow  Sort = "price_low"
	SortPriceHigh Sort = "price_high"
	SortNameAsc   Sort = "name_asc"
	SortNameDesc  Sort = "name_desc"
	SortRating    Sort = "rating"
	SortPopular   Sort = "popular"
	SortRelevance Sort = "relevance"
)

func (s Sort) Valid() bool {
	switch s {
	case SortNewest, SortOldest, SortPriceLow, SortPriceHigh, SortNameAsc,
		SortNameDesc, SortRating, SortPopular, SortRelevance:
		return true
	}
	return false
}

const (
	DefaultLimit = 20
	MaxLimit     = 50
)

// Filter is a catalog query. Nil pointers and empty strings mean "any".
type Filter struct {
	Status     Status
	Visibility Visibility
	Brand      string
	CategoryID string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	InStock    *bool
	Featured   *bool
	Trending   *bool
	Search     string
	Sort       Sort
	Page       int
	Limit      int
}

// Normalize trims text fields, applies defaults and clamps pagination.
func (f Filter) Normalize() Filter {
	f.Search = strings.Join(strings.Fields(f.Search), " ")
	f.Brand = strings.TrimSpace(f.Brand)
	f.CategoryID = strings.TrimSpace(f.CategoryID)
	f.Status = Status(strings.ToLower(strings.TrimSpace(string(f.Status))))
	f.Visibility = Visibility(strings.ToLower(strings.TrimSpace(string(f.Visibility))))
	f.Sort = Sort(strings.ToLower(strings.TrimSpace(string(f.Sort))))
	if f.Sort == "" {
		f.Sort = SortNewest
	}
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.Limit < 1:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	return f
}

// Validate checks a normalized filter.
func (f Filter) Validate() error {
	if !f.Sort.Valid() {
		return apperr.Validation("Invalid sort: %s", f.Sort)
	}
	if f.Status != "" && f.Status != StatusDeleted && !f.Status.Valid() {
		return apperr.Validation("Invalid status: %s", f.Status)
	}
	if f.Visibility != "" && !f.Visibility.Valid() {
		return apperr.Validation("Invalid visibility: %s", f.Visibility)
	}
	if f.MinPrice != nil && f.MinPrice.IsNegative() {
		return apperr.Validation("minPrice cannot be negative")
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return apperr.Validation("minPrice cannot exceed maxPrice")
	}
	return nil
}

// Public pins the filter to what anonymous shoppers may see.
func (f Filter) Public() Filter {
	f.Status = StatusActive
	f.Visibility = VisibilityPublic
	return f
}

// Offset is the number of rows skipped for the current page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is one page of search results.
type Page struct {
	Products []Product
	Total    int
	Page     int
	Limit    int
}

// TotalPages returns the number of pages for Total at Limit per page.
func (p *Page) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// HasNext reports whether a page follows this one.
func (p *Page) HasNext() bool {
	return p.Page < p.TotalPages()
}
