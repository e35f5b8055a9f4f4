package product

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

var currencies = map[string]struct{}{"INR": {}, "USD": {}, "EUR": {}, "GBP": {}}

// Normalize canonicalizes user-supplied fields and fills derived ones. It
// must run before Validate.
func (p *Product) Normalize(now time.Time) {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.Brand = strings.TrimSpace(p.Brand)
	p.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
	p.Slug = strings.ToLower(strings.TrimSpace(p.Slug))

	p.Status = Status(strings.ToLower(strings.TrimSpace(string(p.Status))))
	if p.Status == "" {
		p.Status = StatusDraft
	}
	p.Visibility = Visibility(strings.ToLower(strings.TrimSpace(string(p.Visibility))))
	if p.Visibility == "" {
		p.Visibility = VisibilityPublic
	}
	p.Discount.Type = DiscountType(strings.ToLower(strings.TrimSpace(string(p.Discount.Type))))
	if p.Discount.Type == "" {
		p.Discount.Type = DiscountPercentage
	}
	p.Price.Currency = strings.ToUpper(strings.TrimSpace(p.Price.Currency))
	if p.Price.Currency == "" {
		p.Price.Currency = "INR"
	}
	if p.Price.Selling.IsZero() {
		p.Price.Selling = p.Price.Original
	}

	suffix := strconv.FormatInt(now.UnixMilli(), 36)
	if p.Slug == "" && p.Title != "" {
		p.Slug = Slugify(p.Title) + "-" + tail(suffix, 4)
	}
	if p.SKU == "" && p.Title != "" {
		prefix := []rune(strings.ToUpper(p.Title))
		if len(prefix) > 3 {
			prefix = prefix[:3]
		}
		p.SKU = "SKU-" + string(prefix) + "-" + strings.ToUpper(tail(suffix, 5))
	}
}

// Validate checks a normalized product.
func (p *Product) Validate() error {
	switch {
	case p.Title == "":
		return apperr.Validation("Title is required")
	case len(p.Title) > 200:
		return apperr.Validation("Title cannot exceed 200 characters")
	case !p.Status.Valid():
		return apperr.Validation("Invalid status: %s", p.Status)
	case !p.Visibility.Valid():
		return apperr.Validation("Invalid visibility: %s", p.Visibility)
	case p.Discount.Type != DiscountPercentage && p.Discount.Type != DiscountFixed:
		return apperr.Validation("Invalid discount type: %s", p.Discount.Type)
	case p.Price.Original.IsNegative() || p.Price.Selling.IsNegative():
		return apperr.Validation("Price cannot be negative")
	case p.Discount.Type == DiscountPercentage && p.Discount.Value.GreaterThan(decimal.NewFromInt(100)):
		return apperr.Validation("Percentage discount cannot exceed 100")
	case p.Discount.Value.IsNegative():
		return apperr.Validation("Discount cannot be negative")
	case p.Stock.Quantity < 0 || p.Stock.Reserved < 0 || p.Stock.LowStockThreshold < 0:
		return apperr.Validation("Stock values cannot be negative")
	}
	if _, ok := currencies[p.Price.Currency]; !ok {
		return apperr.Validation("Invalid currency: %s", p.Price.Currency)
	}
	return nil
}

// Slugify lowercases s and collapses runs of non-alphanumerics into dashes.
func Slugify(s string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
