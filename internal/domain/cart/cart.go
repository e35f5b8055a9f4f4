package cart

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
)

// ErrItemNotFound is returned when a cart line does not exist.
var ErrItemNotFound = apperr.NotFound("Item not found in cart")

// Item is a single cart line. Price is the selling price captured when the
// line was first added.
type Item struct {
	ID        string            `json:"id"`
	ProductID string            `json:"productId"`
	Quantity  int               `json:"quantity"`
	Price     decimal.Decimal   `json:"price"`
	Variants  map[string]string `json:"variants,omitempty"`
	AddedAt   time.Time         `json:"addedAt"`
}

// Subtotal is Price times Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart holds a user's pending purchase lines. There is at most one line per
// product and variant combination.
type Cart struct {
	UserID    string    `json:"userId"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Line describes an item being added to a cart.
type Line struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
	Variants  map[string]string
}

// Add merges l into the cart and returns the affected line. A line with the
// same product and variant combination has its quantity incremented and keeps
// its original price snapshot.
func (c *Cart) Add(l Line, now time.Time, newID func() string) Item {
	key := variantKey(l.Variants)
	for i := range c.Items {
		it := &c.Items[i]
		if it.ProductID == l.ProductID && variantKey(it.Variants) == key {
			it.Quantity += l.Quantity
			c.UpdatedAt = now
			return *it
		}
	}
	it := Item{
		ID:        newID(),
		ProductID: l.ProductID,
		Quantity:  l.Quantity,
		Price:     l.Price,
		Variants:  l.Variants,
		AddedAt:   now,
	}
	c.Items = append(c.Items, it)
	c.UpdatedAt = now
	return it
}

// Find returns the line with the given ID.
func (c *Cart) Find(itemID string) (Item, bool) {
	for _, it := range c.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return Item{}, false
}

// SetQuantity replaces the quantity of a line.
func (c *Cart) SetQuantity(itemID string, qty int, now time.Time) error {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items[i].Quantity = qty
			c.UpdatedAt = now
			return nil
		}
	}
	return ErrItemNotFound
}

// Remove deletes a line.
func (c *Cart) Remove(itemID string, now time.Time) error {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = slices.Delete(c.Items, i, i+1)
			c.UpdatedAt = now
			return nil
		}
	}
	return ErrItemNotFound
}

// Clear empties the cart. The cart itself is kept.
func (c *Cart) Clear(now time.Time) {
	c.Items = []Item{}
	c.UpdatedAt = now
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Subtotal sums the line subtotals using the captured prices.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// TotalItems sums the quantities of all lines.
func (c *Cart) TotalItems() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// variantKey builds an order-independent identity for a variant selection.
// Names and values are quoted so separators inside them cannot make two
// different selections collide.
func variantKey(v map[string]string) string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(v[k]))
		b.WriteByte(';')
	}
	return b.String()
}

// Repository persists carts. Get returns an empty cart for users without one.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Clear(ctx context.Context, userID string) error
}
