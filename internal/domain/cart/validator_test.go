package cart

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockLookup struct {
	byID   map[string]product.Product
	calls  int
	getErr error
}

func (m *mockLookup) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	m.calls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- Helpers ---

func newTestProduct(id string, price string, qty int) product.Product {
	return product.Product{
		ID:         id,
		Title:      "Product " + id,
		Status:     product.StatusActive,
		Visibility: product.VisibilityPublic,
		Price:      product.Price{Original: decimal.RequireFromString(price), Selling: decimal.RequireFromString(price)},
		Stock:      product.Stock{Quantity: qty, LowStockThreshold: 10, TrackInventory: true},
	}
}

func newLookup(products ...product.Product) *mockLookup {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockLookup{byID: byID}
}

// --- Tests ---

func TestValidate(t *testing.T) {
	inactive := newTestProduct("inactive", "10", 5)
	inactive.Status = product.StatusInactive
	private := newTestProduct("private", "10", 5)
	private.Visibility = product.VisibilityPrivate
	untracked := newTestProduct("untracked", "10", 0)
	untracked.Stock.TrackInventory = false
	reserved := newTestProduct("reserved", "10", 5)
	reserved.Stock.Reserved = 4

	lookup := newLookup(newTestProduct("ok", "10", 5), inactive, private, untracked, reserved)

	items := []Item{
		{ID: "1", ProductID: "ok", Quantity: 5},
		{ID: "2", ProductID: "missing", Quantity: 1},
		{ID: "3", ProductID: "inactive", Quantity: 1},
		{ID: "4", ProductID: "private", Quantity: 1},
		{ID: "5", ProductID: "untracked", Quantity: 99},
		{ID: "6", ProductID: "reserved", Quantity: 2},
	}

	violations, err := Validate(context.Background(), lookup, items)
	require.NoError(t, err)
	require.Len(t, violations, 4)

	assert.Equal(t, Violation{ItemID: "2", ProductID: "missing", Action: ActionRemove, Message: "Product not found"}, violations[0])
	assert.Equal(t, ActionRemove, violations[1].Action)
	assert.Equal(t, "Product is no longer available", violations[1].Message)
	assert.Equal(t, "4", violations[2].ItemID)
	assert.Equal(t, ActionRemove, violations[2].Action)

	assert.Equal(t, "6", violations[3].ItemID)
	assert.Equal(t, ActionUpdate, violations[3].Action)
	assert.Equal(t, "Only 1 items available in stock", violations[3].Message)
	require.NotNil(t, violations[3].AvailableStock)
	assert.Equal(t, 1, *violations[3].AvailableStock)
}

func TestValidate_InactiveWinsOverStock(t *testing.T) {
	p := newTestProduct("p", "10", 0)
	p.Status = product.StatusDiscontinued

	violations, err := Validate(context.Background(), newLookup(p), []Item{{ID: "1", ProductID: "p", Quantity: 3}})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, ActionRemove, violations[0].Action)
	assert.Nil(t, violations[0].AvailableStock)
}

func TestValidate_EmptyDoesNotQuery(t *testing.T) {
	lookup := newLookup()
	violations, err := Validate(context.Background(), lookup, nil)
	require.NoError(t, err)
	assert.Empty(t, violations)
	assert.Zero(t, lookup.calls)
}

func TestViolationsErrorKind(t *testing.T) {
	err := &ViolationsError{Violations: []Violation{{ItemID: "1"}}}
	assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(err))
	assert.Equal(t, "Cart validation failed", apperr.Message(err, ""))
	assert.Len(t, apperr.DetailsOf(err), 1)
}

func TestCartAdd_MergesSameVariants(t *testing.T) {
	var c Cart
	now := time.Unix(1000, 0)
	ids := 0
	newID := func() string {
		ids++
		return string(rune('a' + ids - 1))
	}

	first := c.Add(Line{ProductID: "p", Quantity: 1, Price: decimal.NewFromInt(10), Variants: map[string]string{"size": "M", "color": "red"}}, now, newID)
	second := c.Add(Line{ProductID: "p", Quantity: 2, Price: decimal.NewFromInt(12), Variants: map[string]string{"color": "red", "size": "M"}}, now, newID)
	third := c.Add(Line{ProductID: "p", Quantity: 1, Price: decimal.NewFromInt(12), Variants: map[string]string{"size": "L"}}, now, newID)

	require.Len(t, c.Items, 2)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, second.Quantity)
	assert.True(t, decimal.NewFromInt(10).Equal(second.Price), "price snapshot is kept on merge")
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, 4, c.TotalItems())
	assert.True(t, decimal.NewFromInt(42).Equal(c.Subtotal()))
}

func TestVariantKey(t *testing.T) {
	tests := []struct {
		name  string
		a, b  map[string]string
		equal bool
	}{
		{"order independent", map[string]string{"size": "M", "color": "red"}, map[string]string{"color": "red", "size": "M"}, true},
		{"nil and empty", nil, map[string]string{}, true},
		{"separator in value", map[string]string{"a": "b;c=d"}, map[string]string{"a": "b", "c": "d"}, false},
		{"separator in name", map[string]string{"a=b": "c"}, map[string]string{"a": "b=c"}, false},
		{"quote in value", map[string]string{"a": `b";"c`}, map[string]string{"a": "b", "c": ""}, false},
		{"empty value", map[string]string{"a": ""}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, variantKey(tt.a) == variantKey(tt.b),
				"%q vs %q", variantKey(tt.a), variantKey(tt.b))
		})
	}
}

func TestCartAdd_KeepsCollidingVariantsApart(t *testing.T) {
	var c Cart
	now := time.Unix(1000, 0)
	ids := 0
	newID := func() string {
		ids++
		return string(rune('a' + ids - 1))
	}

	first := c.Add(Line{ProductID: "p", Quantity: 1, Price: decimal.NewFromInt(10), Variants: map[string]string{"a": "b;c=d"}}, now, newID)
	second := c.Add(Line{ProductID: "p", Quantity: 1, Price: decimal.NewFromInt(10), Variants: map[string]string{"a": "b", "c": "d"}}, now, newID)

	require.Len(t, c.Items, 2)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, c.Items[0].Quantity)
}

func TestCartRemoveAndClear(t *testing.T) {
	c := Cart{Items: []Item{{ID: "a"}, {ID: "b"}}}
	now := time.Unix(1000, 0)

	require.NoError(t, c.Remove("a", now))
	require.ErrorIs(t, c.Remove("a", now), ErrItemNotFound)
	require.ErrorIs(t, c.SetQuantity("zzz", 1, now), ErrItemNotFound)

	c.Clear(now)
	assert.True(t, c.IsEmpty())
	assert.NotNil(t, c.Items)
}
