package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterNormalize(t *testing.T) {
	f := Filter{Search: "  red   shoes ", Sort: "PRICE_LOW", Page: -3, Limit: 0}.Normalize()

	assert.Equal(t, "red shoes", f.Search)
	assert.Equal(t, SortPriceLow, f.Sort)
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, DefaultLimit, f.Limit)
	assert.Equal(t, 0, f.Offset())

	f = Filter{Page: 3, Limit: 10}.Normalize()
	assert.Equal(t, SortNewest, f.Sort)
	assert.Equal(t, 20, f.Offset())
}

func TestFilterValidate(t *testing.T) {
	low := decimal.NewFromInt(500)
	high := decimal.NewFromInt(100)
	neg := decimal.NewFromInt(-1)

	tests := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{"defaults", Filter{}, false},
		{"unknown sort", Filter{Sort: "cheapest"}, true},
		{"unknown status", Filter{Status: "gone"}, true},
		{"deleted status allowed for admins", Filter{Status: StatusDeleted}, false},
		{"inverted price range", Filter{MinPrice: &low, MaxPrice: &high}, true},
		{"negative min", Filter{MinPrice: &neg}, true},
		{"equal bounds", Filter{MinPrice: &high, MaxPrice: &high}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Normalize().Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPageTotals(t *testing.T) {
	p := &Page{Total: 41, Page: 2, Limit: 20}
	assert.Equal(t, 3, p.TotalPages())
	assert.True(t, p.HasNext())

	p.Page = 3
	assert.False(t, p.HasNext())
}
