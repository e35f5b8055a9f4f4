package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
)

// ShippingCalculator prices shipment of cart lines.
type ShippingCalculator interface {
	Cost(ctx context.Context, items []cart.Item) (decimal.Decimal, error)
}

// DefaultShippingRate is the flat shipping charge used when none is
// configured.
var DefaultShippingRate = decimal.NewFromInt(85)

// FlatRate charges the same amount for every order.
type FlatRate struct {
	Rate decimal.Decimal
}

// Cost implements ShippingCalculator.
func (f FlatRate) Cost(_ context.Context, _ []cart.Item) (decimal.Decimal, error) {
	return f.Rate, nil
}

// DeliveryWindow is how far out the expected delivery is set when an order
// first ships.
const DeliveryWindow = 7 * 24 * time.Hour

// NewNumber returns a human-facing order number: ORD-<base36 millis>-<3 digits>.
func NewNumber(now time.Time) string {
	ts := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return fmt.Sprintf("ORD-%s-%03d", ts, rand.IntN(1000))
}
