package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestComputeTotalsShippingThreshold(t *testing.T) {
	policy := DefaultShippingPolicy()

	below := ComputeTotals([]LineItem{
		{ProductID: "a", Quantity: 1, UnitPrice: d(300)},
		{ProductID: "b", Quantity: 1, UnitPrice: d(250)},
	}, policy, decimal.Zero, decimal.Zero)
	assert.True(t, below.Subtotal.Equal(d(550)))
	assert.True(t, below.Shipping.Equal(d(49)))
	assert.True(t, below.Total.Equal(d(599)))

	above := ComputeTotals([]LineItem{
		{ProductID: "a", Quantity: 1, UnitPrice: d(300)},
		{ProductID: "b", Quantity: 1, UnitPrice: d(300)},
	}, policy, decimal.Zero, decimal.Zero)
	assert.True(t, above.Subtotal.Equal(d(600)))
	assert.True(t, above.Shipping.IsZero())
	assert.True(t, above.Total.Equal(d(600)))

	exact := ComputeTotals([]LineItem{{ProductID: "a", Quantity: 1, UnitPrice: d(599)}}, policy, decimal.Zero, decimal.Zero)
	assert.True(t, exact.Shipping.IsZero())
}

func TestComputeTotalsIdentity(t *testing.T) {
	items := []LineItem{
		{ProductID: "a", Quantity: 3, UnitPrice: decimal.RequireFromString("99.50")},
		{Quantity: 2, UnitPrice: decimal.RequireFromString("120.25")},
	}
	for _, discount := range []decimal.Decimal{d(0), d(40), d(-5), d(10_000)} {
		tot := ComputeTotals(items, DefaultShippingPolicy(), discount, d(12))
		assert.True(t, tot.Total.Equal(tot.Subtotal.Add(tot.Shipping).Add(tot.Tax).Sub(tot.Discount)))
		assert.False(t, tot.Discount.IsNegative())
		assert.True(t, tot.Discount.LessThanOrEqual(tot.Subtotal))
		assert.Equal(t, tot.Subtotal.GreaterThanOrEqual(d(599)), tot.Shipping.IsZero())
	}
}

func TestLoyaltyPoints(t *testing.T) {
	assert.Equal(t, int64(100), LoyaltyPoints(d(1000)))
	assert.Equal(t, int64(59), LoyaltyPoints(d(599)))
	assert.Equal(t, int64(0), LoyaltyPoints(decimal.RequireFromString("9.99")))
	assert.Equal(t, int64(0), LoyaltyPoints(d(-20)))
}
