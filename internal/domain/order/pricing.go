package order

import "github.com/shopspring/decimal"

var (
	DefaultFreeShippingThreshold = decimal.NewFromInt(599)
	DefaultFlatShippingFee       = decimal.NewFromInt(49)
	loyaltyDivisor               = decimal.NewFromInt(10)
)

// ShippingPolicy charges a flat fee below a free-shipping threshold.
type ShippingPolicy struct {
	FreeThreshold decimal.Decimal
	FlatFee       decimal.Decimal
}

func DefaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{FreeThreshold: DefaultFreeShippingThreshold, FlatFee: DefaultFlatShippingFee}
}

func (p ShippingPolicy) Charge(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.FlatFee
}

// Subtotal sums unit price times quantity over all items.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// ComputeTotals prices a set of items. The discount is clamped to [0, subtotal]
// and tax is added as given.
func ComputeTotals(items []LineItem, policy ShippingPolicy, discount, tax decimal.Decimal) Totals {
	subtotal := Subtotal(items)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if tax.IsNegative() {
		tax = decimal.Zero
	}
	shipping := policy.Charge(subtotal)
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Discount: discount,
		Total:    subtotal.Add(shipping).Add(tax).Sub(discount),
	}
}

// LoyaltyPoints is the reward credited for an order: one point per ten currency units, rounded down.
func LoyaltyPoints(total decimal.Decimal) int64 {
	if !total.IsPositive() {
		return 0
	}
	return total.Div(loyaltyDivisor).Floor().IntPart()
}
