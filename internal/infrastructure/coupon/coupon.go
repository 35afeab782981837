package coupon

import (
	"context"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPercent Kind = "percent"
	KindFlat    Kind = "flat"
)

// Coupon is one entry of the table. Value is a percentage for KindPercent and
// an amount for KindFlat.
type Coupon struct {
	Code        string
	Kind        Kind
	Value       decimal.Decimal
	MinSubtotal decimal.Decimal
	// MaxDiscount caps percent coupons; zero means no cap.
	MaxDiscount decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Table is a fixed, case-insensitive set of coupons.
type Table struct {
	coupons map[string]Coupon
}

func NewTable(coupons ...Coupon) *Table {
	t := &Table{coupons: make(map[string]Coupon, len(coupons))}
	for _, c := range coupons {
		t.coupons[normalize(c.Code)] = c
	}
	return t
}

// Discount returns the amount taken off subtotal. The result never exceeds the subtotal.
func (t *Table) Discount(_ context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	c, ok := t.coupons[normalize(code)]
	if !ok {
		return decimal.Zero, application.NewValidation("coupon_code", fmt.Sprintf("coupon %s is not valid", code))
	}
	if subtotal.LessThan(c.MinSubtotal) {
		return decimal.Zero, application.NewValidation("coupon_code",
			fmt.Sprintf("coupon %s requires a subtotal of at least %s", code, c.MinSubtotal.StringFixed(2)))
	}

	var amount decimal.Decimal
	switch c.Kind {
	case KindPercent:
		amount = subtotal.Mul(c.Value).Div(hundred).Round(2)
		if c.MaxDiscount.IsPositive() && amount.GreaterThan(c.MaxDiscount) {
			amount = c.MaxDiscount
		}
	case KindFlat:
		amount = c.Value
	default:
		return decimal.Zero, fmt.Errorf("coupon %s: unknown kind %q", c.Code, c.Kind)
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	return amount, nil
}

// Defaults is the table used when nothing else is configured.
func Defaults() *Table {
	return NewTable(
		Coupon{Code: "WELCOME10", Kind: KindPercent, Value: decimal.NewFromInt(10), MaxDiscount: decimal.NewFromInt(200)},
		Coupon{Code: "FLAT100", Kind: KindFlat, Value: decimal.NewFromInt(100), MinSubtotal: decimal.NewFromInt(999)},
	)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
