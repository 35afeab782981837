package order

import (
	"testing"

	"github.com/Zhima-Mochi/storefront-orders/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInitialStatus(t *testing.T) {
	cases := []struct {
		name   string
		method payment.Method
		paid   payment.Status
		want   Status
	}{
		{"prepaid unpaid", payment.MethodCard, "", StatusPending},
		{"prepaid already paid", payment.MethodUPI, payment.StatusPaid, StatusConfirmed},
		{"cash on delivery", payment.MethodCOD, "", StatusConfirmed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, err := New(Draft{
				ID:            "o",
				CustomerID:    "c",
				PaymentMethod: tc.method,
				PaymentStatus: tc.paid,
				Items:         []LineItem{{ProductID: "p", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, o.Status)
			if tc.paid == "" {
				assert.Equal(t, payment.StatusPending, o.PaymentStatus)
			}
			assert.Equal(t, tc.want, o.Items[0].Status)
		})
	}
}

func TestNewRejectsBadItems(t *testing.T) {
	_, err := New(Draft{ID: "o", CustomerID: "c"})
	require.ErrorIs(t, err, ErrNoItems)

	_, err = New(Draft{ID: "o", CustomerID: "c", Items: []LineItem{{ProductID: "p", Quantity: 0}}})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = New(Draft{ID: "o", CustomerID: "c", Items: []LineItem{{ProductID: "p", Quantity: 1, UnitPrice: decimal.NewFromInt(-1)}}})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestBillingDefaultsToShipping(t *testing.T) {
	addr := Address{Name: "A", Line1: "x", City: "y", PostalCode: "110001"}
	o, err := New(Draft{
		ID: "o", CustomerID: "c", ShippingAddress: addr,
		Items: []LineItem{{ProductID: "p", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}},
	})
	require.NoError(t, err)
	assert.Equal(t, addr, o.BillingAddress)
}

func TestCloneIsDeep(t *testing.T) {
	o := newTestOrder(t, payment.MethodCard)
	o.Items[0].Customization = map[string]string{"text": "hi"}
	c := o.Clone()
	c.Items[0].Customization["text"] = "bye"
	c.Items[0].Quantity = 9
	assert.Equal(t, "hi", o.Items[0].Customization["text"])
	assert.Equal(t, 2, o.Items[0].Quantity)
}

func TestCatalogItemsSkipsCustomProducts(t *testing.T) {
	o := newTestOrder(t, payment.MethodCard)
	items := o.CatalogItems()
	require.Len(t, items, 1)
	assert.Equal(t, "p-1", items[0].ProductID)
	assert.Equal(t, 3, o.Units())
}

func TestApplyPayment(t *testing.T) {
	t.Run("paid confirms a pending order", func(t *testing.T) {
		o := newTestOrder(t, payment.MethodCard)
		change, err := o.ApplyPayment(payment.StatusPaid, "pay_1", "")
		require.NoError(t, err)
		assert.True(t, change.Changed)
		assert.True(t, change.AutoConfirmed)
		assert.True(t, change.NewlyPaid)
		assert.Equal(t, StatusConfirmed, o.Status)
		assert.Equal(t, "pay_1", o.PaymentReference)
	})

	t.Run("paid leaves a shipped order alone", func(t *testing.T) {
		o := newTestOrder(t, payment.MethodCard)
		o.Status = StatusShipped
		change, err := o.ApplyPayment(payment.StatusPaid, "pay_1", "")
		require.NoError(t, err)
		assert.False(t, change.AutoConfirmed)
		assert.Equal(t, StatusShipped, o.Status)
		assert.Equal(t, payment.StatusPaid, o.PaymentStatus)
	})

	t.Run("repeat callback is a no-op", func(t *testing.T) {
		o := newTestOrder(t, payment.MethodCard)
		_, err := o.ApplyPayment(payment.StatusPaid, "pay_1", "")
		require.NoError(t, err)
		change, err := o.ApplyPayment(payment.StatusPaid, "pay_1", "")
		require.NoError(t, err)
		assert.False(t, change.Changed)
		assert.False(t, change.NewlyPaid)
	})

	t.Run("refund stamps the refund time", func(t *testing.T) {
		o := newTestOrder(t, payment.MethodCard)
		_, err := o.ApplyPayment(payment.StatusRefunded, "rf_1", "damaged")
		require.NoError(t, err)
		require.NotNil(t, o.RefundedAt)
		assert.Equal(t, "damaged", o.RefundReason)
		assert.Equal(t, StatusPending, o.Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		o := newTestOrder(t, payment.MethodCard)
		_, err := o.ApplyPayment("bogus", "", "")
		require.ErrorIs(t, err, payment.ErrInvalidStatus)
	})
}
