package payment_test

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"
	appPayment "github.com/Zhima-Mochi/storefront-orders/internal/application/payment"
	domorder "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	"github.com/Zhima-Mochi/storefront-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/id"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *memory.Store
	uc    *appPayment.UpdatePaymentStatusUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	return &fixture{
		store: store,
		uc:    appPayment.NewUpdatePaymentStatusUseCase(store.Orders(), store.Transactor(), store.Outbox(), id.UUID{}, nil),
	}
}

func (f *fixture) place(t *testing.T, orderID string, method payment.Method) *domorder.Order {
	t.Helper()
	items := []domorder.LineItem{{ProductID: "p1", Name: "Mug", Quantity: 2, UnitPrice: decimal.NewFromInt(300)}}
	o, err := domorder.New(domorder.Draft{
		ID:            orderID,
		Number:        "ORD-" + orderID,
		CustomerID:    "u1",
		Items:         items,
		Totals:        domorder.ComputeTotals(items, domorder.DefaultShippingPolicy(), decimal.Zero, decimal.Zero),
		PaymentMethod: method,
		ShippingAddress: domorder.Address{
			Name: "Asha", Line1: "12 MG Road", City: "Bengaluru", PostalCode: "560001",
		},
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Orders().Insert(context.Background(), o))
	return o
}

func (f *fixture) apply(in appPayment.UpdatePaymentStatusInput) (*appPayment.UpdatePaymentStatusResult, error) {
	return f.uc.Execute(context.Background(), in)
}

func (f *fixture) events() []string {
	var out []string
	for _, rec := range f.store.Outbox().Records() {
		out = append(out, rec.EventType)
	}
	return out
}

func TestPaidConfirmsPendingOrder(t *testing.T) {
	f := newFixture(t)
	f.place(t, "o1", payment.MethodCard)

	res, err := f.apply(appPayment.UpdatePaymentStatusInput{OrderID: "o1", Status: "paid", Reference: "pay_123"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.AutoConfirmed)
	assert.Equal(t, domorder.StatusConfirmed, res.Order.Status)
	assert.Equal(t, payment.StatusPaid, res.Order.PaymentStatus)
	assert.Equal(t, "pay_123", res.Order.PaymentReference)

	stored, err := f.store.Orders().Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusConfirmed, stored.Status)
	assert.Equal(t, 2, stored.Version)

	assert.Equal(t, []string{
		domorder.EventPaymentUpdated,
		domorder.EventShipmentRequested,
		domorder.EventStatusChanged,
	}, f.events())
}

func TestRepeatedCallbackIsNoop(t *testing.T) {
	f := newFixture(t)
	f.place(t, "o1", payment.MethodUPI)
	in := appPayment.UpdatePaymentStatusInput{OrderID: "o1", Status: "paid", Reference: "pay_1"}

	_, err := f.apply(in)
	require.NoError(t, err)
	res, err := f.apply(in)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.False(t, res.AutoConfirmed)
	assert.Len(t, f.events(), 3)
}

func TestPaidDoesNotMoveAdvancedOrder(t *testing.T) {
	f := newFixture(t)
	o := f.place(t, "o1", payment.MethodCard)
	require.NoError(t, o.TransitionTo(domorder.StatusCancelled, "out of stock"))
	require.NoError(t, f.store.Orders().Update(context.Background(), o))

	res, err := f.apply(appPayment.UpdatePaymentStatusInput{OrderID: "o1", Status: "paid"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.AutoConfirmed)
	assert.Equal(t, domorder.StatusCancelled, res.Order.Status)
	assert.Equal(t, []string{domorder.EventPaymentUpdated}, f.events(), "no shipment for a cancelled order")
}

func TestCODPaymentDoesNotRequestShipment(t *testing.T) {
	f := newFixture(t)
	f.place(t, "o1", payment.MethodCOD)

	res, err := f.apply(appPayment.UpdatePaymentStatusInput{OrderID: "o1", Status: "paid"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{domorder.EventPaymentUpdated}, f.events(), "COD orders were booked when placed")
}

func TestRefundRecordsReason(t *testing.T) {
	f := newFixture(t)
	f.place(t, "o1", payment.MethodCard)
	_, err := f.apply(appPayment.UpdatePaymentStatusInput{OrderID: "o1", Status: "paid"})
	require.NoError(t, err)

	res, err := f.apply(appPayment.UpdatePaymentStatusInput{OrderID: "o1", Status: "refunded", RefundReason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, res.Order.PaymentStatus)
	assert.Equal(t, "damaged", res.Order.RefundReason)
	require.NotNil(t, res.Order.RefundedAt)
	assert.Equal(t, domorder.StatusConfirmed, res.Order.Status)
}

func TestUpdatePaymentStatusErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.apply(appPayment.UpdatePaymentStatusInput{OrderID: "o1", Status: "bounced"})
	var verr *application.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "status")

	_, err = f.apply(appPayment.UpdatePaymentStatusInput{OrderID: "missing", Status: "paid"})
	assert.ErrorIs(t, err, domorder.ErrNotFound)
}
