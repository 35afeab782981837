package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"
	appOrder "github.com/Zhima-Mochi/storefront-orders/internal/application/order"
	dominv "github.com/Zhima-Mochi/storefront-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	"github.com/Zhima-Mochi/storefront-orders/internal/domain/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderCOD(t *testing.T) {
	e := newEnv(t)

	res, err := e.create(input("cod"))
	require.NoError(t, err)
	o := res.Order

	assert.Equal(t, domorder.StatusConfirmed, o.Status)
	assert.Equal(t, payment.StatusPending, o.PaymentStatus)
	assert.NotEmpty(t, o.Number)
	assert.True(t, dec("550").Equal(o.Totals.Subtotal))
	assert.True(t, dec("49").Equal(o.Totals.Shipping))
	assert.True(t, dec("599").Equal(o.Totals.Total))
	assert.Equal(t, int64(59), res.LoyaltyPoints)
	for _, it := range o.Items {
		assert.Equal(t, domorder.StatusConfirmed, it.Status)
	}
	assert.Equal(t, o.ShippingAddress, o.BillingAddress, "billing falls back to shipping")

	mug := e.product("p1")
	assert.Equal(t, 9, mug.Stock)
	assert.Equal(t, 1, mug.Sold)
	tee := e.product("p2")
	assert.Equal(t, 0, tee.Stock)
	assert.Equal(t, 1, tee.Sold)

	c, err := e.store.Customers().Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(59), c.LoyaltyPoints)

	assert.Equal(t, []string{domorder.EventPlaced, domorder.EventShipmentRequested}, e.events())
	assert.Equal(t, 1, e.order(o.ID).Version)
}

func TestCreateOrderPrepaidStartsPending(t *testing.T) {
	e := newEnv(t)

	o := e.mustCreate(input("card"))
	assert.Equal(t, domorder.StatusPending, o.Status)
	assert.Equal(t, []string{domorder.EventPlaced}, e.events())
}

func TestCreateOrderPaidUpFrontIsConfirmed(t *testing.T) {
	e := newEnv(t)
	in := input("upi")
	in.PaymentStatus = "paid"
	in.PaymentReference = "pay_1"

	o := e.mustCreate(in)
	assert.Equal(t, domorder.StatusConfirmed, o.Status)
	assert.Equal(t, "pay_1", o.PaymentReference)
	assert.Equal(t, []string{domorder.EventPlaced, domorder.EventShipmentRequested}, e.events())
}

func TestCreateOrderFreeShippingAtThreshold(t *testing.T) {
	e := newEnv(t)
	in := input("cod")
	in.Items = []appOrder.CreateOrderItem{{ProductID: "p1", Name: "Mug", Quantity: 2, UnitPrice: dec("300")}}
	in.Total = total("600")

	o := e.mustCreate(in)
	assert.True(t, dec("600").Equal(o.Totals.Subtotal))
	assert.True(t, o.Totals.Shipping.IsZero())
	assert.True(t, dec("600").Equal(o.Totals.Total))
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	e := newEnv(t)
	in := input("cod")
	// two lines of the same product are checked against their sum
	in.Items = append(in.Items, appOrder.CreateOrderItem{ProductID: "p2", Name: "Tee", Quantity: 1, UnitPrice: dec("250")})

	_, err := e.create(in)
	var stockErr *dominv.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, dominv.ErrInsufficientStock)
	assert.Equal(t, "p2", stockErr.ProductID)
	assert.Equal(t, 2, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	assert.Equal(t, 10, e.product("p1").Stock)
	assert.Empty(t, e.events())
}

// racyStock reports stock as available and leaves the real check to the reservation.
type racyStock struct{ appOrder.StockPort }

func (racyStock) CheckStock(context.Context, string, int) (dominv.StockLevel, error) {
	return dominv.StockLevel{Available: true, Current: 99}, nil
}

func TestCreateOrderRollsBackWhenReservationLosesRace(t *testing.T) {
	e := newEnv(t)
	e.deps.Stock = racyStock{StockPort: e.deps.Stock}
	in := input("cod")
	in.Items[1].Quantity = 2
	in.Total = total("800")

	_, err := e.create(in)
	var stockErr *dominv.StockError
	require.ErrorAs(t, err, &stockErr)

	assert.Equal(t, 10, e.product("p1").Stock, "first reservation is undone")
	assert.Equal(t, 0, e.product("p1").Sold)
	assert.Empty(t, e.events())
	orders, err := e.store.Orders().ListByCustomer(context.Background(), "u1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, orders)

	c, err := e.store.Customers().Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, c.LoyaltyPoints)
}

func TestCreateOrderCustomItemSkipsStock(t *testing.T) {
	e := newEnv(t)
	in := input("cod")
	in.Items = []appOrder.CreateOrderItem{{
		Name: "Custom Portrait", Quantity: 1, UnitPrice: dec("1200"),
		Customization: map[string]string{"style": "watercolor"},
	}}
	in.Total = total("1200")

	o := e.mustCreate(in)
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].Custom())
	assert.Equal(t, "watercolor", o.Items[0].Customization["style"])
	assert.Empty(t, o.CatalogItems())
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	e := newEnv(t)
	in := input("cod")
	in.Items = []appOrder.CreateOrderItem{{ProductID: "nope", Name: "Ghost", Quantity: 1, UnitPrice: dec("10")}}

	_, err := e.create(in)
	assert.ErrorIs(t, err, application.ErrValidation)
}

func TestCreateOrderValidation(t *testing.T) {
	e := newEnv(t)
	in := input("barter")
	in.Items[0].Quantity = 0

	_, err := e.create(in)
	var verr *application.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "payment_method")
	assert.Contains(t, verr.Fields, "items[0].quantity")
}

func TestCreateOrderIdempotentReplay(t *testing.T) {
	e := newEnv(t)
	in := input("cod")
	in.IdempotencyKey = "cart-1"

	first, err := e.create(in)
	require.NoError(t, err)
	second, err := e.create(in)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 9, e.product("p1").Stock)
	assert.Len(t, e.events(), 2)

	in.CustomerID = "u2"
	other, err := e.create(in)
	require.Error(t, err, "u2 cannot have the last Tee")
	assert.Nil(t, other)
}

func TestCreateOrderCoupon(t *testing.T) {
	e := newEnv(t)
	in := input("cod")
	in.CouponCode = "welcome10"
	in.Total = total("544")

	o := e.mustCreate(in)
	assert.True(t, dec("55").Equal(o.Totals.Discount))
	assert.True(t, dec("544").Equal(o.Totals.Total))
}

func TestCreateOrderUnknownCoupon(t *testing.T) {
	e := newEnv(t)
	in := input("cod")
	in.CouponCode = "BOGUS"

	_, err := e.create(in)
	var verr *application.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "coupon_code")
	assert.Equal(t, 10, e.product("p1").Stock)
	assert.Equal(t, 1, e.product("p2").Stock)
	assert.Empty(t, e.events())
}

func TestCreateOrderTotal(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		e := newEnv(t)
		in := input("cod")
		in.Total = nil

		_, err := e.create(in)
		var verr *application.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "total")
		assert.Equal(t, 10, e.product("p1").Stock)
		assert.Empty(t, e.events())
	})

	t.Run("mismatch", func(t *testing.T) {
		e := newEnv(t)
		in := input("cod")
		in.Total = total("550")

		_, err := e.create(in)
		var verr *application.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "total")
		assert.Empty(t, e.events())
	})

	t.Run("scale does not matter", func(t *testing.T) {
		e := newEnv(t)
		in := input("cod")
		in.Total = total("599.00")

		_, err := e.create(in)
		require.NoError(t, err)
	})
}

func TestCreateOrderPricePolicies(t *testing.T) {
	t.Run("reprice uses the catalog", func(t *testing.T) {
		e := newEnv(t)
		e.settings.Pricing = appOrder.PricingReprice
		in := input("cod")
		in.Items[0].UnitPrice = dec("1")
		in.Items[0].Name = ""

		o := e.mustCreate(in)
		assert.True(t, dec("300").Equal(o.Items[0].UnitPrice))
		assert.Equal(t, "Mug", o.Items[0].Name)
	})

	t.Run("strict rejects drift beyond tolerance", func(t *testing.T) {
		e := newEnv(t)
		e.settings.Pricing = appOrder.PricingStrict
		e.settings.PriceTolerance = dec("0.50")
		in := input("cod")
		in.Items[0].UnitPrice = dec("299.60")
		in.Total = total("598.60")

		_, err := e.create(in)
		require.NoError(t, err)

		in.Items[0].UnitPrice = dec("299")
		in.Items[1].ProductID = "" // custom lines are never compared
		_, err = e.create(in)
		var verr *application.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "items[0].unit_price")
		assert.Len(t, verr.Fields, 1)
	})

	t.Run("trust keeps submitted prices", func(t *testing.T) {
		e := newEnv(t)
		in := input("cod")
		in.Items[0].UnitPrice = dec("1")
		in.Total = total("300")

		o := e.mustCreate(in)
		assert.True(t, dec("1").Equal(o.Items[0].UnitPrice))
	})
}

func TestCreateOrderMissingCustomerSkipsLoyalty(t *testing.T) {
	e := newEnv(t)
	in := input("cod")
	in.CustomerID = "guest"

	res, err := e.create(in)
	require.NoError(t, err)
	assert.Zero(t, res.LoyaltyPoints)
	assert.Equal(t, domorder.StatusConfirmed, res.Order.Status)
}

type failingLoyalty struct{}

func (failingLoyalty) AddLoyaltyPoints(context.Context, string, int64) error {
	return errors.New("ledger offline")
}

func TestCreateOrderLoyaltyFailureRollsBack(t *testing.T) {
	e := newEnv(t)
	e.deps.Loyalty = failingLoyalty{}

	_, err := e.create(input("cod"))
	assert.ErrorIs(t, err, appOrder.ErrRepository)
	assert.Equal(t, 10, e.product("p1").Stock)
	assert.Empty(t, e.events())
}

// scriptedNumbers hands out the given order numbers in sequence.
type scriptedNumbers struct {
	mu      sync.Mutex
	numbers []string
	issued  int
}

func (g *scriptedNumbers) NewNumber() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.numbers[min(g.issued, len(g.numbers)-1)]
	g.issued++
	return n
}

func mugOnly() appOrder.CreateOrderInput {
	in := input("cod")
	in.Items = in.Items[:1]
	in.Total = total("349")
	return in
}

func TestCreateOrderRetriesOnNumberCollision(t *testing.T) {
	e := newEnv(t)
	numbers := &scriptedNumbers{numbers: []string{"ORD-X", "ORD-X", "ORD-Y"}}
	e.deps.Numbers = numbers

	first := e.mustCreate(mugOnly())
	second := e.mustCreate(mugOnly())

	assert.Equal(t, "ORD-X", first.Number)
	assert.Equal(t, "ORD-Y", second.Number)
	assert.Equal(t, 3, numbers.issued)
	assert.Equal(t, 8, e.product("p1").Stock, "the collided attempt is rolled back")
	assert.Equal(t, second.ID, e.order(second.ID).ID)
	assert.Len(t, e.events(), 4)
}

func TestCreateOrderGivesUpAfterRepeatedCollisions(t *testing.T) {
	e := newEnv(t)
	e.deps.Numbers = &scriptedNumbers{numbers: []string{"ORD-X"}}
	e.mustCreate(mugOnly())

	_, err := e.create(mugOnly())
	assert.ErrorIs(t, err, appOrder.ErrConflict)
	assert.Equal(t, 9, e.product("p1").Stock)
}
