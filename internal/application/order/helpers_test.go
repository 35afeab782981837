package order_test

import (
	"context"
	"sync"
	"testing"

	appInventory "github.com/Zhima-Mochi/storefront-orders/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/storefront-orders/internal/application/order"
	"github.com/Zhima-Mochi/storefront-orders/internal/domain/customer"
	dominv "github.com/Zhima-Mochi/storefront-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/coupon"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/id"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func total(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type env struct {
	t        *testing.T
	store    *memory.Store
	deps     appOrder.Dependencies
	settings appOrder.Settings
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	for _, p := range []struct {
		id, name, price string
		stock           int
	}{
		{"p1", "Mug", "300", 10},
		{"p2", "Tee", "250", 1},
	} {
		product, err := dominv.NewProduct(p.id, p.name, dec(p.price), p.stock)
		require.NoError(t, err)
		require.NoError(t, store.Products().Save(ctx, product))
	}
	require.NoError(t, store.Customers().Save(ctx, &customer.Customer{
		ID: "u1", Email: "asha@example.com", Name: "Asha", Phone: "9000000001",
	}))

	inv := appInventory.NewService(store.Products(), nil, nil)
	return &env{
		t:     t,
		store: store,
		deps: appOrder.Dependencies{
			Repo:    store.Orders(),
			Tx:      store.Transactor(),
			Outbox:  store.Outbox(),
			IDs:     id.UUID{},
			Numbers: id.NewOrderNumbers(""),
			Stock:   inv,
			Catalog: inv,
			Coupons: coupon.Defaults(),
			Loyalty: store.Customers(),
		},
		settings: appOrder.DefaultSettings(),
	}
}

func (e *env) create(in appOrder.CreateOrderInput) (*appOrder.CreateOrderResult, error) {
	return appOrder.NewCreateOrderUseCase(e.deps, e.settings, nil).Execute(context.Background(), in)
}

func (e *env) mustCreate(in appOrder.CreateOrderInput) *domorder.Order {
	e.t.Helper()
	res, err := e.create(in)
	require.NoError(e.t, err)
	return res.Order
}

func (e *env) product(id string) *dominv.Product {
	e.t.Helper()
	p, err := e.store.Products().Get(context.Background(), id)
	require.NoError(e.t, err)
	return p
}

func (e *env) order(id string) *domorder.Order {
	e.t.Helper()
	o, err := e.store.Orders().Get(context.Background(), id)
	require.NoError(e.t, err)
	return o
}

func (e *env) events() []string {
	recs := e.store.Outbox().Records()
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.EventType
	}
	return out
}

func address() appOrder.AddressInput {
	return appOrder.AddressInput{Name: "Asha", Line1: "12 MG Road", City: "Bengaluru", PostalCode: "560001"}
}

// input orders one Mug and one Tee (subtotal 550, total 599 with shipping).
func input(method string) appOrder.CreateOrderInput {
	return appOrder.CreateOrderInput{
		CustomerID: "u1",
		Items: []appOrder.CreateOrderItem{
			{ProductID: "p1", Name: "Mug", Quantity: 1, UnitPrice: dec("300")},
			{ProductID: "p2", Name: "Tee", Quantity: 1, UnitPrice: dec("250")},
		},
		ShippingAddress: address(),
		PaymentMethod:   method,
		Total:           total("599"),
	}
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	names []string
	err   error
}

func (n *fakeNotifier) SendOrderConfirmation(_ context.Context, email, name string, o *domorder.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, email+"/"+o.Number)
	n.names = append(n.names, name)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeCarrier struct {
	mu       sync.Mutex
	requests []appOrder.ShipmentRequest
	result   appOrder.ShipmentResult
	err      error
}

func (c *fakeCarrier) CreateShipment(_ context.Context, req appOrder.ShipmentRequest) (appOrder.ShipmentResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return appOrder.ShipmentResult{}, c.err
	}
	return c.result, nil
}

func (c *fakeCarrier) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}
