package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	domcustomer "github.com/Zhima-Mochi/storefront-orders/internal/domain/customer"
	dominv "github.com/Zhima-Mochi/storefront-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/domain/payment"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type RepositorySuite struct {
	suite.Suite
	ctx       context.Context
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool

	orders    *OrderRepository
	products  *InventoryRepository
	customers *CustomerRepository
	outbox    *OutboxStore
	tx        *Transactor
}

func TestRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	s.ctx = context.Background()

	var err error
	s.container, err = tcpostgres.Run(s.ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("orders_test"),
		tcpostgres.WithUsername("test_user"),
		tcpostgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)

	url, err := s.container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.Require().NoError(Migrate(url))
	s.Require().NoError(Migrate(url), "migrations are idempotent")

	s.pool, err = Connect(s.ctx, url, DefaultPoolConfig())
	s.Require().NoError(err)

	s.orders = NewOrderRepository(s.pool)
	s.products = NewInventoryRepository(s.pool)
	s.customers = NewCustomerRepository(s.pool)
	s.outbox = NewOutboxStore(s.pool)
	s.tx = NewTransactor(s.pool)
}

func (s *RepositorySuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *RepositorySuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE orders, products, customers, outbox`)
	s.Require().NoError(err)
}

func (s *RepositorySuite) newOrder(id, key string) *domorder.Order {
	o, err := domorder.New(domorder.Draft{
		ID:         id,
		Number:     "ORD-" + id,
		CustomerID: "c1",
		Items: []domorder.LineItem{{
			ProductID: "p1", Name: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("249.50"),
			Customization: map[string]string{"engraving": "hi"},
		}},
		Totals: domorder.Totals{
			Subtotal: decimal.RequireFromString("499"),
			Shipping: decimal.RequireFromString("49"),
			Tax:      decimal.Zero,
			Discount: decimal.Zero,
			Total:    decimal.RequireFromString("548"),
		},
		PaymentMethod:   payment.MethodCard,
		ShippingAddress: domorder.Address{Name: "Asha", Line1: "1 MG Road", City: "Bengaluru", PostalCode: "560001"},
		IdempotencyKey:  key,
	})
	s.Require().NoError(err)
	return o
}

func (s *RepositorySuite) TestOrderRoundTrip() {
	o := s.newOrder("o1", "k1")
	s.Require().NoError(s.orders.Insert(s.ctx, o))
	s.Equal(1, o.Version)

	got, err := s.orders.Get(s.ctx, "o1")
	s.Require().NoError(err)
	s.Equal(o.Number, got.Number)
	s.True(o.Totals.Total.Equal(got.Totals.Total))
	s.Equal("hi", got.Items[0].Customization["engraving"])
	s.Equal(o.ShippingAddress, got.BillingAddress)

	byNumber, err := s.orders.GetByNumber(s.ctx, "ORD-o1")
	s.Require().NoError(err)
	s.Equal("o1", byNumber.ID)

	replay, err := s.orders.FindByIdempotency(s.ctx, "c1", "k1")
	s.Require().NoError(err)
	s.Equal("o1", replay.ID)

	s.ErrorIs(s.orders.Insert(s.ctx, s.newOrder("o2", "k1")), domorder.ErrConflict)

	_, err = s.orders.Get(s.ctx, "missing")
	s.ErrorIs(err, domorder.ErrNotFound)
}

func (s *RepositorySuite) TestOrderUpdateIsVersioned() {
	s.Require().NoError(s.orders.Insert(s.ctx, s.newOrder("o1", "")))

	a, _ := s.orders.Get(s.ctx, "o1")
	b, _ := s.orders.Get(s.ctx, "o1")

	s.Require().NoError(a.TransitionTo(domorder.StatusConfirmed, ""))
	s.Require().NoError(s.orders.Update(s.ctx, a))
	s.Equal(2, a.Version)

	s.Require().NoError(b.TransitionTo(domorder.StatusCancelled, "late"))
	s.ErrorIs(s.orders.Update(s.ctx, b), domorder.ErrConflict)

	ghost := s.newOrder("ghost", "")
	s.ErrorIs(s.orders.Update(s.ctx, ghost), domorder.ErrNotFound)

	list, err := s.orders.ListByCustomer(s.ctx, "c1", 10, 0)
	s.Require().NoError(err)
	s.Len(list, 1)
	s.Equal(domorder.StatusConfirmed, list[0].Status)
}

func (s *RepositorySuite) TestReserveIsConditional() {
	p, err := dominv.NewProduct("p1", "Mug", decimal.NewFromInt(100), 3)
	s.Require().NoError(err)
	s.Require().NoError(s.products.Save(s.ctx, p))

	got, err := s.products.Reserve(s.ctx, "p1", 2)
	s.Require().NoError(err)
	s.Equal(1, got.Stock)
	s.Equal(2, got.Sold)

	_, err = s.products.Reserve(s.ctx, "p1", 2)
	var stockErr *dominv.StockError
	s.Require().ErrorAs(err, &stockErr)
	s.Equal(1, stockErr.Available)

	got, err = s.products.Restock(s.ctx, "p1", 2)
	s.Require().NoError(err)
	s.Equal(3, got.Stock)

	_, err = s.products.Reserve(s.ctx, "nope", 1)
	s.ErrorIs(err, dominv.ErrNotFound)
}

func (s *RepositorySuite) TestTransactionRollsBack() {
	p, _ := dominv.NewProduct("p1", "Mug", decimal.NewFromInt(100), 3)
	s.Require().NoError(s.products.Save(s.ctx, p))
	s.Require().NoError(s.customers.Save(s.ctx, &domcustomer.Customer{ID: "c1", Email: "a@example.com"}))

	boom := errors.New("boom")
	err := s.tx.WithinTx(s.ctx, func(ctx context.Context) error {
		s.Require().NoError(s.orders.Insert(ctx, s.newOrder("o1", "")))
		_, err := s.products.Reserve(ctx, "p1", 2)
		s.Require().NoError(err)
		s.Require().NoError(s.customers.AddLoyaltyPoints(ctx, "c1", 54))
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.orders.Get(s.ctx, "o1")
	s.ErrorIs(err, domorder.ErrNotFound)
	got, _ := s.products.Get(s.ctx, "p1")
	s.Equal(3, got.Stock)
	c, _ := s.customers.Get(s.ctx, "c1")
	s.Zero(c.LoyaltyPoints)
	s.ErrorIs(s.customers.AddLoyaltyPoints(s.ctx, "ghost", 1), domcustomer.ErrNotFound)
}

func (s *RepositorySuite) TestOutboxClaim() {
	o := s.newOrder("o1", "")
	rec, err := domoutbox.NewRecord("r1", domorder.NewPlacedEvent(o))
	s.Require().NoError(err)
	s.Require().NoError(s.outbox.Append(s.ctx, rec))

	claimed, err := s.outbox.Claim(s.ctx, 10, time.Minute, 3)
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)
	s.Equal("o1", claimed[0].AggregateID)
	s.JSONEq(string(rec.Payload), string(claimed[0].Payload))

	again, err := s.outbox.Claim(s.ctx, 10, time.Minute, 3)
	s.Require().NoError(err)
	s.Empty(again)

	s.Require().NoError(s.outbox.MarkFailed(s.ctx, "r1", "kafka down"))
	retry, err := s.outbox.Claim(s.ctx, 10, time.Minute, 3)
	s.Require().NoError(err)
	s.Require().Len(retry, 1)
	s.Equal(1, retry[0].Attempts)

	s.Require().NoError(s.outbox.MarkPublished(s.ctx, "r1"))
	done, err := s.outbox.Claim(s.ctx, 10, 0, 3)
	s.Require().NoError(err)
	s.Empty(done)

	s.ErrorIs(s.outbox.MarkPublished(s.ctx, "nope"), domoutbox.ErrRecordNotFound)
}
