package order

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"
	domain "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseOrderGet   = "order.get"
	useCaseOrderTrack = "order.track"
	useCaseOrderList  = "order.list"
	defaultListLimit  = 20
	maxListLimit      = 100
)

// Queries serves read-only order lookups.
type Queries struct {
	repo domain.Repository
	obs  application.Instrument
}

func NewQueries(repo domain.Repository, tel observability.Observability) *Queries {
	return &Queries{repo: repo, obs: application.NewInstrument(tel, orderService)}
}

func (q *Queries) Get(ctx context.Context, id string) (_ *domain.Order, err error) {
	ctx, run := q.obs.Start(ctx, useCaseOrderGet, "GetOrder", attribute.String("order.id", id))
	defer func() { run.End(err) }()

	o, err := q.repo.Get(ctx, id)
	if err != nil {
		run.Fail(lookupStatus(err))
		return nil, wrapRepositoryError(err)
	}
	return o, nil
}

// Track finds an order by its customer facing number.
func (q *Queries) Track(ctx context.Context, number string) (_ *domain.Order, err error) {
	ctx, run := q.obs.Start(ctx, useCaseOrderTrack, "TrackOrder", attribute.String("order.number", number))
	defer func() { run.End(err) }()

	o, err := q.repo.GetByNumber(ctx, number)
	if err != nil {
		run.Fail(lookupStatus(err))
		return nil, wrapRepositoryError(err)
	}
	return o, nil
}

func (q *Queries) ListByCustomer(ctx context.Context, customerID string, limit, offset int) (_ []*domain.Order, err error) {
	ctx, run := q.obs.Start(ctx, useCaseOrderList, "ListOrders", attribute.String("order.customer_id", customerID))
	defer func() { run.End(err) }()

	if customerID == "" {
		run.Fail("VALIDATION_FAILED")
		return nil, application.NewValidation("customer_id", "customer_id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	orders, err := q.repo.ListByCustomer(ctx, customerID, limit, offset)
	if err != nil {
		run.Fail("LIST_FAILED")
		return nil, wrapRepositoryError(err)
	}
	run.With(observability.F("count", len(orders)))
	return orders, nil
}

func lookupStatus(err error) string {
	if errors.Is(err, domain.ErrNotFound) {
		return "NOT_FOUND"
	}
	return "LOOKUP_FAILED"
}
