package order

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"
	domain "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseOrderCancel = "order.cancel"

type CancelOrderInput struct {
	OrderID    string `validate:"required"`
	CustomerID string `validate:"required"`
	Reason     string
}

// CancelOrderUseCase lets the owning customer cancel an order and returns its items to stock.
type CancelOrderUseCase struct {
	repo   domain.Repository
	tx     application.Transactor
	outbox domoutbox.Store
	ids    application.IDGenerator
	stock  StockPort
	policy domain.CancelPolicy
	obs    application.Instrument
}

func NewCancelOrderUseCase(deps Dependencies, policy domain.CancelPolicy, tel observability.Observability) *CancelOrderUseCase {
	if !policy.Valid() {
		policy = domain.CancelPolicyOwner
	}
	return &CancelOrderUseCase{
		repo:   deps.Repo,
		tx:     deps.Tx,
		outbox: deps.Outbox,
		ids:    deps.IDs,
		stock:  deps.Stock,
		policy: policy,
		obs:    application.NewInstrument(tel, orderService),
	}
}

func (uc *CancelOrderUseCase) Execute(ctx context.Context, cmd CancelOrderInput) (_ *domain.Order, err error) {
	ctx, run := uc.obs.Start(ctx, useCaseOrderCancel, "CancelOrder",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.cancel_policy", string(uc.policy)),
	)
	defer func() { run.End(err) }()

	if err = application.Validate(cmd); err != nil {
		run.Fail("VALIDATION_FAILED")
		return nil, err
	}

	o, err := uc.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		run.Fail("ORDER_LOAD_FAILED")
		return nil, wrapRepositoryError(err)
	}

	from := o.Status
	if err = o.Cancel(cmd.CustomerID, cmd.Reason, uc.policy); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			run.Fail("FORBIDDEN")
		} else {
			run.Fail("NOT_CANCELLABLE")
		}
		return nil, err
	}

	events := []domoutbox.Event{
		domain.NewStatusChangedEvent(o, from),
		domain.NewCancelledEvent(o),
	}
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := restockItems(ctx, uc.stock, o); err != nil {
			return err
		}
		if err := uc.repo.Update(ctx, o); err != nil {
			return err
		}
		return application.Emit(ctx, uc.outbox, uc.ids, events...)
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			run.Fail("CONCURRENT_UPDATE")
		} else {
			run.Fail("PERSIST_FAILED")
		}
		return nil, wrapRepositoryError(err)
	}

	run.With(
		observability.F("order_id", o.ID),
		observability.F("from", string(from)),
		observability.F("restocked_items", len(o.CatalogItems())),
	)
	run.Event("order.cancelled", attribute.String("order.id", o.ID))
	return o, nil
}
