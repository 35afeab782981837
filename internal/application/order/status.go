package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"
	domain "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseOrderUpdateStatus = "order.update_status"

type UpdateStatusInput struct {
	OrderID string `validate:"required"`
	Status  string `validate:"required,oneof=pending confirmed processing shipped delivered cancelled"`
	Reason  string
}

// UpdateStatusUseCase moves an order along the lifecycle graph. Moving to
// cancelled here returns catalog items to stock, the same as a customer cancellation.
type UpdateStatusUseCase struct {
	repo   domain.Repository
	tx     application.Transactor
	outbox domoutbox.Store
	ids    application.IDGenerator
	stock  StockPort
	obs    application.Instrument
}

func NewUpdateStatusUseCase(deps Dependencies, tel observability.Observability) *UpdateStatusUseCase {
	return &UpdateStatusUseCase{
		repo:   deps.Repo,
		tx:     deps.Tx,
		outbox: deps.Outbox,
		ids:    deps.IDs,
		stock:  deps.Stock,
		obs:    application.NewInstrument(tel, orderService),
	}
}

func (uc *UpdateStatusUseCase) Execute(ctx context.Context, cmd UpdateStatusInput) (_ *domain.Order, err error) {
	ctx, run := uc.obs.Start(ctx, useCaseOrderUpdateStatus, "UpdateOrderStatus",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.requested_status", cmd.Status),
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
	to := domain.Status(cmd.Status)
	if err = o.TransitionTo(to, cmd.Reason); err != nil {
		run.Fail("INVALID_TRANSITION")
		return nil, err
	}

	events := []domoutbox.Event{domain.NewStatusChangedEvent(o, from)}
	if to == domain.StatusCancelled {
		events = append(events, domain.NewCancelledEvent(o))
	}
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if to == domain.StatusCancelled {
			if err := restockItems(ctx, uc.stock, o); err != nil {
				return err
			}
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
		observability.F("to", string(to)),
	)
	run.Event("order.status_changed",
		attribute.String("order.from", string(from)),
		attribute.String("order.to", string(to)),
	)
	return o, nil
}

// restockItems returns every catalog item of o to stock.
func restockItems(ctx context.Context, stock StockPort, o *domain.Order) error {
	for _, it := range o.CatalogItems() {
		if _, err := stock.Restock(ctx, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("order: restock %s: %w", it.ProductID, err)
		}
	}
	return nil
}
