package payment

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"
	domorder "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	pstat "github.com/Zhima-Mochi/storefront-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService       = "payment-service"
	useCasePaymentUpdate = "payment.update_status"
	paymentSpanName      = "UpdatePaymentStatus"
)

var ErrRepository = errors.New("payment: repository failure")

// UpdatePaymentStatusInput is a payment gateway report about one order.
type UpdatePaymentStatusInput struct {
	OrderID      string `json:"order_id" validate:"required"`
	Status       string `json:"status" validate:"required,oneof=pending paid failed refunded"`
	Reference    string `json:"payment_id"`
	RefundReason string `json:"refund_reason"`
}

type UpdatePaymentStatusResult struct {
	Order         *domorder.Order
	Changed       bool
	AutoConfirmed bool
}

// UpdatePaymentStatusUseCase reconciles the stored payment status with the gateway.
type UpdatePaymentStatusUseCase struct {
	repo   domorder.Repository
	tx     application.Transactor
	outbox domoutbox.Store
	ids    application.IDGenerator
	obs    application.Instrument
}

func NewUpdatePaymentStatusUseCase(
	repo domorder.Repository,
	tx application.Transactor,
	outbox domoutbox.Store,
	ids application.IDGenerator,
	tel observability.Observability,
) *UpdatePaymentStatusUseCase {
	return &UpdatePaymentStatusUseCase{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		ids:    ids,
		obs:    application.NewInstrument(tel, paymentService),
	}
}

// Execute applies the reported status. Repeating a report is a no-op, and a
// payment that clears on a pending order confirms it.
func (uc *UpdatePaymentStatusUseCase) Execute(ctx context.Context, cmd UpdatePaymentStatusInput) (_ *UpdatePaymentStatusResult, err error) {
	ctx, run := uc.obs.Start(ctx, useCasePaymentUpdate, paymentSpanName,
		attribute.String("order.id", cmd.OrderID),
		attribute.String("payment.status", cmd.Status),
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

	change, err := o.ApplyPayment(pstat.Status(cmd.Status), cmd.Reference, cmd.RefundReason)
	if err != nil {
		run.Fail("PAYMENT_REJECTED")
		return nil, err
	}
	if !change.Changed {
		run.Status("UNCHANGED")
		return &UpdatePaymentStatusResult{Order: o}, nil
	}

	events := []domoutbox.Event{domorder.NewPaymentUpdatedEvent(o, change)}
	if change.NewlyPaid && !o.PaymentMethod.IsCOD() && o.Status != domorder.StatusCancelled {
		events = append(events, domorder.NewShipmentRequestedEvent(o, domorder.TriggerPaymentSettled))
	}
	if change.AutoConfirmed {
		events = append(events, domorder.NewStatusChangedEvent(o, domorder.StatusPending))
	}

	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := uc.repo.Update(ctx, o); err != nil {
			return err
		}
		return application.Emit(ctx, uc.outbox, uc.ids, events...)
	})
	if err != nil {
		if errors.Is(err, domorder.ErrConflict) {
			run.Fail("CONCURRENT_UPDATE")
		} else {
			run.Fail("PERSIST_FAILED")
		}
		return nil, wrapRepositoryError(err)
	}

	run.With(
		observability.F("order_id", o.ID),
		observability.F("payment_from", string(change.Previous)),
		observability.F("payment_to", string(o.PaymentStatus)),
		observability.F("auto_confirmed", change.AutoConfirmed),
	)
	run.Event("order.payment_updated", attribute.String("payment.status", string(o.PaymentStatus)))
	return &UpdatePaymentStatusResult{Order: o, Changed: true, AutoConfirmed: change.AutoConfirmed}, nil
}

func wrapRepositoryError(err error) error {
	switch {
	case errors.Is(err, domorder.ErrNotFound), errors.Is(err, domorder.ErrConflict):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return errors.Join(ErrRepository, err)
	}
}
