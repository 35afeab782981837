package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"
	"github.com/Zhima-Mochi/storefront-orders/internal/domain/customer"
	domain "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	workerService       = "order-worker"
	useCaseNotify       = "order.notify"
	useCaseShip         = "order.ship"
	peerNotification    = "notification"
	peerShipment        = "shipment"
	maxTrackingAttempts = 3
)

// Worker performs the side effects of an order after it has been committed:
// the confirmation message and the carrier booking. It is driven by outbox events.
type Worker struct {
	repo       domain.Repository
	customers  CustomerDirectory
	notifier   Notifier
	shipments  ShipmentCreator
	subscriber domoutbox.Subscriber
	unitWeight decimal.Decimal
	obs        application.Instrument
}

func NewWorker(
	repo domain.Repository,
	customers CustomerDirectory,
	notifier Notifier,
	shipments ShipmentCreator,
	subscriber domoutbox.Subscriber,
	settings Settings,
	tel observability.Observability,
) *Worker {
	return &Worker{
		repo:       repo,
		customers:  customers,
		notifier:   notifier,
		shipments:  shipments,
		subscriber: subscriber,
		unitWeight: settings.UnitWeightKg,
		obs:        application.NewInstrument(tel, workerService),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.repo == nil {
		return
	}
	w.subscriber.Subscribe(domain.EventPlaced, w.handlePlaced)
	w.subscriber.Subscribe(domain.EventShipmentRequested, w.handleShipmentRequested)
}

// handlePlaced never fails: a lost confirmation message must not hold the event back.
func (w *Worker) handlePlaced(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domain.PlacedEvent)
	if !ok {
		return nil
	}
	_ = w.SendConfirmation(ctx, evt.OrderID)
	return nil
}

// handleShipmentRequested returns carrier failures so the outbox retries the booking.
func (w *Worker) handleShipmentRequested(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domain.ShipmentRequestedEvent)
	if !ok {
		return nil
	}
	_, err := w.CreateShipment(ctx, evt.OrderID)
	return err
}

// SendConfirmation sends the order confirmation to the customer.
func (w *Worker) SendConfirmation(ctx context.Context, orderID string) (err error) {
	ctx, run := w.obs.Start(ctx, useCaseNotify, "SendOrderConfirmation", attribute.String("order.id", orderID))
	defer func() { run.End(err) }()

	if w.notifier == nil {
		run.Status("NOTIFIER_DISABLED")
		return nil
	}
	o, err := w.repo.Get(ctx, orderID)
	if err != nil {
		run.Fail("ORDER_LOAD_FAILED")
		return wrapRepositoryError(err)
	}

	email, name := "", o.ShippingAddress.Name
	if c := w.lookupCustomer(ctx, run, o.CustomerID); c != nil {
		email = c.Email
		if c.Name != "" {
			name = c.Name
		}
	}
	if email == "" {
		run.Status("NO_RECIPIENT")
		return nil
	}

	start := time.Now()
	err = w.notifier.SendOrderConfirmation(ctx, email, name, o)
	w.obs.External(peerNotification, "order_confirmation", start, err)
	if err != nil {
		run.Fail("NOTIFICATION_FAILED")
		return fmt.Errorf("order: send confirmation: %w", err)
	}
	return nil
}

// CreateShipment books a carrier shipment for a settled order and stores the
// waybill as its tracking number. Orders that already have one are left alone.
func (w *Worker) CreateShipment(ctx context.Context, orderID string) (_ *ShipmentResult, err error) {
	ctx, run := w.obs.Start(ctx, useCaseShip, "CreateShipment", attribute.String("order.id", orderID))
	defer func() { run.End(err) }()

	o, err := w.repo.Get(ctx, orderID)
	if err != nil {
		run.Fail("ORDER_LOAD_FAILED")
		return nil, wrapRepositoryError(err)
	}
	switch {
	case o.TrackingNumber != "":
		run.Status("ALREADY_BOOKED")
		return &ShipmentResult{Success: true, AWBNumber: o.TrackingNumber}, nil
	case o.Status == domain.StatusCancelled:
		run.Status("ORDER_CANCELLED")
		return nil, nil
	case !o.Settled():
		run.Status("NOT_SETTLED")
		return nil, nil
	}
	if w.shipments == nil {
		run.Status("CARRIER_DISABLED")
		return nil, nil
	}

	req := w.shipmentRequest(ctx, run, o)
	start := time.Now()
	res, err := w.shipments.CreateShipment(ctx, req)
	w.obs.External(peerShipment, "create_shipment", start, err)
	if err != nil {
		run.Fail("SHIPMENT_FAILED")
		return nil, fmt.Errorf("order: create shipment: %w", err)
	}
	if !res.Success || res.AWBNumber == "" {
		run.Fail("SHIPMENT_REJECTED")
		return &res, fmt.Errorf("order: carrier rejected shipment: %s", res.Message)
	}

	skipped, err := w.storeTracking(ctx, o, res.AWBNumber)
	if err != nil {
		run.Fail("TRACKING_SAVE_FAILED")
		return &res, err
	}
	if skipped != "" {
		// the carrier booking exists but the order moved on while it was made
		run.Status(skipped)
		run.Logger().Warn("shipment_not_attached",
			observability.F("order_id", o.ID),
			observability.F("awb_number", res.AWBNumber),
			observability.F("reason", skipped),
		)
		return &res, nil
	}
	run.With(observability.F("awb_number", res.AWBNumber))
	run.Event("order.shipment_created", attribute.String("shipment.awb", res.AWBNumber))
	return &res, nil
}

// storeTracking saves awb on the order. When a concurrent write wins, the order is
// reloaded and the booking guards run again; a non-empty status names the guard
// that stopped the write.
func (w *Worker) storeTracking(ctx context.Context, o *domain.Order, awb string) (string, error) {
	for attempt := 1; ; attempt++ {
		o.SetTrackingNumber(awb)
		err := w.repo.Update(ctx, o)
		if err == nil {
			return "", nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt == maxTrackingAttempts {
			return "", wrapRepositoryError(err)
		}
		if o, err = w.repo.Get(ctx, o.ID); err != nil {
			return "", wrapRepositoryError(err)
		}
		switch {
		case o.TrackingNumber != "":
			return "ALREADY_BOOKED", nil
		case o.Status == domain.StatusCancelled:
			return "ORDER_CANCELLED", nil
		}
	}
}

func (w *Worker) shipmentRequest(ctx context.Context, run *application.Run, o *domain.Order) ShipmentRequest {
	sc := ShipmentCustomer{
		Name:    o.ShippingAddress.Name,
		Phone:   o.ShippingAddress.Phone,
		Address: o.ShippingAddress,
	}
	if c := w.lookupCustomer(ctx, run, o.CustomerID); c != nil {
		sc.Email = c.Email
		if sc.Phone == "" {
			sc.Phone = c.Phone
		}
		if sc.Name == "" {
			sc.Name = c.Name
		}
	}

	items := make([]ShipmentItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ShipmentItem{
			SKU:       it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	mode, cod := PaymentModePrepaid, decimal.Zero
	if o.PaymentMethod.IsCOD() {
		mode, cod = PaymentModeCOD, o.Totals.Total
	}
	return ShipmentRequest{
		OrderID:       o.ID,
		OrderNumber:   o.Number,
		Customer:      sc,
		Items:         items,
		TotalWeightKg: w.unitWeight.Mul(decimal.NewFromInt(int64(o.Units()))),
		PaymentMode:   mode,
		CODAmount:     cod,
		InvoiceValue:  o.Totals.Total,
	}
}

func (w *Worker) lookupCustomer(ctx context.Context, run *application.Run, id string) *customer.Customer {
	if w.customers == nil {
		return nil
	}
	c, err := w.customers.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, customer.ErrNotFound) {
			run.Logger().Warn("customer_lookup_failed",
				observability.F("customer_id", id),
				observability.F("error", err.Error()),
			)
		}
		return nil
	}
	return c
}
