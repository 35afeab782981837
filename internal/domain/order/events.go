package order

import (
	"time"

	"github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/domain/payment"
	"github.com/shopspring/decimal"
)

const (
	EventPlaced            = "order.placed"
	EventShipmentRequested = "order.shipment_requested"
	EventPaymentUpdated    = "order.payment_updated"
	EventStatusChanged     = "order.status_changed"
	EventCancelled         = "order.cancelled"
)

// PlacedEvent is emitted in the same transaction that persists a new order.
// Fulfilment reacts to it with the confirmation notification.
type PlacedEvent struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerID    string          `json:"customer_id"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod payment.Method  `json:"payment_method"`
	PaymentStatus payment.Status  `json:"payment_status"`
	Settled       bool            `json:"settled"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (PlacedEvent) EventName() string { return EventPlaced }
func (e PlacedEvent) Key() string     { return e.OrderID }

func NewPlacedEvent(o *Order) PlacedEvent {
	return PlacedEvent{
		OrderID:       o.ID,
		OrderNumber:   o.Number,
		CustomerID:    o.CustomerID,
		Total:         o.Totals.Total,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Settled:       o.Settled(),
		OccurredAt:    time.Now().UTC(),
	}
}

// ShipmentRequestedEvent asks fulfilment to book a carrier shipment. It is
// appended when an order is settled at creation, or later when its payment clears.
type ShipmentRequestedEvent struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Trigger     string    `json:"trigger"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (ShipmentRequestedEvent) EventName() string { return EventShipmentRequested }
func (e ShipmentRequestedEvent) Key() string     { return e.OrderID }

const (
	TriggerPlaced         = "placed"
	TriggerPaymentSettled = "payment_settled"
)

func NewShipmentRequestedEvent(o *Order, trigger string) ShipmentRequestedEvent {
	return ShipmentRequestedEvent{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Trigger:     trigger,
		OccurredAt:  time.Now().UTC(),
	}
}

type PaymentUpdatedEvent struct {
	OrderID       string         `json:"order_id"`
	Previous      payment.Status `json:"previous"`
	Current       payment.Status `json:"current"`
	Reference     string         `json:"reference,omitempty"`
	AutoConfirmed bool           `json:"auto_confirmed"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

func (PaymentUpdatedEvent) EventName() string { return EventPaymentUpdated }
func (e PaymentUpdatedEvent) Key() string     { return e.OrderID }

func NewPaymentUpdatedEvent(o *Order, change PaymentChange) PaymentUpdatedEvent {
	return PaymentUpdatedEvent{
		OrderID:       o.ID,
		Previous:      change.Previous,
		Current:       o.PaymentStatus,
		Reference:     o.PaymentReference,
		AutoConfirmed: change.AutoConfirmed,
		OccurredAt:    time.Now().UTC(),
	}
}

type StatusChangedEvent struct {
	OrderID    string    `json:"order_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (StatusChangedEvent) EventName() string { return EventStatusChanged }
func (e StatusChangedEvent) Key() string     { return e.OrderID }

func NewStatusChangedEvent(o *Order, from Status) StatusChangedEvent {
	return StatusChangedEvent{
		OrderID:    o.ID,
		From:       from,
		To:         o.Status,
		OccurredAt: time.Now().UTC(),
	}
}

// RestockLine is one product returned to stock by a cancellation.
type RestockLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CancelledEvent struct {
	OrderID    string        `json:"order_id"`
	CustomerID string        `json:"customer_id"`
	Reason     string        `json:"reason,omitempty"`
	Restocked  []RestockLine `json:"restocked,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

func (CancelledEvent) EventName() string { return EventCancelled }
func (e CancelledEvent) Key() string     { return e.OrderID }

func NewCancelledEvent(o *Order) CancelledEvent {
	items := o.CatalogItems()
	lines := make([]RestockLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, RestockLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return CancelledEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Reason:     o.CancellationReason,
		Restocked:  lines,
		OccurredAt: time.Now().UTC(),
	}
}

// RegisterEvents teaches the registry how to decode every order event.
func RegisterEvents(r *outbox.Registry) {
	outbox.Register[PlacedEvent](r)
	outbox.Register[ShipmentRequestedEvent](r)
	outbox.Register[PaymentUpdatedEvent](r)
	outbox.Register[StatusChangedEvent](r)
	outbox.Register[CancelledEvent](r)
}
