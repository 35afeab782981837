package order

import (
	"fmt"
	"time"

	"github.com/Zhima-Mochi/storefront-orders/internal/domain/payment"
)

// PaymentChange summarises what ApplyPayment did to the order.
type PaymentChange struct {
	Previous      payment.Status
	Changed       bool
	AutoConfirmed bool
	NewlyPaid     bool
}

// ApplyPayment records a payment status reported by the gateway. A payment that
// settles while the order is still pending confirms the order; the order status is
// otherwise left alone so late callbacks never move an order backwards.
func (o *Order) ApplyPayment(status payment.Status, reference, refundReason string) (PaymentChange, error) {
	change := PaymentChange{Previous: o.PaymentStatus}
	if !status.Valid() {
		return change, fmt.Errorf("%w: %q", payment.ErrInvalidStatus, status)
	}
	if o.PaymentStatus == status && (reference == "" || reference == o.PaymentReference) {
		return change, nil
	}

	now := time.Now().UTC()
	o.PaymentStatus = status
	if reference != "" {
		o.PaymentReference = reference
	}
	change.Changed = true
	change.NewlyPaid = status == payment.StatusPaid && change.Previous != payment.StatusPaid

	switch status {
	case payment.StatusPaid:
		if o.Status == StatusPending {
			if err := o.TransitionTo(StatusConfirmed, ""); err != nil {
				return change, err
			}
			change.AutoConfirmed = true
		}
	case payment.StatusRefunded:
		o.RefundedAt = &now
		if refundReason != "" {
			o.RefundReason = refundReason
		}
	}
	o.UpdatedAt = now
	return change, nil
}
