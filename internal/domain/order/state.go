package order

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var ErrInvalidStateTransition = errors.New("order: invalid state transition")

// TransitionError describes a rejected status change together with the statuses
// that would have been accepted from the current one.
type TransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

func (e *TransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	if len(allowed) == 0 {
		return fmt.Sprintf("order: cannot move from %s to %s: %s is terminal", e.From, e.To, e.From)
	}
	return fmt.Sprintf("order: cannot move from %s to %s (allowed: %s)", e.From, e.To, strings.Join(allowed, ", "))
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// OrderState implements the state pattern for order lifecycle transitions.
type OrderState interface {
	Status() Status
	Next() []Status
	Enter(o *Order, reason string, at time.Time)
}

type pendingState struct{}

func (pendingState) Status() Status                  { return StatusPending }
func (pendingState) Next() []Status                  { return []Status{StatusConfirmed, StatusCancelled} }
func (pendingState) Enter(*Order, string, time.Time) {}

type confirmedState struct{}

func (confirmedState) Status() Status                  { return StatusConfirmed }
func (confirmedState) Next() []Status                  { return []Status{StatusProcessing, StatusCancelled} }
func (confirmedState) Enter(*Order, string, time.Time) {}

type processingState struct{}

func (processingState) Status() Status                  { return StatusProcessing }
func (processingState) Next() []Status                  { return []Status{StatusShipped, StatusCancelled} }
func (processingState) Enter(*Order, string, time.Time) {}

type shippedState struct{}

func (shippedState) Status() Status                  { return StatusShipped }
func (shippedState) Next() []Status                  { return []Status{StatusDelivered} }
func (shippedState) Enter(*Order, string, time.Time) {}

type deliveredState struct{}

func (deliveredState) Status() Status { return StatusDelivered }
func (deliveredState) Next() []Status { return nil }

func (deliveredState) Enter(o *Order, _ string, at time.Time) {
	o.DeliveredAt = &at
}

type cancelledState struct{}

func (cancelledState) Status() Status { return StatusCancelled }
func (cancelledState) Next() []Status { return nil }

func (cancelledState) Enter(o *Order, reason string, at time.Time) {
	o.CancelledAt = &at
	o.CancellationReason = reason
}

var states = map[Status]OrderState{
	StatusPending:    pendingState{},
	StatusConfirmed:  confirmedState{},
	StatusProcessing: processingState{},
	StatusShipped:    shippedState{},
	StatusDelivered:  deliveredState{},
	StatusCancelled:  cancelledState{},
}

// StateOf returns the state object for s, or nil for an unknown status.
func StateOf(s Status) OrderState {
	return states[s]
}

// AllowedNext lists the statuses reachable in one step from s.
func AllowedNext(s Status) []Status {
	st, ok := states[s]
	if !ok {
		return nil
	}
	return slices.Clone(st.Next())
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	st, ok := states[from]
	if !ok {
		return false
	}
	return slices.Contains(st.Next(), to)
}

func (o *Order) State() OrderState {
	return states[o.Status]
}

// TransitionTo moves the order to the requested status. The reason is kept only
// when entering cancelled.
func (o *Order) TransitionTo(to Status, reason string) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{From: o.Status, To: to, Allowed: AllowedNext(o.Status)}
	}
	now := time.Now().UTC()
	states[to].Enter(o, reason, now)
	o.Status = to
	for i := range o.Items {
		o.Items[i].Status = to
	}
	o.UpdatedAt = now
	return nil
}

// CancelPolicy selects which statuses a customer may cancel from.
type CancelPolicy string

const (
	// CancelPolicyOwner allows customer cancellation before processing starts.
	CancelPolicyOwner CancelPolicy = "owner"
	// CancelPolicyTransitionTable allows customer cancellation wherever the lifecycle graph does.
	CancelPolicyTransitionTable CancelPolicy = "transitions"
)

func (p CancelPolicy) Valid() bool {
	return p == CancelPolicyOwner || p == CancelPolicyTransitionTable
}

// Cancellable reports whether a customer may cancel an order in status s under the policy.
func (p CancelPolicy) Cancellable(s Status) bool {
	if p == CancelPolicyTransitionTable {
		return CanTransition(s, StatusCancelled)
	}
	return s == StatusPending || s == StatusConfirmed
}

// Cancel applies a customer initiated cancellation.
func (o *Order) Cancel(customerID, reason string, policy CancelPolicy) error {
	if o.CustomerID != customerID {
		return ErrForbidden
	}
	if !policy.Cancellable(o.Status) {
		allowed := slices.DeleteFunc(AllowedNext(o.Status), func(s Status) bool { return s == StatusCancelled })
		return &TransitionError{From: o.Status, To: StatusCancelled, Allowed: allowed}
	}
	return o.TransitionTo(StatusCancelled, reason)
}
