package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrRecordNotFound = errors.New("outbox: record not found")

// Record is an event persisted in the same transaction as the state change that produced it.
type Record struct {
	ID           string
	AggregateID  string
	EventType    string
	Payload      json.RawMessage
	Attempts     int
	LastError    string
	CreatedAt    time.Time
	PublishedAt  *time.Time
	ClaimedUntil *time.Time
}

// NewRecord serialises e into a pending record.
func NewRecord(id string, e Event) (Record, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Record{}, fmt.Errorf("outbox: encode %s: %w", e.EventName(), err)
	}
	var aggregate string
	if k, ok := e.(Keyed); ok {
		aggregate = k.Key()
	}
	return Record{
		ID:          id,
		AggregateID: aggregate,
		EventType:   e.EventName(),
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Store persists outbox records. Append joins the caller's transaction when one is
// active on ctx; Claim leases due records so concurrent relays never share one.
type Store interface {
	Append(ctx context.Context, records ...Record) error
	Claim(ctx context.Context, limit int, lease time.Duration, maxAttempts int) ([]Record, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause string) error
}
