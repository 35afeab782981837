package memory

import (
	"context"
	"fmt"
	"time"

	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
)

type OutboxStore struct {
	s *Store
}

func (o *OutboxStore) Append(ctx context.Context, records ...domoutbox.Record) error {
	return o.s.write(ctx, func() (func(), error) {
		for _, rec := range records {
			if _, exists := o.s.records[rec.ID]; exists {
				return nil, fmt.Errorf("outbox: duplicate record %s", rec.ID)
			}
		}
		n := len(o.s.recordOrder)
		for _, rec := range records {
			r := rec
			o.s.records[rec.ID] = &r
			o.s.recordOrder = append(o.s.recordOrder, rec.ID)
		}
		return func() {
			for _, id := range o.s.recordOrder[n:] {
				delete(o.s.records, id)
			}
			o.s.recordOrder = o.s.recordOrder[:n]
		}, nil
	})
}

// Claim leases up to limit due records in append order.
func (o *OutboxStore) Claim(ctx context.Context, limit int, lease time.Duration, maxAttempts int) ([]domoutbox.Record, error) {
	var out []domoutbox.Record
	err := o.s.write(ctx, func() (func(), error) {
		now := time.Now().UTC()
		until := now.Add(lease)
		for _, id := range o.s.recordOrder {
			if limit > 0 && len(out) >= limit {
				break
			}
			rec := o.s.records[id]
			if rec.PublishedAt != nil || (maxAttempts > 0 && rec.Attempts >= maxAttempts) {
				continue
			}
			if rec.ClaimedUntil != nil && rec.ClaimedUntil.After(now) {
				continue
			}
			rec.ClaimedUntil = &until
			out = append(out, cloneRecord(rec))
		}
		return nil, nil
	})
	return out, err
}

func (o *OutboxStore) MarkPublished(ctx context.Context, id string) error {
	return o.update(ctx, id, func(rec *domoutbox.Record) {
		now := time.Now().UTC()
		rec.PublishedAt = &now
		rec.ClaimedUntil = nil
	})
}

func (o *OutboxStore) MarkFailed(ctx context.Context, id string, cause string) error {
	return o.update(ctx, id, func(rec *domoutbox.Record) {
		rec.Attempts++
		rec.LastError = cause
		rec.ClaimedUntil = nil
	})
}

// Records returns a snapshot of every record in append order.
func (o *OutboxStore) Records() []domoutbox.Record {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()

	out := make([]domoutbox.Record, 0, len(o.s.recordOrder))
	for _, id := range o.s.recordOrder {
		out = append(out, cloneRecord(o.s.records[id]))
	}
	return out
}

func (o *OutboxStore) update(ctx context.Context, id string, apply func(*domoutbox.Record)) error {
	return o.s.write(ctx, func() (func(), error) {
		rec, ok := o.s.records[id]
		if !ok {
			return nil, domoutbox.ErrRecordNotFound
		}
		prev := cloneRecord(rec)
		apply(rec)
		return func() { *rec = prev }, nil
	})
}

func cloneRecord(r *domoutbox.Record) domoutbox.Record {
	c := *r
	c.Payload = append([]byte(nil), r.Payload...)
	if r.PublishedAt != nil {
		t := *r.PublishedAt
		c.PublishedAt = &t
	}
	if r.ClaimedUntil != nil {
		t := *r.ClaimedUntil
		c.ClaimedUntil = &t
	}
	return c
}
