package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type OutboxStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool, tracer: otel.Tracer("postgres/outbox_store")}
}

func (s *OutboxStore) Append(ctx context.Context, records ...domoutbox.Record) error {
	ctx, span := s.tracer.Start(ctx, "OutboxStore.Append", trace.WithAttributes(attribute.Int("outbox.records", len(records))))
	defer span.End()

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO outbox (id, aggregate_id, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			rec.ID, rec.AggregateID, rec.EventType, []byte(rec.Payload), rec.CreatedAt)
	}
	if err := conn(ctx, s.pool).SendBatch(ctx, batch).Close(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("postgres: append outbox: %w", err)
	}
	return nil
}

// Claim leases due records with SKIP LOCKED so concurrent relays split the work.
func (s *OutboxStore) Claim(ctx context.Context, limit int, lease time.Duration, maxAttempts int) ([]domoutbox.Record, error) {
	ctx, span := s.tracer.Start(ctx, "OutboxStore.Claim", trace.WithAttributes(attribute.Int("batch_size", limit)))
	defer span.End()

	rows, err := conn(ctx, s.pool).Query(ctx, `
		UPDATE outbox SET claimed_until = NOW() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM outbox
			WHERE published_at IS NULL
			  AND attempts < $3
			  AND (claimed_until IS NULL OR claimed_until < NOW())
			ORDER BY created_at ASC, id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, aggregate_id, event_type, payload, attempts, last_error, created_at, published_at, claimed_until`,
		limit, lease.Seconds(), maxAttempts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("postgres: claim outbox: %w", err)
	}
	defer rows.Close()

	var out []domoutbox.Record
	for rows.Next() {
		var (
			rec     domoutbox.Record
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &rec.AggregateID, &rec.EventType, &payload, &rec.Attempts,
			&rec.LastError, &rec.CreatedAt, &rec.PublishedAt, &rec.ClaimedUntil); err != nil {
			return nil, fmt.Errorf("postgres: scan outbox: %w", err)
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: claim outbox: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *OutboxStore) MarkPublished(ctx context.Context, id string) error {
	return s.mark(ctx, "OutboxStore.MarkPublished", `
		UPDATE outbox SET published_at = NOW(), claimed_until = NULL, last_error = ''
		WHERE id = $1`, id)
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, cause string) error {
	return s.mark(ctx, "OutboxStore.MarkFailed", `
		UPDATE outbox SET attempts = attempts + 1, last_error = $2, claimed_until = NULL
		WHERE id = $1`, id, cause)
}

func (s *OutboxStore) mark(ctx context.Context, spanName, query string, args ...any) error {
	ctx, span := s.tracer.Start(ctx, spanName)
	defer span.End()

	tag, err := conn(ctx, s.pool).Exec(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("postgres: %s: %w", spanName, err)
	}
	if tag.RowsAffected() == 0 {
		return domoutbox.ErrRecordNotFound
	}
	return nil
}
