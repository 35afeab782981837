package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/multierr"
)

// RelayConfig tunes how often and how much the relay drains.
type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	Lease       time.Duration
	MaxAttempts int
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Interval:    time.Second,
		BatchSize:   50,
		Lease:       30 * time.Second,
		MaxAttempts: 10,
	}
}

// EventContext decorates the context a record is delivered with, typically with
// an event scoped logger.
type EventContext func(ctx context.Context, rec domoutbox.Record) context.Context

// Relay moves committed outbox records to publishers and records the outcome.
type Relay struct {
	store      domoutbox.Store
	registry   *domoutbox.Registry
	publishers []domoutbox.Publisher
	cfg        RelayConfig
	eventCtx   EventContext

	log     observability.Logger
	tracer  observability.Tracer
	records observability.Counter // outbox_records_total{event,outcome}

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewRelay(
	store domoutbox.Store,
	registry *domoutbox.Registry,
	cfg RelayConfig,
	tel observability.Observability,
	publishers ...domoutbox.Publisher,
) *Relay {
	if tel == nil {
		tel = observability.Nop()
	}
	def := DefaultRelayConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Relay{
		store:      store,
		registry:   registry,
		publishers: publishers,
		cfg:        cfg,
		log:        tel.Logger().With(observability.F("component", "outbox_relay")),
		tracer:     tel.Tracer(),
		records:    tel.Metrics().Counter(observability.MOutboxRecords),
		done:       make(chan struct{}),
	}
}

func (r *Relay) WithEventContext(fn EventContext) *Relay {
	r.eventCtx = fn
	return r
}

// Start drains the outbox on every tick until Stop or ctx cancellation.
func (r *Relay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		r.log.Info("outbox_relay_started",
			observability.F("interval", r.cfg.Interval.String()),
			observability.F("batch_size", r.cfg.BatchSize),
		)
		for {
			select {
			case <-ctx.Done():
				r.log.Info("outbox_relay_stopped")
				return
			case <-ticker.C:
				if _, err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
					r.log.Warn("outbox_relay_flush_failed", observability.F("error", err.Error()))
				}
			}
		}
	}()
}

func (r *Relay) Stop(ctx context.Context) {
	r.stopOnce.Do(func() {
		if r.cancel == nil {
			return
		}
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
		}
	})
}

// Flush claims one batch and delivers it. It returns how many records were published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	recs, err := r.store.Claim(ctx, r.cfg.BatchSize, r.cfg.Lease, r.cfg.MaxAttempts)
	if err != nil {
		return 0, err
	}
	published := 0
	var errs error
	for _, rec := range recs {
		ok, err := r.deliver(ctx, rec)
		if ok {
			published++
		}
		errs = multierr.Append(errs, err)
	}
	return published, errs
}

// deliver returns a non-nil error only when the outcome could not be stored.
func (r *Relay) deliver(ctx context.Context, rec domoutbox.Record) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "Outbox.Deliver",
		attribute.String("outbox.record_id", rec.ID),
		attribute.String("outbox.event", rec.EventType),
		attribute.Int("outbox.attempt", rec.Attempts+1),
	)
	defer span.End()
	if r.eventCtx != nil {
		ctx = r.eventCtx(ctx, rec)
	}

	logger := r.log.With(
		observability.F("record_id", rec.ID),
		observability.F("event", rec.EventType),
		observability.F("attempt", rec.Attempts+1),
	)

	pubErr := r.publish(ctx, rec)
	if pubErr == nil {
		span.SetStatus(codes.Ok, "PUBLISHED")
		r.count(rec.EventType, "published")
		if err := r.store.MarkPublished(ctx, rec.ID); err != nil {
			logger.Error("outbox_mark_published_failed", observability.F("error", err.Error()))
			return true, err
		}
		return true, nil
	}

	span.RecordError(pubErr)
	span.SetStatus(codes.Error, "PUBLISH_FAILED")
	outcome := "retry"
	if rec.Attempts+1 >= r.cfg.MaxAttempts {
		outcome = "dead"
	}
	r.count(rec.EventType, outcome)
	logger.Warn("outbox_record_failed",
		observability.F("error", pubErr.Error()),
		observability.F("outcome", outcome),
	)
	if err := r.store.MarkFailed(context.WithoutCancel(ctx), rec.ID, pubErr.Error()); err != nil {
		logger.Error("outbox_mark_failed_failed", observability.F("error", err.Error()))
		return false, err
	}
	return false, nil
}

func (r *Relay) publish(ctx context.Context, rec domoutbox.Record) error {
	e, err := r.registry.Decode(rec)
	if err != nil {
		return err
	}
	var errs error
	for _, p := range r.publishers {
		errs = multierr.Append(errs, p.Publish(ctx, e))
	}
	return errs
}

func (r *Relay) count(event, outcome string) {
	r.records.Add(1,
		observability.L("event", event),
		observability.L("outcome", outcome),
	)
}
