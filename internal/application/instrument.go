package application

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/storefront-orders/internal/observability"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "UC."

// Instrument holds the tracer, base logger and RED instruments shared by the use
// cases of one service. Metrics are supplied via DI; nothing is created per call.
type Instrument struct {
	log    observability.Logger
	tracer observability.Tracer

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstrument(tel observability.Observability, service string) Instrument {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return Instrument{
		log:          tel.Logger().With(observability.F("service", service)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

func (in Instrument) Logger() observability.Logger { return in.log }

// Run tracks one use case execution from Start to End.
type Run struct {
	in         Instrument
	ctx        context.Context
	span       trace.Span
	logger     observability.Logger
	useCase    string
	start      time.Time
	outcome    string
	statusText string
	fields     []observability.Field
}

// Start opens the span "UC.<spanName>" and a request scoped logger tagged with the use case.
func (in Instrument) Start(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	logger := logctx.FromOr(ctx, in.log).With(observability.F("use_case", useCase))
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	return ctx, &Run{
		in:         in,
		ctx:        ctx,
		span:       span,
		logger:     logger,
		useCase:    useCase,
		start:      time.Now(),
		outcome:    "success",
		statusText: "OK",
	}
}

func (r *Run) Span() trace.Span                   { return r.span }
func (r *Run) Logger() observability.Logger       { return r.logger }
func (r *Run) With(fields ...observability.Field) { r.fields = append(r.fields, fields...) }

// Status sets the status text while keeping a success outcome.
func (r *Run) Status(statusText string) { r.statusText = statusText }

// Fail marks the run as failed with a machine readable status.
func (r *Run) Fail(statusText string) {
	r.outcome, r.statusText = "error", statusText
}

func (r *Run) Event(name string, attrs ...attribute.KeyValue) {
	if r.span != nil {
		r.span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// End closes the span, records RED metrics and writes the use_case_done log line.
func (r *Run) End(err error) {
	lat := time.Since(r.start).Seconds()
	if err != nil && r.outcome == "success" {
		r.outcome = "error"
		if r.statusText == "OK" {
			r.statusText = "FAILED"
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.statusText = "CONTEXT_CANCELED"
		}
	}

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.statusText)
		} else {
			r.span.SetStatus(codes.Ok, r.statusText)
		}
		r.span.End()
	}

	r.in.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.in.durHistogram.Observe(lat,
		observability.L("use_case", r.useCase),
	)

	fields := []observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.statusText),
		observability.F("latency_seconds", lat),
	}
	if sc := trace.SpanContextFromContext(r.ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	fields = append(fields, r.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}

	r.logger.Info("use_case_done", fields...)
}

// External records one call to a collaborator outside the process.
func (in Instrument) External(peer, endpoint string, start time.Time, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
	case err != nil:
		outcome = "error"
	}
	in.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}
