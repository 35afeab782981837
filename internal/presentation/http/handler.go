package httppresentation

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	appOrder "github.com/Zhima-Mochi/storefront-orders/internal/application/order"
	appPayment "github.com/Zhima-Mochi/storefront-orders/internal/application/payment"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability/logctx"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerUserID         = "X-User-ID"
	headerIdempotencyKey = "Idempotency-Key"
	tracerName           = "storefront.http"
)

// UseCases are the application entry points served over HTTP.
type UseCases struct {
	CreateOrder   *appOrder.CreateOrderUseCase
	UpdateStatus  *appOrder.UpdateStatusUseCase
	CancelOrder   *appOrder.CancelOrderUseCase
	Queries       *appOrder.Queries
	UpdatePayment *appPayment.UpdatePaymentStatusUseCase
}

type Options struct {
	// CallbackRPS and CallbackBurst size the per client bucket of the payment callback.
	CallbackRPS   float64
	CallbackBurst int
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

type Handler struct {
	uc       UseCases
	opts     Options
	limiter  *IPRateLimiter
	log      observability.Logger
	requests observability.Counter
	latency  observability.Histogram
	now      func() time.Time
}

func NewHandler(uc UseCases, opts Options, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	h := &Handler{
		uc:       uc,
		opts:     opts,
		log:      tel.Logger().With(observability.F("component", componentHTTPHandler)),
		requests: tel.Metrics().Counter(observability.MHTTPRequests),
		latency:  tel.Metrics().Histogram(observability.MHTTPRequestDuration),
		now:      time.Now,
	}
	if opts.CallbackRPS > 0 {
		burst := opts.CallbackBurst
		if burst <= 0 {
			burst = int(opts.CallbackRPS) + 1
		}
		h.limiter = NewIPRateLimiter(rate.Limit(opts.CallbackRPS), burst)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	h.muxHandle(mux, http.MethodPost, "/orders", h.handleCreateOrder)
	h.muxHandle(mux, http.MethodGet, "/orders", h.handleListOrders)
	h.muxHandle(mux, http.MethodGet, "/orders/{id}", h.handleGetOrder)
	h.muxHandle(mux, http.MethodGet, "/orders/track/{number}", h.handleTrackOrder)
	h.muxHandle(mux, http.MethodPost, "/orders/{id}/status", h.handleUpdateStatus)
	h.muxHandle(mux, http.MethodPost, "/orders/{id}/cancel", h.handleCancelOrder)
	h.muxHandle(mux, http.MethodPost, "/payments/callback", h.withRateLimit(h.limiter, h.handlePaymentCallback))
	h.muxHandle(mux, http.MethodGet, "/delivery/estimate", h.handleDeliveryEstimate)
	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)
	if h.opts.Metrics != nil {
		mux.Handle("GET /metrics", h.opts.Metrics)
	}

	return mux
}

// muxHandle registers route with the chain Trace → Request Logger → Metrics → Access Log → Handler.
func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	chain := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			func(r *http.Request) string { return r.Header.Get(headerUserID) },
		)(
			h.withHTTPMetrics(
				h.withAccessLog(handler),
			),
		),
	)
	mux.HandleFunc(method+" "+route, func(w http.ResponseWriter, r *http.Request) {
		// stable route template for low-cardinality labels
		chain.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), route)))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := h.now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logger := logctx.FromOr(r.Context(), h.log)
		fields := []observability.Field{
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		}
		if lrw.status >= http.StatusInternalServerError {
			logger.Error("http_access", fields...)
			return
		}
		logger.Info("http_access", fields...)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer(tracerName)
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := r.Method + " " + route
		if route == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}

		ctx, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", lrw.status))
	})
}

// withHTTPMetrics records RED-ish HTTP metrics using injected vectors.
// DO NOT new metrics inside the middleware.
func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := h.now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		route := routeFromContext(r.Context())
		h.requests.Add(1,
			observability.L("method", r.Method),
			observability.L("route", route),
			observability.L("status", strconv.Itoa(lrw.status)),
		)
		h.latency.Observe(time.Since(start).Seconds(),
			observability.L("method", r.Method),
			observability.L("route", route),
		)
	})
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(headerUserID))
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
