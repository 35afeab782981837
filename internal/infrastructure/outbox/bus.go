package outbox

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability/logctx"

	"go.uber.org/multierr"
)

const (
	componentOutbox       = "outbox"
	defaultConcurrency    = 8
	defaultHandlerTimeout = 30 * time.Second
)

// Bus fans an event out to in-process subscribers. Publish waits for every
// handler and returns their combined errors so the relay can retry the record.
type Bus struct {
	mu             sync.RWMutex
	subs           map[string][]domoutbox.Handler
	concurrency    int
	handlerTimeout time.Duration
	log            observability.Logger
}

func NewBus(logger observability.Logger) *Bus {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Bus{
		subs:           make(map[string][]domoutbox.Handler),
		concurrency:    defaultConcurrency, // per-event handler fanout cap
		handlerTimeout: defaultHandlerTimeout,
		log:            logger.With(observability.F("component", componentOutbox)),
	}
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", name))
	if len(handlers) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		return nil
	}
	ctx = logctx.With(ctx, logger)

	sem := make(chan struct{}, b.concurrency)
	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  error
	)
	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			var err error
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("outbox: handler for %s panicked: %v", name, r)
				}
				if err != nil {
					errMu.Lock()
					errs = multierr.Append(errs, err)
					errMu.Unlock()
				}
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
			defer cancel()
			err = h(hctx, e)
		}()
	}
	wg.Wait()

	if errs != nil {
		logger.Warn("event_handler_error",
			observability.F("error", errs.Error()),
			observability.F("failed_handlers", len(multierr.Errors(errs))),
		)
		return errs
	}
	logger.Debug("event_fanned_out", observability.F("handlers", len(handlers)))
	return nil
}
