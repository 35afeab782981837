package zaplogger

import (
	"errors"
	"testing"

	"github.com/Zhima-Mochi/storefront-orders/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := New(zap.New(core), observability.F("service", "orders"))

	l.With(observability.F("use_case", "order.create")).Warn("use_case_done",
		observability.F("outcome", "error"),
		observability.F("error", errors.New("boom")),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "use_case_done", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "orders", fields["service"])
	assert.Equal(t, "order.create", fields["use_case"])
	assert.Equal(t, "error", fields["outcome"])
	assert.Equal(t, "boom", fields["error"])
}
