package prometrics

import (
	"testing"

	"github.com/Zhima-Mochi/storefront-orders/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounterRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New("", "", reg)

	c := r.Counter("outbox_records_total", "help", "event", "outcome")
	again := r.Counter("outbox_records_total", "help", "event", "outcome")

	c.Add(1, observability.L("event", "order.placed"), observability.L("outcome", "published"))
	again.Bind(observability.L("event", "order.placed"), observability.L("outcome", "published")).Add(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.(*counter).v.WithLabelValues("order.placed", "published")))
	n, err := testutil.GatherAndCount(reg, "outbox_records_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHistogramObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New("orders", "", reg).Histogram("usecase_duration_seconds", "help", nil, "use_case")
	h.Observe(0.2, observability.L("use_case", "order.create"))
	h.Bind(observability.L("use_case", "order.create")).Observe(0.4)

	n, err := testutil.GatherAndCount(reg, "orders_usecase_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
