package outbox_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/outbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parcelBooked struct {
	ID string `json:"id"`
}

func (parcelBooked) EventName() string { return "test.parcel_booked" }
func (p parcelBooked) Key() string     { return p.ID }

func TestBusCombinesHandlerErrors(t *testing.T) {
	bus := outbox.NewBus(nil)
	var calls atomic.Int32
	bus.Subscribe("test.parcel_booked", func(context.Context, domoutbox.Event) error {
		calls.Add(1)
		return errors.New("first")
	})
	bus.Subscribe("test.parcel_booked", func(context.Context, domoutbox.Event) error {
		calls.Add(1)
		panic("second")
	})
	bus.Subscribe("test.parcel_booked", func(context.Context, domoutbox.Event) error {
		calls.Add(1)
		return nil
	})

	err := bus.Publish(context.Background(), parcelBooked{ID: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, int32(3), calls.Load())

	assert.NoError(t, bus.Publish(context.Background(), unrouted{}))
}

type unrouted struct{}

func (unrouted) EventName() string { return "test.unrouted" }

func newRelay(t *testing.T, store domoutbox.Store, pubs ...domoutbox.Publisher) *outbox.Relay {
	t.Helper()
	reg := domoutbox.NewRegistry()
	domoutbox.Register[parcelBooked](reg)
	cfg := outbox.DefaultRelayConfig()
	cfg.MaxAttempts = 2
	return outbox.NewRelay(store, reg, cfg, nil, pubs...)
}

func appendEvent(t *testing.T, box domoutbox.Store, id string) {
	t.Helper()
	rec, err := domoutbox.NewRecord(id, parcelBooked{ID: "agg-" + id})
	require.NoError(t, err)
	require.NoError(t, box.Append(context.Background(), rec))
}

func TestRelayPublishesAndMarks(t *testing.T) {
	ctx := context.Background()
	box := memory.NewStore().Outbox()
	appendEvent(t, box, "r1")

	bus := outbox.NewBus(nil)
	var got []domoutbox.Event
	bus.Subscribe("test.parcel_booked", func(_ context.Context, e domoutbox.Event) error {
		got = append(got, e)
		return nil
	})

	n, err := newRelay(t, box, bus).Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, got, 1)
	assert.Equal(t, parcelBooked{ID: "agg-r1"}, got[0])

	recs := box.Records()
	require.Len(t, recs, 1)
	assert.NotNil(t, recs[0].PublishedAt)

	n, err = newRelay(t, box, bus).Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "published records are not delivered again")
}

func TestRelayRetriesUntilMaxAttempts(t *testing.T) {
	ctx := context.Background()
	box := memory.NewStore().Outbox()
	appendEvent(t, box, "r1")

	bus := outbox.NewBus(nil)
	var attempts int
	bus.Subscribe("test.parcel_booked", func(context.Context, domoutbox.Event) error {
		attempts++
		return errors.New("carrier unavailable")
	})
	relay := newRelay(t, box, bus)

	for i := 0; i < 3; i++ {
		n, err := relay.Flush(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	assert.Equal(t, 2, attempts)

	recs := box.Records()
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].PublishedAt)
	assert.Equal(t, 2, recs[0].Attempts)
	assert.Contains(t, recs[0].LastError, "carrier unavailable")
}

func TestRelayFailsUndecodableRecord(t *testing.T) {
	ctx := context.Background()
	box := memory.NewStore().Outbox()
	require.NoError(t, box.Append(ctx, domoutbox.Record{ID: "r1", EventType: "test.unknown"}))

	n, err := newRelay(t, box).Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, box.Records()[0].LastError, "no decoder")
}
