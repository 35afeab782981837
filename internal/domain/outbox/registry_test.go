package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinged struct {
	ID string `json:"id"`
}

func (pinged) EventName() string { return "test.pinged" }
func (p pinged) Key() string     { return p.ID }

func TestRecordRoundTripThroughRegistry(t *testing.T) {
	reg := NewRegistry()
	Register[pinged](reg)

	rec, err := NewRecord("r-1", pinged{ID: "agg-7"})
	require.NoError(t, err)
	assert.Equal(t, "agg-7", rec.AggregateID)
	assert.Equal(t, "test.pinged", rec.EventType)

	e, err := reg.Decode(rec)
	require.NoError(t, err)
	assert.Equal(t, pinged{ID: "agg-7"}, e)
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := NewRegistry().Decode(Record{EventType: "nope"})
	require.Error(t, err)
}
