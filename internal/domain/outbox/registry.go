package outbox

import (
	"encoding/json"
	"fmt"
	"sync"
)

type decoder func(payload []byte) (Event, error)

// Registry maps event names to decoders so persisted records can be turned back into typed events.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]decoder
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]decoder)}
}

// Register binds the event name of T to a JSON decoder producing T.
func Register[T Event](r *Registry) {
	var zero T
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[zero.EventName()] = func(payload []byte) (Event, error) {
		var e T
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	}
}

func (r *Registry) Decode(rec Record) (Event, error) {
	r.mu.RLock()
	dec, ok := r.decoders[rec.EventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("outbox: no decoder for %q", rec.EventType)
	}
	e, err := dec(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("outbox: decode %s: %w", rec.EventType, err)
	}
	return e, nil
}
