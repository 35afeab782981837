package memory

import (
	"context"
	"fmt"
	"sort"

	domain "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
)

type OrderRepository struct {
	s *Store
}

func idempotencyKey(customerID, key string) string {
	return customerID + "\x00" + key
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	return r.s.write(ctx, func() (func(), error) {
		if _, exists := r.s.orders[order.ID]; exists {
			return nil, domain.ErrConflict
		}
		if _, exists := r.s.byNumber[order.Number]; exists && order.Number != "" {
			return nil, domain.ErrConflict
		}
		idem := ""
		if order.IdempotencyKey != "" {
			idem = idempotencyKey(order.CustomerID, order.IdempotencyKey)
			if _, exists := r.s.idempotency[idem]; exists {
				return nil, domain.ErrConflict
			}
		}

		order.Version = 1
		r.s.orders[order.ID] = order.Clone()
		if order.Number != "" {
			r.s.byNumber[order.Number] = order.ID
		}
		if idem != "" {
			r.s.idempotency[idem] = order.ID
		}
		return func() {
			delete(r.s.orders, order.ID)
			delete(r.s.byNumber, order.Number)
			if idem != "" {
				delete(r.s.idempotency, idem)
			}
		}, nil
	})
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	order, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	_ = ctx

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.byNumber[number]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.s.orders[id].Clone(), nil
}

func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	return r.s.write(ctx, func() (func(), error) {
		prev, exists := r.s.orders[order.ID]
		if !exists {
			return nil, domain.ErrNotFound
		}
		if prev.Version != order.Version {
			return nil, domain.ErrConflict
		}
		order.Version++
		r.s.orders[order.ID] = order.Clone()
		return func() { r.s.orders[order.ID] = prev }, nil
	})
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*domain.Order, error) {
	_ = ctx

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Order
	for _, o := range r.s.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number > out[j].Number
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []*domain.Order{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	page := make([]*domain.Order, len(out))
	for i, o := range out {
		page[i] = o.Clone()
	}
	return page, nil
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, customerID, key string) (*domain.Order, error) {
	_ = ctx
	if key == "" {
		return nil, domain.ErrNotFound
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	orderID, ok := r.s.idempotency[idempotencyKey(customerID, key)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order, found := r.s.orders[orderID]
	if !found {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}
