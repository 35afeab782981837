package memory

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/storefront-orders/internal/domain/customer"
)

type CustomerRepository struct {
	s *Store
}

func (r *CustomerRepository) Get(ctx context.Context, id string) (*domain.Customer, error) {
	_ = ctx

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.customers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *CustomerRepository) Save(ctx context.Context, c *domain.Customer) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("customer repository: id is required")
	}
	return r.s.write(ctx, func() (func(), error) {
		prev, existed := r.s.customers[c.ID]
		r.s.customers[c.ID] = c.Clone()
		return func() {
			if existed {
				r.s.customers[c.ID] = prev
			} else {
				delete(r.s.customers, c.ID)
			}
		}, nil
	})
}

func (r *CustomerRepository) AddLoyaltyPoints(ctx context.Context, id string, points int64) error {
	return r.s.write(ctx, func() (func(), error) {
		prev, ok := r.s.customers[id]
		if !ok {
			return nil, domain.ErrNotFound
		}
		next := prev.Clone()
		next.LoyaltyPoints += points
		r.s.customers[id] = next
		return func() { r.s.customers[id] = prev }, nil
	})
}
