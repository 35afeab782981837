package memory

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/storefront-orders/internal/domain/inventory"
)

type InventoryRepository struct {
	s *Store
}

func (r *InventoryRepository) Get(ctx context.Context, productID string) (*domain.Product, error) {
	_ = ctx

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *InventoryRepository) Save(ctx context.Context, product *domain.Product) error {
	if product == nil || product.ID == "" {
		return fmt.Errorf("inventory repository: id is required")
	}
	return r.s.write(ctx, func() (func(), error) {
		prev, existed := r.s.products[product.ID]
		r.s.products[product.ID] = product.Clone()
		return func() {
			if existed {
				r.s.products[product.ID] = prev
			} else {
				delete(r.s.products, product.ID)
			}
		}, nil
	})
}

// Reserve checks and decrements stock under the store lock, so two orders can
// never take the same unit.
func (r *InventoryRepository) Reserve(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	return r.mutate(ctx, productID, func(p *domain.Product) error { return p.Reserve(quantity) })
}

func (r *InventoryRepository) Restock(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	return r.mutate(ctx, productID, func(p *domain.Product) error { return p.Restock(quantity) })
}

func (r *InventoryRepository) mutate(ctx context.Context, productID string, apply func(*domain.Product) error) (*domain.Product, error) {
	var out *domain.Product
	err := r.s.write(ctx, func() (func(), error) {
		prev, ok := r.s.products[productID]
		if !ok {
			return nil, domain.ErrNotFound
		}
		next := prev.Clone()
		if err := apply(next); err != nil {
			return nil, err
		}
		r.s.products[productID] = next
		out = next.Clone()
		return func() { r.s.products[productID] = prev }, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
