package inventory

import (
	"context"
)

type Repository interface {
	Get(ctx context.Context, productID string) (*Product, error)
	Save(ctx context.Context, product *Product) error
	// Reserve decrements stock and increments sold in one conditional update.
	// It fails with *StockError when stock does not cover quantity.
	Reserve(ctx context.Context, productID string, quantity int) (*Product, error)
	Restock(ctx context.Context, productID string, quantity int) (*Product, error)
}
