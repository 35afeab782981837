package order

import "context"

type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// Update fails with ErrConflict when the stored version differs from order.Version.
	// On success order.Version is advanced.
	Update(ctx context.Context, order *Order) error
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*Order, error)
	FindByIdempotency(ctx context.Context, customerID, key string) (*Order, error)
}
