package postgres

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/storefront-orders/internal/domain/customer"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CustomerRepository struct {
	pool *pgxpool.Pool
}

func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

func (r *CustomerRepository) Get(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, email, name, phone, loyalty_points FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Email, &c.Name, &c.Phone, &c.LoyaltyPoints)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get customer: %w", err)
	}
	return &c, nil
}

func (r *CustomerRepository) Save(ctx context.Context, c *domain.Customer) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO customers (id, email, name, phone, loyalty_points)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email, name = EXCLUDED.name, phone = EXCLUDED.phone,
			loyalty_points = EXCLUDED.loyalty_points`,
		c.ID, c.Email, c.Name, c.Phone, c.LoyaltyPoints)
	if err != nil {
		return fmt.Errorf("postgres: save customer: %w", err)
	}
	return nil
}

func (r *CustomerRepository) AddLoyaltyPoints(ctx context.Context, id string, points int64) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE customers SET loyalty_points = loyalty_points + $2 WHERE id = $1`, id, points)
	if err != nil {
		return fmt.Errorf("postgres: add loyalty points: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
