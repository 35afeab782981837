package postgres

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/storefront-orders/internal/domain/inventory"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type InventoryRepository struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool, tracer: otel.Tracer("postgres/inventory_repository")}
}

const productColumns = `id, name, price, stock, sold, updated_at`

func (r *InventoryRepository) Get(ctx context.Context, productID string) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Get", trace.WithAttributes(attribute.String("product.id", productID)))
	defer span.End()

	p, err := scanProduct(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func (r *InventoryRepository) Save(ctx context.Context, p *domain.Product) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Save", trace.WithAttributes(attribute.String("product.id", p.ID)))
	defer span.End()

	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO products (id, name, price, stock, sold, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock,
			sold = EXCLUDED.sold, updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Price, p.Stock, p.Sold, p.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("postgres: save product: %w", err)
	}
	return nil
}

// Reserve is a conditional decrement: the row only changes when stock covers quantity.
func (r *InventoryRepository) Reserve(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Reserve", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	q := conn(ctx, r.pool)
	p, err := scanProduct(q.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, sold = sold + $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING `+productColumns, productID, quantity))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		return nil, err
	}

	current, err := scanProduct(q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, &domain.StockError{ProductID: productID, Name: current.Name, Requested: quantity, Available: current.Stock}
}

func (r *InventoryRepository) Restock(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Restock", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	p, err := scanProduct(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+productColumns, productID, quantity))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Sold, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: scan product: %w", err)
	}
	return &p, nil
}
