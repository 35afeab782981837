package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	"github.com/Zhima-Mochi/storefront-orders/internal/domain/payment"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type OrderRepository struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool, tracer: otel.Tracer("postgres/order_repository")}
}

const orderColumns = `
	id, number, customer_id, items, subtotal, shipping, tax, discount, total,
	status, payment_status, payment_method, payment_reference,
	shipping_address, billing_address, tracking_number, coupon_code,
	affiliate_id, affiliate_code, idempotency_key, cancellation_reason, refund_reason,
	created_at, updated_at, delivered_at, cancelled_at, refunded_at, version`

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Insert", trace.WithAttributes(attribute.String("order.id", o.ID)))
	defer span.End()

	row, err := encodeOrder(o)
	if err != nil {
		return err
	}
	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, 1)`
	_, err = conn(ctx, r.pool).Exec(ctx, query,
		o.ID, o.Number, o.CustomerID, row.items,
		o.Totals.Subtotal, o.Totals.Shipping, o.Totals.Tax, o.Totals.Discount, o.Totals.Total,
		string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod), o.PaymentReference,
		row.shipping, row.billing, o.TrackingNumber, o.CouponCode,
		o.AffiliateID, o.AffiliateCode, o.IdempotencyKey, o.CancellationReason, o.RefundReason,
		o.CreatedAt, o.UpdatedAt, o.DeliveredAt, o.CancelledAt, o.RefundedAt,
	)
	if err != nil {
		span.RecordError(err)
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("postgres: insert order: %w", err)
	}
	o.Version = 1
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, "OrderRepository.Get", `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return r.getOne(ctx, "OrderRepository.GetByNumber", `SELECT `+orderColumns+` FROM orders WHERE number = $1`, number)
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, customerID, key string) (*domain.Order, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	return r.getOne(ctx, "OrderRepository.FindByIdempotency",
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 AND idempotency_key = $2`, customerID, key)
}

// Update writes o when the stored version still equals o.Version.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Update", trace.WithAttributes(attribute.String("order.id", o.ID)))
	defer span.End()

	row, err := encodeOrder(o)
	if err != nil {
		return err
	}
	query := `
		UPDATE orders SET
			items = $3, subtotal = $4, shipping = $5, tax = $6, discount = $7, total = $8,
			status = $9, payment_status = $10, payment_reference = $11,
			shipping_address = $12, billing_address = $13, tracking_number = $14,
			cancellation_reason = $15, refund_reason = $16, updated_at = $17,
			delivered_at = $18, cancelled_at = $19, refunded_at = $20,
			version = version + 1
		WHERE id = $1 AND version = $2`
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, query,
		o.ID, o.Version, row.items,
		o.Totals.Subtotal, o.Totals.Shipping, o.Totals.Tax, o.Totals.Discount, o.Totals.Total,
		string(o.Status), string(o.PaymentStatus), o.PaymentReference,
		row.shipping, row.billing, o.TrackingNumber,
		o.CancellationReason, o.RefundReason, o.UpdatedAt,
		o.DeliveredAt, o.CancelledAt, o.RefundedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("postgres: update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: update order: %w", err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	o.Version++
	return nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListByCustomer", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1
		ORDER BY created_at DESC, number DESC LIMIT $2 OFFSET $3`,
		customerID, limit, offset)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	out := []*domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	return out, nil
}

func (r *OrderRepository) getOne(ctx context.Context, spanName, query string, args ...any) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, spanName)
	defer span.End()

	o, err := scanOrder(conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return o, nil
}

type encodedOrder struct {
	items    []byte
	shipping []byte
	billing  []byte
}

func encodeOrder(o *domain.Order) (encodedOrder, error) {
	var (
		enc encodedOrder
		err error
	)
	if enc.items, err = json.Marshal(o.Items); err != nil {
		return enc, fmt.Errorf("postgres: encode items: %w", err)
	}
	if enc.shipping, err = json.Marshal(o.ShippingAddress); err != nil {
		return enc, fmt.Errorf("postgres: encode shipping address: %w", err)
	}
	if enc.billing, err = json.Marshal(o.BillingAddress); err != nil {
		return enc, fmt.Errorf("postgres: encode billing address: %w", err)
	}
	return enc, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                         domain.Order
		items, shipping, billing  []byte
		status, payStatus, method string
		deliveredAt, cancelledAt  *time.Time
		refundedAt                *time.Time
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &items,
		&o.Totals.Subtotal, &o.Totals.Shipping, &o.Totals.Tax, &o.Totals.Discount, &o.Totals.Total,
		&status, &payStatus, &method, &o.PaymentReference,
		&shipping, &billing, &o.TrackingNumber, &o.CouponCode,
		&o.AffiliateID, &o.AffiliateCode, &o.IdempotencyKey, &o.CancellationReason, &o.RefundReason,
		&o.CreatedAt, &o.UpdatedAt, &deliveredAt, &cancelledAt, &refundedAt, &o.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: scan order: %w", err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("postgres: decode items: %w", err)
	}
	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("postgres: decode shipping address: %w", err)
	}
	if err := json.Unmarshal(billing, &o.BillingAddress); err != nil {
		return nil, fmt.Errorf("postgres: decode billing address: %w", err)
	}
	o.Status = domain.Status(status)
	o.PaymentStatus = payment.Status(payStatus)
	o.PaymentMethod = payment.Method(method)
	o.DeliveredAt, o.CancelledAt, o.RefundedAt = deliveredAt, cancelledAt, refundedAt
	return &o, nil
}
