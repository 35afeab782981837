package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"
	"github.com/Zhima-Mochi/storefront-orders/internal/domain/customer"
	"github.com/Zhima-Mochi/storefront-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService       = "order-service"
	useCaseOrderCreate = "order.create"
	peerCatalog        = "catalog"
	peerCoupon         = "coupon"
	maxNumberAttempts  = 3
)

var (
	ErrConflict   = domain.ErrConflict
	ErrNotFound   = domain.ErrNotFound
	ErrForbidden  = domain.ErrForbidden
	ErrRepository = errors.New("order: repository failure")
)

// Dependencies are the collaborators shared by the order use cases.
type Dependencies struct {
	Repo    domain.Repository
	Tx      application.Transactor
	Outbox  domoutbox.Store
	IDs     application.IDGenerator
	Numbers NumberGenerator
	Stock   StockPort
	Catalog CatalogPort
	Coupons CouponPort
	Loyalty LoyaltyPort
}

// CreateOrderUseCase encapsulates the order creation workflow with observability hooks.
type CreateOrderUseCase struct {
	repo     domain.Repository
	tx       application.Transactor
	outbox   domoutbox.Store
	ids      application.IDGenerator
	numbers  NumberGenerator
	stock    StockPort
	catalog  CatalogPort
	coupons  CouponPort
	loyalty  LoyaltyPort
	settings Settings
	obs      application.Instrument
}

// NewCreateOrderUseCase wires the dependencies required to execute the use case.
func NewCreateOrderUseCase(deps Dependencies, settings Settings, tel observability.Observability) *CreateOrderUseCase {
	return &CreateOrderUseCase{
		repo:     deps.Repo,
		tx:       deps.Tx,
		outbox:   deps.Outbox,
		ids:      deps.IDs,
		numbers:  deps.Numbers,
		stock:    deps.Stock,
		catalog:  deps.Catalog,
		coupons:  deps.Coupons,
		loyalty:  deps.Loyalty,
		settings: settings,
		obs:      application.NewInstrument(tel, orderService),
	}
}

type AddressInput struct {
	Name       string `json:"name" validate:"required"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country"`
}

func (a AddressInput) toDomain() domain.Address {
	return domain.Address(a)
}

type CreateOrderItem struct {
	ProductID     string            `json:"product_id"`
	Name          string            `json:"name" validate:"required_without=ProductID"`
	Quantity      int               `json:"quantity" validate:"gt=0"`
	UnitPrice     decimal.Decimal   `json:"unit_price"`
	Size          string            `json:"size"`
	Color         string            `json:"color"`
	Customization map[string]string `json:"customization"`
}

type CreateOrderInput struct {
	IdempotencyKey   string
	CustomerID       string            `validate:"required"`
	Items            []CreateOrderItem `validate:"required,min=1,dive"`
	ShippingAddress  AddressInput
	BillingAddress   *AddressInput
	PaymentMethod    string `validate:"required,oneof=cod card upi netbanking wallet"`
	PaymentStatus    string `validate:"omitempty,oneof=pending paid failed refunded"`
	PaymentReference string
	CouponCode       string
	AffiliateID      string
	AffiliateCode    string
	Tax              decimal.Decimal
	// Total is the amount the client expects to pay; it must equal the computed total.
	Total *decimal.Decimal `validate:"required"`
}

type CreateOrderResult struct {
	Order         *domain.Order
	Replayed      bool
	LoyaltyPoints int64
}

// Execute performs the order creation flow.
func (uc *CreateOrderUseCase) Execute(ctx context.Context, cmd CreateOrderInput) (_ *CreateOrderResult, err error) {
	ctx, run := uc.obs.Start(ctx, useCaseOrderCreate, "CreateOrder",
		attribute.String("order.customer_id", cmd.CustomerID),
		attribute.Int("order.items", len(cmd.Items)),
	)
	defer func() { run.End(err) }()

	if err = application.Validate(cmd); err != nil {
		run.Fail("VALIDATION_FAILED")
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		run.Fail("CONTEXT_CANCELED")
		return nil, err
	}

	if cmd.IdempotencyKey != "" {
		existing, repoErr := uc.repo.FindByIdempotency(ctx, cmd.CustomerID, cmd.IdempotencyKey)
		switch {
		case repoErr == nil:
			return uc.replay(run, existing), nil
		case errors.Is(repoErr, domain.ErrNotFound):
			// continue
		default:
			run.Fail("IDEMPOTENCY_LOOKUP_FAILED")
			return nil, wrapRepositoryError(repoErr)
		}
	}

	items, err := uc.priceItems(ctx, cmd.Items)
	if err != nil {
		run.Fail("PRICING_REJECTED")
		return nil, err
	}

	// All stock is checked before anything is written so a short item rejects the whole order.
	if err = uc.checkStock(ctx, items); err != nil {
		run.Fail("INSUFFICIENT_STOCK")
		return nil, err
	}

	discount, err := uc.discount(ctx, cmd.CouponCode, domain.Subtotal(items))
	if err != nil {
		run.Fail("COUPON_REJECTED")
		return nil, err
	}
	totals := domain.ComputeTotals(items, uc.settings.Shipping, discount, cmd.Tax)
	if !cmd.Total.Equal(totals.Total) {
		run.Fail("TOTAL_MISMATCH")
		return nil, application.NewValidation("total",
			fmt.Sprintf("total %s does not match computed total %s", cmd.Total.String(), totals.Total.String()))
	}

	draft := domain.Draft{
		ID:              uc.ids.NewID(),
		Number:          uc.numbers.NewNumber(),
		CustomerID:      cmd.CustomerID,
		Items:           items,
		Totals:          totals,
		PaymentMethod:   payment.Method(cmd.PaymentMethod),
		PaymentStatus:   payment.Status(cmd.PaymentStatus),
		PaymentRef:      cmd.PaymentReference,
		ShippingAddress: cmd.ShippingAddress.toDomain(),
		CouponCode:      cmd.CouponCode,
		AffiliateID:     cmd.AffiliateID,
		AffiliateCode:   cmd.AffiliateCode,
		IdempotencyKey:  cmd.IdempotencyKey,
	}
	if cmd.BillingAddress != nil {
		draft.BillingAddress = cmd.BillingAddress.toDomain()
	}
	entity, err := domain.New(draft)
	if err != nil {
		run.Fail("DOMAIN_CONSTRUCTION_FAILED")
		return nil, fmt.Errorf("order: construct: %w", err)
	}

	points := domain.LoyaltyPoints(totals.Total)
	var loyaltySkipped bool
	for attempt := 1; ; attempt++ {
		loyaltySkipped, err = uc.persist(ctx, entity, points)
		if err == nil || !errors.Is(err, domain.ErrConflict) || attempt == maxNumberAttempts {
			break
		}
		if cmd.IdempotencyKey != "" {
			if existing, lookupErr := uc.repo.FindByIdempotency(ctx, cmd.CustomerID, cmd.IdempotencyKey); lookupErr == nil {
				return uc.replay(run, existing), nil
			}
		}
		if !uc.numberTaken(ctx, entity.Number) {
			break
		}
		run.Logger().Warn("order_number_collision",
			observability.F("order_number", entity.Number),
			observability.F("attempt", attempt),
		)
		entity.Number = uc.numbers.NewNumber()
	}
	if err != nil {
		var stockErr *inventory.StockError
		switch {
		case errors.As(err, &stockErr):
			run.Fail("INSUFFICIENT_STOCK")
			return nil, err
		case errors.Is(err, domain.ErrConflict) && cmd.IdempotencyKey != "":
			if existing, lookupErr := uc.repo.FindByIdempotency(ctx, cmd.CustomerID, cmd.IdempotencyKey); lookupErr == nil {
				return uc.replay(run, existing), nil
			}
		}
		run.Fail("PERSIST_FAILED")
		return nil, wrapRepositoryError(err)
	}

	if loyaltySkipped {
		points = 0
		run.Logger().Warn("loyalty_customer_missing",
			observability.F("order_id", entity.ID),
			observability.F("customer_id", entity.CustomerID),
		)
	}

	run.With(
		observability.F("order_id", entity.ID),
		observability.F("order_number", entity.Number),
		observability.F("loyalty_points", points),
	)
	run.Span().SetAttributes(
		attribute.String("order.id", entity.ID),
		attribute.String("order.status", string(entity.Status)),
		attribute.String("order.total", entity.Totals.Total.String()),
	)
	run.Event("order.created", attribute.String("order.id", entity.ID))

	return &CreateOrderResult{Order: entity, LoyaltyPoints: points}, nil
}

// persist writes the order, its stock movements, the loyalty credit and its
// events in one transaction.
func (uc *CreateOrderUseCase) persist(ctx context.Context, entity *domain.Order, points int64) (loyaltySkipped bool, err error) {
	events := []domoutbox.Event{domain.NewPlacedEvent(entity)}
	if entity.Settled() {
		events = append(events, domain.NewShipmentRequestedEvent(entity, domain.TriggerPlaced))
	}
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		loyaltySkipped = false
		if err := uc.repo.Insert(ctx, entity); err != nil {
			return err
		}
		for _, it := range entity.CatalogItems() {
			if _, err := uc.stock.UpdateStockAfterOrder(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		if points > 0 && uc.loyalty != nil {
			if err := uc.loyalty.AddLoyaltyPoints(ctx, entity.CustomerID, points); err != nil {
				if !errors.Is(err, customer.ErrNotFound) {
					return fmt.Errorf("loyalty: %w", err)
				}
				loyaltySkipped = true
			}
		}
		return application.Emit(ctx, uc.outbox, uc.ids, events...)
	})
	return loyaltySkipped, err
}

// numberTaken reports whether another order already holds number.
func (uc *CreateOrderUseCase) numberTaken(ctx context.Context, number string) bool {
	_, err := uc.repo.GetByNumber(ctx, number)
	return err == nil
}

func (uc *CreateOrderUseCase) replay(run *application.Run, existing *domain.Order) *CreateOrderResult {
	run.Status("IDEMPOTENT_REPLAY")
	run.Span().SetAttributes(attribute.String("order.status", string(existing.Status)))
	run.Event("order.idempotent_replay", attribute.String("order.id", existing.ID))
	return &CreateOrderResult{Order: existing, Replayed: true}
}

// checkStock verifies every catalog product covers the summed quantity ordered across lines.
func (uc *CreateOrderUseCase) checkStock(ctx context.Context, items []domain.LineItem) error {
	wanted := make(map[string]int)
	names := make(map[string]string)
	order := make([]string, 0, len(items))
	for _, it := range items {
		if it.Custom() {
			continue
		}
		if _, seen := wanted[it.ProductID]; !seen {
			order = append(order, it.ProductID)
		}
		wanted[it.ProductID] += it.Quantity
		if names[it.ProductID] == "" {
			names[it.ProductID] = it.Name
		}
	}
	for _, pid := range order {
		level, err := uc.stock.CheckStock(ctx, pid, wanted[pid])
		if errors.Is(err, inventory.ErrNotFound) {
			return application.NewValidation("items.product_id", fmt.Sprintf("unknown product %s", pid))
		}
		if err != nil {
			return fmt.Errorf("order: check stock %s: %w", pid, err)
		}
		if !level.Available {
			return &inventory.StockError{ProductID: pid, Name: names[pid], Requested: wanted[pid], Available: level.Current}
		}
	}
	return nil
}

func (uc *CreateOrderUseCase) discount(ctx context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if code == "" {
		return decimal.Zero, nil
	}
	if uc.coupons == nil {
		return decimal.Zero, application.NewValidation("coupon_code", "coupons are not accepted")
	}
	start := time.Now()
	amount, err := uc.coupons.Discount(ctx, code, subtotal)
	uc.obs.External(peerCoupon, "discount", start, err)
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domain.ErrConflict):
		return ErrConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
