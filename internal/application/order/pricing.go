package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"
	"github.com/Zhima-Mochi/storefront-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	"github.com/shopspring/decimal"
)

// PricePolicy decides how submitted unit prices relate to the catalog.
type PricePolicy string

const (
	// PricingTrust keeps the prices the client submitted.
	PricingTrust PricePolicy = "trust"
	// PricingReprice replaces submitted prices with the current catalog price.
	PricingReprice PricePolicy = "reprice"
	// PricingStrict rejects items whose submitted price is off by more than the tolerance.
	PricingStrict PricePolicy = "strict"
)

func (p PricePolicy) Valid() bool {
	switch p {
	case PricingTrust, PricingReprice, PricingStrict:
		return true
	}
	return false
}

// Settings are the business knobs of the order flow.
type Settings struct {
	Shipping       domain.ShippingPolicy
	Pricing        PricePolicy
	PriceTolerance decimal.Decimal
	CancelPolicy   domain.CancelPolicy
	UnitWeightKg   decimal.Decimal
}

func DefaultSettings() Settings {
	return Settings{
		Shipping:       domain.DefaultShippingPolicy(),
		Pricing:        PricingTrust,
		PriceTolerance: decimal.Zero,
		CancelPolicy:   domain.CancelPolicyOwner,
		UnitWeightKg:   decimal.RequireFromString("0.5"),
	}
}

func (uc *CreateOrderUseCase) priceItems(ctx context.Context, in []CreateOrderItem) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, len(in))
	ve := &application.ValidationError{}
	for i, it := range in {
		line := domain.LineItem{
			ProductID:     it.ProductID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			Size:          it.Size,
			Color:         it.Color,
			Customization: it.Customization,
		}
		if line.UnitPrice.IsNegative() {
			ve.Add(fmt.Sprintf("items[%d].unit_price", i), "unit price must not be negative")
		}
		if line.Custom() || uc.settings.Pricing == PricingTrust || uc.catalog == nil {
			items[i] = line
			continue
		}

		start := time.Now()
		listing, err := uc.catalog.Lookup(ctx, it.ProductID)
		uc.obs.External(peerCatalog, "lookup", start, err)
		switch {
		case errors.Is(err, inventory.ErrNotFound):
			ve.Add(fmt.Sprintf("items[%d].product_id", i), fmt.Sprintf("unknown product %s", it.ProductID))
			items[i] = line
			continue
		case err != nil:
			return nil, fmt.Errorf("order: catalog lookup %s: %w", it.ProductID, err)
		}

		if line.Name == "" {
			line.Name = listing.Name
		}
		switch uc.settings.Pricing {
		case PricingReprice:
			line.UnitPrice = listing.Price
		case PricingStrict:
			if line.UnitPrice.Sub(listing.Price).Abs().GreaterThan(uc.settings.PriceTolerance) {
				ve.Add(fmt.Sprintf("items[%d].unit_price", i),
					fmt.Sprintf("unit price %s does not match catalog price %s", line.UnitPrice, listing.Price))
			}
		}
		items[i] = line
	}
	if len(ve.Fields) > 0 {
		return nil, ve
	}
	return items, nil
}
