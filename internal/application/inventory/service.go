package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"
	dominv "github.com/Zhima-Mochi/storefront-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"
)

const (
	inventoryService = "inventory-service"
	peerInventory    = "inventory"
	peerListingCache = "listing_cache"
)

// ListingCache keeps price quotes close to the order flow. A miss is reported
// as ok=false with a nil error.
type ListingCache interface {
	Get(ctx context.Context, productID string) (dominv.Listing, bool, error)
	Set(ctx context.Context, listing dominv.Listing) error
	Invalidate(ctx context.Context, productID string) error
}

// Service is the product collaborator of the order flow: stock checks, stock
// movements and catalog price quotes.
type Service struct {
	repo  dominv.Repository
	cache ListingCache
	obs   application.Instrument
}

func NewService(repo dominv.Repository, cache ListingCache, tel observability.Observability) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		obs:   application.NewInstrument(tel, inventoryService),
	}
}

// CheckStock reports whether quantity units of the product are on the shelf.
func (s *Service) CheckStock(ctx context.Context, productID string, quantity int) (_ dominv.StockLevel, err error) {
	defer s.track("check_stock", time.Now(), &err)
	p, err := s.repo.Get(ctx, productID)
	if err != nil {
		return dominv.StockLevel{}, fmt.Errorf("inventory: get %s: %w", productID, err)
	}
	return p.Check(quantity), nil
}

// UpdateStockAfterOrder takes quantity units out of stock and counts them as sold.
// Callers run it inside the order transaction.
func (s *Service) UpdateStockAfterOrder(ctx context.Context, productID string, quantity int) (_ *dominv.Product, err error) {
	defer s.track("reserve", time.Now(), &err)
	p, err := s.repo.Reserve(ctx, productID, quantity)
	if err != nil {
		var stockErr *dominv.StockError
		if errors.As(err, &stockErr) {
			return nil, err
		}
		return nil, fmt.Errorf("inventory: reserve %s: %w", productID, err)
	}
	return p, nil
}

func (s *Service) Restock(ctx context.Context, productID string, quantity int) (_ *dominv.Product, err error) {
	defer s.track("restock", time.Now(), &err)
	p, err := s.repo.Restock(ctx, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("inventory: restock %s: %w", productID, err)
	}
	return p, nil
}

// Lookup returns the current price quote, read through the listing cache.
func (s *Service) Lookup(ctx context.Context, productID string) (_ dominv.Listing, err error) {
	if s.cache != nil {
		start := time.Now()
		l, ok, cacheErr := s.cache.Get(ctx, productID)
		s.obs.External(peerListingCache, "get", start, cacheErr)
		if cacheErr != nil {
			s.obs.Logger().Warn("listing_cache_get_failed",
				observability.F("product_id", productID),
				observability.F("error", cacheErr.Error()),
			)
		}
		if ok {
			return l, nil
		}
	}

	defer s.track("lookup", time.Now(), &err)
	p, err := s.repo.Get(ctx, productID)
	if err != nil {
		return dominv.Listing{}, fmt.Errorf("inventory: get %s: %w", productID, err)
	}
	l := p.Listing()
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, l); cacheErr != nil {
			s.obs.Logger().Warn("listing_cache_set_failed",
				observability.F("product_id", productID),
				observability.F("error", cacheErr.Error()),
			)
		}
	}
	return l, nil
}

// Save creates or replaces a product and drops its cached quote.
func (s *Service) Save(ctx context.Context, p *dominv.Product) (err error) {
	defer s.track("save", time.Now(), &err)
	if err = s.repo.Save(ctx, p); err != nil {
		return fmt.Errorf("inventory: save %s: %w", p.ID, err)
	}
	if s.cache != nil {
		if cacheErr := s.cache.Invalidate(ctx, p.ID); cacheErr != nil {
			s.obs.Logger().Warn("listing_cache_invalidate_failed",
				observability.F("product_id", p.ID),
				observability.F("error", cacheErr.Error()),
			)
		}
	}
	return nil
}

func (s *Service) track(endpoint string, start time.Time, err *error) {
	var e error
	if err != nil {
		e = *err
	}
	// a business rejection is still a successful call to the collaborator
	var stockErr *dominv.StockError
	if errors.As(e, &stockErr) || errors.Is(e, dominv.ErrNotFound) {
		e = nil
	}
	s.obs.External(peerInventory, endpoint, start, e)
}
