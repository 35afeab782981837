package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	dominv "github.com/Zhima-Mochi/storefront-orders/internal/domain/inventory"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "listing:"

type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a redis client and pings it once.
func Connect(ctx context.Context, opts Options) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{opts.Addr},
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// ListingCache stores product price quotes as JSON under listing:<product id>.
type ListingCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewListingCache(client redis.UniversalClient, ttl time.Duration) *ListingCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ListingCache{client: client, ttl: ttl}
}

func (c *ListingCache) Get(ctx context.Context, productID string) (dominv.Listing, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+productID).Bytes()
	if errors.Is(err, redis.Nil) {
		return dominv.Listing{}, false, nil
	}
	if err != nil {
		return dominv.Listing{}, false, err
	}
	var l dominv.Listing
	if err := json.Unmarshal(raw, &l); err != nil {
		// a corrupt entry is a miss; the next Set overwrites it
		return dominv.Listing{}, false, fmt.Errorf("decode listing %s: %w", productID, err)
	}
	return l, true, nil
}

func (c *ListingCache) Set(ctx context.Context, l dominv.Listing) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+l.ProductID, raw, c.ttl).Err()
}

func (c *ListingCache) Invalidate(ctx context.Context, productID string) error {
	return c.client.Del(ctx, keyPrefix+productID).Err()
}
