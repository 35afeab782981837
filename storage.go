package main

import (
	"context"
	"fmt"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"
	"github.com/Zhima-Mochi/storefront-orders/internal/config"
	domcustomer "github.com/Zhima-Mochi/storefront-orders/internal/domain/customer"
	dominv "github.com/Zhima-Mochi/storefront-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/postgres"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type storage struct {
	orders    domorder.Repository
	products  dominv.Repository
	customers domcustomer.Repository
	outbox    domoutbox.Store
	tx        application.Transactor
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if cfg.Storage.Migrate {
			if err := postgres.Migrate(cfg.Storage.URL); err != nil {
				return storage{}, nil, err
			}
			logger.Info("db_migrated")
		}
		poolCfg := postgres.DefaultPoolConfig()
		if cfg.Storage.MaxConn > 0 {
			poolCfg.MaxConns = cfg.Storage.MaxConn
		}
		pool, err := postgres.Connect(ctx, cfg.Storage.URL, poolCfg)
		if err != nil {
			return storage{}, nil, err
		}
		return storage{
			orders:    postgres.NewOrderRepository(pool),
			products:  postgres.NewInventoryRepository(pool),
			customers: postgres.NewCustomerRepository(pool),
			outbox:    postgres.NewOutboxStore(pool),
			tx:        postgres.NewTransactor(pool),
		}, pool.Close, nil

	default:
		store := memory.NewStore()
		s := storage{
			orders:    store.Orders(),
			products:  store.Products(),
			customers: store.Customers(),
			outbox:    store.Outbox(),
			tx:        store.Transactor(),
		}
		if cfg.Storage.Seed {
			if err := seed(ctx, s); err != nil {
				return storage{}, nil, fmt.Errorf("seed: %w", err)
			}
			logger.Info("memory_store_seeded")
		}
		return s, func() {}, nil
	}
}

// seed loads a small demo catalog and one customer.
func seed(ctx context.Context, s storage) error {
	products := []struct {
		id, name, price string
		stock           int
	}{
		{"sku-mug", "Ceramic Mug", "300", 50},
		{"sku-tee", "Cotton Tee", "250", 100},
		{"sku-poster", "Art Poster", "649", 20},
	}
	for _, p := range products {
		product, err := dominv.NewProduct(p.id, p.name, decimal.RequireFromString(p.price), p.stock)
		if err != nil {
			return err
		}
		if err := s.products.Save(ctx, product); err != nil {
			return err
		}
	}
	return s.customers.Save(ctx, &domcustomer.Customer{
		ID:    "demo-user",
		Email: "demo@storefront.local",
		Name:  "Demo Customer",
	})
}
