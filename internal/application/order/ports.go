package order

import (
	"context"

	"github.com/Zhima-Mochi/storefront-orders/internal/domain/customer"
	"github.com/Zhima-Mochi/storefront-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	"github.com/shopspring/decimal"
)

type NumberGenerator interface {
	NewNumber() string
}

// StockPort is the product collaborator used to check and move stock.
type StockPort interface {
	CheckStock(ctx context.Context, productID string, quantity int) (inventory.StockLevel, error)
	UpdateStockAfterOrder(ctx context.Context, productID string, quantity int) (*inventory.Product, error)
	Restock(ctx context.Context, productID string, quantity int) (*inventory.Product, error)
}

// CatalogPort quotes the current catalog price of a product.
type CatalogPort interface {
	Lookup(ctx context.Context, productID string) (inventory.Listing, error)
}

// CouponPort returns the discount for a code. The amount is never negative;
// unknown or ineligible codes fail with a validation error.
type CouponPort interface {
	Discount(ctx context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, error)
}

type LoyaltyPort interface {
	AddLoyaltyPoints(ctx context.Context, customerID string, points int64) error
}

type CustomerDirectory interface {
	Get(ctx context.Context, id string) (*customer.Customer, error)
}

type Notifier interface {
	SendOrderConfirmation(ctx context.Context, email, name string, o *domain.Order) error
}

type ShipmentCreator interface {
	CreateShipment(ctx context.Context, req ShipmentRequest) (ShipmentResult, error)
}

const (
	PaymentModeCOD     = "COD"
	PaymentModePrepaid = "Prepaid"
)

type ShipmentCustomer struct {
	Name    string         `json:"name"`
	Email   string         `json:"email,omitempty"`
	Phone   string         `json:"phone,omitempty"`
	Address domain.Address `json:"address"`
}

type ShipmentItem struct {
	SKU       string          `json:"sku,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type ShipmentRequest struct {
	OrderID       string           `json:"order_id"`
	OrderNumber   string           `json:"order_number"`
	Customer      ShipmentCustomer `json:"customer"`
	Items         []ShipmentItem   `json:"items"`
	TotalWeightKg decimal.Decimal  `json:"total_weight_kg"`
	PaymentMode   string           `json:"payment_mode"`
	CODAmount     decimal.Decimal  `json:"cod_amount"`
	InvoiceValue  decimal.Decimal  `json:"invoice_value"`
}

type ShipmentResult struct {
	Success   bool   `json:"success"`
	AWBNumber string `json:"awb_number,omitempty"`
	Message   string `json:"message,omitempty"`
}
