package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// StockError names the product that could not cover the requested quantity.
type StockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	name := e.ProductID
	if e.Name != "" {
		name = fmt.Sprintf("%s (%s)", e.Name, e.ProductID)
	}
	return fmt.Sprintf("inventory: insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// Product is the stock-bearing catalog entry the order flow mutates.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Stock     int
	Sold      int
	UpdatedAt time.Time
}

func NewProduct(id, name string, price decimal.Decimal, stock int) (*Product, error) {
	if stock < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Product{
		ID:        id,
		Name:      name,
		Price:     price,
		Stock:     stock,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Check reports whether quantity units can be taken from stock.
func (p *Product) Check(quantity int) StockLevel {
	return StockLevel{Available: quantity <= p.Stock, Current: p.Stock}
}

// Reserve takes quantity units out of stock and counts them as sold.
func (p *Product) Reserve(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > p.Stock {
		return &StockError{ProductID: p.ID, Name: p.Name, Requested: quantity, Available: p.Stock}
	}
	p.Stock -= quantity
	p.Sold += quantity
	p.touch()
	return nil
}

// Restock returns quantity units to stock. Sold is left as is; it counts units
// that ever left the shelf.
func (p *Product) Restock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	p.Stock += quantity
	p.touch()
	return nil
}

func (p *Product) Listing() Listing {
	return Listing{ProductID: p.ID, Name: p.Name, Price: p.Price}
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now().UTC()
}

type StockLevel struct {
	Available bool `json:"available"`
	Current   int  `json:"current_stock"`
}

// Listing is the public price quote for a product.
type Listing struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
}
