package customer

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("customer: not found")

type Customer struct {
	ID            string
	Email         string
	Name          string
	Phone         string
	LoyaltyPoints int64
}

func (c *Customer) Clone() *Customer {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

type Repository interface {
	Get(ctx context.Context, id string) (*Customer, error)
	Save(ctx context.Context, c *Customer) error
	// AddLoyaltyPoints increments the running balance. It does not keep a ledger.
	AddLoyaltyPoints(ctx context.Context, id string, points int64) error
}
