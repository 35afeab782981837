package memory

import (
	"context"
	"sync"

	domcustomer "github.com/Zhima-Mochi/storefront-orders/internal/domain/customer"
	dominv "github.com/Zhima-Mochi/storefront-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
)

// Store keeps every aggregate in process memory. Writes made inside WithinTx are
// journaled and undone in reverse order when the transaction function fails.
type Store struct {
	txMu sync.Mutex   // serialises writers
	mu   sync.RWMutex // guards the maps below

	orders      map[string]*domorder.Order
	byNumber    map[string]string
	idempotency map[string]string
	products    map[string]*dominv.Product
	customers   map[string]*domcustomer.Customer
	records     map[string]*domoutbox.Record
	recordOrder []string
}

func NewStore() *Store {
	return &Store{
		orders:      make(map[string]*domorder.Order),
		byNumber:    make(map[string]string),
		idempotency: make(map[string]string),
		products:    make(map[string]*dominv.Product),
		customers:   make(map[string]*domcustomer.Customer),
		records:     make(map[string]*domoutbox.Record),
	}
}

func (s *Store) Orders() *OrderRepository       { return &OrderRepository{s: s} }
func (s *Store) Products() *InventoryRepository { return &InventoryRepository{s: s} }
func (s *Store) Customers() *CustomerRepository { return &CustomerRepository{s: s} }
func (s *Store) Outbox() *OutboxStore           { return &OutboxStore{s: s} }
func (s *Store) Transactor() *Transactor        { return &Transactor{s: s} }

type txKey struct{}

type tx struct {
	undo []func()
}

func txFrom(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

// Transactor runs functions atomically against a Store. A nested WithinTx joins
// the outer transaction.
type Transactor struct {
	s *Store
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	cur := &tx{}
	defer func() {
		if r := recover(); r != nil {
			t.s.rollback(cur)
			panic(r)
		}
		if err != nil {
			t.s.rollback(cur)
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, cur))
}

func (s *Store) rollback(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// write applies fn under the data lock. Inside a transaction the returned undo is
// journaled; outside one fn runs as its own short transaction.
func (s *Store) write(ctx context.Context, fn func() (undo func(), err error)) error {
	t := txFrom(ctx)
	if t == nil {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	undo, err := fn()
	if err != nil {
		return err
	}
	if t != nil && undo != nil {
		t.undo = append(t.undo, undo)
	}
	return nil
}
