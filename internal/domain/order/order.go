package order

import (
	"errors"
	"strings"
	"time"

	"github.com/Zhima-Mochi/storefront-orders/internal/domain/payment"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("order: not found")
	ErrConflict        = errors.New("order: conflict")
	ErrForbidden       = errors.New("order: forbidden")
	ErrNoItems         = errors.New("order: at least one item is required")
	ErrInvalidQuantity = errors.New("order: quantity must be greater than zero")
	ErrInvalidAmount   = errors.New("order: amount must be zero or greater")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	_, ok := states[s]
	return ok
}

// Address is a postal address snapshot taken at order time.
type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
}

// LineItem is one purchased product. UnitPrice is the price at order time and
// never follows later catalog changes.
type LineItem struct {
	ProductID     string            `json:"product_id,omitempty"`
	Name          string            `json:"name"`
	Quantity      int               `json:"quantity"`
	UnitPrice     decimal.Decimal   `json:"unit_price"`
	Size          string            `json:"size,omitempty"`
	Color         string            `json:"color,omitempty"`
	Customization map[string]string `json:"customization,omitempty"`
	Status        Status            `json:"status"`
}

// Custom reports whether the item is a made-to-order product without a catalog entry.
// Custom items are never stock checked.
func (li LineItem) Custom() bool {
	return strings.TrimSpace(li.ProductID) == ""
}

func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

type Order struct {
	ID                 string
	Number             string
	CustomerID         string
	Items              []LineItem
	Totals             Totals
	Status             Status
	PaymentStatus      payment.Status
	PaymentMethod      payment.Method
	PaymentReference   string
	ShippingAddress    Address
	BillingAddress     Address
	TrackingNumber     string
	CouponCode         string
	AffiliateID        string
	AffiliateCode      string
	IdempotencyKey     string
	CancellationReason string
	RefundReason       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeliveredAt        *time.Time
	CancelledAt        *time.Time
	RefundedAt         *time.Time
	// Version guards concurrent updates; repositories bump it on every write.
	Version int
}

// Draft carries everything needed to construct a new order.
type Draft struct {
	ID              string
	Number          string
	CustomerID      string
	Items           []LineItem
	Totals          Totals
	PaymentMethod   payment.Method
	PaymentStatus   payment.Status
	PaymentRef      string
	ShippingAddress Address
	BillingAddress  Address
	CouponCode      string
	AffiliateID     string
	AffiliateCode   string
	IdempotencyKey  string
}

// New builds an order in its initial state. Orders that are already settled
// (cash on delivery, or paid up front) start confirmed; everything else starts pending.
func New(d Draft) (*Order, error) {
	if len(d.Items) == 0 {
		return nil, ErrNoItems
	}
	for _, it := range d.Items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.UnitPrice.IsNegative() {
			return nil, ErrInvalidAmount
		}
	}
	if d.Totals.Total.IsNegative() {
		return nil, ErrInvalidAmount
	}

	ps := d.PaymentStatus
	if ps == "" {
		ps = payment.StatusPending
	}
	status := StatusPending
	if ps == payment.StatusPaid || d.PaymentMethod.IsCOD() {
		status = StatusConfirmed
	}

	billing := d.BillingAddress
	if billing == (Address{}) {
		billing = d.ShippingAddress
	}

	items := make([]LineItem, len(d.Items))
	for i, it := range d.Items {
		it.Status = status
		it.Customization = cloneMap(it.Customization)
		items[i] = it
	}

	now := time.Now().UTC()
	return &Order{
		ID:               d.ID,
		Number:           d.Number,
		CustomerID:       d.CustomerID,
		Items:            items,
		Totals:           d.Totals,
		Status:           status,
		PaymentStatus:    ps,
		PaymentMethod:    d.PaymentMethod,
		PaymentReference: d.PaymentRef,
		ShippingAddress:  d.ShippingAddress,
		BillingAddress:   billing,
		CouponCode:       d.CouponCode,
		AffiliateID:      d.AffiliateID,
		AffiliateCode:    d.AffiliateCode,
		IdempotencyKey:   d.IdempotencyKey,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Settled reports whether fulfilment may start: the order is paid, or it is collected on delivery.
func (o *Order) Settled() bool {
	return o.PaymentStatus == payment.StatusPaid || o.PaymentMethod.IsCOD()
}

// Units is the total number of units across all items.
func (o *Order) Units() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// CatalogItems returns the items backed by a catalog product, i.e. the ones that move stock.
func (o *Order) CatalogItems() []LineItem {
	out := make([]LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		if !it.Custom() {
			out = append(out, it)
		}
	}
	return out
}

// SetTrackingNumber records the carrier waybill once a shipment exists.
func (o *Order) SetTrackingNumber(awb string) {
	o.TrackingNumber = awb
	o.touch()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = make([]LineItem, len(o.Items))
	for i, it := range o.Items {
		it.Customization = cloneMap(it.Customization)
		c.Items[i] = it
	}
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	c.RefundedAt = cloneTime(o.RefundedAt)
	return &c
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
