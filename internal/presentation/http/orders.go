package httppresentation

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"
	appOrder "github.com/Zhima-Mochi/storefront-orders/internal/application/order"
	appPayment "github.com/Zhima-Mochi/storefront-orders/internal/application/payment"
	"github.com/Zhima-Mochi/storefront-orders/internal/domain/delivery"
	domainOrder "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"

	"github.com/shopspring/decimal"
)

type createOrderRequest struct {
	IdempotencyKey   string                     `json:"idempotency_key"`
	Items            []appOrder.CreateOrderItem `json:"items"`
	ShippingAddress  appOrder.AddressInput      `json:"shipping_address"`
	BillingAddress   *appOrder.AddressInput     `json:"billing_address"`
	PaymentMethod    string                     `json:"payment_method"`
	PaymentStatus    string                     `json:"payment_status"`
	PaymentReference string                     `json:"payment_id"`
	CouponCode       string                     `json:"coupon_code"`
	AffiliateID      string                     `json:"affiliate_id"`
	AffiliateCode    string                     `json:"affiliate_code"`
	Tax              decimal.Decimal            `json:"tax"`
	Total            *decimal.Decimal           `json:"total"`
}

type orderResponse struct {
	ID                 string                 `json:"id"`
	Number             string                 `json:"order_number"`
	CustomerID         string                 `json:"customer_id"`
	Status             string                 `json:"status"`
	PaymentStatus      string                 `json:"payment_status"`
	PaymentMethod      string                 `json:"payment_method"`
	PaymentReference   string                 `json:"payment_id,omitempty"`
	Items              []domainOrder.LineItem `json:"items"`
	Totals             domainOrder.Totals     `json:"totals"`
	ShippingAddress    domainOrder.Address    `json:"shipping_address"`
	BillingAddress     domainOrder.Address    `json:"billing_address"`
	TrackingNumber     string                 `json:"tracking_number,omitempty"`
	CouponCode         string                 `json:"coupon_code,omitempty"`
	AffiliateID        string                 `json:"affiliate_id,omitempty"`
	AffiliateCode      string                 `json:"affiliate_code,omitempty"`
	CancellationReason string                 `json:"cancellation_reason,omitempty"`
	RefundReason       string                 `json:"refund_reason,omitempty"`
	AllowedNext        []domainOrder.Status   `json:"allowed_next"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
	DeliveredAt        *time.Time             `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time             `json:"cancelled_at,omitempty"`
	RefundedAt         *time.Time             `json:"refunded_at,omitempty"`
}

func toOrderResponse(o *domainOrder.Order) orderResponse {
	allowed := domainOrder.AllowedNext(o.Status)
	if allowed == nil {
		allowed = []domainOrder.Status{}
	}
	return orderResponse{
		ID:                 o.ID,
		Number:             o.Number,
		CustomerID:         o.CustomerID,
		Status:             string(o.Status),
		PaymentStatus:      string(o.PaymentStatus),
		PaymentMethod:      string(o.PaymentMethod),
		PaymentReference:   o.PaymentReference,
		Items:              o.Items,
		Totals:             o.Totals,
		ShippingAddress:    o.ShippingAddress,
		BillingAddress:     o.BillingAddress,
		TrackingNumber:     o.TrackingNumber,
		CouponCode:         o.CouponCode,
		AffiliateID:        o.AffiliateID,
		AffiliateCode:      o.AffiliateCode,
		CancellationReason: o.CancellationReason,
		RefundReason:       o.RefundReason,
		AllowedNext:        allowed,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		DeliveredAt:        o.DeliveredAt,
		CancelledAt:        o.CancelledAt,
		RefundedAt:         o.RefundedAt,
	}
}

type createOrderResponse struct {
	Order         orderResponse `json:"order"`
	LoyaltyPoints int64         `json:"loyalty_points"`
	Replayed      bool          `json:"replayed"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	customerID := userID(r)
	if customerID == "" {
		writeError(w, http.StatusUnauthorized, errMissingUser)
		return
	}
	var req createOrderRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	key := req.IdempotencyKey
	if hk := strings.TrimSpace(r.Header.Get(headerIdempotencyKey)); hk != "" {
		key = hk
	}

	result, err := h.uc.CreateOrder.Execute(r.Context(), appOrder.CreateOrderInput{
		IdempotencyKey:   key,
		CustomerID:       customerID,
		Items:            req.Items,
		ShippingAddress:  req.ShippingAddress,
		BillingAddress:   req.BillingAddress,
		PaymentMethod:    strings.ToLower(req.PaymentMethod),
		PaymentStatus:    strings.ToLower(req.PaymentStatus),
		PaymentReference: req.PaymentReference,
		CouponCode:       req.CouponCode,
		AffiliateID:      req.AffiliateID,
		AffiliateCode:    req.AffiliateCode,
		Tax:              req.Tax,
		Total:            req.Total,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, createOrderResponse{
		Order:         toOrderResponse(result.Order),
		LoyaltyPoints: result.LoyaltyPoints,
		Replayed:      result.Replayed,
	})
}

type listOrdersResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	customerID := userID(r)
	if customerID == "" {
		writeError(w, http.StatusUnauthorized, errMissingUser)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	orders, err := h.uc.Queries.ListByCustomer(r.Context(), customerID, limit, offset)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := listOrdersResponse{Orders: make([]orderResponse, 0, len(orders)), Limit: limit, Offset: offset}
	for _, o := range orders {
		out.Orders = append(out.Orders, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetOrder serves the order to its owner. Requests without X-User-ID are
// trusted back-office calls.
func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.uc.Queries.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if uid := userID(r); uid != "" && uid != o.CustomerID {
		h.writeDomainError(w, r, domainOrder.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type trackResponse struct {
	Number         string     `json:"order_number"`
	Status         string     `json:"status"`
	PaymentStatus  string     `json:"payment_status"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

// handleTrackOrder is public, so it answers with status fields only.
func (h *Handler) handleTrackOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.uc.Queries.Track(r.Context(), r.PathValue("number"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trackResponse{
		Number:         o.Number,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		TrackingNumber: o.TrackingNumber,
		CreatedAt:      o.CreatedAt,
		DeliveredAt:    o.DeliveredAt,
		CancelledAt:    o.CancelledAt,
	})
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	o, err := h.uc.UpdateStatus.Execute(r.Context(), appOrder.UpdateStatusInput{
		OrderID: r.PathValue("id"),
		Status:  strings.ToLower(strings.TrimSpace(req.Status)),
		Reason:  req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	customerID := userID(r)
	if customerID == "" {
		writeError(w, http.StatusUnauthorized, errMissingUser)
		return
	}
	var req cancelOrderRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	o, err := h.uc.CancelOrder.Execute(r.Context(), appOrder.CancelOrderInput{
		OrderID:    r.PathValue("id"),
		CustomerID: customerID,
		Reason:     req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type paymentCallbackResponse struct {
	Order         orderResponse `json:"order"`
	Changed       bool          `json:"changed"`
	AutoConfirmed bool          `json:"auto_confirmed"`
}

func (h *Handler) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req appPayment.UpdatePaymentStatusInput
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))

	res, err := h.uc.UpdatePayment.Execute(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentCallbackResponse{
		Order:         toOrderResponse(res.Order),
		Changed:       res.Changed,
		AutoConfirmed: res.AutoConfirmed,
	})
}

func (h *Handler) handleDeliveryEstimate(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("postal_code"))
	if code == "" {
		h.writeDomainError(w, r, application.NewValidation("postal_code", "postal_code is required"))
		return
	}
	writeJSON(w, http.StatusOK, delivery.Estimate(code, h.now()))
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, application.NewValidation(name, name+" must be a non-negative integer")
	}
	return n, nil
}
