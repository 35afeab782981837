package shipment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appOrder "github.com/Zhima-Mochi/storefront-orders/internal/application/order"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// MaxFailures consecutive failures open the breaker for OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Client books shipments with the carrier's HTTP API behind a circuit breaker.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	maxFailures := cfg.MaxFailures
	return &Client{
		cfg:  cfg,
		http: httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "shipment",
			Timeout: cfg.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= maxFailures
			},
		}),
	}
}

// CreateShipment posts the request. The order ID doubles as the idempotency key,
// so a retried booking does not create a second parcel.
func (c *Client) CreateShipment(ctx context.Context, req appOrder.ShipmentRequest) (appOrder.ShipmentResult, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, req)
	})
	if err != nil {
		return appOrder.ShipmentResult{}, fmt.Errorf("shipment: %w", err)
	}
	return res.(appOrder.ShipmentResult), nil
}

func (c *Client) post(ctx context.Context, req appOrder.ShipmentRequest) (appOrder.ShipmentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return appOrder.ShipmentResult{}, fmt.Errorf("encode request: %w", err)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/shipments"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return appOrder.ShipmentResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.OrderID)
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return appOrder.ShipmentResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return appOrder.ShipmentResult{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return appOrder.ShipmentResult{}, fmt.Errorf("carrier returned %d", resp.StatusCode)
	}

	var out appOrder.ShipmentResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return appOrder.ShipmentResult{}, fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		// a rejection is an answer, not an outage; it must not trip the breaker
		out.Success = false
		if out.Message == "" {
			out.Message = http.StatusText(resp.StatusCode)
		}
	}
	return out, nil
}

// Stub books every shipment locally. It is used when no carrier is configured.
type Stub struct{}

func (Stub) CreateShipment(_ context.Context, req appOrder.ShipmentRequest) (appOrder.ShipmentResult, error) {
	return appOrder.ShipmentResult{Success: true, AWBNumber: "AWB" + strings.TrimPrefix(req.OrderNumber, "ORD"), Message: "stub"}, nil
}
