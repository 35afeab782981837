package shipment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	appOrder "github.com/Zhima-Mochi/storefront-orders/internal/application/order"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request() appOrder.ShipmentRequest {
	return appOrder.ShipmentRequest{
		OrderID:       "o1",
		OrderNumber:   "ORD-1",
		PaymentMode:   appOrder.PaymentModeCOD,
		CODAmount:     decimal.NewFromInt(549),
		InvoiceValue:  decimal.NewFromInt(549),
		TotalWeightKg: decimal.RequireFromString("1.0"),
	}
}

func TestCreateShipmentSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shipments", r.URL.Path)
		assert.Equal(t, "o1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var got appOrder.ShipmentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, appOrder.PaymentModeCOD, got.PaymentMode)
		assert.True(t, decimal.NewFromInt(549).Equal(got.CODAmount))

		_ = json.NewEncoder(w).Encode(appOrder.ShipmentResult{Success: true, AWBNumber: "AWB123"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret"}, srv.Client())
	res, err := c.CreateShipment(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "AWB123", res.AWBNumber)
}

func TestCreateShipmentRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":true,"message":"pincode not serviceable"}`))
	}))
	defer srv.Close()

	res, err := NewClient(Config{BaseURL: srv.URL}, srv.Client()).CreateShipment(context.Background(), request())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "pincode not serviceable", res.Message)
}

func TestBreakerOpensAfterServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxFailures: 2, OpenTimeout: time.Minute}, srv.Client())
	for i := 0; i < 2; i++ {
		_, err := c.CreateShipment(context.Background(), request())
		require.Error(t, err)
	}
	_, err := c.CreateShipment(context.Background(), request())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), hits.Load())
}

func TestStub(t *testing.T) {
	res, err := Stub{}.CreateShipment(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "AWB-1", res.AWBNumber)
}
