package notification

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	domorder "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOrder() *domorder.Order {
	return &domorder.Order{
		ID:     "o1",
		Number: "ORD-1",
		Status: domorder.StatusConfirmed,
		Items:  []domorder.LineItem{{Name: "Mug <large>", Quantity: 2, UnitPrice: decimal.NewFromInt(250)}},
		Totals: domorder.Totals{
			Subtotal: decimal.NewFromInt(500),
			Shipping: decimal.NewFromInt(49),
			Discount: decimal.Zero,
			Total:    decimal.NewFromInt(549),
		},
	}
}

func TestRenderConfirmationEscapesItems(t *testing.T) {
	body, err := renderConfirmation("Asha", sampleOrder())
	require.NoError(t, err)
	assert.Contains(t, body, "ORD-1")
	assert.Contains(t, body, "549.00")
	assert.Contains(t, body, "Mug &lt;large&gt;")
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "mail.local", Port: "25", From: "shop@example.com"})
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	s.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, s.SendOrderConfirmation(context.Background(), "asha@example.com", "Asha", sampleOrder()))
	assert.Equal(t, "mail.local:25", gotAddr)
	assert.Equal(t, []string{"asha@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Order ORD-1 confirmed")

	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay down") }
	assert.ErrorContains(t, s.SendOrderConfirmation(context.Background(), "asha@example.com", "Asha", sampleOrder()), "relay down")
}
