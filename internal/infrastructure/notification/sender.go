package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	domorder "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability/logctx"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`
<h1>Thank you for your order, {{.Name}}!</h1>
<p>Order <strong>{{.Order.Number}}</strong> is {{.Order.Status}}.</p>
<table>
{{- range .Order.Items}}
  <tr><td>{{.Name}}</td><td>{{.Quantity}} x {{.UnitPrice.StringFixed 2}}</td></tr>
{{- end}}
</table>
<p>Subtotal: {{.Order.Totals.Subtotal.StringFixed 2}}<br>
Shipping: {{.Order.Totals.Shipping.StringFixed 2}}<br>
Discount: {{.Order.Totals.Discount.StringFixed 2}}<br>
<strong>Total: {{.Order.Totals.Total.StringFixed 2}}</strong></p>
`))

func renderConfirmation(name string, o *domorder.Order) (string, error) {
	var buf bytes.Buffer
	if err := confirmationTmpl.Execute(&buf, struct {
		Name  string
		Order *domorder.Order
	}{Name: name, Order: o}); err != nil {
		return "", fmt.Errorf("notification: render confirmation: %w", err)
	}
	return buf.String(), nil
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

// SMTPSender mails order confirmations through a plain-auth SMTP relay.
type SMTPSender struct {
	cfg    SMTPConfig
	tracer trace.Tracer
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &SMTPSender{
		cfg:    cfg,
		tracer: otel.Tracer("infrastructure/notification"),
		send:   smtp.SendMail,
	}
}

func (s *SMTPSender) SendOrderConfirmation(ctx context.Context, email, name string, o *domorder.Order) error {
	_, span := s.tracer.Start(ctx, "smtp.SendOrderConfirmation", trace.WithAttributes(
		attribute.String("order.id", o.ID),
	))
	defer span.End()

	body, err := renderConfirmation(name, o)
	if err != nil {
		return err
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", email)
	fmt.Fprintf(&msg, "Subject: Order %s confirmed\r\n", o.Number)
	msg.WriteString("MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n\r\n")
	msg.WriteString(body)

	addr := s.cfg.Host + ":" + s.cfg.Port
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(addr, auth, s.cfg.From, []string{email}, []byte(msg.String())); err != nil {
		span.RecordError(err)
		return fmt.Errorf("notification: send mail: %w", err)
	}
	return nil
}

// LogSender writes confirmations to the log instead of delivering them.
type LogSender struct {
	log observability.Logger
}

func NewLogSender(logger observability.Logger) *LogSender {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogSender{log: logger.With(observability.F("component", "notification"))}
}

func (s *LogSender) SendOrderConfirmation(ctx context.Context, email, name string, o *domorder.Order) error {
	logctx.FromOr(ctx, s.log).Info("order_confirmation_logged",
		observability.F("to", email),
		observability.F("name", name),
		observability.F("order_number", o.Number),
		observability.F("total", o.Totals.Total.StringFixed(2)),
	)
	return nil
}
