package payments

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/pkg/config"
)

// Intent is the slice of a Stripe PaymentIntent the booking flow needs.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}

// WebhookEvent is a payment outcome decoded from a Stripe webhook. Capture
// mechanics stay on Stripe's side; this core only consumes the outcome.
type WebhookEvent struct {
	Type      string
	IntentID  string
	BookingID int64
}

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Client wraps the Stripe SDK. A client built without a secret key is
// disabled: CreateIntent returns nil and hosts fall back to free bookings.
type Client struct {
	webhookSecret string
	enabled       bool
}

func NewClient(cfg config.StripeConfig) *Client {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	return &Client{
		webhookSecret: cfg.WebhookSecret,
		enabled:       cfg.SecretKey != "",
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

func (c *Client) CreateIntent(ctx context.Context, host *domain.User, booking *domain.Booking) (*Intent, error) {
	if !c.Enabled() {
		return nil, nil
	}

	currency := host.Currency
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(host.PriceCents),
		Currency:     stripe.String(currency),
		ReceiptEmail: stripe.String(booking.CustomerEmail),
	}
	params.Context = ctx
	params.AddMetadata("booking_id", strconv.FormatInt(booking.ID, 10))
	params.AddMetadata("host_id", strconv.FormatInt(booking.HostID, 10))

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// ParseWebhook verifies the signature and extracts the booking outcome.
func (c *Client) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, c.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("verify webhook signature: %w", err)
	}

	switch event.Type {
	case EventPaymentSucceeded, EventPaymentFailed:
	default:
		return &WebhookEvent{Type: string(event.Type)}, nil
	}

	var intent stripe.PaymentIntent
	if err := intent.UnmarshalJSON(event.Data.Raw); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}

	bookingID, _ := strconv.ParseInt(intent.Metadata["booking_id"], 10, 64)
	return &WebhookEvent{
		Type:      string(event.Type),
		IntentID:  intent.ID,
		BookingID: bookingID,
	}, nil
}
