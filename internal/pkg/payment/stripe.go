package payment

import (
	"strings"

	"github.com/connorward/mycoshop/internal/pkg/catalog"
	"github.com/connorward/mycoshop/internal/pkg/env"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Stripe event types we act on.
const (
	StripeEventSessionCompleted         = "checkout.session.completed"
	StripeEventAsyncPaymentSucceeded    = "checkout.session.async_payment_succeeded"
	StripeEventAsyncPaymentFailed       = "checkout.session.async_payment_failed"
	StripeEventSessionExpired           = "checkout.session.expired"
	StripeEventEarlyFraudWarningCreated = "radar.early_fraud_warning.created"
)

// StripeClient wraps the stripe-go SDK for the card rail.
type StripeClient struct {
	WebhookSecret string
	FrontendURL   string
}

// NewStripeClientFromEnv configures the global stripe-go key and returns the
// client. Prod and dev use separate keys and webhook secrets.
func NewStripeClientFromEnv() *StripeClient {
	if env.IsDev() {
		stripe.Key = strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY_DEV", ""))
	} else {
		stripe.Key = strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY_PROD", ""))
	}

	secretKey := "STRIPE_WEBHOOK_SECRET_PROD"
	if env.IsDev() {
		secretKey = "STRIPE_WEBHOOK_SECRET_DEV"
	}

	return &StripeClient{
		WebhookSecret: strings.TrimSpace(env.GetEnv(secretKey, "")),
		FrontendURL:   strings.TrimRight(env.GetEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
	}
}

// StripeSession is the subset of a checkout session we persist.
type StripeSession struct {
	ID            string
	PaymentStatus string
	URL           string
}

// CreateCheckoutSession opens a single-item payment session. Stripe computes
// tax and validates the billing address on its side, so the card rail needs
// no location input. The idempotency key guards against a duplicate session
// if the same request is retried at the transport level.
func (c *StripeClient) CreateCheckoutSession(email, orderID string, product *catalog.Product) (*StripeSession, error) {
	successURL := c.FrontendURL + "/order-status?type=stripe&order_id=" + orderID + "&session_id={CHECKOUT_SESSION_ID}"
	cancelURL := c.FrontendURL + "/guides"

	params := &stripe.CheckoutSessionParams{
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(product.StripePriceID), Quantity: stripe.Int64(1)},
		},
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(successURL),
		CancelURL:     stripe.String(cancelURL),
		CustomerEmail: stripe.String(email),
		AutomaticTax:  &stripe.CheckoutSessionAutomaticTaxParams{Enabled: stripe.Bool(true)},
	}
	params.AddMetadata("order_id", orderID)
	params.SetIdempotencyKey(uuid.NewString())

	s, err := session.New(params)
	if err != nil {
		return nil, err
	}

	return &StripeSession{
		ID:            s.ID,
		PaymentStatus: string(s.PaymentStatus),
		URL:           s.URL,
	}, nil
}

// ConstructWebhookEvent verifies the Stripe-Signature header and unmarshals
// the event envelope.
func (c *StripeClient) ConstructWebhookEvent(body []byte, signatureHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(body, signatureHeader, c.WebhookSecret)
}

// RefundCharge refunds a charge flagged by a fraud warning. This never
// touches the invoice; fraud handling is a rail-level action.
func (c *StripeClient) RefundCharge(chargeID string) (string, error) {
	r, err := refund.New(&stripe.RefundParams{
		Charge: stripe.String(chargeID),
		Reason: stripe.String(string(stripe.RefundReasonFraudulent)),
	})
	if err != nil {
		return "", err
	}
	return r.ID, nil
}
