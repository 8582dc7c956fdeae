package constants

// Static route constants
const (
	GuidesRoute        = "/guides"
	CheckoutRoute      = "/checkout"
	BTCPayWebhookRoute = "/btcpay-webhook"
	StripeWebhookRoute = "/stripe-webhook"
	BTCPayEventsRoute  = "/btcpay-webhook-events"
	StripeEventsRoute  = "/stripe-webhook-events"
	InvoiceStatsRoute  = "/invoice-stats"
)
