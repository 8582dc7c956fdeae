package models

import "time"

const (
	PaymentTypeBTC    = "btc"
	PaymentTypeStripe = "stripe"
)

// Invoice is the system of record for one customer order. There is at most
// one invoice per normalized email address at any time; terminal-failed
// invoices are deleted on the next checkout attempt while Settled/Fulfilled
// invoices are retained and block further checkouts for that email.
type Invoice struct {
	Email           string     `gorm:"primaryKey;type:varchar(200)" json:"email"`
	PaymentType     string     `gorm:"type:varchar(10);not null;index" json:"payment_type"`
	OrderID         string     `gorm:"type:varchar(16);not null" json:"order_id"`
	OrderState      string     `gorm:"type:varchar(32);not null;index" json:"order_state"`
	CheckoutLink    string     `gorm:"type:text" json:"checkout_link"`
	ProductID       string     `gorm:"type:varchar(64);not null" json:"product_id"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	FulfillmentTime *time.Time `gorm:"type:timestamp;default:null" json:"fulfillment_time,omitempty"`

	// BTCPay rail
	BtcpayInvoiceID    string  `gorm:"type:varchar(64);index" json:"btcpay_invoice_id,omitempty"`
	BtcpayInvoiceState string  `gorm:"type:varchar(40)" json:"btcpay_invoice_state,omitempty"`
	BtcpayCity         string  `gorm:"type:varchar(100)" json:"btcpay_city,omitempty"`
	BtcpayState        string  `gorm:"type:varchar(40)" json:"btcpay_state,omitempty"`
	BtcpayPostalCode   string  `gorm:"type:varchar(20)" json:"btcpay_postal_code,omitempty"`
	BtcpayCountry      string  `gorm:"type:varchar(10)" json:"btcpay_country,omitempty"`
	BtcpaySalesTax     float64 `gorm:"default:0" json:"btcpay_sales_tax,omitempty"`

	// Stripe rail
	StripeSessionID    string `gorm:"type:varchar(128);index" json:"stripe_session_id,omitempty"`
	StripeInvoiceState string `gorm:"type:varchar(40)" json:"stripe_invoice_state,omitempty"`
}
