package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/connorward/mycoshop/internal/pkg/catalog"
	"github.com/connorward/mycoshop/internal/pkg/env"
	"github.com/connorward/mycoshop/internal/pkg/location"
)

// BTCPayClient talks to a BTCPay Server store over its Greenfield REST API.
type BTCPayClient struct {
	BaseURL           string
	StoreID           string
	APIKey            string
	WebhookSecret     string
	ExpirationMinutes int
	FrontendURL       string

	HTTPClient *http.Client
}

// NewBTCPayClientFromEnv builds the client from environment configuration.
func NewBTCPayClientFromEnv() *BTCPayClient {
	expiration := 60
	if v := strings.TrimSpace(env.GetEnv("BTCPAY_INVOICE_EXPIRATION_MINUTES", "")); v != "" {
		if parsed, err := parsePositiveInt(v); err == nil {
			expiration = parsed
		}
	}
	return &BTCPayClient{
		BaseURL:           strings.TrimRight(env.GetEnv("BTCPAY_URL", ""), "/"),
		StoreID:           strings.TrimSpace(env.GetEnv("BTCPAY_STORE_ID", "")),
		APIKey:            strings.TrimSpace(env.GetEnv("BTCPAY_API_KEY", "")),
		WebhookSecret:     strings.TrimSpace(env.GetEnv("BTCPAY_WEBHOOK_SECRET", "")),
		ExpirationMinutes: expiration,
		FrontendURL:       strings.TrimRight(env.GetEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// BTCPayInvoice is the subset of the remote invoice we consume.
type BTCPayInvoice struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	CheckoutLink string `json:"checkoutLink"`
}

// BTCPayWebhookPayload is the envelope BTCPay posts to our webhook endpoint.
type BTCPayWebhookPayload struct {
	Type      string                `json:"type"`
	InvoiceID string                `json:"invoiceId"`
	Metadata  BTCPayInvoiceMetadata `json:"metadata"`
}

type BTCPayInvoiceMetadata struct {
	BuyerEmail   string  `json:"buyerEmail"`
	BuyerCity    string  `json:"buyerCity,omitempty"`
	BuyerState   string  `json:"buyerState,omitempty"`
	BuyerZip     string  `json:"buyerZip,omitempty"`
	BuyerCountry string  `json:"buyerCountry,omitempty"`
	ItemDesc     string  `json:"itemDesc,omitempty"`
	OrderID      string  `json:"orderId,omitempty"`
	TaxIncluded  float64 `json:"taxIncluded,omitempty"`
}

// BTCPay invoice event types we act on.
const (
	BTCPayEventInvoiceSettled = "InvoiceSettled"
	BTCPayEventInvoiceExpired = "InvoiceExpired"
	BTCPayEventInvoiceInvalid = "InvoiceInvalid"
)

// CreateInvoice creates a remote invoice for one product, tax included. The
// buyer address rides along in metadata so webhooks can resolve it later.
func (c *BTCPayClient) CreateInvoice(ctx context.Context, email, orderID string, product *catalog.Product, salesTax float64, loc *location.Location) (*BTCPayInvoice, error) {
	if c.BaseURL == "" || c.StoreID == "" || c.APIKey == "" {
		return nil, fmt.Errorf("btcpay client is not configured")
	}

	totalTax := salesTax * product.Price
	redirectURL := c.FrontendURL + "/order-status?type=btc&order_id=" + url.QueryEscape(orderID) + "&invoice_id={InvoiceId}"

	body := map[string]interface{}{
		"metadata": map[string]interface{}{
			"buyerEmail":   email,
			"buyerCity":    loc.City,
			"buyerState":   loc.State,
			"buyerZip":     loc.PostalCode,
			"buyerCountry": loc.Country,
			"itemDesc":     product.Title,
			"orderId":      orderID,
			"taxIncluded":  totalTax,
			"posData": map[string]interface{}{
				"sub_total": product.Price,
				"total":     product.Price + totalTax,
			},
		},
		"checkout": map[string]interface{}{
			"speedPolicy":           "MediumSpeed", // 1 confirmation
			"paymentMethods":        []string{"BTC", "BTC-LightningNetwork"},
			"expirationMinutes":     c.ExpirationMinutes,
			"redirectURL":           redirectURL,
			"redirectAutomatically": true,
		},
		"amount":   fmt.Sprintf("%.2f", product.Price+totalTax),
		"currency": "USD",
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/stores/%s/invoices", c.BaseURL, c.StoreID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("btcpay create invoice failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var invoice BTCPayInvoice
	if err := json.Unmarshal(respBody, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// VerifyWebhookSignature checks the BTCPay-Sig header against the raw body.
// The header carries "sha256=" + hex(HMAC-SHA256(secret, body)).
func (c *BTCPayClient) VerifyWebhookSignature(body []byte, signatureHeader string) bool {
	return VerifyBTCPaySignature(body, signatureHeader, c.WebhookSecret)
}

func VerifyBTCPaySignature(body []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(computed), []byte(sig))
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("value must be positive: %d", n)
	}
	return n, nil
}
