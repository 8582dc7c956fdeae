package controllers_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/connorward/mycoshop/app/controllers"
	"github.com/connorward/mycoshop/app/models"
	"github.com/connorward/mycoshop/internal/pkg/catalog"
	"github.com/connorward/mycoshop/internal/pkg/location"
	"github.com/connorward/mycoshop/internal/pkg/order"
	"github.com/connorward/mycoshop/internal/pkg/payment"
	"github.com/connorward/mycoshop/internal/pkg/router"
	"github.com/connorward/mycoshop/internal/pkg/statistics"
)

const testWebhookSecret = "whsec_btcpay_test"

type memRepo struct {
	mu       sync.Mutex
	invoices map[string]models.Invoice
}

func (r *memRepo) GetByEmail(email string) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[email]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &inv, nil
}

func (r *memRepo) GetByBtcpayInvoiceID(id string) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.BtcpayInvoiceID == id {
			return &inv, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) GetByStripeSessionID(id string) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.StripeSessionID == id {
			return &inv, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) Create(inv *models.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices[inv.Email] = *inv
	return nil
}

func (r *memRepo) Save(inv *models.Invoice) error { return r.Create(inv) }

func (r *memRepo) Delete(email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.invoices, email)
	return nil
}

func (r *memRepo) ListAll() ([]models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		out = append(out, inv)
	}
	return out, nil
}

type memUsageRepo struct{}

func (memUsageRepo) GetCounter(string, string) (*models.APIUsageCounter, error) {
	return nil, gorm.ErrRecordNotFound
}
func (memUsageRepo) SaveCounter(*models.APIUsageCounter) error { return nil }
func (memUsageRepo) ListCountersSince(string, string) ([]models.APIUsageCounter, error) {
	return nil, nil
}

type stubCrypto struct{}

func (stubCrypto) CreateInvoice(ctx context.Context, email, orderID string, product *catalog.Product, salesTax float64, loc *location.Location) (*payment.BTCPayInvoice, error) {
	return &payment.BTCPayInvoice{ID: "btcpay-1", Status: "New", CheckoutLink: "https://pay.example.com/i/btcpay-1"}, nil
}

type stubCard struct{}

func (stubCard) CreateCheckoutSession(email, orderID string, product *catalog.Product) (*payment.StripeSession, error) {
	return &payment.StripeSession{ID: "cs_test_1", PaymentStatus: "unpaid", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
}

func (stubCard) RefundCharge(chargeID string) (string, error) { return "re_1", nil }

type stubLocations struct{}

func (stubLocations) Validate(ctx context.Context, city, state, postalCode, country string) (*location.Location, error) {
	return &location.Location{Valid: true, City: city, State: state, PostalCode: postalCode, Country: country}, nil
}

type stubTaxes struct{}

func (stubTaxes) Compute(context.Context, *location.Location) (float64, error) { return 0.088, nil }

type stubFulfiller struct{}

func (stubFulfiller) Fulfill(context.Context, string, string, string, string) error { return nil }

type stubLimiter struct{}

func (stubLimiter) CheckAndIncrement(string, string, int) (bool, error) { return false, nil }

func newTestApp(t *testing.T) (*fiber.App, *memRepo) {
	t.Helper()

	repo := &memRepo{invoices: make(map[string]models.Invoice)}
	testProducts := catalog.New(catalog.Product{ID: "fundamentals", Type: catalog.ProductTypeGuide, Title: "Fundamentals", Price: 20.00, StripePriceID: "price_123"})

	engine := order.NewService(order.Deps{
		Repo:          repo,
		Products:      testProducts,
		Crypto:        stubCrypto{},
		Card:          stubCard{},
		Locations:     stubLocations{},
		Taxes:         stubTaxes{},
		Fulfiller:     stubFulfiller{},
		Limiter:       stubLimiter{},
		ValidateEmail: func(string) bool { return true },
	})

	statsService := statistics.NewService(repo, memUsageRepo{}, nil)

	controllers.Setup(
		engine,
		statsService,
		&payment.BTCPayClient{WebhookSecret: testWebhookSecret},
		&payment.StripeClient{WebhookSecret: "whsec_stripe_test"},
		testProducts,
	)

	app := fiber.New()
	router.InstallRouter(app)
	return app, repo
}

func signBTCPay(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHandleGuides(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/guides", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "fundamentals")
}

func TestHandleCheckout(t *testing.T) {
	app, repo := newTestApp(t)

	payload, _ := json.Marshal(controllers.CheckoutPayload{
		Type: models.PaymentTypeBTC, ID: "fundamentals", Email: "a@example.com",
		City: "Denver", State: "CO", Zipcode: "80202", Country: "US",
	})
	req := httptest.NewRequest("POST", "/checkout", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result order.CheckoutResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "https://pay.example.com/i/btcpay-1", result.CheckoutLink)

	inv, err := repo.GetByEmail("a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ProcessingPayment", inv.OrderState)
}

func TestHandleCheckoutUnknownProduct(t *testing.T) {
	app, _ := newTestApp(t)

	payload, _ := json.Marshal(controllers.CheckoutPayload{Type: models.PaymentTypeBTC, ID: "missing", Email: "a@example.com"})
	req := httptest.NewRequest("POST", "/checkout", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), order.CodeInvalidProduct)
}

func TestHandleBTCPayWebhookRejectsBadSignature(t *testing.T) {
	app, _ := newTestApp(t)

	body := []byte(`{"type":"InvoiceSettled","invoiceId":"btcpay-1"}`)
	req := httptest.NewRequest("POST", "/btcpay-webhook", bytes.NewReader(body))
	req.Header.Set("BTCPay-Sig", "sha256=deadbeef")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleBTCPayWebhookSettlesInvoice(t *testing.T) {
	app, repo := newTestApp(t)

	payload, _ := json.Marshal(controllers.CheckoutPayload{
		Type: models.PaymentTypeBTC, ID: "fundamentals", Email: "a@example.com",
		City: "Denver", State: "CO", Zipcode: "80202", Country: "US",
	})
	req := httptest.NewRequest("POST", "/checkout", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	event := []byte(`{"type":"InvoiceSettled","invoiceId":"btcpay-1","metadata":{"buyerEmail":"a@example.com"}}`)
	req = httptest.NewRequest("POST", "/btcpay-webhook", bytes.NewReader(event))
	req.Header.Set("BTCPay-Sig", signBTCPay(event))

	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	inv, err := repo.GetByEmail("a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Fulfilled", inv.OrderState)
}

func TestHandleBTCPayWebhookUnknownInvoiceStill200(t *testing.T) {
	app, _ := newTestApp(t)

	event := []byte(`{"type":"InvoiceSettled","invoiceId":"btcpay-9","metadata":{"buyerEmail":"ghost@example.com"}}`)
	req := httptest.NewRequest("POST", "/btcpay-webhook", bytes.NewReader(event))
	req.Header.Set("BTCPay-Sig", signBTCPay(event))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "unknown invoices must not trigger webhook retries")
}

func TestHandleStripeWebhookRejectsBadSignature(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/stripe-webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestInvoiceStatsRequiresAdminKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)
	t.Setenv("ADMIN_API_KEY_HASH", string(hash))

	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/invoice-stats", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/invoice-stats?api_key=wrong", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/invoice-stats?api_key=letmein", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "state_counts")
}
