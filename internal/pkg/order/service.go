// Package order owns the invoice lifecycle: checkout, webhook-driven state
// transitions and the live status stream. All invoice read-modify-write
// sequences run under one exclusive section so a checkout retry and an
// in-flight webhook can never observe a half-written invoice.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/connorward/mycoshop/app/models"
	"github.com/connorward/mycoshop/internal/pkg/broadcast"
	"github.com/connorward/mycoshop/internal/pkg/catalog"
	"github.com/connorward/mycoshop/internal/pkg/location"
	"github.com/connorward/mycoshop/internal/pkg/payment"
)

// CryptoRail creates remote invoices on the BTC payment processor.
type CryptoRail interface {
	CreateInvoice(ctx context.Context, email, orderID string, product *catalog.Product, salesTax float64, loc *location.Location) (*payment.BTCPayInvoice, error)
}

// CardRail creates checkout sessions and issues refunds on the card processor.
type CardRail interface {
	CreateCheckoutSession(email, orderID string, product *catalog.Product) (*payment.StripeSession, error)
	RefundCharge(chargeID string) (string, error)
}

// LocationValidator normalizes and confirms a buyer address (BTC rail only).
type LocationValidator interface {
	Validate(ctx context.Context, city, state, postalCode, country string) (*location.Location, error)
}

// TaxCalculator resolves the sales tax rate for a confirmed address.
type TaxCalculator interface {
	Compute(ctx context.Context, loc *location.Location) (float64, error)
}

// Fulfiller delivers the purchased files after settlement.
type Fulfiller interface {
	Fulfill(ctx context.Context, email, orderID, productID, rail string) error
}

// RateLimiter bounds checkout attempts per (email, product).
type RateLimiter interface {
	CheckAndIncrement(email, productID string, limit int) (bool, error)
}

const (
	defaultCheckoutLimit  = 10
	defaultReceiveTimeout = 500 * time.Millisecond
	defaultPollInterval   = 2 * time.Second

	// Stripe's terminal payment_status; once stored, later session events
	// for the same invoice are discarded.
	stripeStatePaid = "paid"
)

// Deps carries everything the lifecycle engine talks to.
type Deps struct {
	Repo      Repository
	Products  *catalog.Catalog
	Crypto    CryptoRail
	Card      CardRail
	Locations LocationValidator
	Taxes     TaxCalculator
	Fulfiller Fulfiller
	Limiter   RateLimiter

	// CheckoutLimit is the max checkout attempts per (email, product).
	CheckoutLimit int

	// ValidateEmail overrides the default syntax+MX check, for tests.
	ValidateEmail func(string) bool
}

// Service is the order lifecycle engine.
type Service struct {
	mu sync.Mutex

	repo      Repository
	products  *catalog.Catalog
	crypto    CryptoRail
	card      CardRail
	locations LocationValidator
	taxes     TaxCalculator
	fulfiller Fulfiller
	limiter   RateLimiter

	btcpayEvents *broadcast.Registry
	stripeEvents *broadcast.Registry

	checkoutLimit  int
	receiveTimeout time.Duration
	pollInterval   time.Duration
	validEmail     func(string) bool
}

func NewService(d Deps) *Service {
	limit := d.CheckoutLimit
	if limit <= 0 {
		limit = defaultCheckoutLimit
	}
	validEmail := d.ValidateEmail
	if validEmail == nil {
		validEmail = ValidEmail
	}
	return &Service{
		repo:           d.Repo,
		products:       d.Products,
		crypto:         d.Crypto,
		card:           d.Card,
		locations:      d.Locations,
		taxes:          d.Taxes,
		fulfiller:      d.Fulfiller,
		limiter:        d.Limiter,
		btcpayEvents:   broadcast.NewRegistry(),
		stripeEvents:   broadcast.NewRegistry(),
		checkoutLimit:  limit,
		receiveTimeout: defaultReceiveTimeout,
		pollInterval:   defaultPollInterval,
		validEmail:     validEmail,
	}
}

// CheckoutRequest is the boundary shape of a checkout call. The address
// fields are only consulted on the BTC rail; Stripe collects and validates
// the billing address itself.
type CheckoutRequest struct {
	PaymentType string
	ProductID   string
	Email       string
	City        string
	State       string
	PostalCode  string
	Country     string
}

// CheckoutResult carries either a fresh checkout link or, for an email that
// already paid, the current order state.
type CheckoutResult struct {
	CheckoutLink string `json:"checkout_link,omitempty"`
	OrderState   State  `json:"order_state,omitempty"`
}

// Checkout creates or reuses the invoice for one email. Retries are
// idempotent: an in-flight invoice returns its existing checkout link and
// never opens a second remote session.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	email := NormalizeEmail(req.Email)
	if !s.validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if req.PaymentType != models.PaymentTypeBTC && req.PaymentType != models.PaymentTypeStripe {
		return nil, ErrInvalidPaymentType
	}
	product := s.products.Find(req.ProductID)
	if product == nil {
		return nil, ErrInvalidProduct
	}

	// The limiter runs before the invoice lock and is never decremented; a
	// checkout that fails later still consumed its slot.
	exceeded, err := s.limiter.CheckAndIncrement(email, product.ID, s.checkoutLimit)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if exceeded {
		log.Warnf("rate limit exceeded for email=%s product_id=%s", email, product.ID)
		return nil, ErrRateLimitExceeded
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.GetByEmail(email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("invoice lookup failed: %w", err)
	}
	if existing != nil {
		state := State(existing.OrderState)
		switch {
		case state.Deletable():
			log.Infof("replacing %s invoice for email=%s", state, email)
			s.removeChannels(existing)
			if err := s.repo.Delete(existing.Email); err != nil {
				return nil, fmt.Errorf("failed to delete stale invoice: %w", err)
			}
		case existing.PaymentType != req.PaymentType:
			return nil, ErrOnlyOnePaymentType
		case state == StateSettled || state == StateFulfilled:
			return &CheckoutResult{OrderState: state}, nil
		default:
			// ProcessingPayment: hand back the existing link unchanged
			return &CheckoutResult{CheckoutLink: existing.CheckoutLink}, nil
		}
	}

	orderID, err := NewOrderID()
	if err != nil {
		return nil, err
	}

	if req.PaymentType == models.PaymentTypeBTC {
		return s.checkoutBTC(ctx, email, orderID, product, req)
	}
	return s.checkoutStripe(email, orderID, product)
}

// checkoutBTC runs with s.mu held. The lock is deliberately kept across the
// remote calls so a concurrent retry cannot open a second BTCPay invoice for
// the same email.
func (s *Service) checkoutBTC(ctx context.Context, email, orderID string, product *catalog.Product, req CheckoutRequest) (*CheckoutResult, error) {
	loc, err := s.locations.Validate(ctx, req.City, req.State, req.PostalCode, req.Country)
	if err != nil {
		return nil, fmt.Errorf("address validation failed: %w", err)
	}
	if !loc.Valid {
		return nil, ErrInvalidLocation
	}

	salesTax, err := s.taxes.Compute(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("sales tax lookup failed: %w", err)
	}

	remote, err := s.crypto.CreateInvoice(ctx, email, orderID, product, salesTax, loc)
	if err != nil {
		return nil, fmt.Errorf("btcpay invoice creation failed: %w", err)
	}

	invoice := &models.Invoice{
		Email:              email,
		PaymentType:        models.PaymentTypeBTC,
		OrderID:            orderID,
		OrderState:         string(StateProcessingPayment),
		CheckoutLink:       remote.CheckoutLink,
		ProductID:          product.ID,
		BtcpayInvoiceID:    remote.ID,
		BtcpayInvoiceState: remote.Status,
		BtcpayCity:         loc.City,
		BtcpayState:        loc.State,
		BtcpayPostalCode:   loc.PostalCode,
		BtcpayCountry:      loc.Country,
		BtcpaySalesTax:     salesTax,
	}
	if err := s.repo.Create(invoice); err != nil {
		return nil, fmt.Errorf("failed to persist invoice: %w", err)
	}

	s.btcpayEvents.Register(remote.ID)
	log.Infof("created btcpay invoice email=%s order_id=%s invoice_id=%s", email, orderID, remote.ID)
	return &CheckoutResult{CheckoutLink: remote.CheckoutLink}, nil
}

// checkoutStripe runs with s.mu held, see checkoutBTC.
func (s *Service) checkoutStripe(email, orderID string, product *catalog.Product) (*CheckoutResult, error) {
	sess, err := s.card.CreateCheckoutSession(email, orderID, product)
	if err != nil {
		return nil, fmt.Errorf("stripe session creation failed: %w", err)
	}

	invoice := &models.Invoice{
		Email:              email,
		PaymentType:        models.PaymentTypeStripe,
		OrderID:            orderID,
		OrderState:         string(StateProcessingPayment),
		CheckoutLink:       sess.URL,
		ProductID:          product.ID,
		StripeSessionID:    sess.ID,
		StripeInvoiceState: sess.PaymentStatus,
	}
	if err := s.repo.Create(invoice); err != nil {
		return nil, fmt.Errorf("failed to persist invoice: %w", err)
	}

	s.stripeEvents.Register(sess.ID)
	log.Infof("created stripe session email=%s order_id=%s session_id=%s", email, orderID, sess.ID)
	return &CheckoutResult{CheckoutLink: sess.URL}, nil
}

func (s *Service) removeChannels(invoice *models.Invoice) {
	if invoice.BtcpayInvoiceID != "" {
		s.btcpayEvents.Remove(invoice.BtcpayInvoiceID)
	}
	if invoice.StripeSessionID != "" {
		s.stripeEvents.Remove(invoice.StripeSessionID)
	}
}

// ApplyBTCPayEvent applies one verified BTCPay webhook. Events for unknown or
// superseded invoices are discarded without error so the processor never
// retries them; settlement is a one-way latch.
func (s *Service) ApplyBTCPayEvent(ctx context.Context, payload payment.BTCPayWebhookPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := NormalizeEmail(payload.Metadata.BuyerEmail)
	if email == "" {
		log.Warnf("btcpay webhook without buyer email, invoice_id=%s type=%s", payload.InvoiceID, payload.Type)
		return nil
	}

	invoice, err := s.repo.GetByEmail(email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Infof("btcpay webhook for unknown invoice, email=%s invoice_id=%s", email, payload.InvoiceID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("invoice lookup failed: %w", err)
	}
	if invoice.BtcpayInvoiceID != payload.InvoiceID {
		log.Infof("btcpay webhook for superseded invoice_id=%s, current=%s", payload.InvoiceID, invoice.BtcpayInvoiceID)
		return nil
	}
	if invoice.BtcpayInvoiceState == payment.BTCPayEventInvoiceSettled {
		log.Infof("discarding btcpay event %s after settlement, invoice_id=%s", payload.Type, payload.InvoiceID)
		return nil
	}

	invoice.BtcpayInvoiceState = payload.Type

	var next State
	switch payload.Type {
	case payment.BTCPayEventInvoiceSettled:
		next = StateSettled
	case payment.BTCPayEventInvoiceExpired:
		next = StateExpired
	case payment.BTCPayEventInvoiceInvalid:
		next = StateFailed
	default:
		// informational event, record the remote state only
		if err := s.repo.Save(invoice); err != nil {
			return fmt.Errorf("failed to persist invoice: %w", err)
		}
		s.btcpayEvents.Publish(invoice.BtcpayInvoiceID, broadcast.Event{OrderState: invoice.OrderState})
		return nil
	}

	return s.transition(ctx, invoice, next, s.btcpayEvents, invoice.BtcpayInvoiceID)
}

// ApplyStripeEvent applies one verified Stripe webhook event. A fraud warning
// triggers an immediate refund and never touches the invoice.
func (s *Service) ApplyStripeEvent(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case payment.StripeEventEarlyFraudWarningCreated:
		return s.refundFlaggedCharge(event)
	case payment.StripeEventSessionCompleted,
		payment.StripeEventAsyncPaymentSucceeded,
		payment.StripeEventAsyncPaymentFailed,
		payment.StripeEventSessionExpired:
	default:
		log.Infof("ignoring stripe event type=%s", event.Type)
		return nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to parse stripe session payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := NormalizeEmail(sess.CustomerEmail)
	if email == "" {
		log.Warnf("stripe webhook without customer email, session_id=%s type=%s", sess.ID, event.Type)
		return nil
	}

	invoice, err := s.repo.GetByEmail(email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Infof("stripe webhook for unknown invoice, email=%s session_id=%s", email, sess.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("invoice lookup failed: %w", err)
	}
	if invoice.StripeSessionID != sess.ID {
		log.Infof("stripe webhook for superseded session_id=%s, current=%s", sess.ID, invoice.StripeSessionID)
		return nil
	}
	if invoice.StripeInvoiceState == stripeStatePaid {
		log.Infof("discarding stripe event %s after payment, session_id=%s", event.Type, sess.ID)
		return nil
	}

	invoice.StripeInvoiceState = string(sess.PaymentStatus)

	var next State
	switch string(event.Type) {
	case payment.StripeEventSessionCompleted:
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			next = StateSettled
		} else {
			// session closed without the payment collected
			next = StateCanceled
		}
	case payment.StripeEventAsyncPaymentSucceeded:
		next = StateSettled
	case payment.StripeEventAsyncPaymentFailed:
		next = StateFailed
	case payment.StripeEventSessionExpired:
		next = StateExpired
	}

	return s.transition(ctx, invoice, next, s.stripeEvents, invoice.StripeSessionID)
}

func (s *Service) refundFlaggedCharge(event stripe.Event) error {
	var warning stripe.RadarEarlyFraudWarning
	if err := json.Unmarshal(event.Data.Raw, &warning); err != nil {
		return fmt.Errorf("failed to parse fraud warning payload: %w", err)
	}
	if warning.Charge == nil || warning.Charge.ID == "" {
		log.Warnf("fraud warning without charge id, event_id=%s", event.ID)
		return nil
	}

	refundID, err := s.card.RefundCharge(warning.Charge.ID)
	if err != nil {
		return fmt.Errorf("fraud refund failed for charge=%s: %w", warning.Charge.ID, err)
	}
	log.Warnf("refunded flagged charge=%s refund=%s", warning.Charge.ID, refundID)
	return nil
}

// transition moves the invoice to next, persists, and notifies the stream.
// Runs with s.mu held. A settlement synchronously attempts fulfillment; if
// that fails the invoice stays Settled and an operator has to step in,
// payment state is never rolled back.
func (s *Service) transition(ctx context.Context, invoice *models.Invoice, next State, events *broadcast.Registry, key string) error {
	current := State(invoice.OrderState)
	if !Allowed(current, next) {
		log.Warnf("ignoring transition %s -> %s for email=%s", current, next, invoice.Email)
		return s.repo.Save(invoice)
	}

	invoice.OrderState = string(next)
	if err := s.repo.Save(invoice); err != nil {
		return fmt.Errorf("failed to persist invoice: %w", err)
	}
	events.Publish(key, broadcast.Event{OrderState: string(next)})

	if next != StateSettled {
		return nil
	}

	if err := s.fulfiller.Fulfill(ctx, invoice.Email, invoice.OrderID, invoice.ProductID, invoice.PaymentType); err != nil {
		log.Errorf("fulfillment failed for email=%s order_id=%s: %v", invoice.Email, invoice.OrderID, err)
		return nil
	}

	now := time.Now()
	invoice.OrderState = string(StateFulfilled)
	invoice.FulfillmentTime = &now
	if err := s.repo.Save(invoice); err != nil {
		return fmt.Errorf("failed to persist invoice: %w", err)
	}
	events.Publish(key, broadcast.Event{OrderState: string(StateFulfilled)})
	return nil
}

// StatusEvent is one snapshot emitted by the status stream.
type StatusEvent struct {
	OrderState string `json:"order_state,omitempty"`
	NotFound   bool   `json:"-"`
}

// StreamStatus emits state snapshots for one order until ctx is canceled.
// Broadcast events are relayed as they arrive; on a quiet channel the loop
// falls back to a direct invoice read at a fixed cadence, so the stream stays
// eventually consistent even if the channel was never registered.
func (s *Service) StreamStatus(ctx context.Context, paymentType, correlationID string) <-chan StatusEvent {
	events := s.btcpayEvents
	lookup := s.repo.GetByBtcpayInvoiceID
	if paymentType == models.PaymentTypeStripe {
		events = s.stripeEvents
		lookup = s.repo.GetByStripeSessionID
	}

	out := make(chan StatusEvent, 1)
	emit := func(ev StatusEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				// client gone; one last best-effort snapshot
				select {
				case out <- s.snapshot(lookup, correlationID):
				default:
				}
				return
			default:
			}

			if ev, ok := events.Receive(correlationID, s.receiveTimeout); ok {
				emit(StatusEvent{OrderState: ev.OrderState})
				continue
			}

			if !emit(s.snapshot(lookup, correlationID)) {
				continue
			}

			select {
			case <-ctx.Done():
			case <-time.After(s.pollInterval):
			}
		}
	}()
	return out
}

func (s *Service) snapshot(lookup func(string) (*models.Invoice, error), key string) StatusEvent {
	invoice, err := lookup(key)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("invoice lookup failed for key=%s: %v", key, err)
		}
		return StatusEvent{NotFound: true}
	}
	return StatusEvent{OrderState: invoice.OrderState}
}
