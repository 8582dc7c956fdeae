package controllers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/connorward/mycoshop/internal/pkg/payment"
)

// HandleBTCPayWebhook ingests signed BTCPay invoice events. Verified events
// are always acknowledged with 200, even when they resolve to no invoice;
// anything else would make BTCPay retry events we have deliberately
// discarded.
func HandleBTCPayWebhook(c *fiber.Ctx) error {
	body := c.Body()
	if !btcpay.VerifyWebhookSignature(body, c.Get("BTCPay-Sig")) {
		log.Warnf("rejected btcpay webhook with bad signature from %s", c.IP())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid signature"})
	}

	var payload payment.BTCPayWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid payload"})
	}

	if err := engine.ApplyBTCPayEvent(c.Context(), payload); err != nil {
		log.Errorf("btcpay webhook processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.SendStatus(fiber.StatusOK)
}

// HandleStripeWebhook ingests Stripe events after verifying the
// Stripe-Signature header.
func HandleStripeWebhook(c *fiber.Ctx) error {
	event, err := stripeWH.ConstructWebhookEvent(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		log.Warnf("rejected stripe webhook from %s: %v", c.IP(), err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid signature"})
	}

	if err := engine.ApplyStripeEvent(c.Context(), event); err != nil {
		log.Errorf("stripe webhook processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.SendStatus(fiber.StatusOK)
}
