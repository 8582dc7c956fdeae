package controllers

import (
	"bufio"
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/connorward/mycoshop/app/models"
)

// HandleBTCPayEvents streams order-state snapshots for one BTCPay invoice as
// server-sent events.
func HandleBTCPayEvents(c *fiber.Ctx) error {
	invoiceID := c.Query("invoice_id")
	if invoiceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invoice_id missing"})
	}
	return streamOrderStatus(c, models.PaymentTypeBTC, invoiceID)
}

// HandleStripeEvents is the card-rail counterpart, keyed by session id.
func HandleStripeEvents(c *fiber.Ctx) error {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "session_id missing"})
	}
	return streamOrderStatus(c, models.PaymentTypeStripe, sessionID)
}

func streamOrderStatus(c *fiber.Ctx, paymentType, correlationID string) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for ev := range engine.StreamStatus(ctx, paymentType, correlationID) {
			var frame string
			if ev.NotFound {
				frame = "event: error\ndata: {\"error\": \"INVOICE_NOT_FOUND\"}\n\n"
			} else {
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				frame = "data: " + string(payload) + "\n\n"
			}
			// a write or flush error means the client disconnected; the
			// deferred cancel shuts the stream goroutine down
			if _, err := w.WriteString(frame); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}
