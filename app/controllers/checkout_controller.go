package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/connorward/mycoshop/internal/pkg/order"
)

// CheckoutPayload is the request body for POST /checkout. The address fields
// only matter on the btc rail.
type CheckoutPayload struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Email   string `json:"email"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zipcode string `json:"zipcode"`
	Country string `json:"country"`
}

// HandleCheckout creates or reuses a payment session for one email.
func HandleCheckout(c *fiber.Ctx) error {
	var payload CheckoutPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	result, err := engine.Checkout(c.Context(), order.CheckoutRequest{
		PaymentType: payload.Type,
		ProductID:   payload.ID,
		Email:       payload.Email,
		City:        payload.City,
		State:       payload.State,
		PostalCode:  payload.Zipcode,
		Country:     payload.Country,
	})
	if err != nil {
		if _, ok := order.AsTokenError(err); !ok {
			log.Errorf("checkout failed: %v", err)
		}
		return renderOrderError(c, err)
	}

	return c.JSON(result)
}
