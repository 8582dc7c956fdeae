package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/connorward/mycoshop/internal/pkg/catalog"
	"github.com/connorward/mycoshop/internal/pkg/order"
	"github.com/connorward/mycoshop/internal/pkg/payment"
	"github.com/connorward/mycoshop/internal/pkg/statistics"
)

// Package-level collaborators, wired once at startup by Setup.
var (
	engine   *order.Service
	stats    *statistics.Service
	btcpay   *payment.BTCPayClient
	stripeWH *payment.StripeClient
	products *catalog.Catalog
)

// Setup injects the services the handlers dispatch to.
func Setup(orderService *order.Service, statsService *statistics.Service, btcpayClient *payment.BTCPayClient, stripeClient *payment.StripeClient, productCatalog *catalog.Catalog) {
	engine = orderService
	stats = statsService
	btcpay = btcpayClient
	stripeWH = stripeClient
	products = productCatalog
}

// renderOrderError maps engine errors onto the boundary contract: stable
// token errors become 400 responses, everything else is a generic 500 so
// internal error text never leaks to the caller.
func renderOrderError(c *fiber.Ctx, err error) error {
	if te, ok := order.AsTokenError(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": te.Code})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Checkout failed"})
}
