package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/connorward/mycoshop/app/controllers"
	"github.com/connorward/mycoshop/internal/pkg/constants"
	"github.com/connorward/mycoshop/internal/pkg/middleware"
)

type ShopRouter struct {
}

func (h ShopRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.GuidesRoute, controllers.HandleGuides)
	app.Post(constants.CheckoutRoute, controllers.HandleCheckout)

	// Webhook ingress; signature checks happen in the handlers so a bad
	// signature can be rejected before any body parsing.
	app.Post(constants.BTCPayWebhookRoute, controllers.HandleBTCPayWebhook)
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)

	// Live status streams for the order-status page.
	app.Get(constants.BTCPayEventsRoute, controllers.HandleBTCPayEvents)
	app.Get(constants.StripeEventsRoute, controllers.HandleStripeEvents)

	app.Get(constants.InvoiceStatsRoute, middleware.AdminKeyMiddleware(), controllers.HandleInvoiceStats)
}

func NewShopRouter() *ShopRouter {
	return &ShopRouter{}
}
