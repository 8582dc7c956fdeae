package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandleInvoiceStats serves the admin statistics report. Authentication is
// enforced by the router middleware.
func HandleInvoiceStats(c *fiber.Ctx) error {
	report, err := stats.Report()
	if err != nil {
		log.Errorf("failed to build invoice statistics: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(report)
}
