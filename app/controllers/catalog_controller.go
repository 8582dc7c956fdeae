package controllers

import "github.com/gofiber/fiber/v2"

// HandleGuides lists the purchasable guides.
func HandleGuides(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"guides": products.Guides()})
}
