package catalog

import (
	"strconv"
	"strings"

	"github.com/connorward/mycoshop/internal/pkg/env"
)

const ProductTypeGuide = "guide"

// Product describes one purchasable digital good. The catalog is read-only
// after Load; prices and Stripe price ids come from the environment so dev
// and prod can point at different Stripe objects.
type Product struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Price         float64 `json:"price"`
	StripePriceID string  `json:"-"`
	FileList      []string
	Image         string `json:"image"`
}

type Catalog struct {
	products []Product
}

// New builds a catalog from a fixed product list.
func New(products ...Product) *Catalog {
	return &Catalog{products: products}
}

// Load builds the product catalog from the environment.
func Load() *Catalog {
	fundamentals := Product{
		ID:          "fundamentals",
		Type:        ProductTypeGuide,
		Title:       "Fundamentals of Mushroom Cultivation",
		Description: "A concise, step-by-step guide to mushroom cultivation",
		Price:       parsePrice(env.GetEnv("FUNDAMENTALS_PRICE", "0.00")),
		Image:       "/mush1.webp",
	}
	if env.IsDev() {
		fundamentals.StripePriceID = env.GetEnv("FUNDAMENTALS_STRIPE_PRICE_ID_DEV", "")
	} else {
		fundamentals.StripePriceID = env.GetEnv("FUNDAMENTALS_STRIPE_PRICE_ID_PROD", "")
	}
	if files := env.GetEnv("FUNDAMENTALS_S3_FILES", ""); files != "" {
		for _, f := range strings.Split(files, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fundamentals.FileList = append(fundamentals.FileList, f)
			}
		}
	}

	return New(fundamentals)
}

// Find returns the product with the given id, or nil.
func (c *Catalog) Find(productID string) *Product {
	for i := range c.products {
		if c.products[i].ID == productID {
			return &c.products[i]
		}
	}
	return nil
}

// Guides returns all products of type guide for the public listing.
func (c *Catalog) Guides() []Product {
	var guides []Product
	for _, p := range c.products {
		if p.Type == ProductTypeGuide {
			guides = append(guides, p)
		}
	}
	return guides
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0.00
	}
	return v
}
