package main

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/connorward/mycoshop/app/controllers"
	"github.com/connorward/mycoshop/internal/pkg/apiusage"
	"github.com/connorward/mycoshop/internal/pkg/cache"
	"github.com/connorward/mycoshop/internal/pkg/catalog"
	"github.com/connorward/mycoshop/internal/pkg/database"
	"github.com/connorward/mycoshop/internal/pkg/env"
	"github.com/connorward/mycoshop/internal/pkg/fulfillment"
	"github.com/connorward/mycoshop/internal/pkg/location"
	"github.com/connorward/mycoshop/internal/pkg/order"
	"github.com/connorward/mycoshop/internal/pkg/payment"
	"github.com/connorward/mycoshop/internal/pkg/ratelimit"
	"github.com/connorward/mycoshop/internal/pkg/router"
	"github.com/connorward/mycoshop/internal/pkg/statistics"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "8000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	products := catalog.Load()

	meter := apiusage.NewMeter(apiusage.NewRepository(db))
	limiter := ratelimit.NewLimiter(ratelimit.NewRepository(db))

	fulfillCfg, err := fulfillment.LoadConfig()
	if err != nil {
		log.Fatalf("fulfillment configuration invalid: %v", err)
	}
	s3Client, err := fulfillment.NewS3Client(fulfillCfg)
	if err != nil {
		log.Fatalf("failed to set up S3 client: %v", err)
	}
	dispatcher := fulfillment.NewDispatcher(products, s3Client, fulfillment.SMTPMailer{}, meter, fulfillCfg.SupportEmail)

	btcpayClient := payment.NewBTCPayClientFromEnv()
	stripeClient := payment.NewStripeClientFromEnv()

	engine := order.NewService(order.Deps{
		Repo:          order.NewRepository(db),
		Products:      products,
		Crypto:        btcpayClient,
		Card:          stripeClient,
		Locations:     location.NewValidatorFromEnv(meter),
		Taxes:         location.NewTaxServiceFromEnv(),
		Fulfiller:     dispatcher,
		Limiter:       limiter,
		CheckoutLimit: checkoutLimit(),
	})

	statsService := statistics.NewService(order.NewRepository(db), apiusage.NewRepository(db), redisCache{})

	controllers.Setup(engine, statsService, btcpayClient, stripeClient, products)

	app := fiber.New(fiber.Config{
		AppName: "mycoshop",
	})
	app.Use(recover.New(), logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: env.GetEnv("FRONTEND_URL", "http://localhost:5173"),
		AllowHeaders: "Origin, Content-Type, Accept, BTCPay-Sig, Stripe-Signature",
	}))

	router.InstallRouter(app)

	return app
}

func checkoutLimit() int {
	if v := env.GetEnv("CHECKOUT_RATE_LIMIT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("ignoring invalid CHECKOUT_RATE_LIMIT=%q", v)
	}
	return 0 // order.NewService applies its default
}

// redisCache adapts the cache package functions to the statistics.Cache
// interface.
type redisCache struct{}

func (redisCache) Get(key string) (string, error) {
	return cache.Get(key)
}

func (redisCache) Set(key string, value interface{}, expiration time.Duration) error {
	return cache.Set(key, value, expiration)
}
