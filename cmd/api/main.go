package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/transitoffer/offer_core/internal/api"
	"github.com/transitoffer/offer_core/internal/cache"
)

func main() {
	log.Println("Starting service-offer API server...")

	// Redis is optional: handlers recompute when the cache is absent.
	if _, err := cache.GetClient(); err != nil {
		log.Printf("Warning: Redis unavailable, result caching disabled: %v", err)
	} else {
		defer cache.Close()
		log.Println("✓ Redis connection established")
	}

	app := fiber.New(fiber.Config{
		AppName:      "Offer Core API",
		BodyLimit:    64 * 1024 * 1024, // GTFS archives are posted raw
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	// Routes
	app.Get("/health", api.Health)
	app.Post("/v1/feeds", api.IngestFeed)
	app.Get("/v1/feeds", api.ListFeeds)
	app.Get("/v1/feeds/:id/day-types", api.DayTypes)
	app.Get("/v1/feeds/:id/headways", api.Headways)
	app.Get("/v1/feeds/:id/kpis", api.KPIs)
	app.Post("/v1/feeds/:id/accessibility", api.Accessibility)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{
			"error": "endpoint not found",
		})
	})

	port := getEnv("API_PORT", "8080")
	addr := fmt.Sprintf(":%s", port)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("🚀 Server listening on http://localhost%s", addr)
	log.Printf("📦 Ingest a feed: POST http://localhost%s/v1/feeds", addr)
	log.Printf("❤️  Health check: http://localhost%s/health", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// customErrorHandler handles errors returned from handlers
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	log.Printf("Error: %v", err)

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
