package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/freshhhy/rfq-engine/internal/store"
)

// RegisterRoutes registers all HTTP routes on the Fiber app.
func RegisterRoutes(app *fiber.App, nc *nats.Conn, st *store.HybridStore, h *Handler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"nats":  "ok",
			"store": "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		if nc == nil || !nc.IsConnected() {
			checks["nats"] = "disconnected"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		} else if err := nc.FlushTimeout(1 * time.Second); err != nil {
			checks["nats"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := st.HealthCheck(healthCtx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	// API routes
	v1 := app.Group("/api/v1")

	v1.Post("/rfqs", h.CreateRFQ)
	v1.Get("/rfqs/:id", h.GetRFQ)
	v1.Post("/rfqs/:id/cancel", h.CancelRFQ)
	v1.Post("/rfqs/:id/quotes", h.SubmitQuote)

	v1.Post("/quotes/:id/accept", h.AcceptQuote)
	v1.Post("/quotes/:id/convert", h.ConvertQuote)
	v1.Get("/quotes/:id/order", h.GetOrderByQuote)

	v1.Post("/presence/:vendorId/online", h.VendorOnline)
	v1.Post("/presence/:vendorId/offline", h.VendorOffline)
	v1.Post("/presence/:vendorId/heartbeat", h.VendorHeartbeat)
	v1.Get("/presence/count", h.PresenceCount)
}
