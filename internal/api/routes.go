package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Checker-Finance/bank-scrapers/internal/jobs"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// PassReporter exposes the outcome of the latest sync pass.
type PassReporter interface {
	LastPass() (jobs.PassStatus, bool)
}

// RegisterRoutes mounts the operational endpoints of the sync daemon.
func RegisterRoutes(app *fiber.App, checks map[string]HealthCheck, passes PassReporter) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		results := make(map[string]string, len(checks))
		status := "ok"
		code := fiber.StatusOK

		healthCtx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(healthCtx); err != nil {
				results[name] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	})

	app.Get("/sync/status", func(c *fiber.Ctx) error {
		last, ok := passes.LastPass()
		if !ok {
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "pending"})
		}
		status := "ok"
		if last.Failed > 0 {
			status = "partial"
		}
		return c.JSON(fiber.Map{
			"status": status,
			"last":   last,
		})
	})
}
