package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewApp routes the handlers and serves the metrics of gatherer on /metrics.
func NewApp(handlers *Handlers, gatherer prometheus.Gatherer) *fiber.App {
	app := fiber.New()
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	e := app.Group("/executions")
	e.Get("/", handlers.ListExecutions)
	e.Post("/", handlers.RequestExecution)
	e.Get("/:id", handlers.GetExecution)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Get("/:id", handlers.GetWorkflow)

	return app
}
