package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/lesson-engine/internal/observability"
	"github.com/kursadbilgin/lesson-engine/internal/transport"
	"go.uber.org/zap"
)

// NewOpsApp builds the ops HTTP server: health probes, Prometheus metrics
// and the job control API.
func NewOpsApp(logger *zap.Logger, metrics *observability.Metrics, scheduler JobScheduler, checks ...ReadinessCheck) (*fiber.App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "lesson-engine-ops",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})

	if metrics != nil {
		app.Use(metrics.HTTPMiddleware())
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	}

	RegisterHealthRoutes(app, checks...)
	if err := RegisterJobRoutes(app, scheduler); err != nil {
		return nil, err
	}

	return app, nil
}
