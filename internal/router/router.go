package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/classroom-api/internal/config"
	"github.com/noah-isme/classroom-api/internal/handler"
	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RosterHandler     *handler.RosterHandler
	StudentHandler    *handler.StudentHandler
	SectionHandler    *handler.SectionHandler
	SelectionHandler  *handler.SelectionHandler
	ExportHandler     *handler.ExportHandler
	StreamHandler     *handler.StreamHandler
	StatisticsHandler *handler.StatisticsHandler
	ActivityHandler   *handler.ActivityHandler
	HealthProbes      map[string]handler.HealthProbe
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))
	api.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	authenticated := middleware.RequireSession()

	classroom := api.Group("/classroom", jwtMiddleware, authenticated)
	if cfg.RateLimitMax > 0 {
		classroom.Use(middleware.RateLimit("classroom", cfg.RateLimitMax, cfg.RateLimitWindow))
	}
	if deps.RosterHandler != nil {
		deps.RosterHandler.Register(classroom)
	}
	if deps.StudentHandler != nil {
		deps.StudentHandler.Register(classroom)
	}
	if deps.SectionHandler != nil {
		deps.SectionHandler.Register(classroom)
	}
	if deps.SelectionHandler != nil {
		deps.SelectionHandler.Register(classroom)
	}
	if deps.ExportHandler != nil {
		deps.ExportHandler.Register(classroom)
	}
	if deps.StreamHandler != nil {
		deps.StreamHandler.Register(classroom)
	}

	if deps.StatisticsHandler != nil {
		statistics := api.Group("/statistics", jwtMiddleware, authenticated)
		deps.StatisticsHandler.Register(statistics)
	}

	if deps.ActivityHandler != nil {
		activity := api.Group("/activity", jwtMiddleware, authenticated, middleware.RequireAdmin())
		deps.ActivityHandler.Register(activity)
	}
}
