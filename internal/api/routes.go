package api

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouteConfig struct {
	RateLimit     int
	AdminUser     string
	AdminPassword string
}

func SetupRoutes(app *fiber.App, handler *Handler, cfg RouteConfig) {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 100
	}

	app.Use(RequestID())
	app.Use(RequestLogger())
	app.Use(ErrorHandler())

	app.Get("/health", handler.HealthCheck)
	app.Get("/ready", handler.ReadinessCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/swagger/*", swagger.HandlerDefault)

	v1 := app.Group("/api/v1")
	v1.Use(RateLimiter(cfg.RateLimit))
	v1.Use(PrometheusMiddleware())

	directory := v1.Group("/directory")
	directory.Post("/resolve", handler.ResolveDirectory)
	directory.Post("/read", handler.ReadDirectory)

	admin := v1.Group("/admin")
	admin.Use(AdminAuth(cfg.AdminUser, cfg.AdminPassword))
	admin.Post("/load", handler.LoadDirectory)
	admin.Delete("/cache/:pattern", handler.InvalidateCache)
}
