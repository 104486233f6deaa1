// Package api exposes the journey planner over HTTP.
package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/passbi/passbi_journeys/internal/logging"
	"github.com/passbi/passbi_journeys/internal/metrics"
	"github.com/passbi/passbi_journeys/internal/middleware"
)

// AppConfig holds the optional parts of the HTTP app
type AppConfig struct {
	AdminToken string
	// RateLimiter guards the /v2 routes when set
	RateLimiter fiber.Handler
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// NewApp creates the fiber app and registers every route of h
func NewApp(h *Handler, cfg AppConfig) *fiber.App {
	logger := logging.OrDefault(cfg.Logger)

	app := fiber.New(fiber.Config{
		AppName:      "PassBi Journeys",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: errorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/health", h.Health)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	var guards []fiber.Handler
	if cfg.RateLimiter != nil {
		guards = append(guards, cfg.RateLimiter)
	}
	v2 := app.Group("/v2", guards...)
	v2.Get("/journeys", h.Journeys)
	v2.Get("/journeys/arrive-by", h.JourneysArriveBy)
	v2.Get("/stops/search", h.StopsSearch)
	v2.Get("/stops/closest", h.StopsClosest)
	v2.Get("/stops/nearby", h.StopsNearby)

	admin := app.Group("/admin", middleware.AdminAuth(cfg.AdminToken))
	admin.Post("/cache/clear", h.ClearCache)
	admin.Post("/cache/cleanup", h.CleanupCache)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "endpoint not found",
		})
	})

	return app
}

// errorHandler renders errors returned from handlers as JSON
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		} else {
			logging.LogError(logger, "request failed", err,
				slog.String("method", c.Method()),
				slog.String("path", c.Path()))
		}

		return c.Status(code).JSON(fiber.Map{
			"error": msg,
		})
	}
}
