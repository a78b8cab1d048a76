package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/samg2014/VirtualHand/internal/config"
	"github.com/samg2014/VirtualHand/internal/handler"
	"github.com/samg2014/VirtualHand/internal/middleware"
	"github.com/samg2014/VirtualHand/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler     *handler.AuthHandler
	CourseHandler   *handler.CourseHandler
	RealtimeHandler *handler.RealtimeHandler
	AudioHandler    *handler.NotificationAudioHandler
	HealthProbes    []handler.HealthProbe
	JWTMiddleware   fiber.Handler
	AuthLimiter     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	// Use provided JWT middleware, or a default one bound to the configured secret
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	if deps.AudioHandler != nil {
		api.Get("/notification-audio", deps.AudioHandler.Serve)
	}

	if deps.AuthHandler != nil {
		deps.AuthHandler.Register(api.Group("/auth"), deps.AuthLimiter)
		deps.AuthHandler.RegisterAccount(api.Group("/account", jwtMiddleware))
	}

	if deps.CourseHandler != nil {
		deps.CourseHandler.Register(app.Group("/api/v2/courses", jwtMiddleware))
	}

	if deps.RealtimeHandler != nil {
		deps.RealtimeHandler.Register(app.Group("/api/v2/realtime", jwtMiddleware))
	}
}
