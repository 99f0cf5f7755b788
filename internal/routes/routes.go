package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/cargo-track/cargo_track/internal/auth"
	"github.com/cargo-track/cargo_track/internal/config"
	"github.com/cargo-track/cargo_track/internal/docstore"
	"github.com/cargo-track/cargo_track/internal/identity"
	"github.com/cargo-track/cargo_track/internal/metrics"
	"github.com/cargo-track/cargo_track/internal/middleware"
	"github.com/cargo-track/cargo_track/internal/notification"
	"github.com/cargo-track/cargo_track/internal/order"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	Store  docstore.Store
	Cache  *redis.Client
	Logger *slog.Logger

	// Identity overrides the identity service. Tests use it to lower the
	// bcrypt cost.
	Identity *identity.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Store == nil {
		return fmt.Errorf("document store is required")
	}
	if d.Cache == nil && !d.Cfg.IsDev() {
		d.Logger.Warn("redis not configured: login rate limiting and idempotency are disabled", slog.String("env", d.Cfg.AppEnv))
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", metrics.Handler())

	identitySvc := d.Identity
	if identitySvc == nil {
		identitySvc = identity.NewService(identity.NewStoreRepository(d.Store))
	}
	sessionSvc := auth.NewService(d.Cfg, d.Store)
	emitter := notification.NewEmitter(d.Store, notification.NewLoggerNotifier(d.Logger))
	orderSvc := order.NewService(d.Store, identitySvc, emitter, d.Logger)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	idempotent := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)

	// Public routes
	authHandler := auth.NewHandler(identitySvc, sessionSvc, d.Logger)
	rateLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttempts, d.Logger)
	RegisterAuthRoutes(api, authHandler, rateLimiter, idempotent)

	// Protected routes
	protected := api.Group("", middleware.SessionAuth(sessionSvc, identitySvc), idempotent)
	protected.Post("/auth/logout", authHandler.Logout)
	RegisterAccountRoutes(protected, identity.NewHandler(identitySvc))
	orderHandler := order.NewHandler(orderSvc)
	RegisterOrderRoutes(protected, orderHandler)
	RegisterNotificationRoutes(protected, notification.NewHandler(emitter))

	admin := protected.Group("/admin", middleware.RequireAdmin())
	RegisterAdminRoutes(admin, identity.NewHandler(identitySvc), orderHandler)

	return nil
}
