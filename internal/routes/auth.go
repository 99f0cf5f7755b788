package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cargo-track/cargo_track/internal/auth"
)

// RegisterAuthRoutes wires the public authentication endpoints. Logout needs
// a session and is mounted on the protected group instead.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter, idempotent fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/register", idempotent, h.Register)
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
}
