package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cargo-track/cargo_track/internal/identity"
)

// RegisterAccountRoutes wires the session user's own profile.
func RegisterAccountRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/me", h.Me)
}
