package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cargo-track/cargo_track/internal/order"
)

// RegisterOrderRoutes wires the order views available to every user.
func RegisterOrderRoutes(r fiber.Router, h *order.Handler) {
	r.Get("/orders", h.Mine)
	r.Get("/orders/:id", h.Get)
}
