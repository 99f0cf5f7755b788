package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cargo-track/cargo_track/internal/identity"
	"github.com/cargo-track/cargo_track/internal/order"
)

// RegisterAdminRoutes wires administrator endpoints. r must already enforce
// RequireAdmin.
func RegisterAdminRoutes(r fiber.Router, users *identity.Handler, orders *order.Handler) {
	r.Get("/users", users.Users)
	r.Patch("/users/:id", users.UpdateProfile)

	r.Get("/orders", orders.List)
	r.Post("/orders", orders.Create)
	r.Patch("/orders/:id/status", orders.UpdateStatus)
	r.Post("/orders/:id/notify", orders.Notify)
}
