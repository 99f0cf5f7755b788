package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cargo-track/cargo_track/internal/notification"
)

// RegisterNotificationRoutes wires the session user's notification inbox.
func RegisterNotificationRoutes(r fiber.Router, h *notification.Handler) {
	r.Get("/notifications", h.List)
	r.Post("/notifications/:id/read", h.MarkRead)
}
