package notification

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the notification inbox of the session user.
type Handler struct {
	emitter *Emitter
}

func NewHandler(emitter *Emitter) *Handler {
	return &Handler{emitter: emitter}
}

// List returns the caller's notifications, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	items, err := h.emitter.ListByUser(c.UserContext(), uid)
	if err != nil {
		return err
	}
	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"notifications": items, "unread": unread})
}

// MarkRead flags one of the caller's notifications as read.
func (h *Handler) MarkRead(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	n, err := h.emitter.MarkRead(c.UserContext(), uid, c.Params("id"))
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	case err != nil:
		return err
	}
	return c.Status(http.StatusOK).JSON(n)
}
