package order

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes order endpoints for owners and admins.
type Handler struct {
	service *Service
	now     func() time.Time
}

// NewHandler constructs an order HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

type historyView struct {
	HistoryEntry
	Label string `json:"label"`
	When  string `json:"when"`
}

type orderView struct {
	Order
	StatusLabel string        `json:"statusLabel"`
	Updated     string        `json:"updated"`
	History     []historyView `json:"history"`
}

func (h *Handler) view(o Order) orderView {
	now := h.now()
	v := orderView{
		Order:       o,
		StatusLabel: StatusLabel(o.Status),
		Updated:     FormatRelative(o.UpdatedAt, now),
		History:     make([]historyView, 0, len(o.StatusHistory)),
	}
	for _, e := range o.StatusHistory {
		v.History = append(v.History, historyView{HistoryEntry: e, Label: StatusLabel(e.Status), When: FormatFull(e.Timestamp, now.Location())})
	}
	return v
}

// Mine lists the session user's orders.
func (h *Handler) Mine(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	orders, err := h.service.ListByUser(c.UserContext(), uid)
	if err != nil {
		return httpError(err)
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, h.view(o))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"orders": views})
}

// Get returns one order to its owner or to an admin. Other users get 404.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	isAdmin, _ := c.Locals("is_admin").(bool)
	o, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	if o.UserID != uid && !isAdmin {
		return fiber.NewError(http.StatusNotFound, ErrOrderNotFound.Error())
	}
	return c.Status(http.StatusOK).JSON(h.view(o))
}

// List is the admin overview with optional owner search.
func (h *Handler) List(c *fiber.Ctx) error {
	overview, err := h.service.ListAll(c.UserContext(), c.Query("search"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(overview)
}

// Create registers a new order on behalf of a user.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req CreateInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	o, err := h.service.Create(c.UserContext(), req)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(h.view(o))
}

type statusRequest struct {
	Status Status `json:"status"`
	Note   string `json:"note"`
}

// UpdateStatus moves an order to a new status.
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	o, err := h.service.UpdateStatus(c.UserContext(), c.Params("id"), req.Status, req.Note)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(h.view(o))
}

// Notify sends the owner an update reminder.
func (h *Handler) Notify(c *fiber.Ctx) error {
	n, err := h.service.Notify(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(n)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrOwnerNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return err
	}
}
