package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Me returns the profile of the session's user.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	user, err := h.service.Get(c.UserContext(), uid)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(user)
}

// Users lists users for the admin picker. Admins are hidden unless
// include_admins=true.
func (h *Handler) Users(c *fiber.Ctx) error {
	users, err := h.service.List(c.UserContext(), ListFilter{
		Search:        c.Query("search"),
		ExcludeAdmins: !c.QueryBool("include_admins", false),
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"users": users})
}

type profileRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	IsAdmin   *bool   `json:"isAdmin"`
}

// UpdateProfile lets an admin edit a user's names or admin flag.
func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.UpdateProfile(c.UserContext(), c.Params("id"), ProfileUpdate(req))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(user)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateFinCode), errors.Is(err, ErrConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	default:
		return err
	}
}
