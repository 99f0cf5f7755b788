package middleware

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cargo-track/cargo_track/internal/auth"
	"github.com/cargo-track/cargo_track/internal/identity"
)

// Locals set by SessionAuth.
const (
	LocalUserID    = "user_id"
	LocalSessionID = "session_id"
	LocalIsAdmin   = "is_admin"
)

// SessionAuth resolves the bearer token into a live session and loads its
// user. The admin flag is read from the stored user on every request, so a
// demotion takes effect immediately.
func SessionAuth(sessions *auth.Service, users *identity.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		sess, err := sessions.Resolve(c.UserContext(), token)
		if errors.Is(err, auth.ErrInvalidSession) {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		if err != nil {
			return err
		}

		user, err := users.Get(c.UserContext(), sess.UserID)
		if errors.Is(err, identity.ErrUserNotFound) {
			return fiber.NewError(http.StatusUnauthorized, "session user no longer exists")
		}
		if err != nil {
			return err
		}

		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalSessionID, sess.ID)
		c.Locals(LocalIsAdmin, user.IsAdmin)
		return c.Next()
	}
}

// RequireAdmin rejects requests whose session user is not an administrator.
// It must run after SessionAuth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if isAdmin, _ := c.Locals(LocalIsAdmin).(bool); !isAdmin {
			return fiber.NewError(http.StatusForbidden, "administrator access required")
		}
		return c.Next()
	}
}
