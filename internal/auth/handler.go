package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/cargo-track/cargo_track/internal/identity"
	"github.com/cargo-track/cargo_track/internal/metrics"
	"github.com/cargo-track/cargo_track/internal/validation"
)

// Handler exposes auth endpoints for register/login/logout.
type Handler struct {
	ids    *identity.Service
	svc    *Service
	logger *slog.Logger
}

func NewHandler(ids *identity.Service, svc *Service, logger *slog.Logger) *Handler {
	return &Handler{ids: ids, svc: svc, logger: logger}
}

type loginRequest struct {
	FinCode  string `json:"finCode"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string        `json:"token"`
	ExpiresAt int64         `json:"expiresAt"`
	User      identity.User `json:"user"`
}

// Register creates the account and logs it in.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req identity.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.ids.Register(c.UserContext(), req)
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateFinCode) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		return err
	}
	metrics.RegistrationsTotal.Inc()

	sess, err := h.svc.Start(c.UserContext(), user)
	if err != nil {
		return err
	}
	if h.logger != nil {
		h.logger.Info("auth.register completed",
			slog.String("user_id", user.ID),
			slog.String("fin_code", user.FinCode),
			slog.Int("status", http.StatusCreated),
		)
	}
	return c.Status(http.StatusCreated).JSON(sessionResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: user})
}

// Login validates credentials and starts a session. Unknown FIN codes and
// wrong passwords get the same answer.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.ids.Login(c.UserContext(), req.FinCode, req.Password)
	if err != nil {
		var verr *validation.Error
		switch {
		case errors.As(err, &verr):
			metrics.LoginsTotal.WithLabelValues("invalid").Inc()
			return err
		case errors.Is(err, identity.ErrUserNotFound), errors.Is(err, identity.ErrInvalidCredentials):
			metrics.LoginsTotal.WithLabelValues("invalid").Inc()
			return fiber.NewError(http.StatusUnauthorized, identity.ErrInvalidCredentials.Error())
		default:
			metrics.LoginsTotal.WithLabelValues("error").Inc()
			return err
		}
	}

	sess, err := h.svc.Start(c.UserContext(), user)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	return c.Status(http.StatusOK).JSON(sessionResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: user})
}

// Logout ends the session carried by the bearer token.
func (h *Handler) Logout(c *fiber.Ctx) error {
	token := BearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
	}
	if err := h.svc.End(c.UserContext(), token); err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

// BearerToken extracts the token of an "Authorization: Bearer" header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
