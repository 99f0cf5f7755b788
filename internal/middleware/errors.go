package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cargo-track/cargo_track/internal/docstore"
	"github.com/cargo-track/cargo_track/internal/validation"
)

type errorBody struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// classify maps errors that handlers leave unmapped to a status and a body.
func classify(err error) (int, errorBody) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorBody{Error: verr.Message, Field: verr.Field}
	case errors.Is(err, docstore.ErrVersionConflict):
		return http.StatusConflict, errorBody{Error: "resource was modified concurrently"}
	case errors.Is(err, docstore.ErrUnavailable):
		return http.StatusServiceUnavailable, errorBody{Error: "storage temporarily unavailable"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal server error"}
	}
}

// ErrorHandler renders every error as JSON. Handlers map their own domain
// errors to *fiber.Error; what is left here are validation failures, store
// outages and unexpected errors.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			status int
			body   errorBody
			fe     *fiber.Error
		)
		if errors.As(err, &fe) {
			status, body = fe.Code, errorBody{Error: fe.Message}
		} else {
			status, body = classify(err)
		}
		body.RequestID = RequestIDFrom(c)

		if status >= http.StatusInternalServerError && logger != nil {
			logger.Error("request error",
				slog.String("path", c.Path()),
				slog.String("request_id", body.RequestID),
				slog.Any("error", err),
			)
		}
		return c.Status(status).JSON(body)
	}
}
