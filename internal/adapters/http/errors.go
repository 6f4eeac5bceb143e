package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, internal_error, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errUnavailable returns a 503 error.
func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, 503, "unavailable", msg)
}

// errFromDomain maps coordinator errors onto HTTP statuses. Upstream
// failures keep their diagnostic kind as the code.
func errFromDomain(c *fiber.Ctx, err error) error {
	var failed *domain.UpdateFailedError
	switch {
	case errors.Is(err, domain.ErrNoSnapshot):
		return errUnavailable(c, err.Error())
	case errors.Is(err, domain.ErrUnsupported):
		return newError(c, 409, "unsupported", err.Error())
	case errors.Is(err, domain.ErrUnknownPeriod):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrStationNotFound), errors.Is(err, domain.ErrTripNotFound):
		return errNotFound(c, err.Error())
	case errors.Is(err, domain.ErrLoginPage):
		return newError(c, 502, "login_page", "session is not authenticated")
	case errors.As(err, &failed):
		return newError(c, 502, domain.ErrorKind(err), err.Error())
	}
	return errInternal(c, err.Error())
}
