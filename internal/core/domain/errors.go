package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNonJSONResponse = errors.New("non_json_response")
	ErrLoginFailed     = errors.New("login_failed")
	ErrCookieNotFound  = errors.New("cookie_not_found")
	ErrLoginPage       = errors.New("login_page")
	ErrStationNotFound = errors.New("station_id_not_found")
	ErrUnsupported     = errors.New("not supported in this auth mode")
	ErrNoSnapshot      = errors.New("no snapshot available yet")
	ErrUnknownPeriod   = errors.New("unknown history period")
	ErrTripNotFound    = errors.New("trip not found")

	ErrStationNumberNotFound = errors.New("number_not_found")
	ErrAmbiguousStation      = errors.New("ambiguous")
)

// HTTPError is an upstream response with status >= 400.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http_error_%d", e.Status)
}

func (e *HTTPError) Kind() string { return e.Error() }

// TransportError wraps a network-level failure.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport_error: %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Kind() string { return "transport_error" }

// APIError is a non-success result code from the open-data API.
type APIError struct {
	Code    string
	Message string
	Auth    bool
}

func (e *APIError) Error() string {
	if e.Auth {
		return fmt.Sprintf("auth_error: %s %s", e.Code, e.Message)
	}
	return fmt.Sprintf("api_error: %s %s", e.Code, e.Message)
}

func (e *APIError) Kind() string {
	if e.Auth {
		return "auth_error"
	}
	return "api_error"
}

// UpdateFailedError is returned to the scheduler when a cycle aborts.
type UpdateFailedError struct {
	Mode string
	Err  error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("update failed (%s): %v", e.Mode, e.Err)
}

func (e *UpdateFailedError) Unwrap() error { return e.Err }

// ErrorKind maps an error to the short label used in diagnostics and metrics.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	var httpErr *HTTPError
	var transportErr *TransportError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Kind()
	case errors.As(err, &httpErr):
		return httpErr.Kind()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &transportErr):
		return transportErr.Kind()
	case errors.Is(err, ErrNonJSONResponse):
		return "non_json_response"
	case errors.Is(err, ErrLoginFailed):
		return "login_failed"
	case errors.Is(err, ErrCookieNotFound):
		return "cookie_not_found"
	case errors.Is(err, ErrLoginPage):
		return "login_page"
	case errors.Is(err, ErrStationNotFound):
		return ErrStationNotFound.Error()
	case errors.Is(err, ErrStationNumberNotFound):
		return ErrStationNumberNotFound.Error()
	case errors.Is(err, ErrAmbiguousStation):
		return ErrAmbiguousStation.Error()
	}
	return "error"
}
