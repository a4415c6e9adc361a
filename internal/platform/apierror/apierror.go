// Package apierror renders every handler error as a JSON body of the form
// {code, message, details, next}.
package apierror

import (
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/iancoleman/strcase"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const CodeValidationError = "validation_error"

// Error is an HTTP error carrying the fields clients use to drive the login
// flow. Next names the step the client should move to ("login", "verify").
type Error struct {
	Status   int               `json:"-"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Details  map[string]string `json:"details,omitempty"`
	Next     string            `json:"next,omitempty"`
	Cooldown int               `json:"cooldown,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// New builds an Error whose code is derived from the status text.
func New(status int, message string) *Error {
	return &Error{
		Status:  status,
		Code:    strcase.ToSnake(http.StatusText(status)),
		Message: message,
	}
}

// WithNext sets the step the client should go to.
func (e *Error) WithNext(next string) *Error {
	e.Next = next
	return e
}

// Unauthorized is the 401 returned when there is no usable session.
func Unauthorized() *Error {
	return New(http.StatusUnauthorized, "authentication required").WithNext("login")
}

// Validation wraps ozzo validation errors as a 400.
func Validation(errs validation.Errors) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeValidationError,
		Message: "validation error",
		Details: flatten("", errs),
	}
}

// flatten turns nested validation errors into dotted keys such as
// "aorta.diameter".
func flatten(prefix string, errs validation.Errors) map[string]string {
	out := make(map[string]string, len(errs))
	for key, err := range errs {
		if err == nil {
			continue
		}
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		var nested validation.Errors
		if errors.As(err, &nested) {
			for k, v := range flatten(name, nested) {
				out[k] = v
			}
			continue
		}
		out[name] = err.Error()
	}
	return out
}

// Handler returns the echo HTTPErrorHandler for the service. Unexpected
// errors are logged and reported as a generic 500.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		resp := From(err)
		if resp.Status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(resp.Status)
		} else {
			writeErr = c.JSON(resp.Status, resp)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

// From converts any error into the Error that will be rendered.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == "" {
			apiErr.Code = strcase.ToSnake(http.StatusText(apiErr.Status))
		}
		return apiErr
	}

	var ve validation.Errors
	if errors.As(err, &ve) {
		return Validation(ve)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprint(he.Message)
		if he.Internal != nil && he.Code >= http.StatusInternalServerError {
			msg = http.StatusText(he.Code)
		}
		return New(he.Code, msg)
	}

	return New(http.StatusInternalServerError, "internal server error")
}
