package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Pryanik-M/LiveHeart/internal/platform/apierror"
)

// RequestTimeout puts a deadline on the request context. The handler runs on
// the request goroutine and is never abandoned; handlers pass the context to
// the database so the work is cancelled. A handler that fails with the
// deadline error is reported as 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	if timeout <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout: timeout,
		ErrorHandler: func(err error, c echo.Context) error {
			if errors.Is(err, context.DeadlineExceeded) {
				return apierror.New(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit")
			}
			return err
		},
	})
}
