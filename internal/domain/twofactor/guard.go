package twofactor

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Pryanik-M/LiveHeart/internal/domain/account"
	"github.com/Pryanik-M/LiveHeart/internal/platform/apierror"
	"github.com/Pryanik-M/LiveHeart/internal/platform/session"
)

// RequireLogin rejects requests without a logged-in session.
func RequireLogin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !session.FromContext(c).IsAuthenticated() {
				return apierror.Unauthorized()
			}
			return next(c)
		}
	}
}

// RequireTwoFactor rejects requests whose login did not pass the second step.
func RequireTwoFactor() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := session.FromContext(c)
			if !sess.IsAuthenticated() {
				return apierror.Unauthorized()
			}
			if !sess.Data.TwoFactorVerified {
				return apierror.New(http.StatusForbidden, "two-factor verification required").WithNext(NextVerify)
			}
			return next(c)
		}
	}
}

// CheckAccount re-reads the user behind a logged-in session on every request.
// A deleted or deactivated user, or a password changed since login, ends the
// session. It runs after the session middleware and before the guards.
func CheckAccount(accounts Accounts, sessions *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := session.FromContext(c)
			if !sess.IsAuthenticated() {
				return next(c)
			}
			u, err := accounts.GetByString(c.Request().Context(), sess.Data.UserID)
			if err != nil && !errors.Is(err, account.ErrNotFound) {
				return err
			}
			if err == nil && u.IsActive && sess.Data.AuthHash == u.SessionAuthHash() {
				return next(c)
			}
			sess.Destroy()
			if err := sessions.Save(c, sess); err != nil {
				return err
			}
			return apierror.Unauthorized()
		}
	}
}
