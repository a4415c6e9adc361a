package twofactor

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Pryanik-M/LiveHeart/internal/domain/account"
	"github.com/Pryanik-M/LiveHeart/internal/platform/apierror"
	"github.com/Pryanik-M/LiveHeart/internal/platform/session"
)

type Handler struct {
	svc      *Service
	sessions *session.Manager
}

func NewHandler(svc *Service, sessions *session.Manager) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

// RegisterRoutes mounts the login flow and TOTP enrollment on auth. Guards are
// attached per route so unknown paths under the prefix still answer 404.
// limited wraps the routes that accept passwords or codes.
func (h *Handler) RegisterRoutes(auth *echo.Group, loginRequired, limited echo.MiddlewareFunc) {
	auth.POST("/login", h.Login, limited)
	auth.GET("/verify", h.VerifyStatus)
	auth.POST("/verify/send", h.SendCode, limited)
	auth.POST("/verify", h.VerifyCode, limited)
	auth.POST("/verify-totp", h.VerifyTOTP, limited)
	auth.POST("/logout", h.Logout)

	auth.GET("/totp/setup", h.SetupTOTP, loginRequired)
	auth.POST("/totp/setup", h.ConfirmTOTP, loginRequired)
	auth.POST("/totp/disable", h.DisableTOTP, loginRequired)
}

// mapError turns service errors into API errors.
func mapError(err error) error {
	var cd *CooldownError
	switch {
	case errors.As(err, &cd):
		e := apierror.New(http.StatusTooManyRequests, cd.Error())
		e.Cooldown = cd.Remaining
		return e
	case errors.Is(err, account.ErrInvalidCredentials):
		return apierror.New(http.StatusUnauthorized, "invalid credentials").WithNext(NextLogin)
	case errors.Is(err, ErrNoPendingLogin):
		return apierror.New(http.StatusUnauthorized, "sign in first").WithNext(NextLogin)
	case errors.Is(err, ErrMailFailed):
		return apierror.New(http.StatusBadGateway, ErrMailFailed.Error())
	case errors.Is(err, ErrCodeNotRequested),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrTooManyAttempts),
		errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrCodeRequired),
		errors.Is(err, ErrNotEnabled):
		return apierror.New(http.StatusBadRequest, err.Error())
	}
	return err
}

// save persists sess and then reports err, so counters and rotations made
// before a failure are kept.
func (h *Handler) save(c echo.Context, sess *session.Session, err error) error {
	if serr := h.sessions.Save(c, sess); serr != nil {
		return serr
	}
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (h *Handler) Login(c echo.Context) error {
	var in LoginInput
	if err := c.Bind(&in); err != nil {
		return apierror.New(http.StatusBadRequest, "invalid request body")
	}
	sess := session.FromContext(c)
	next, err := h.svc.Login(c.Request().Context(), sess, in.Email, in.Password)
	if err := h.save(c, sess, err); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"next": next})
}

func (h *Handler) VerifyStatus(c echo.Context) error {
	st, err := h.svc.EmailStatus(session.FromContext(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) SendCode(c echo.Context) error {
	sess := session.FromContext(c)
	st, err := h.svc.SendCode(c.Request().Context(), sess)
	if err := h.save(c, sess, err); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) VerifyCode(c echo.Context) error {
	var in CodeInput
	if err := c.Bind(&in); err != nil {
		return apierror.New(http.StatusBadRequest, "invalid request body")
	}
	sess := session.FromContext(c)
	err := h.svc.VerifyCode(c.Request().Context(), sess, in.Code)
	if err := h.save(c, sess, err); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"next": NextDashboard})
}

func (h *Handler) VerifyTOTP(c echo.Context) error {
	var in CodeInput
	if err := c.Bind(&in); err != nil {
		return apierror.New(http.StatusBadRequest, "invalid request body")
	}
	sess := session.FromContext(c)
	err := h.svc.VerifyTOTP(c.Request().Context(), sess, in.Code)
	if err := h.save(c, sess, err); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"next": NextDashboard})
}

func (h *Handler) Logout(c echo.Context) error {
	sess := session.FromContext(c)
	sess.Destroy()
	if err := h.sessions.Save(c, sess); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func currentUserID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(session.UserID(c))
	if err != nil {
		return uuid.Nil, apierror.Unauthorized()
	}
	return id, nil
}

func (h *Handler) SetupTOTP(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}
	setup, err := h.svc.SetupTOTP(c.Request().Context(), uid)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return apierror.Unauthorized()
		}
		return err
	}
	return c.JSON(http.StatusOK, setup)
}

func (h *Handler) ConfirmTOTP(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}
	var in CodeInput
	if err := c.Bind(&in); err != nil {
		return apierror.New(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	err = h.svc.ConfirmTOTP(ctx, uid, in.Code)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]string{"message": "authenticator enabled", "next": "profile"})
	case errors.Is(err, ErrDeviceNotFound):
		return apierror.New(http.StatusBadRequest, "start the setup first")
	case errors.Is(err, ErrInvalidCode):
		// Resend the enrollment data so the client can show the QR again.
		setup, serr := h.svc.SetupTOTP(ctx, uid)
		if serr != nil {
			return serr
		}
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    "bad_request",
			"message": ErrInvalidCode.Error(),
			"setup":   setup,
		})
	}
	return err
}

func (h *Handler) DisableTOTP(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}
	var in CodeInput
	if err := c.Bind(&in); err != nil {
		return apierror.New(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.DisableTOTP(c.Request().Context(), uid, in.Code); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "authenticator disabled", "next": "profile"})
}
