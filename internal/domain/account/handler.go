package account

import (
	"context"
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Pryanik-M/LiveHeart/internal/platform/apierror"
	"github.com/Pryanik-M/LiveHeart/internal/platform/session"
)

// TOTPStatus reports whether a user has a confirmed authenticator.
type TOTPStatus interface {
	TOTPEnabled(ctx context.Context, userID uuid.UUID) (bool, error)
}

// PatientCounter counts the patients a user owns.
type PatientCounter interface {
	CountPatients(ctx context.Context, userID uuid.UUID) (int, error)
}

type Handler struct {
	svc      *Service
	sessions *session.Manager
	totp     TOTPStatus
	patients PatientCounter
}

func NewHandler(svc *Service, sessions *session.Manager, totp TOTPStatus, patients PatientCounter) *Handler {
	return &Handler{svc: svc, sessions: sessions, totp: totp, patients: patients}
}

// RegisterRoutes mounts the profile routes behind loginRequired and the
// dashboard behind verified.
func (h *Handler) RegisterRoutes(g *echo.Group, loginRequired, verified echo.MiddlewareFunc) {
	g.GET("/profile", h.Profile, loginRequired)
	g.POST("/profile/password", h.ChangePassword, loginRequired)
	g.GET("/dashboard", h.Dashboard, verified)
}

func (h *Handler) currentUser(c echo.Context) (*User, error) {
	u, err := h.svc.GetByString(c.Request().Context(), session.UserID(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierror.Unauthorized()
		}
		return nil, err
	}
	return u, nil
}

func (h *Handler) Profile(c echo.Context) error {
	u, err := h.currentUser(c)
	if err != nil {
		return err
	}
	enabled, err := h.totp.TOTPEnabled(c.Request().Context(), u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Profile{Username: u.Username, Email: u.Email, TOTPEnabled: enabled})
}

func (h *Handler) ChangePassword(c echo.Context) error {
	u, err := h.currentUser(c)
	if err != nil {
		return err
	}
	var in ChangePasswordInput
	if err := c.Bind(&in); err != nil {
		return apierror.New(http.StatusBadRequest, "invalid request body")
	}

	err = h.svc.ChangePassword(c.Request().Context(), u.ID, in)
	switch {
	case err == nil:
	case errors.Is(err, ErrWrongPassword):
		return apierror.Validation(validation.Errors{"old_password": err})
	case errors.Is(err, ErrPasswordMismatch):
		return apierror.Validation(validation.Errors{"confirm_password": err})
	default:
		return err
	}

	sess := session.FromContext(c)
	sess.Destroy()
	if err := h.sessions.Save(c, sess); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "password changed, sign in again",
		"next":    "login",
	})
}

func (h *Handler) Dashboard(c echo.Context) error {
	u, err := h.currentUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	enabled, err := h.totp.TOTPEnabled(ctx, u.ID)
	if err != nil {
		return err
	}
	count, err := h.patients.CountPatients(ctx, u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user":          u,
		"totp_enabled":  enabled,
		"patient_count": count,
	})
}
