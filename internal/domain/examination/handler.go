package examination

import (
	"errors"
	"mime"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Pryanik-M/LiveHeart/internal/platform/apierror"
	"github.com/Pryanik-M/LiveHeart/internal/platform/session"
	"github.com/Pryanik-M/LiveHeart/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the routes with m applied to each of them.
func (h *Handler) RegisterRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.POST("/patients", h.CreatePatient, m...)
	g.GET("/patients", h.ListPatients, m...)
	g.GET("/patients/:id", h.GetPatient, m...)
	g.DELETE("/patients/:id", h.DeletePatient, m...)
	g.POST("/patients/:id/delete", h.DeletePatient, m...)
	g.GET("/examinations/:id", h.GetExamination, m...)
	g.GET("/examinations/:id/export", h.ExportExamination, m...)
}

func currentUser(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(session.UserID(c))
	if err != nil {
		return uuid.Nil, apierror.Unauthorized()
	}
	return id, nil
}

func notFound() error {
	return apierror.New(http.StatusNotFound, "not found")
}

func mapError(err error) error {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		return apierror.Validation(verrs)
	case errors.Is(err, ErrNotFound):
		return notFound()
	case errors.Is(err, ErrUnknownFormat):
		return apierror.New(http.StatusBadRequest, "unknown export format")
	}
	return err
}

func sendDocument(c echo.Context, doc *Document) error {
	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	return c.Blob(http.StatusOK, doc.ContentType, doc.Body)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	in := NewCreateInput()
	if err := c.Bind(&in); err != nil {
		return apierror.New(http.StatusBadRequest, "invalid request body")
	}
	if in.ExportType == "" {
		in.ExportType = c.QueryParam("export_type")
	}

	ctx := c.Request().Context()
	e, err := h.svc.Create(ctx, userID, in)
	if err != nil {
		return mapError(err)
	}
	if in.ExportType != "" {
		doc, err := h.svc.Render(ctx, e, in.ExportType)
		if err != nil {
			return mapError(err)
		}
		return sendDocument(c, doc)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"examination": e,
		"metrics":     ComputeMetrics(e),
	})
}

func (h *Handler) ListPatients(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), userID, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (h *Handler) GetPatient(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return notFound()
	}
	p, err := h.svc.GetPatient(c.Request().Context(), userID, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	// Malformed and foreign ids are ignored like unknown ones.
	if id, err := uuid.Parse(c.Param("id")); err == nil {
		if err := h.svc.DeletePatient(c.Request().Context(), userID, id); err != nil {
			return err
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetExamination(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return notFound()
	}
	e, err := h.svc.GetExamination(c.Request().Context(), userID, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"examination": e,
		"metrics":     ComputeMetrics(e),
	})
}

func (h *Handler) ExportExamination(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return notFound()
	}
	doc, err := h.svc.Export(c.Request().Context(), userID, id, c.QueryParam("format"))
	if err != nil {
		return mapError(err)
	}
	return sendDocument(c, doc)
}
