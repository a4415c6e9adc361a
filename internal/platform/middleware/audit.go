package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AuditEntry describes one access to patient data.
type AuditEntry struct {
	UserID       string
	ResourceType string
	ResourceID   string
	Action       string // read, create, delete, export
	Method       string
	Path         string
	IPAddress    string
	RequestID    string
	StatusCode   int
}

// UserFunc resolves the authenticated user for a request, or "".
type UserFunc func(c echo.Context) string

var auditedPrefixes = []string{"/patients", "/examinations"}

// Audit logs a phi_audit event for every request touching patients or
// examinations. The user is resolved after the handler ran so logins that
// happen during the request are not attributed.
func Audit(logger zerolog.Logger, user UserFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditablePath(req.URL.Path) {
				return next(c)
			}

			err := next(c)

			entry := buildAuditEntry(c)
			if user != nil {
				entry.UserID = user(c)
			}
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					entry.StatusCode = he.Code
				} else {
					entry.StatusCode = http.StatusInternalServerError
				}
			}

			evt := logger.Info()
			if entry.StatusCode == http.StatusForbidden || entry.StatusCode == http.StatusUnauthorized {
				evt = logger.Warn()
			}
			evt.
				Str("type", "phi_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("resource_type", entry.ResourceType).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func buildAuditEntry(c echo.Context) AuditEntry {
	req := c.Request()
	resourceType, resourceID, sub := splitResourcePath(req.URL.Path)
	entry := AuditEntry{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Method:       req.Method,
		Path:         req.URL.Path,
		IPAddress:    c.RealIP(),
		RequestID:    requestID(c),
		StatusCode:   c.Response().Status,
	}
	switch sub {
	case "export":
		entry.Action = "export"
	case "delete":
		entry.Action = "delete"
	default:
		entry.Action = httpMethodToAction(req.Method)
	}
	if entry.Action == "create" && req.URL.Query().Get("export_type") != "" {
		entry.Action = "create+export"
	}
	return entry
}

func isAuditablePath(path string) bool {
	for _, p := range auditedPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// splitResourcePath turns /patients/<uuid>/delete into ("patients", "<uuid>", "delete").
func splitResourcePath(path string) (resource, id, sub string) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	resource = segments[0]
	if len(segments) > 1 {
		if _, err := uuid.Parse(segments[1]); err == nil {
			id = segments[1]
		}
	}
	if len(segments) > 2 {
		sub = segments[2]
	}
	return resource, id, sub
}
