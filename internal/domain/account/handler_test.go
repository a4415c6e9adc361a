package account

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Pryanik-M/LiveHeart/internal/platform/apierror"
	"github.com/Pryanik-M/LiveHeart/internal/platform/session"
)

type stubTOTP struct{ enabled bool }

func (s stubTOTP) TOTPEnabled(context.Context, uuid.UUID) (bool, error) { return s.enabled, nil }

type stubPatients struct{ count int }

func (s stubPatients) CountPatients(context.Context, uuid.UUID) (int, error) { return s.count, nil }

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *User, session.Store) {
	t.Helper()
	svc, _, _ := newTestService()
	u := seedUser(t, svc)
	store := session.NewMemoryStore()
	mgr := session.NewManager(store, session.Config{Key: []byte(strings.Repeat("s", 32)), TTL: time.Hour}, zerolog.Nop())
	return NewHandler(svc, mgr, stubTOTP{enabled: true}, stubPatients{count: 3}), echo.New(), u, store
}

func loggedInContext(e *echo.Echo, req *http.Request, userID uuid.UUID) (echo.Context, *httptest.ResponseRecorder, *session.Session) {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	sess := &session.Session{ID: "sid-1", Data: session.Data{UserID: userID.String(), TwoFactorVerified: true}}
	session.Attach(c, sess)
	return c, rec, sess
}

func TestHandler_Profile(t *testing.T) {
	h, e, u, _ := newTestHandler(t)
	c, rec, _ := loggedInContext(e, httptest.NewRequest(http.MethodGet, "/auth/profile", nil), u.ID)

	if err := h.Profile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var p Profile
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Username != "drsmith" || !p.TOTPEnabled {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestHandler_Profile_UnknownUser(t *testing.T) {
	h, e, _, _ := newTestHandler(t)
	c, _, _ := loggedInContext(e, httptest.NewRequest(http.MethodGet, "/auth/profile", nil), uuid.New())

	err := h.Profile(c)
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Next != "login" {
		t.Errorf("expected 401 next=login, got %v", err)
	}
}

func TestHandler_ChangePassword(t *testing.T) {
	h, e, u, store := newTestHandler(t)
	store.Save(context.Background(), "sid-1", session.Data{UserID: u.ID.String()}, time.Now().Add(time.Hour))

	body := `{"old_password":"` + testPassword + `","new_password":"Valve-Sound-77","confirm_password":"Valve-Sound-77"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/profile/password", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c, rec, sess := loggedInContext(e, req, u.ID)

	if err := h.ChangePassword(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !sess.Destroyed() {
		t.Error("expected session to be destroyed")
	}
	if _, err := store.Load(context.Background(), "sid-1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected session record deleted, got %v", err)
	}

	var out map[string]string
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["next"] != "login" {
		t.Errorf("expected next login, got %v", out)
	}
}

func TestHandler_ChangePassword_Errors(t *testing.T) {
	h, e, u, _ := newTestHandler(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"wrong old", `{"old_password":"nope","new_password":"Valve-Sound-77","confirm_password":"Valve-Sound-77"}`, "old_password"},
		{"mismatch", `{"old_password":"` + testPassword + `","new_password":"Valve-Sound-77","confirm_password":"x"}`, "confirm_password"},
		{"weak", `{"old_password":"` + testPassword + `","new_password":"123","confirm_password":"123"}`, "new_password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/profile/password", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			c, _, sess := loggedInContext(e, req, u.ID)

			resp := apierror.From(h.ChangePassword(c))
			if resp.Status != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.Status)
			}
			if _, ok := resp.Details[tt.field]; !ok {
				t.Errorf("expected detail for %s, got %v", tt.field, resp.Details)
			}
			if sess.Destroyed() {
				t.Error("session must survive a failed change")
			}
		})
	}
}

func TestHandler_Dashboard(t *testing.T) {
	h, e, u, _ := newTestHandler(t)
	c, rec, _ := loggedInContext(e, httptest.NewRequest(http.MethodGet, "/auth/dashboard", nil), u.ID)

	if err := h.Dashboard(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["patient_count"] != float64(3) {
		t.Errorf("expected patient_count 3, got %v", out["patient_count"])
	}
	user := out["user"].(map[string]interface{})
	if user["username"] != "drsmith" {
		t.Errorf("unexpected user %v", user)
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Error("password hash must not be serialized")
	}
}
