package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Pryanik-M/LiveHeart/internal/config"
	"github.com/Pryanik-M/LiveHeart/internal/domain/account"
	"github.com/Pryanik-M/LiveHeart/internal/domain/examination"
	"github.com/Pryanik-M/LiveHeart/internal/domain/twofactor"
	"github.com/Pryanik-M/LiveHeart/internal/platform/mailer"
	"github.com/Pryanik-M/LiveHeart/internal/platform/session"
	"github.com/Pryanik-M/LiveHeart/internal/report"
	"github.com/Pryanik-M/LiveHeart/migrations"
)

// ---------------------------------------------------------------------------
// in-memory collaborators
// ---------------------------------------------------------------------------

type memUsers struct {
	users map[uuid.UUID]*account.User
}

func (m *memUsers) Create(_ context.Context, u *account.User) error {
	u.ID = uuid.New()
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*account.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, account.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*account.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, account.ErrNotFound
}

func (m *memUsers) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	m.users[id].PasswordHash = hash
	return nil
}

func (m *memUsers) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	m.users[id].LastLogin = &at
	return nil
}

func (m *memUsers) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	m.users[id].IsActive = active
	return nil
}

type noDevices struct{}

func (noDevices) GetByUser(context.Context, uuid.UUID) (*twofactor.Device, error) {
	return nil, twofactor.ErrDeviceNotFound
}

func (noDevices) GetOrCreate(_ context.Context, d *twofactor.Device) (*twofactor.Device, bool, error) {
	return d, true, nil
}

func (noDevices) Confirm(context.Context, uuid.UUID) error { return nil }
func (noDevices) Delete(context.Context, uuid.UUID) error  { return nil }

type emptyExams struct{}

func (emptyExams) CreatePatient(context.Context, *examination.Patient) error         { return nil }
func (emptyExams) CreateExamination(context.Context, *examination.Examination) error { return nil }
func (emptyExams) ListPatients(context.Context, uuid.UUID, int, int) ([]*examination.PatientSummary, int, error) {
	return nil, 0, nil
}
func (emptyExams) GetPatient(context.Context, uuid.UUID, uuid.UUID) (*examination.Patient, error) {
	return nil, examination.ErrNotFound
}
func (emptyExams) ListExaminations(context.Context, uuid.UUID) ([]examination.ExaminationSummary, error) {
	return nil, nil
}
func (emptyExams) GetExamination(context.Context, uuid.UUID, uuid.UUID) (*examination.Examination, error) {
	return nil, examination.ErrNotFound
}
func (emptyExams) DeletePatient(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, nil
}
func (emptyExams) CountPatients(context.Context, uuid.UUID) (int, error) { return 0, nil }

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

const testPassword = "Echo-Heart-2024"

type server struct {
	e        *echo.Echo
	sender   *mailer.MockSender
	accounts *account.Service
	cookie   *http.Cookie
}

func newTestServer(t *testing.T) *server {
	t.Helper()
	cfg := &config.Config{
		Env:                  "development",
		SessionBackend:       "memory",
		CORSOrigins:          []string{"http://localhost:3000"},
		RateLimitRPS:         100,
		RateLimitBurst:       100,
		LoginRateLimitPerMin: 100,
		TwoFactorCodeLength:  6,
	}
	logger := zerolog.Nop()
	sender := &mailer.MockSender{}
	mail := mailer.New(sender, mailer.NewTemplates())

	accounts := account.NewService(&memUsers{users: map[uuid.UUID]*account.User{}}, mail, logger)
	if _, err := accounts.CreateUser(context.Background(), account.NewUserInput{
		Username: "cardio", Email: "cardio@example.com", Password: testPassword,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	passthrough := func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	store := newSessionStore(cfg, nil)
	svc := services{
		sessions:    session.NewManager(store, session.Config{Key: []byte("test-key")}, logger),
		accounts:    accounts,
		twoFactor:   twofactor.NewService(accounts, noDevices{}, store, mail, twoFactorConfig(cfg), logger),
		examination: examination.NewService(emptyExams{}, passthrough, report.Default("Test Clinic", logger), logger),
	}
	return &server{e: newEcho(cfg, logger, okPinger{}, svc), sender: sender, accounts: accounts}
}

// do sends a request carrying the current session cookie and keeps any
// replacement cookie the server sets.
func (s *server) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			s.cookie = c
		}
	}
	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func (s *server) emailedCode(t *testing.T) string {
	t.Helper()
	call, ok := s.sender.Last()
	if !ok {
		t.Fatal("expected an email")
	}
	const prefix = "Your login code: "
	i := strings.Index(call.Body, prefix)
	if i < 0 {
		t.Fatalf("no code in %q", call.Body)
	}
	return call.Body[i+len(prefix) : i+len(prefix)+6]
}

// signIn runs the password and emailed code steps.
func (s *server) signIn(t *testing.T) {
	t.Helper()
	if rec, body := s.do(t, http.MethodPost, "/auth/login", `{"email":"cardio@example.com","password":"`+testPassword+`"}`); rec.Code != http.StatusOK {
		t.Fatalf("login: %d %v", rec.Code, body)
	}
	if rec, body := s.do(t, http.MethodPost, "/auth/verify/send", ""); rec.Code != http.StatusOK {
		t.Fatalf("send: %d %v", rec.Code, body)
	}
	if rec, body := s.do(t, http.MethodPost, "/auth/verify", `{"code":"`+s.emailedCode(t)+`"}`); rec.Code != http.StatusOK {
		t.Fatalf("verify: %d %v", rec.Code, body)
	}
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestRootCmd_Commands(t *testing.T) {
	root := rootCmd()
	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "status"},
		{"user", "create"},
		{"user", "set-password"},
		{"user", "deactivate"},
		{"session", "purge"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not registered", path)
		}
	}
}

func TestMigrationSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("SELECT 1;"), 0o600); err != nil {
		t.Fatal(err)
	}
	src := migrationSource(dir)
	if _, err := src.Open("001_init.sql"); err != nil {
		t.Errorf("expected on-disk migrations, got %v", err)
	}

	if got := migrationSource(filepath.Join(dir, "missing")); got != migrations.FS {
		t.Error("expected embedded migrations when the directory is missing")
	}
}

func TestTwoFactorConfig(t *testing.T) {
	tf := twoFactorConfig(&config.Config{TwoFactorCodeLength: 8, TwoFactorCooldown: 30 * time.Second})
	if tf.CodeLength != 8 || tf.Cooldown != 30*time.Second {
		t.Errorf("overrides not applied: %+v", tf)
	}
	if tf.CodeTTL != 5*time.Minute || tf.Issuer != "LiveHeart" || tf.MaxAttempts != 5 {
		t.Errorf("defaults lost: %+v", tf)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["version"] != version {
		t.Errorf("expected version %q, got %v", version, body["version"])
	}
}

func TestProtectedRoutes_RequireLogin(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/patients", "/auth/dashboard", "/auth/profile", "/auth/totp/setup"} {
		rec, body := s.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
		if body["next"] != twofactor.NextLogin {
			t.Errorf("%s: expected next=login, got %v", path, body["next"])
		}
	}
}

func TestLoginFlow_EmailCode(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/auth/login", `{"email":"Cardio@Example.com","password":"`+testPassword+`"}`)
	if rec.Code != http.StatusOK || body["next"] != twofactor.NextVerifyEmail {
		t.Fatalf("login: %d %v", rec.Code, body)
	}

	// Password accepted but the second step is still pending.
	rec, body = s.do(t, http.MethodGet, "/patients", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 before verification, got %d %v", rec.Code, body)
	}

	rec, body = s.do(t, http.MethodPost, "/auth/verify/send", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("send: %d %v", rec.Code, body)
	}

	rec, body = s.do(t, http.MethodPost, "/auth/verify", `{"code":"`+s.emailedCode(t)+`"}`)
	if rec.Code != http.StatusOK || body["next"] != twofactor.NextDashboard {
		t.Fatalf("verify: %d %v", rec.Code, body)
	}

	rec, body = s.do(t, http.MethodGet, "/patients", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("patients: %d %v", rec.Code, body)
	}

	rec, _ = s.do(t, http.MethodGet, "/auth/dashboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: %d", rec.Code)
	}

	rec, _ = s.do(t, http.MethodPost, "/auth/logout", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", rec.Code)
	}
	rec, _ = s.do(t, http.MethodGet, "/patients", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodPost, "/auth/login", `{"email":"cardio@example.com","password":"nope"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body["next"] != twofactor.NextLogin {
		t.Errorf("expected next=login, got %v", body["next"])
	}
}

func TestUnknownPaths_NotFound(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/nope", "/auth/nope", "/patients/1/unknown"} {
		rec, _ := s.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}

	s.signIn(t)
	rec, _ := s.do(t, http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("signed in: expected 404, got %d", rec.Code)
	}
}

func TestDeactivatedUser_LosesSession(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)
	if rec, _ := s.do(t, http.MethodGet, "/patients", ""); rec.Code != http.StatusOK {
		t.Fatalf("patients: %d", rec.Code)
	}

	if err := s.accounts.SetActive(context.Background(), "cardio@example.com", false); err != nil {
		t.Fatal(err)
	}
	rec, body := s.do(t, http.MethodGet, "/patients", "")
	if rec.Code != http.StatusUnauthorized || body["next"] != twofactor.NextLogin {
		t.Fatalf("expected 401 next=login, got %d %v", rec.Code, body)
	}

	// The session is gone, so reactivating does not bring it back.
	if err := s.accounts.SetActive(context.Background(), "cardio@example.com", true); err != nil {
		t.Fatal(err)
	}
	if rec, _ := s.do(t, http.MethodGet, "/patients", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after reactivation, got %d", rec.Code)
	}
}

func TestPasswordReset_EndsExistingSessions(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	if err := s.accounts.SetPassword(context.Background(), "cardio@example.com", "Another-Heart-2025"); err != nil {
		t.Fatal(err)
	}
	rec, _ := s.do(t, http.MethodGet, "/auth/dashboard", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after password reset, got %d", rec.Code)
	}
}
