package account

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Pryanik-M/LiveHeart/internal/platform/mailer"
)

// -- Mock Repository --

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicate
		}
	}
	u.ID = uuid.New()
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockUserRepo) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLogin = &at
	return nil
}

func (m *mockUserRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	return nil
}

const testPassword = "Echo-Heart-2024"

func newTestService() (*Service, *mockUserRepo, *mailer.MockSender) {
	repo := newMockUserRepo()
	mock := &mailer.MockSender{}
	return NewService(repo, mailer.New(mock, nil), zerolog.Nop()), repo, mock
}

func seedUser(t *testing.T, svc *Service) *User {
	t.Helper()
	u, err := svc.CreateUser(context.Background(), NewUserInput{
		Username: "drsmith",
		Email:    "Dr.Smith@Clinic.example",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestCreateUser(t *testing.T) {
	svc, _, _ := newTestService()
	u := seedUser(t, svc)

	if u.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if !u.IsActive {
		t.Error("new users must be active")
	}
	if u.PasswordHash == testPassword || !CheckPassword(u.PasswordHash, testPassword) {
		t.Error("expected a bcrypt hash of the password")
	}
}

func TestCreateUser_Validation(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateUser(context.Background(), NewUserInput{Username: "bad name", Email: "nope", Password: testPassword})
	var ve validation.Errors
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation.Errors, got %v", err)
	}
	if ve["username"] == nil || ve["email"] == nil {
		t.Errorf("expected username and email errors, got %v", ve)
	}

	_, err = svc.CreateUser(context.Background(), NewUserInput{Username: "doc", Email: "doc@example.com", Password: "12345"})
	if !errors.As(err, &ve) || ve["password"] == nil {
		t.Errorf("expected password error, got %v", err)
	}
}

func TestCreateUser_Duplicate(t *testing.T) {
	svc, _, _ := newTestService()
	seedUser(t, svc)
	_, err := svc.CreateUser(context.Background(), NewUserInput{
		Username: "other", Email: "dr.smith@clinic.example", Password: testPassword,
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, repo, _ := newTestService()
	u := seedUser(t, svc)
	ctx := context.Background()

	got, err := svc.Authenticate(ctx, "  dr.smith@clinic.example ", testPassword)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("expected user %s, got %s", u.ID, got.ID)
	}

	cases := map[string][2]string{
		"unknown email":  {"nobody@clinic.example", testPassword},
		"wrong password": {"dr.smith@clinic.example", "wrong-password"},
		"empty":          {"", ""},
	}
	for name, tc := range cases {
		if _, err := svc.Authenticate(ctx, tc[0], tc[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s: expected ErrInvalidCredentials, got %v", name, err)
		}
	}

	repo.users[u.ID].IsActive = false
	if _, err := svc.Authenticate(ctx, "dr.smith@clinic.example", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("inactive: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRecordLogin(t *testing.T) {
	svc, repo, _ := newTestService()
	u := seedUser(t, svc)
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if err := svc.RecordLogin(context.Background(), u.ID); err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}
	if ll := repo.users[u.ID].LastLogin; ll == nil || !ll.Equal(fixed) {
		t.Errorf("expected last login %v, got %v", fixed, ll)
	}
}

func TestChangePassword(t *testing.T) {
	svc, repo, mock := newTestService()
	u := seedUser(t, svc)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: "wrong", NewPassword: "x", ConfirmPassword: "x"})
	if !errors.Is(err, ErrWrongPassword) {
		t.Errorf("expected ErrWrongPassword, got %v", err)
	}

	err = svc.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: testPassword, NewPassword: "Valve-Sound-77", ConfirmPassword: "Valve-Sound-78"})
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("expected ErrPasswordMismatch, got %v", err)
	}

	err = svc.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: testPassword, NewPassword: "1234", ConfirmPassword: "1234"})
	var ve validation.Errors
	if !errors.As(err, &ve) || ve["new_password"] == nil {
		t.Fatalf("expected new_password validation error, got %v", err)
	}
	msg := ve["new_password"].Error()
	if !strings.Contains(msg, "too short") || !strings.Contains(msg, "entirely numeric") {
		t.Errorf("expected every failing rule to be reported, got %q", msg)
	}

	err = svc.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: testPassword, NewPassword: "Valve-Sound-77", ConfirmPassword: "Valve-Sound-77"})
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if !CheckPassword(repo.users[u.ID].PasswordHash, "Valve-Sound-77") {
		t.Error("expected new password to be stored")
	}
	call, ok := mock.Last()
	if !ok || call.Subject != "Your password was changed" {
		t.Errorf("expected password change notice, got %+v", call)
	}
}

func TestChangePassword_MailFailureIgnored(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewService(repo, mailer.New(&mailer.MockSender{ShouldFail: true, FailError: "smtp down"}, nil), zerolog.Nop())
	u := seedUser(t, svc)

	err := svc.ChangePassword(context.Background(), u.ID, ChangePasswordInput{
		OldPassword: testPassword, NewPassword: "Valve-Sound-77", ConfirmPassword: "Valve-Sound-77",
	})
	if err != nil {
		t.Errorf("mail failure must not fail the change, got %v", err)
	}
}

func TestSetPasswordAndActive(t *testing.T) {
	svc, repo, _ := newTestService()
	u := seedUser(t, svc)
	ctx := context.Background()

	if err := svc.SetPassword(ctx, "dr.smith@clinic.example", "Mitral-Flow-12"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if !CheckPassword(repo.users[u.ID].PasswordHash, "Mitral-Flow-12") {
		t.Error("expected password to change")
	}
	if err := svc.SetPassword(ctx, "nobody@x.y", "Mitral-Flow-12"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := svc.SetActive(ctx, "dr.smith@clinic.example", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if repo.users[u.ID].IsActive {
		t.Error("expected user to be deactivated")
	}
}

func TestGetByString(t *testing.T) {
	svc, _, _ := newTestService()
	u := seedUser(t, svc)

	got, err := svc.GetByString(context.Background(), u.ID.String())
	if err != nil || got.ID != u.ID {
		t.Errorf("expected user, got %v %v", got, err)
	}
	if _, err := svc.GetByString(context.Background(), "garbage"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
