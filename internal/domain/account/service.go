package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Pryanik-M/LiveHeart/internal/platform/mailer"
)

type Service struct {
	users  UserRepository
	mail   *mailer.Mailer
	logger zerolog.Logger
	now    func() time.Time
}

// NewService builds the account service. mail may be nil, in which case no
// password-change notice is sent.
func NewService(users UserRepository, mail *mailer.Mailer, logger zerolog.Logger) *Service {
	return &Service{
		users:  users,
		mail:   mail,
		logger: logger.With().Str("component", "account").Logger(),
		now:    time.Now,
	}
}

// Authenticate checks an email and password. Unknown email, wrong password
// and inactive accounts all return ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			CheckPassword(string(dummyHash), password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// GetByString parses id before looking the user up. Session values are
// stored as strings.
func (s *Service) GetByString(ctx context.Context, id string) (*User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.users.GetByID(ctx, uid)
}

// RecordLogin stamps last_login after a second factor succeeded.
func (s *Service) RecordLogin(ctx context.Context, id uuid.UUID) error {
	return s.users.UpdateLastLogin(ctx, id, s.now().UTC())
}

// CreateUser validates the input and stores a new active user.
func (s *Service) CreateUser(ctx context.Context, in NewUserInput) (*User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	u := &User{Username: in.Username, Email: in.Email, IsActive: true, DateJoined: s.now().UTC()}
	if err := ValidatePassword(in.Password, u); err != nil {
		return nil, validation.Errors{"password": err}
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("username", u.Username).Msg("user created")
	return u, nil
}

// SetPassword replaces a password without knowing the old one. Used by the
// command line.
func (s *Service) SetPassword(ctx context.Context, email, password string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := ValidatePassword(password, u); err != nil {
		return validation.Errors{"password": err}
	}
	return s.storePassword(ctx, u, password)
}

// SetActive enables or disables login for the user with email.
func (s *Service) SetActive(ctx context.Context, email string, active bool) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return s.users.SetActive(ctx, u.ID, active)
}

// ChangePassword verifies the old password, validates the new one and stores
// it. Callers end the session afterwards.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, in ChangePasswordInput) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !CheckPassword(u.PasswordHash, in.OldPassword) {
		return ErrWrongPassword
	}
	if in.NewPassword != in.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if err := ValidatePassword(in.NewPassword, u); err != nil {
		return validation.Errors{"new_password": err}
	}
	if err := s.storePassword(ctx, u, in.NewPassword); err != nil {
		return err
	}

	if s.mail != nil {
		err := s.mail.Send(ctx, mailer.TemplatePasswordChanged, u.Email, map[string]string{"username": u.Username})
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("password change notice not sent")
		}
	}
	return nil
}

func (s *Service) storePassword(ctx context.Context, u *User, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	u.PasswordHash = hash
	s.logger.Info().Str("user_id", u.ID.String()).Msg("password changed")
	return nil
}
