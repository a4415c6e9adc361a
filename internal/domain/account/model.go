package account

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWrongPassword      = errors.New("the old password is incorrect")
	ErrPasswordMismatch   = errors.New("the passwords do not match")
	ErrDuplicate          = errors.New("a user with this username or email already exists")
)

// User is a physician account. Accounts are created from the command line.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	DateJoined   time.Time  `json:"date_joined"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// EmailLocalPart returns the part of the email before the @.
func (u *User) EmailLocalPart() string {
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// SessionAuthHash fingerprints the password hash. Sessions store it at login
// and stop matching once the password changes.
func (u *User) SessionAuthHash() string {
	mac := hmac.New(sha256.New, []byte("liveheart.account.session"))
	mac.Write([]byte(u.PasswordHash))
	return hex.EncodeToString(mac.Sum(nil))
}

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// NewUserInput is the data needed to create an account.
type NewUserInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in NewUserInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username,
			validation.Required,
			validation.Length(1, 150),
			validation.Match(usernamePattern).Error("may contain only letters, digits and @/./+/-/_"),
		),
		validation.Field(&in.Email, validation.Required, validation.Length(1, 254), is.Email),
		validation.Field(&in.Password, validation.Required),
	)
}

// ChangePasswordInput is the body of POST /auth/profile/password.
type ChangePasswordInput struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Profile is what GET /auth/profile returns.
type Profile struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	TOTPEnabled bool   `json:"totp_enabled"`
}
