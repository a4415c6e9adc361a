package twofactor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoPendingLogin   = errors.New("no login in progress")
	ErrCodeNotRequested = errors.New("request a code first")
	ErrCodeExpired      = errors.New("code expired, request a new one")
	ErrTooManyAttempts  = errors.New("too many attempts, request a new one")
	ErrInvalidCode      = errors.New("invalid code")
	ErrCodeRequired     = errors.New("enter the code")
	ErrNotEnabled       = errors.New("authenticator is not enabled")
	ErrDeviceNotFound   = errors.New("totp device not found")
	ErrMailFailed       = errors.New("could not send the code, try again later")
)

// CooldownError is returned when a new email code is requested too soon.
type CooldownError struct {
	Remaining int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("wait %d seconds", e.Remaining)
}

// Device is a user's authenticator app registration.
type Device struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Secret    string    `json:"-"`
	Confirmed bool      `json:"confirmed"`
	CreatedAt time.Time `json:"created_at"`
}

// Next steps returned to the client after each stage of the login flow.
const (
	NextLogin       = "login"
	NextVerify      = "verify"
	NextVerifyEmail = "verify_email"
	NextVerifyTOTP  = "verify_totp"
	NextDashboard   = "dashboard"
)

// EmailStatus is the state of the emailed code for the pending login.
type EmailStatus struct {
	CodeSent bool `json:"code_sent"`
	Cooldown int  `json:"cooldown"`
}

// Setup is returned while an authenticator is being enrolled.
type Setup struct {
	Confirmed bool   `json:"confirmed"`
	URI       string `json:"provisioning_uri,omitempty"`
	QRCode    string `json:"qr_code,omitempty"`
}

// CodeInput is the body of every code submission.
type CodeInput struct {
	Code string `json:"code"`
}

// LoginInput is the body of POST /auth/login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
