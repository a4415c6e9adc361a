package twofactor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Pryanik-M/LiveHeart/internal/domain/account"
	"github.com/Pryanik-M/LiveHeart/internal/platform/mailer"
	"github.com/Pryanik-M/LiveHeart/internal/platform/session"
)

// Accounts is the part of the account service the login flow needs.
type Accounts interface {
	Authenticate(ctx context.Context, email, password string) (*account.User, error)
	GetByString(ctx context.Context, id string) (*account.User, error)
	Get(ctx context.Context, id uuid.UUID) (*account.User, error)
	RecordLogin(ctx context.Context, id uuid.UUID) error
}

type Config struct {
	CodeLength  int
	CodeTTL     time.Duration
	Cooldown    time.Duration
	MaxAttempts int
	Issuer      string
}

func DefaultConfig() Config {
	return Config{
		CodeLength:  6,
		CodeTTL:     5 * time.Minute,
		Cooldown:    time.Minute,
		MaxAttempts: 5,
		Issuer:      "LiveHeart",
	}
}

// AttemptCounter hands out a fresh count per call for a key, even to
// concurrent callers. session.Store implements it.
type AttemptCounter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int, error)
}

// Service runs the second login step. Methods that take a *session.Session
// mutate it; the caller saves it.
type Service struct {
	accounts Accounts
	devices  DeviceRepository
	attempts AttemptCounter
	mail     *mailer.Mailer
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(accounts Accounts, devices DeviceRepository, attempts AttemptCounter, mail *mailer.Mailer, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		accounts: accounts,
		devices:  devices,
		attempts: attempts,
		mail:     mail,
		cfg:      cfg,
		logger:   logger.With().Str("component", "twofactor").Logger(),
		now:      time.Now,
	}
}

// Login checks the password and starts the second step. The session is
// flushed first so nothing from an earlier login survives. The returned
// value is the step the client goes to next.
func (s *Service) Login(ctx context.Context, sess *session.Session, email, password string) (string, error) {
	if err := sess.Flush(); err != nil {
		return "", err
	}
	u, err := s.accounts.Authenticate(ctx, email, password)
	if err != nil {
		return "", err
	}

	enabled, err := s.TOTPEnabled(ctx, u.ID)
	if err != nil {
		return "", err
	}
	if enabled {
		sess.Data.PreTOTPUserID = u.ID.String()
		s.logger.Info().Str("user_id", u.ID.String()).Msg("password accepted, awaiting totp")
		return NextVerifyTOTP, nil
	}
	sess.Data.PreTwoFactorUserID = u.ID.String()
	sess.Data.TwoFactorVerified = false
	s.logger.Info().Str("user_id", u.ID.String()).Msg("password accepted, awaiting email code")
	return NextVerifyEmail, nil
}

// EmailStatus reports whether a code was sent and the resend cooldown left.
func (s *Service) EmailStatus(sess *session.Session) (EmailStatus, error) {
	if sess.Data.PreTwoFactorUserID == "" {
		return EmailStatus{}, ErrNoPendingLogin
	}
	return EmailStatus{
		CodeSent: sess.Data.CodeHash != "",
		Cooldown: s.cooldownLeft(sess),
	}, nil
}

func (s *Service) cooldownLeft(sess *session.Session) int {
	if sess.Data.CodeCreatedAt == 0 {
		return 0
	}
	left := s.cfg.Cooldown - sess.CodeAge(s.now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

func (s *Service) pendingUser(ctx context.Context, id string) (*account.User, error) {
	if id == "" {
		return nil, ErrNoPendingLogin
	}
	u, err := s.accounts.GetByString(ctx, id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrNoPendingLogin
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrNoPendingLogin
	}
	return u, nil
}

// SendCode emails a fresh code to the pending user. Nothing in the session
// changes when delivery fails.
func (s *Service) SendCode(ctx context.Context, sess *session.Session) (EmailStatus, error) {
	u, err := s.pendingUser(ctx, sess.Data.PreTwoFactorUserID)
	if err != nil {
		return EmailStatus{}, err
	}
	if left := s.cooldownLeft(sess); left > 0 {
		return EmailStatus{CodeSent: sess.Data.CodeHash != "", Cooldown: left}, &CooldownError{Remaining: left}
	}

	code, err := GenerateCode(s.cfg.CodeLength)
	if err != nil {
		return EmailStatus{}, err
	}
	err = s.mail.Send(ctx, mailer.TemplateLoginCode, u.Email, map[string]string{
		"code":        code,
		"ttl_minutes": strconv.Itoa(int(s.cfg.CodeTTL / time.Minute)),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", u.ID.String()).Msg("login code delivery failed")
		return EmailStatus{}, fmt.Errorf("%w: %v", ErrMailFailed, err)
	}

	sess.Data.CodeHash = HashCode(code)
	sess.Data.CodeCreatedAt = s.now().Unix()
	sess.Data.CodeAttempts = 0
	s.logger.Info().Str("user_id", u.ID.String()).Msg("login code sent")
	return EmailStatus{CodeSent: true, Cooldown: s.cooldownLeft(sess)}, nil
}

// VerifyCode checks an emailed code. Each guess takes an attempt from a shared
// counter before it is compared, so parallel requests on one session can not
// test more than MaxAttempts codes. The count is mirrored in the session,
// which the caller must save on error too.
func (s *Service) VerifyCode(ctx context.Context, sess *session.Session, code string) error {
	u, err := s.pendingUser(ctx, sess.Data.PreTwoFactorUserID)
	if err != nil {
		return err
	}
	d := &sess.Data
	if d.CodeHash == "" || d.CodeCreatedAt == 0 {
		return ErrCodeNotRequested
	}
	if sess.CodeAge(s.now()) > s.cfg.CodeTTL {
		d.ClearCode()
		return ErrCodeExpired
	}
	if d.CodeAttempts >= s.cfg.MaxAttempts {
		d.ClearCode()
		return ErrTooManyAttempts
	}
	n, err := s.attempts.Incr(ctx, attemptKey(d), s.cfg.CodeTTL)
	if err != nil {
		return err
	}
	if n > s.cfg.MaxAttempts {
		d.ClearCode()
		return ErrTooManyAttempts
	}
	if !codeMatches(d.CodeHash, strings.TrimSpace(code)) {
		d.CodeAttempts = n
		s.logger.Warn().Str("user_id", u.ID.String()).Int("attempts", n).Msg("invalid login code")
		return ErrInvalidCode
	}

	return s.complete(ctx, sess, u)
}

// attemptKey names the counter of one issued code.
func attemptKey(d *session.Data) string {
	return "2fa:" + d.PreTwoFactorUserID + ":" + strconv.FormatInt(d.CodeCreatedAt, 10) + ":" + d.CodeHash
}

// VerifyTOTP checks an authenticator code for the pending user.
func (s *Service) VerifyTOTP(ctx context.Context, sess *session.Session, code string) error {
	u, err := s.pendingUser(ctx, sess.Data.PreTOTPUserID)
	if err != nil {
		return err
	}
	dev, err := s.devices.GetByUser(ctx, u.ID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return ErrNoPendingLogin
		}
		return err
	}
	if !dev.Confirmed {
		return ErrNoPendingLogin
	}
	if !VerifyTOTP(dev.Secret, strings.TrimSpace(code), s.now()) {
		s.logger.Warn().Str("user_id", u.ID.String()).Msg("invalid totp code")
		return ErrInvalidCode
	}
	return s.complete(ctx, sess, u)
}

// complete logs the user in under a new session id.
func (s *Service) complete(ctx context.Context, sess *session.Session, u *account.User) error {
	if err := sess.Cycle(); err != nil {
		return err
	}
	sess.Data = session.Data{UserID: u.ID.String(), AuthHash: u.SessionAuthHash(), TwoFactorVerified: true}
	if err := s.accounts.RecordLogin(ctx, u.ID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("record last login failed")
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("login completed")
	return nil
}

// TOTPEnabled reports whether the user has a confirmed authenticator.
func (s *Service) TOTPEnabled(ctx context.Context, userID uuid.UUID) (bool, error) {
	dev, err := s.devices.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return false, nil
		}
		return false, err
	}
	return dev.Confirmed, nil
}

// SetupTOTP returns the enrollment data, creating an unconfirmed device on
// first use. A confirmed device yields Setup{Confirmed: true} only.
func (s *Service) SetupTOTP(ctx context.Context, userID uuid.UUID) (*Setup, error) {
	u, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	secret, err := NewSecret(s.cfg.Issuer, u.Email)
	if err != nil {
		return nil, err
	}
	dev, created, err := s.devices.GetOrCreate(ctx, &Device{UserID: userID, Secret: secret})
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info().Str("user_id", userID.String()).Msg("totp enrollment started")
	}
	if dev.Confirmed {
		return &Setup{Confirmed: true}, nil
	}

	uri := ProvisioningURI(s.cfg.Issuer, u.Email, dev.Secret)
	qr, err := QRCode(uri)
	if err != nil {
		return nil, err
	}
	return &Setup{URI: uri, QRCode: qr}, nil
}

// ConfirmTOTP confirms the pending device when code is valid.
func (s *Service) ConfirmTOTP(ctx context.Context, userID uuid.UUID, code string) error {
	dev, err := s.devices.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	if dev.Confirmed {
		return nil
	}
	if !VerifyTOTP(dev.Secret, strings.TrimSpace(code), s.now()) {
		return ErrInvalidCode
	}
	if err := s.devices.Confirm(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID.String()).Msg("totp enabled")
	return nil
}

// DisableTOTP removes a confirmed device after checking a current code.
func (s *Service) DisableTOTP(ctx context.Context, userID uuid.UUID, code string) error {
	dev, err := s.devices.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return ErrNotEnabled
		}
		return err
	}
	if !dev.Confirmed {
		return ErrNotEnabled
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrCodeRequired
	}
	if !VerifyTOTP(dev.Secret, code, s.now()) {
		return ErrInvalidCode
	}
	if err := s.devices.Delete(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID.String()).Msg("totp disabled")
	return nil
}
