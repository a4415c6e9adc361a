// Package session keeps login state in server-side records. The browser only
// holds a signed cookie naming the record.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Data is the state persisted for one session.
type Data struct {
	UserID             string `json:"user_id,omitempty"`
	AuthHash           string `json:"auth_hash,omitempty"`
	TwoFactorVerified  bool   `json:"is_2fa_verified"`
	PreTwoFactorUserID string `json:"pre_2fa_user_id,omitempty"`
	PreTOTPUserID      string `json:"pre_totp_user_id,omitempty"`
	CodeHash           string `json:"2fa_code_hash,omitempty"`
	CodeCreatedAt      int64  `json:"2fa_created_at,omitempty"`
	CodeAttempts       int    `json:"2fa_attempts,omitempty"`
}

// ClearCode drops the emailed code fields.
func (d *Data) ClearCode() {
	d.CodeHash = ""
	d.CodeCreatedAt = 0
	d.CodeAttempts = 0
}

// Session is a loaded session plus the bookkeeping needed to save it.
type Session struct {
	ID   string
	Data Data

	// staleIDs are records to remove on save after Flush or Cycle.
	staleIDs  []string
	destroyed bool
}

func newSession() (*Session, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	return &Session{ID: id}, nil
}

// Flush replaces the session with an empty one under a new id.
func (s *Session) Flush() error {
	if err := s.rotate(); err != nil {
		return err
	}
	s.Data = Data{}
	return nil
}

// Cycle moves the data to a new id so a pre-login id can not be reused.
func (s *Session) Cycle() error {
	return s.rotate()
}

// Destroy marks the session for deletion on save.
func (s *Session) Destroy() {
	s.destroyed = true
	s.Data = Data{}
}

// Destroyed reports whether Destroy was called.
func (s *Session) Destroyed() bool {
	return s.destroyed
}

func (s *Session) rotate() error {
	id, err := NewID()
	if err != nil {
		return err
	}
	if s.ID != "" {
		s.staleIDs = append(s.staleIDs, s.ID)
	}
	s.ID = id
	s.destroyed = false
	return nil
}

// IsAuthenticated reports whether a user completed login on this session.
func (s *Session) IsAuthenticated() bool {
	return s.Data.UserID != ""
}

// CodeAge returns how long ago the emailed code was sent.
func (s *Session) CodeAge(now time.Time) time.Duration {
	if s.Data.CodeCreatedAt == 0 {
		return 0
	}
	return now.Sub(time.Unix(s.Data.CodeCreatedAt, 0))
}

// NewID returns 32 random bytes hex encoded.
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
