package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	CookieName = "liveheart_session"
	contextKey = "session"
)

type ctxKey struct{}

// Config controls the cookie and record lifetime.
type Config struct {
	Key    []byte
	TTL    time.Duration
	Secure bool
}

// Manager loads sessions for requests and writes them back.
type Manager struct {
	store  Store
	codec  tokenCodec
	ttl    time.Duration
	secure bool
	logger zerolog.Logger
	now    func() time.Time
}

func NewManager(store Store, cfg Config, logger zerolog.Logger) *Manager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	m := &Manager{
		store:  store,
		ttl:    ttl,
		secure: cfg.Secure,
		logger: logger.With().Str("component", "session").Logger(),
		now:    time.Now,
	}
	m.codec = tokenCodec{key: cfg.Key, now: func() time.Time { return m.now() }}
	return m
}

// Middleware attaches a *Session to every request. A missing, forged or
// expired cookie yields a fresh empty session that is only stored once a
// handler saves it.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, err := m.load(c)
			if err != nil {
				return err
			}
			c.Set(contextKey, sess)
			if sess.Data.UserID != "" {
				ctx := context.WithValue(c.Request().Context(), ctxKey{}, sess.Data.UserID)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

func (m *Manager) load(c echo.Context) (*Session, error) {
	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return newSession()
	}

	id, err := m.codec.decode(cookie.Value)
	if err != nil {
		m.logger.Debug().Str("remote_ip", c.RealIP()).Msg("discarding invalid session cookie")
		return newSession()
	}

	data, err := m.store.Load(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newSession()
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &Session{ID: id, Data: data}, nil
}

// Save persists the session and refreshes the cookie. It must run before the
// response body is written. A destroyed session is deleted and its cookie
// expired.
func (m *Manager) Save(c echo.Context, sess *Session) error {
	ctx := c.Request().Context()
	for _, stale := range sess.staleIDs {
		if err := m.store.Delete(ctx, stale); err != nil {
			return err
		}
	}
	sess.staleIDs = nil

	if sess.destroyed {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			return err
		}
		m.expireCookie(c)
		return nil
	}

	expiresAt := m.now().Add(m.ttl)
	if err := m.store.Save(ctx, sess.ID, sess.Data, expiresAt); err != nil {
		return err
	}
	token, err := m.codec.encode(sess.ID, expiresAt)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) expireCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Purge removes expired records.
func (m *Manager) Purge(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

// FromContext returns the request's session. It panics when the session
// middleware is not installed.
func FromContext(c echo.Context) *Session {
	sess, ok := c.Get(contextKey).(*Session)
	if !ok {
		panic("session: middleware not installed")
	}
	return sess
}

// UserID returns the logged-in user of the request, or "".
func UserID(c echo.Context) string {
	if sess, ok := c.Get(contextKey).(*Session); ok {
		return sess.Data.UserID
	}
	return ""
}

// UserIDFromContext returns the user id the middleware stored on the request
// context when the request arrived with a logged-in session.
func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(ctxKey{}).(string)
	return uid
}

// Attach sets sess on c. Used by tests that bypass the middleware.
func Attach(c echo.Context, sess *Session) {
	c.Set(contextKey, sess)
}
