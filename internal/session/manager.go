// Package session stores the signed-in user in a signed browser cookie.
package session

import (
	"encoding/gob"
	"fmt"
	"net/http"

	gsessions "github.com/gorilla/sessions"

	"github.com/vyrodovalexey/authgate/internal/auth"
	"github.com/vyrodovalexey/authgate/internal/config"
	"github.com/vyrodovalexey/authgate/internal/observability"
)

// Session value keys.
const (
	userKey  = "user"
	stateKey = "oauth_state"
)

func init() {
	// Cookie values are gob-encoded, so the stored shapes must be registered.
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// Manager reads and writes the session cookie.
type Manager struct {
	store  *gsessions.CookieStore
	name   string
	logger observability.Logger
}

// Option is a functional option for configuring the manager.
type Option func(*Manager)

// WithLogger sets the logger for the manager.
func WithLogger(logger observability.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager backed by a signed cookie store.
func NewManager(cfg config.SessionConfig, opts ...Option) *Manager {
	store := gsessions.NewCookieStore([]byte(cfg.Secret))
	store.Options = &gsessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	m := &Manager{
		store:  store,
		name:   cfg.CookieName,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Reader adapts the manager to the gate's session interface.
func (m *Manager) Reader() auth.SessionReader {
	return func(r *http.Request) auth.Session {
		return &requestSession{manager: m, request: r}
	}
}

// requestSession is a read-only view of one request's session.
type requestSession struct {
	manager *Manager
	request *http.Request
}

var _ auth.Session = (*requestSession)(nil)

// Get implements auth.Session.
func (s *requestSession) Get(name string) (map[string]any, bool) {
	// An undecodable cookie still yields a usable empty session.
	sess, err := s.manager.store.Get(s.request, s.manager.name)
	if err != nil {
		s.manager.logger.Debug("session cookie could not be decoded",
			observability.Error(err),
		)
	}
	if sess == nil {
		return nil, false
	}
	value, ok := sess.Values[name].(map[string]any)
	return value, ok
}

// SetUser stores the signed-in user in the session.
func (m *Manager) SetUser(w http.ResponseWriter, r *http.Request, user map[string]any) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values[userKey] = user
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// User returns the signed-in user stored in the session, if any.
func (m *Manager) User(r *http.Request) (map[string]any, bool) {
	sess, err := m.store.Get(r, m.name)
	if err != nil || sess == nil {
		return nil, false
	}
	user, ok := sess.Values[userKey].(map[string]any)
	return user, ok
}

// Destroy clears the session and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, m.name)
	for key := range sess.Values {
		delete(sess.Values, key)
	}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// SetState stores the OAuth2 state parameter for the pending login.
func (m *Manager) SetState(w http.ResponseWriter, r *http.Request, state string) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values[stateKey] = state
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// TakeState returns the pending OAuth2 state and removes it, so each state
// value can be redeemed once.
func (m *Manager) TakeState(w http.ResponseWriter, r *http.Request) (string, bool) {
	sess, err := m.store.Get(r, m.name)
	if err != nil || sess == nil {
		return "", false
	}
	state, ok := sess.Values[stateKey].(string)
	if !ok {
		return "", false
	}
	delete(sess.Values, stateKey)
	if err := sess.Save(r, w); err != nil {
		m.logger.Warn("failed to clear login state from session",
			observability.Error(err),
		)
	}
	return state, true
}
