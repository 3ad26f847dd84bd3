// Package session carries the logged-in identity for the duration of a run.
// It is the explicit replacement for the browser-storage credentials the
// dashboards used to share: initialized on login, cleared on logout or when
// the backend answers 401.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role identifies which views and calls a session may use.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ErrNotLoggedIn is returned when an action needs a session and none exists.
var ErrNotLoggedIn = errors.New("not logged in")

// Session is the identity established at login. UserID is the roll number for
// students and the employee id for teachers.
type Session struct {
	Role   Role
	UserID string
	Name   string
	Token  string
}

// Store owns the single active session. All front ends read the credential
// through it, and the API client clears it on a 401.
type Store struct {
	mu      sync.RWMutex
	current *Session
	onClear []func()
}

func NewStore() *Store {
	return &Store{}
}

// Begin installs a new session, replacing any previous one.
func (s *Store) Begin(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &sess
}

// Current returns the active session, if any.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Token returns the bearer credential, or empty when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// Require returns the session for the given role.
func (s *Store) Require(role Role) (Session, error) {
	sess, ok := s.Current()
	if !ok {
		return Session{}, ErrNotLoggedIn
	}
	if sess.Role != role {
		return Session{}, errors.New("logged in as " + string(sess.Role) + ", need " + string(role))
	}
	return sess, nil
}

// Clear tears the session down and runs the registered hooks. Safe to call
// when already logged out.
func (s *Store) Clear() {
	s.mu.Lock()
	wasActive := s.current != nil
	s.current = nil
	hooks := s.onClear
	s.mu.Unlock()

	if !wasActive {
		return
	}
	for _, f := range hooks {
		f()
	}
}

// OnClear registers a hook invoked when the session is torn down, e.g. to
// drop cached dashboard state.
func (s *Store) OnClear(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClear = append(s.onClear, f)
}

// Expired reports whether the stored token carries an exp claim in the past.
// Tokens without a parseable expiry are treated as live; the backend remains
// the authority and will answer 401 if it disagrees.
func (s *Store) Expired(now time.Time) bool {
	token := s.Token()
	if token == "" {
		return false
	}
	exp, err := TokenExpiry(token)
	if err != nil || exp.IsZero() {
		return false
	}
	return !now.Before(exp)
}

// TokenExpiry extracts the expiry claim from a JWT without verifying its
// signature. Verification is the backend's job; this side only needs the
// timestamp to warn before a doomed request.
func TokenExpiry(token string) (time.Time, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, err
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, err
	}
	return exp.Time, nil
}
