// Package session holds the authenticated user state shared by the sync
// and detection services. A Session is passed explicitly into constructors
// instead of living in package-level globals, with Set/Clear tied to
// login/logout.
package session

import (
	"sync"

	"github.com/bedjamahdi/scanpest-go/internal/errors"
)

// ErrNotAuthenticated is returned when an operation needs a logged-in user.
var ErrNotAuthenticated = errors.Newf("no active session").
	Component("session").
	Category(errors.CategoryState).
	Build()

// Session is the explicit holder for the current user id and auth token.
// Safe for concurrent use.
type Session struct {
	mu     sync.RWMutex
	userID int
	token  string
	active bool
}

// New returns an empty, unauthenticated session.
func New() *Session {
	return &Session{}
}

// Set activates the session for the given user.
func (s *Session) Set(userID int, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.token = token
	s.active = true
}

// Clear deactivates the session on logout.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = 0
	s.token = ""
	s.active = false
}

// Active reports whether a user is logged in.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// UserID returns the current user id, or an error when logged out.
func (s *Session) UserID() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.active {
		return 0, ErrNotAuthenticated
	}
	return s.userID, nil
}

// Token returns the raw auth token, or an error when logged out.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.active {
		return "", ErrNotAuthenticated
	}
	return s.token, nil
}

// Authorization returns the value for the Authorization header, using the
// server's fixed "Token <value>" scheme.
func (s *Session) Authorization() (string, error) {
	token, err := s.Token()
	if err != nil {
		return "", err
	}
	return "Token " + token, nil
}
