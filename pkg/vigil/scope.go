// scope.go holds the mutable context and user attached to every capture.

package vigil

import (
	"maps"
	"sync/atomic"
)

// User identifies the end user affected by an error. Empty fields are omitted
// from the captured context.
type User struct {
	ID       string `json:"id,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// Scope carries the custom context and user merged into every capture.
// Each is replaced wholesale, so a concurrent capture sees either the old or
// the new value, never a mix.
type Scope struct {
	context atomic.Pointer[map[string]any]
	user    atomic.Pointer[User]
}

// NewScope returns an empty Scope.
func NewScope() *Scope {
	return &Scope{}
}

// SetContext replaces the custom context. The map is copied.
func (s *Scope) SetContext(ctx map[string]any) {
	if ctx == nil {
		s.context.Store(nil)
		return
	}
	copied := maps.Clone(ctx)
	s.context.Store(&copied)
}

// Context returns a copy of the custom context.
func (s *Scope) Context() map[string]any {
	p := s.context.Load()
	if p == nil {
		return nil
	}
	return maps.Clone(*p)
}

// SetUser replaces the current user.
func (s *Scope) SetUser(u User) {
	s.user.Store(&u)
}

// ClearUser removes the current user.
func (s *Scope) ClearUser() {
	s.user.Store(nil)
}

// User returns the current user, if one has been set.
func (s *Scope) User() (User, bool) {
	p := s.user.Load()
	if p == nil {
		return User{}, false
	}
	return *p, true
}
