// Package identity tracks who is signed in for one client session and tells
// subscribers when that changes.
package identity

import "sync"

// Provider exposes the current user id ("" when signed out) and change
// notifications. Subscribers are called only when the value changes.
type Provider interface {
	Current() string
	Subscribe(fn func(userID string)) (unsubscribe func())
}

// Session is a settable Provider.
type Session struct {
	mu     sync.Mutex
	userID string
	next   int
	subs   map[int]func(string)
}

func NewSession() *Session {
	return &Session{subs: make(map[int]func(string))}
}

func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Set records the identity and notifies subscribers if it differs from the
// previous value. Notifications run on the caller's goroutine after the lock
// is released.
func (s *Session) Set(userID string) bool {
	s.mu.Lock()
	if s.userID == userID {
		s.mu.Unlock()
		return false
	}
	s.userID = userID
	fns := make([]func(string), 0, len(s.subs))
	for i := 0; i < s.next; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(userID)
	}
	return true
}

func (s *Session) SignOut() bool {
	return s.Set("")
}

func (s *Session) Subscribe(fn func(userID string)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
