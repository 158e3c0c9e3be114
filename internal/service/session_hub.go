package service

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"Community_Sync/internal/docstore"
	"Community_Sync/internal/identity"
)

const DefaultSessionIdleTTL = 30 * time.Minute

// Session is one client session: its identity, its membership cache and the
// services that own that cache. A session belongs to the user it was opened
// for; its identity is only ever that user or signed out.
type Session struct {
	ID          string
	Owner       string
	Identity    *identity.Session
	State       *CommunityState
	Membership  *MembershipService
	Communities *CommunityService

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SessionHub hosts sessions for the HTTP layer. Sessions share one store,
// guard and publisher.
type SessionHub struct {
	store     docstore.Store
	guard     Guard
	publisher EventPublisher
	idleTTL   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionHub(store docstore.Store, guard Guard, publisher EventPublisher, idleTTL time.Duration) *SessionHub {
	if guard == nil {
		guard = NewLocalGuard()
	}
	if idleTTL <= 0 {
		idleTTL = DefaultSessionIdleTTL
	}
	return &SessionHub{
		store:     store,
		guard:     guard,
		publisher: publisher,
		idleTTL:   idleTTL,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Open returns the session id opened for userID ("" for anonymous callers).
// An unknown id is created for userID. An id that belongs to someone else is
// never shared: the caller gets a fresh session under a new id instead.
func (h *SessionHub) Open(id, userID string) *Session {
	now := h.now()
	h.mu.Lock()
	defer h.mu.Unlock()

	if id != "" {
		if sess, ok := h.sessions[id]; ok {
			if sess.Owner == userID {
				sess.touch(now)
				return sess
			}
			glog.V(1).Infof("session: %s belongs to another identity, minting a new one", id)
			id = ""
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	state := NewCommunityState()
	ident := identity.NewSession()
	opts := []Option{WithGuard(h.guard)}
	if h.publisher != nil {
		opts = append(opts, WithPublisher(h.publisher))
	}
	sess := &Session{
		ID:          id,
		Owner:       userID,
		Identity:    ident,
		State:       state,
		Membership:  NewMembershipService(h.store, state, ident, opts...),
		Communities: NewCommunityService(h.store, state),
		lastSeen:    now,
	}
	h.sessions[id] = sess
	glog.V(1).Infof("session: opened %s", id)
	return sess
}

func (h *SessionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Run evicts idle sessions until ctx is done.
func (h *SessionHub) Run(ctx context.Context) {
	t := time.NewTicker(h.idleTTL / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.evictIdle()
		}
	}
}

func (h *SessionHub) evictIdle() int {
	cutoff := h.now().Add(-h.idleTTL)
	h.mu.Lock()
	var idle []*Session
	for id, sess := range h.sessions {
		if sess.idleSince().Before(cutoff) {
			idle = append(idle, sess)
			delete(h.sessions, id)
		}
	}
	h.mu.Unlock()

	for _, sess := range idle {
		sess.Membership.Close()
	}
	if len(idle) > 0 {
		glog.V(1).Infof("session: evicted %d idle sessions", len(idle))
	}
	return len(idle)
}
