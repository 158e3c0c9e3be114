package service

import (
	"context"
	"sync"
)

// Guard serializes membership changes per (user, community) key. TryAcquire
// never waits: ok is false when another change for the key is outstanding.
type Guard interface {
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// LocalGuard is an in-process Guard shared by all sessions of one server.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

func (g *LocalGuard) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return nil, false, nil
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, true, nil
}

// membershipKey joins the ids with "/", which valid document ids never contain.
func membershipKey(userID, communityID string) string {
	return userID + "/" + communityID
}
