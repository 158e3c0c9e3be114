package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"Community_Sync/internal/docstore"
	"Community_Sync/internal/identity"
	"Community_Sync/internal/model"
)

// Phase is a step of a single toggle invocation:
// Idle -> Gating -> {RequireLogin | Committing} -> {Applied | Failed} -> Idle.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseGating       Phase = "gating"
	PhaseRequireLogin Phase = "require_login"
	PhaseCommitting   Phase = "committing"
	PhaseApplied      Phase = "applied"
	PhaseFailed       Phase = "failed"
)

// Outcome is what a toggle did.
type Outcome string

const (
	OutcomeLoginRequired Outcome = "login_required"
	OutcomeJoined        Outcome = "joined"
	OutcomeLeft          Outcome = "left"
	// OutcomeUnchanged: the store already matched the requested state, so
	// nothing was committed and only the cache was brought in line.
	OutcomeUnchanged Outcome = "unchanged"
)

// LoginRequester is the outbound "open login" signal.
type LoginRequester interface {
	RequestLogin()
}

type LoginRequestFunc func()

func (f LoginRequestFunc) RequestLogin() { f() }

type Option func(*MembershipService)

func WithGuard(g Guard) Option {
	return func(s *MembershipService) {
		if g != nil {
			s.guard = g
		}
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(s *MembershipService) { s.publisher = p }
}

func WithLoginRequester(r LoginRequester) Option {
	return func(s *MembershipService) {
		if r != nil {
			s.login = r
		}
	}
}

// WithPhaseObserver receives every phase transition of toggle invocations.
func WithPhaseObserver(fn func(communityID string, p Phase)) Option {
	return func(s *MembershipService) { s.observer = fn }
}

// WithBaseContext sets the context used for loads triggered by identity changes.
func WithBaseContext(ctx context.Context) Option {
	return func(s *MembershipService) { s.baseCtx = ctx }
}

// MembershipService keeps a session's CommunityState in step with the
// document store. It is the only writer of the snippet cache.
type MembershipService struct {
	store     docstore.Store
	state     *CommunityState
	ident     identity.Provider
	guard     Guard
	publisher EventPublisher
	login     LoginRequester
	observer  func(string, Phase)
	baseCtx   context.Context

	mu          sync.Mutex
	userID      string // identity the cache currently belongs to
	epoch       uint64 // bumped on every identity change
	unsubscribe func()
}

// NewMembershipService subscribes to ident. If ident already has a signed-in
// user the memberships are loaded before returning.
func NewMembershipService(store docstore.Store, state *CommunityState, ident identity.Provider, opts ...Option) *MembershipService {
	s := &MembershipService{
		store:   store,
		state:   state,
		ident:   ident,
		guard:   NewLocalGuard(),
		login:   LoginRequestFunc(func() {}),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribe = ident.Subscribe(s.identityChanged)
	s.identityChanged(ident.Current())
	return s
}

func (s *MembershipService) State() *CommunityState { return s.state }

// Close stops following identity changes.
func (s *MembershipService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// identityChanged loads memberships once per distinct signed-in identity and
// clears the cache when the identity goes away.
func (s *MembershipService) identityChanged(userID string) {
	s.mu.Lock()
	if userID == s.userID {
		s.mu.Unlock()
		return
	}
	prev := s.userID
	s.userID = userID
	s.epoch++
	epoch := s.epoch
	s.state.resetSnippets()
	s.mu.Unlock()

	glog.V(1).Infof("membership: identity %q -> %q", prev, userID)
	if userID == "" {
		return
	}
	_ = s.load(s.baseCtx, userID, epoch)
}

func (s *MembershipService) session() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.epoch
}

// apply runs fn against the cache unless the identity changed since epoch.
func (s *MembershipService) apply(epoch uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	fn()
	return true
}

// settle ends an operation that failed. The error is only surfaced when the
// identity it was started for is still current.
func (s *MembershipService) settle(epoch uint64, err error) {
	if !s.apply(epoch, func() { s.state.settle(err.Error()) }) {
		s.state.settle("")
	}
}

// LoadMemberships replaces the cached snippets with the stored ones for the
// current identity. On failure the cache is left as it was and
// snippetsFetched stays unset so the load can be retried.
func (s *MembershipService) LoadMemberships(ctx context.Context) error {
	userID, epoch := s.session()
	if userID == "" {
		return ErrAuthRequired
	}
	return s.load(ctx, userID, epoch)
}

func (s *MembershipService) load(ctx context.Context, userID string, epoch uint64) error {
	s.state.begin()

	docs, err := s.store.List(ctx, model.SnippetsCollection(userID))
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrStoreRead, err)
		glog.Warningf("membership: load snippets for %s: %v", userID, err)
		s.settle(epoch, err)
		return err
	}

	snippets := make([]model.CommunitySnippet, 0, len(docs))
	for _, doc := range docs {
		sn, err := model.DecodeSnippet(doc.ID, doc.Fields)
		if err != nil {
			glog.Warningf("membership: skipping snippet %s/%s: %v", doc.Collection, doc.ID, err)
			continue
		}
		snippets = append(snippets, sn)
	}

	if !s.apply(epoch, func() { s.state.replaceSnippets(snippets) }) {
		glog.V(1).Infof("membership: discarding snippets loaded for %s after identity change", userID)
	}
	s.state.settle("")
	return nil
}

// ToggleMembership leaves the community when currentlyJoined is true and
// joins it otherwise. Without a signed-in identity it only requests a login.
// A change that is still outstanding for the same user and community makes
// the call fail with ErrOperationInFlight.
func (s *MembershipService) ToggleMembership(ctx context.Context, c model.Community, currentlyJoined bool) (Outcome, error) {
	s.observe(c.ID, PhaseGating)
	userID, epoch := s.session()
	return s.toggle(ctx, userID, epoch, c, currentlyJoined)
}

// ToggleMembershipAs is ToggleMembership for a caller that authenticated as
// callerID ("" when anonymous). It fails with ErrIdentityMismatch, changing
// nothing, when the session's identity is not the caller's.
func (s *MembershipService) ToggleMembershipAs(ctx context.Context, callerID string, c model.Community, currentlyJoined bool) (Outcome, error) {
	s.observe(c.ID, PhaseGating)
	userID, epoch := s.session()
	if userID != callerID {
		s.observe(c.ID, PhaseIdle)
		return "", ErrIdentityMismatch
	}
	return s.toggle(ctx, userID, epoch, c, currentlyJoined)
}

func (s *MembershipService) toggle(ctx context.Context, userID string, epoch uint64, c model.Community, currentlyJoined bool) (Outcome, error) {
	if userID == "" {
		s.observe(c.ID, PhaseRequireLogin)
		s.login.RequestLogin()
		s.observe(c.ID, PhaseIdle)
		return OutcomeLoginRequired, nil
	}
	if err := docstore.ValidatePath(model.CommunitiesCollection, c.ID); err != nil {
		s.observe(c.ID, PhaseIdle)
		return "", fmt.Errorf("%w: %v", ErrInvalidCommunity, err)
	}

	release, ok, err := s.guard.TryAcquire(ctx, membershipKey(userID, c.ID))
	if err != nil {
		s.observe(c.ID, PhaseIdle)
		return "", fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
	}
	if !ok {
		s.observe(c.ID, PhaseIdle)
		return "", ErrOperationInFlight
	}
	defer release()

	s.state.begin()
	var outcome Outcome
	if currentlyJoined {
		outcome, err = s.leave(ctx, userID, epoch, c)
	} else {
		outcome, err = s.join(ctx, userID, epoch, c)
	}
	if err != nil {
		glog.Warningf("membership: toggle %s for %s: %v", c.ID, userID, err)
		s.settle(epoch, err)
		s.observe(c.ID, PhaseFailed)
		s.observe(c.ID, PhaseIdle)
		return "", err
	}
	s.state.settle("")
	s.observe(c.ID, PhaseApplied)
	s.observe(c.ID, PhaseIdle)
	return outcome, nil
}

func (s *MembershipService) join(ctx context.Context, userID string, epoch uint64, c model.Community) (Outcome, error) {
	coll := model.SnippetsCollection(userID)

	existing, found, err := s.lookupSnippet(ctx, coll, c.ID)
	if err != nil {
		return "", err
	}
	if found {
		s.apply(epoch, func() { s.state.putSnippet(existing) })
		return OutcomeUnchanged, nil
	}

	snippet := model.NewSnippet(userID, c)
	s.observe(c.ID, PhaseCommitting)
	b := s.store.Batch()
	b.Set(coll, c.ID, snippet.Fields())
	b.Increment(model.CommunitiesCollection, c.ID, model.MemberCountField, 1)
	if err := b.Commit(context.WithoutCancel(ctx)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	glog.V(1).Infof("membership: %s joined %s (moderator=%t)", userID, c.ID, snippet.IsModerator)

	s.apply(epoch, func() { s.state.putSnippet(snippet) })
	s.publish(newMembershipEvent(ActionJoin, userID, c.ID, snippet.IsModerator, c.NumberOfMembers+1))
	return OutcomeJoined, nil
}

func (s *MembershipService) leave(ctx context.Context, userID string, epoch uint64, c model.Community) (Outcome, error) {
	coll := model.SnippetsCollection(userID)

	existing, found, err := s.lookupSnippet(ctx, coll, c.ID)
	if err != nil {
		return "", err
	}
	if !found {
		s.apply(epoch, func() { s.state.removeSnippet(c.ID) })
		return OutcomeUnchanged, nil
	}

	s.observe(c.ID, PhaseCommitting)
	b := s.store.Batch()
	b.Delete(coll, c.ID)
	b.Increment(model.CommunitiesCollection, c.ID, model.MemberCountField, -1)
	if err := b.Commit(context.WithoutCancel(ctx)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	glog.V(1).Infof("membership: %s left %s", userID, c.ID)

	s.apply(epoch, func() { s.state.removeSnippet(c.ID) })
	total := c.NumberOfMembers - 1
	if total < 0 {
		total = 0
	}
	s.publish(newMembershipEvent(ActionLeave, userID, c.ID, existing.IsModerator, total))
	return OutcomeLeft, nil
}

func (s *MembershipService) lookupSnippet(ctx context.Context, coll, communityID string) (model.CommunitySnippet, bool, error) {
	doc, err := s.store.Get(ctx, coll, communityID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return model.CommunitySnippet{}, false, nil
	case err != nil:
		return model.CommunitySnippet{}, false, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	sn, err := model.DecodeSnippet(doc.ID, doc.Fields)
	if err != nil {
		return model.CommunitySnippet{}, false, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	return sn, true, nil
}

func (s *MembershipService) publish(ev MembershipEvent) {
	if s.publisher == nil {
		return
	}
	go func() {
		if err := s.publisher.Publish(context.WithoutCancel(s.baseCtx), ev); err != nil {
			glog.Warningf("membership: publish %s %s/%s: %v", ev.Action, ev.UserID, ev.CommunityID, err)
		}
	}()
}

func (s *MembershipService) observe(communityID string, p Phase) {
	glog.V(2).Infof("membership: %s -> %s", communityID, p)
	if s.observer != nil {
		s.observer(communityID, p)
	}
}
