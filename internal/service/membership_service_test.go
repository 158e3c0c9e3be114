package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"Community_Sync/internal/docstore"
	"Community_Sync/internal/identity"
	"Community_Sync/internal/model"
)

var c1 = model.Community{ID: "c1", CreatorID: "u1", NumberOfMembers: 0}

type fixture struct {
	store  *docstore.MemoryStore
	ident  *identity.Session
	state  *CommunityState
	svc    *MembershipService
	logins int
	phases []Phase
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: docstore.NewMemoryStore(),
		ident: identity.NewSession(),
		state: NewCommunityState(),
	}
	f.store.Seed(model.CommunitiesCollection, c1.ID, c1.Fields())
	opts = append([]Option{
		WithLoginRequester(LoginRequestFunc(func() { f.logins++ })),
		WithPhaseObserver(func(_ string, p Phase) { f.phases = append(f.phases, p) }),
	}, opts...)
	f.svc = NewMembershipService(f.store, f.state, f.ident, opts...)
	t.Cleanup(f.svc.Close)
	return f
}

func (f *fixture) memberCount(t *testing.T) int64 {
	t.Helper()
	doc, err := f.store.Get(context.Background(), model.CommunitiesCollection, c1.ID)
	assert.Equal(t, err, nil)
	n, ok := docstore.ToInt64(doc.Fields[model.MemberCountField])
	assert.Equal(t, ok, true)
	return n
}

type recordingPublisher struct {
	events chan MembershipEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev MembershipEvent) error {
	p.events <- ev
	return nil
}

func TestJoinByCreatorIsModerator(t *testing.T) {
	f := newFixture(t)
	f.ident.Set("u1")

	out, err := f.svc.ToggleMembership(context.Background(), c1, false)
	assert.Equal(t, err, nil)
	assert.Equal(t, out, OutcomeJoined)

	snap := f.state.Snapshot()
	assert.Equal(t, snap.MySnippets, []model.CommunitySnippet{{CommunityID: "c1", ImageURL: "", IsModerator: true}})
	assert.Equal(t, snap.Loading, false)
	assert.Equal(t, snap.Error, "")
	assert.Equal(t, f.memberCount(t), int64(1))
	assert.Equal(t, f.store.Commits(), 1)

	doc, err := f.store.Get(context.Background(), model.SnippetsCollection("u1"), "c1")
	assert.Equal(t, err, nil)
	assert.Equal(t, doc.Fields["isModerator"], true)
}

func TestJoinByOtherUserIsNotModerator(t *testing.T) {
	f := newFixture(t)
	f.ident.Set("u2")

	out, err := f.svc.ToggleMembership(context.Background(), c1, false)
	assert.Equal(t, err, nil)
	assert.Equal(t, out, OutcomeJoined)
	assert.Equal(t, f.state.Snapshot().MySnippets, []model.CommunitySnippet{{CommunityID: "c1", IsModerator: false}})
	assert.Equal(t, f.state.IsJoined("c1"), true)
	assert.Equal(t, f.memberCount(t), int64(1))
}

func TestJoinCarriesCommunityImage(t *testing.T) {
	f := newFixture(t)
	withImage := model.Community{ID: "c1", CreatorID: "u1", ImageURL: "https://img/c1.png"}
	f.ident.Set("u2")

	_, err := f.svc.ToggleMembership(context.Background(), withImage, false)
	assert.Equal(t, err, nil)
	assert.Equal(t, f.state.Snapshot().MySnippets[0].ImageURL, "https://img/c1.png")
}

func TestLeaveRemovesSnippetAndDecrements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ident.Set("u2")

	_, err := f.svc.ToggleMembership(ctx, c1, false)
	assert.Equal(t, err, nil)

	out, err := f.svc.ToggleMembership(ctx, model.Community{ID: "c1", CreatorID: "u1", NumberOfMembers: 1}, true)
	assert.Equal(t, err, nil)
	assert.Equal(t, out, OutcomeLeft)
	assert.Equal(t, len(f.state.Snapshot().MySnippets), 0)
	assert.Equal(t, f.state.IsJoined("c1"), false)
	assert.Equal(t, f.memberCount(t), int64(0))

	_, err = f.store.Get(ctx, model.SnippetsCollection("u2"), "c1")
	assert.Equal(t, errors.Is(err, docstore.ErrNotFound), true)
}

func TestLeaveNeverDrivesCounterNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.Seed(model.SnippetsCollection("u2"), "c1", model.NewSnippet("u2", c1).Fields())
	f.ident.Set("u2")
	assert.Equal(t, f.state.IsJoined("c1"), true)

	out, err := f.svc.ToggleMembership(ctx, c1, true)
	assert.Equal(t, err, nil)
	assert.Equal(t, out, OutcomeLeft)
	assert.Equal(t, f.memberCount(t), int64(0))

	doc, err := f.store.Get(ctx, model.CommunitiesCollection, "c1")
	assert.Equal(t, err, nil)
	got, err := model.DecodeCommunity(doc.ID, doc.Fields)
	assert.Equal(t, err, nil)
	assert.Equal(t, got.NumberOfMembers, int64(0))
}

func TestToggleAsOtherCallerChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ident.Set("u1")
	f.phases = nil

	_, err := f.svc.ToggleMembershipAs(ctx, "u2", c1, false)
	assert.Equal(t, err, ErrIdentityMismatch)
	assert.Equal(t, f.store.Commits(), 0)
	assert.Equal(t, f.phases, []Phase{PhaseGating, PhaseIdle})
	assert.Equal(t, f.state.Snapshot().Loading, false)

	out, err := f.svc.ToggleMembershipAs(ctx, "u1", c1, false)
	assert.Equal(t, err, nil)
	assert.Equal(t, out, OutcomeJoined)
}

func TestCommitFailureLeavesCacheAndCounter(t *testing.T) {
	f := newFixture(t)
	f.ident.Set("u2")
	f.store.FailNextCommit(errors.New("backend unavailable"))

	out, err := f.svc.ToggleMembership(context.Background(), c1, false)
	assert.Equal(t, errors.Is(err, ErrStoreWrite), true)
	assert.Equal(t, out, Outcome(""))

	snap := f.state.Snapshot()
	assert.Equal(t, len(snap.MySnippets), 0)
	assert.NotEqual(t, snap.Error, "")
	assert.Equal(t, snap.Loading, false)
	assert.Equal(t, f.memberCount(t), int64(0))
	assert.Equal(t, f.store.Commits(), 0)
}

func TestNextOperationClearsError(t *testing.T) {
	f := newFixture(t)
	f.ident.Set("u2")
	f.store.FailNextCommit(errors.New("backend unavailable"))

	_, err := f.svc.ToggleMembership(context.Background(), c1, false)
	assert.NotEqual(t, err, nil)

	_, err = f.svc.ToggleMembership(context.Background(), c1, false)
	assert.Equal(t, err, nil)
	assert.Equal(t, f.state.Snapshot().Error, "")
	assert.Equal(t, f.memberCount(t), int64(1))
}

func TestToggleWithoutIdentityRequestsLogin(t *testing.T) {
	f := newFixture(t)

	for _, joined := range []bool{false, true} {
		out, err := f.svc.ToggleMembership(context.Background(), c1, joined)
		assert.Equal(t, err, nil)
		assert.Equal(t, out, OutcomeLoginRequired)
	}
	assert.Equal(t, f.logins, 2)
	assert.Equal(t, f.store.Commits(), 0)
	assert.Equal(t, f.memberCount(t), int64(0))
	assert.Equal(t, f.phases, []Phase{
		PhaseGating, PhaseRequireLogin, PhaseIdle,
		PhaseGating, PhaseRequireLogin, PhaseIdle,
	})
}

func TestPhaseSequence(t *testing.T) {
	f := newFixture(t)
	f.ident.Set("u2")

	_, err := f.svc.ToggleMembership(context.Background(), c1, false)
	assert.Equal(t, err, nil)
	assert.Equal(t, f.phases, []Phase{PhaseGating, PhaseCommitting, PhaseApplied, PhaseIdle})

	f.phases = nil
	f.store.FailNextCommit(errors.New("boom"))
	_, err = f.svc.ToggleMembership(context.Background(), c1, true)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, f.phases, []Phase{PhaseGating, PhaseCommitting, PhaseFailed, PhaseIdle})
}

func TestSignOutResetsCache(t *testing.T) {
	f := newFixture(t)
	f.ident.Set("u2")
	_, err := f.svc.ToggleMembership(context.Background(), c1, false)
	assert.Equal(t, err, nil)
	assert.Equal(t, f.state.Snapshot().SnippetsFetched, true)

	f.ident.SignOut()
	snap := f.state.Snapshot()
	assert.Equal(t, len(snap.MySnippets), 0)
	assert.Equal(t, snap.SnippetsFetched, false)

	// signing back in reloads from the store
	f.ident.Set("u2")
	snap = f.state.Snapshot()
	assert.Equal(t, snap.SnippetsFetched, true)
	assert.Equal(t, snap.MySnippets, []model.CommunitySnippet{{CommunityID: "c1"}})
}

func TestIdentityLoadsSnippetsAndSkipsMalformed(t *testing.T) {
	f := newFixture(t)
	coll := model.SnippetsCollection("u1")
	f.store.Seed(coll, "c2", map[string]any{"communityId": "c2", "imageURL": "x.png", "isModerator": false})
	f.store.Seed(coll, "c1", map[string]any{"communityId": "c1", "isModerator": true})
	f.store.Seed(coll, "bad", map[string]any{"isModerator": "not-a-bool"})

	f.ident.Set("u1")

	snap := f.state.Snapshot()
	assert.Equal(t, snap.SnippetsFetched, true)
	assert.Equal(t, snap.MySnippets, []model.CommunitySnippet{
		{CommunityID: "c1", IsModerator: true},
		{CommunityID: "c2", ImageURL: "x.png"},
	})
}

func TestLoadFailureKeepsCache(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(model.SnippetsCollection("u1"), "c1", map[string]any{"communityId": "c1", "isModerator": true})
	f.ident.Set("u1")
	assert.Equal(t, len(f.state.Snapshot().MySnippets), 1)

	f.store.FailReads(errors.New("timeout"))
	err := f.svc.LoadMemberships(context.Background())
	assert.Equal(t, errors.Is(err, ErrStoreRead), true)

	snap := f.state.Snapshot()
	assert.Equal(t, len(snap.MySnippets), 1)
	assert.NotEqual(t, snap.Error, "")
	assert.Equal(t, snap.Loading, false)
}

func TestFailedInitialLoadLeavesFetchedUnset(t *testing.T) {
	f := newFixture(t)
	f.store.FailReads(errors.New("timeout"))
	f.ident.Set("u1")

	snap := f.state.Snapshot()
	assert.Equal(t, snap.SnippetsFetched, false)
	assert.NotEqual(t, snap.Error, "")

	f.store.FailReads(nil)
	assert.Equal(t, f.svc.LoadMemberships(context.Background()), nil)
	assert.Equal(t, f.state.Snapshot().SnippetsFetched, true)
	assert.Equal(t, f.state.Snapshot().Error, "")
}

func TestLoadMembershipsRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, f.svc.LoadMemberships(context.Background()), ErrAuthRequired)
}

func TestToggleRejectsChangeInFlight(t *testing.T) {
	ctx := context.Background()
	guard := NewLocalGuard()
	f := newFixture(t, WithGuard(guard))
	f.ident.Set("u2")

	release, ok, err := guard.TryAcquire(ctx, membershipKey("u2", "c1"))
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, true)

	_, err = f.svc.ToggleMembership(ctx, c1, false)
	assert.Equal(t, err, ErrOperationInFlight)
	assert.Equal(t, f.store.Commits(), 0)
	assert.Equal(t, f.state.Snapshot().Loading, false)

	release()
	out, err := f.svc.ToggleMembership(ctx, c1, false)
	assert.Equal(t, err, nil)
	assert.Equal(t, out, OutcomeJoined)
}

func TestToggleRejectsInvalidCommunity(t *testing.T) {
	f := newFixture(t)
	f.ident.Set("u2")

	_, err := f.svc.ToggleMembership(context.Background(), model.Community{ID: "a/b"}, false)
	assert.Equal(t, errors.Is(err, ErrInvalidCommunity), true)
	assert.Equal(t, f.store.Commits(), 0)
}

func TestJoinWhenAlreadyMemberCommitsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ident.Set("u2")
	_, err := f.svc.ToggleMembership(ctx, c1, false)
	assert.Equal(t, err, nil)

	// a stale view still believes u2 is not a member
	out, err := f.svc.ToggleMembership(ctx, c1, false)
	assert.Equal(t, err, nil)
	assert.Equal(t, out, OutcomeUnchanged)
	assert.Equal(t, f.store.Commits(), 1)
	assert.Equal(t, f.memberCount(t), int64(1))
	assert.Equal(t, len(f.state.Snapshot().MySnippets), 1)
}

func TestLeaveWhenNotMemberCommitsNothing(t *testing.T) {
	f := newFixture(t)
	f.ident.Set("u2")

	out, err := f.svc.ToggleMembership(context.Background(), c1, true)
	assert.Equal(t, err, nil)
	assert.Equal(t, out, OutcomeUnchanged)
	assert.Equal(t, f.store.Commits(), 0)
	assert.Equal(t, f.memberCount(t), int64(0))
}

func TestJoinLeaveRoundTripRestoresCounter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ident.Set("u2")

	for i := 0; i < 3; i++ {
		_, err := f.svc.ToggleMembership(ctx, c1, false)
		assert.Equal(t, err, nil)
		_, err = f.svc.ToggleMembership(ctx, c1, true)
		assert.Equal(t, err, nil)
	}
	assert.Equal(t, f.memberCount(t), int64(0))
	assert.Equal(t, len(f.state.Snapshot().MySnippets), 0)
}

func TestPublishesEventAfterApply(t *testing.T) {
	pub := &recordingPublisher{events: make(chan MembershipEvent, 4)}
	f := newFixture(t, WithPublisher(pub))
	f.ident.Set("u1")

	_, err := f.svc.ToggleMembership(context.Background(), c1, false)
	assert.Equal(t, err, nil)

	select {
	case ev := <-pub.events:
		assert.Equal(t, ev.Action, ActionJoin)
		assert.Equal(t, ev.UserID, "u1")
		assert.Equal(t, ev.CommunityID, "c1")
		assert.Equal(t, ev.IsModerator, true)
		assert.Equal(t, ev.TotalMembers, int64(1))
		assert.NotEqual(t, ev.ID, "")
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestNoEventOnFailedCommit(t *testing.T) {
	pub := &recordingPublisher{events: make(chan MembershipEvent, 4)}
	f := newFixture(t, WithPublisher(pub))
	f.ident.Set("u2")
	f.store.FailNextCommit(errors.New("boom"))

	_, err := f.svc.ToggleMembership(context.Background(), c1, false)
	assert.NotEqual(t, err, nil)

	select {
	case ev := <-pub.events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// gatedStore blocks List on one collection until released.
type gatedStore struct {
	*docstore.MemoryStore
	gate    string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	err     error
}

func (s *gatedStore) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	if collection == s.gate {
		s.once.Do(func() { close(s.entered) })
		<-s.release
		if s.err != nil {
			return nil, s.err
		}
	}
	return s.MemoryStore.List(ctx, collection)
}

func TestStaleLoadIsDiscardedAfterIdentityChange(t *testing.T) {
	mem := docstore.NewMemoryStore()
	mem.Seed(model.SnippetsCollection("u1"), "c1", map[string]any{"communityId": "c1", "isModerator": true})
	mem.Seed(model.SnippetsCollection("u2"), "c2", map[string]any{"communityId": "c2"})
	store := &gatedStore{
		MemoryStore: mem,
		gate:        model.SnippetsCollection("u1"),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	ident := identity.NewSession()
	state := NewCommunityState()
	svc := NewMembershipService(store, state, ident)
	defer svc.Close()

	done := make(chan struct{})
	go func() {
		ident.Set("u1")
		close(done)
	}()
	<-store.entered

	ident.Set("u2")
	close(store.release)
	<-done

	snap := state.Snapshot()
	assert.Equal(t, snap.MySnippets, []model.CommunitySnippet{{CommunityID: "c2"}})
	assert.Equal(t, snap.SnippetsFetched, true)
	assert.Equal(t, snap.Loading, false)
}

func TestStaleLoadErrorIsDiscardedAfterIdentityChange(t *testing.T) {
	mem := docstore.NewMemoryStore()
	mem.Seed(model.SnippetsCollection("u2"), "c2", map[string]any{"communityId": "c2"})
	store := &gatedStore{
		MemoryStore: mem,
		gate:        model.SnippetsCollection("u1"),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
		err:         errors.New("deadline exceeded"),
	}
	ident := identity.NewSession()
	state := NewCommunityState()
	svc := NewMembershipService(store, state, ident)
	defer svc.Close()

	done := make(chan struct{})
	go func() {
		ident.Set("u1")
		close(done)
	}()
	<-store.entered

	ident.Set("u2")
	close(store.release)
	<-done

	snap := state.Snapshot()
	assert.Equal(t, snap.Error, "")
	assert.Equal(t, snap.Loading, false)
	assert.Equal(t, snap.MySnippets, []model.CommunitySnippet{{CommunityID: "c2"}})
}
