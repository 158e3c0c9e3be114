package service

import (
	"sync"

	"Community_Sync/internal/model"
)

// CommunityState is the per-session membership cache. Only the services in
// this package mutate it; everyone else reads Snapshot copies.
type CommunityState struct {
	mu       sync.RWMutex
	current  *model.Community
	snippets []model.CommunitySnippet
	fetched  bool
	pending  int
	lastErr  string
}

// Snapshot is a read-only copy of CommunityState.
type Snapshot struct {
	CurrentCommunity *model.Community         `json:"currentCommunity"`
	MySnippets       []model.CommunitySnippet `json:"mySnippets"`
	SnippetsFetched  bool                     `json:"snippetsFetched"`
	Loading          bool                     `json:"loading"`
	Error            string                   `json:"error"`
}

func NewCommunityState() *CommunityState {
	return &CommunityState{snippets: []model.CommunitySnippet{}}
}

func (s *CommunityState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		MySnippets:      make([]model.CommunitySnippet, len(s.snippets)),
		SnippetsFetched: s.fetched,
		Loading:         s.pending > 0,
		Error:           s.lastErr,
	}
	copy(snap.MySnippets, s.snippets)
	if s.current != nil {
		c := *s.current
		snap.CurrentCommunity = &c
	}
	return snap
}

// IsJoined reports whether the cached snippets include communityID.
func (s *CommunityState) IsJoined(communityID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(communityID) >= 0
}

func (s *CommunityState) currentCommunity() (model.Community, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return model.Community{}, false
	}
	return *s.current, true
}

func (s *CommunityState) setCurrent(c model.Community) {
	s.mu.Lock()
	s.current = &c
	s.mu.Unlock()
}

func (s *CommunityState) replaceSnippets(snippets []model.CommunitySnippet) {
	cp := make([]model.CommunitySnippet, len(snippets))
	copy(cp, snippets)

	s.mu.Lock()
	s.snippets = cp
	s.fetched = true
	s.mu.Unlock()
}

// putSnippet appends the snippet, replacing an entry for the same community
// so the cache never holds two records for one community.
func (s *CommunityState) putSnippet(snippet model.CommunitySnippet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(snippet.CommunityID); i >= 0 {
		s.snippets[i] = snippet
		return
	}
	s.snippets = append(s.snippets, snippet)
}

func (s *CommunityState) removeSnippet(communityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.snippets[:0]
	for _, sn := range s.snippets {
		if sn.CommunityID != communityID {
			kept = append(kept, sn)
		}
	}
	s.snippets = kept
}

// resetSnippets drops the membership view of the previous identity.
func (s *CommunityState) resetSnippets() {
	s.mu.Lock()
	s.snippets = []model.CommunitySnippet{}
	s.fetched = false
	s.mu.Unlock()
}

// begin marks an operation as started: loading turns on and the previous
// error is cleared.
func (s *CommunityState) begin() {
	s.mu.Lock()
	s.pending++
	s.lastErr = ""
	s.mu.Unlock()
}

// settle ends an operation started with begin. A non-empty msg is kept as
// the error state.
func (s *CommunityState) settle(msg string) {
	s.mu.Lock()
	if s.pending > 0 {
		s.pending--
	}
	if msg != "" {
		s.lastErr = msg
	}
	s.mu.Unlock()
}

func (s *CommunityState) setError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
}

func (s *CommunityState) indexOf(communityID string) int {
	for i, sn := range s.snippets {
		if sn.CommunityID == communityID {
			return i
		}
	}
	return -1
}
