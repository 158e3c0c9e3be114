package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"Community_Sync/internal/docstore"
	"Community_Sync/internal/model"
)

// CommunityService keeps currentCommunity in line with the community being viewed.
type CommunityService struct {
	store docstore.Store
	state *CommunityState
}

func NewCommunityService(store docstore.Store, state *CommunityState) *CommunityService {
	return &CommunityService{store: store, state: state}
}

// ViewCommunity is called when communityID becomes the subject of the view.
// The cached record is reused when it matches; otherwise the record is read
// and replaces currentCommunity. A failed read leaves the cache untouched.
func (s *CommunityService) ViewCommunity(ctx context.Context, communityID string) (model.Community, error) {
	if err := docstore.ValidatePath(model.CommunitiesCollection, communityID); err != nil {
		return model.Community{}, fmt.Errorf("%w: %v", ErrInvalidCommunity, err)
	}
	if cur, ok := s.state.currentCommunity(); ok && cur.ID == communityID {
		return cur, nil
	}

	c, err := s.Fetch(ctx, communityID)
	if err != nil {
		if !errors.Is(err, ErrCommunityNotFound) {
			glog.Warningf("community: load %s: %v", communityID, err)
		}
		s.state.setError(err.Error())
		return model.Community{}, err
	}
	s.state.setCurrent(c)
	return c, nil
}

// SetCurrentCommunity adopts a record fetched elsewhere, e.g. by the page
// that rendered the community.
func (s *CommunityService) SetCurrentCommunity(c model.Community) error {
	if err := docstore.ValidatePath(model.CommunitiesCollection, c.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommunity, err)
	}
	if c.NumberOfMembers < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidCommunity, model.ErrNegativeCount)
	}
	s.state.setCurrent(c)
	return nil
}

// Fetch reads a community without touching the cache.
func (s *CommunityService) Fetch(ctx context.Context, communityID string) (model.Community, error) {
	doc, err := s.store.Get(ctx, model.CommunitiesCollection, communityID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return model.Community{}, fmt.Errorf("%w: %s", ErrCommunityNotFound, communityID)
	case err != nil:
		return model.Community{}, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	c, err := model.DecodeCommunity(doc.ID, doc.Fields)
	if err != nil {
		return model.Community{}, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	return c, nil
}
