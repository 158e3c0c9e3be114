package model

import (
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

const (
	CommunitiesCollection = "communities"
	MemberCountField      = "numberOfMembers"
)

var (
	ErrMissingID      = errors.New("community id missing")
	ErrNegativeCount  = errors.New("numberOfMembers is negative")
	ErrMalformedField = errors.New("malformed document field")
)

// Community is a topical group. NumberOfMembers is a denormalized counter
// kept in step with the snippet records by the membership batches.
type Community struct {
	ID              string `mapstructure:"-" json:"id"`
	CreatorID       string `mapstructure:"creatorId" json:"creatorId"`
	NumberOfMembers int64  `mapstructure:"numberOfMembers" json:"numberOfMembers"`
	ImageURL        string `mapstructure:"imageURL" json:"imageURL,omitempty"`
}

// CommunitySnippet is one user's membership in one community.
type CommunitySnippet struct {
	CommunityID string `mapstructure:"communityId" json:"communityId"`
	ImageURL    string `mapstructure:"imageURL" json:"imageURL"`
	IsModerator bool   `mapstructure:"isModerator" json:"isModerator"`
}

// SnippetsCollection is the per-user collection holding CommunitySnippets keyed by community id.
func SnippetsCollection(userID string) string {
	return fmt.Sprintf("users/%s/communitySnippets", userID)
}

// NewSnippet builds the membership record for userID joining c.
func NewSnippet(userID string, c Community) CommunitySnippet {
	return CommunitySnippet{
		CommunityID: c.ID,
		ImageURL:    c.ImageURL,
		IsModerator: userID != "" && userID == c.CreatorID,
	}
}

// Fields is the document body written for a snippet.
func (s CommunitySnippet) Fields() map[string]any {
	return map[string]any{
		"communityId": s.CommunityID,
		"imageURL":    s.ImageURL,
		"isModerator": s.IsModerator,
	}
}

// Fields is the document body written for a community.
func (c Community) Fields() map[string]any {
	f := map[string]any{
		"creatorId":      c.CreatorID,
		MemberCountField: c.NumberOfMembers,
	}
	if c.ImageURL != "" {
		f["imageURL"] = c.ImageURL
	}
	return f
}

// DecodeCommunity validates and defaults a stored community body.
func DecodeCommunity(id string, fields map[string]any) (Community, error) {
	if id == "" {
		return Community{}, ErrMissingID
	}
	var c Community
	if err := decode(fields, &c); err != nil {
		return Community{}, fmt.Errorf("community %s: %w", id, err)
	}
	if c.NumberOfMembers < 0 {
		return Community{}, fmt.Errorf("community %s: %w", id, ErrNegativeCount)
	}
	c.ID = id
	return c, nil
}

// DecodeSnippet validates a stored snippet body. The document id is the
// community id and wins over a missing or stale communityId field.
func DecodeSnippet(id string, fields map[string]any) (CommunitySnippet, error) {
	if id == "" {
		return CommunitySnippet{}, ErrMissingID
	}
	var s CommunitySnippet
	if err := decode(fields, &s); err != nil {
		return CommunitySnippet{}, fmt.Errorf("snippet %s: %w", id, err)
	}
	s.CommunityID = id
	return s, nil
}

func decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ZeroFields:       true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedField, err)
	}
	return nil
}
