package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"Community_Sync/internal/pkg"
)

const (
	ActionJoin  = "join"
	ActionLeave = "leave"
)

// MembershipEvent describes an applied join or leave. TotalMembers is the
// count the acting session expects after the change; the stored counter stays
// authoritative.
type MembershipEvent struct {
	ID           string    `json:"id"`
	Action       string    `json:"action"`
	UserID       string    `json:"userId"`
	CommunityID  string    `json:"communityId"`
	IsModerator  bool      `json:"isModerator"`
	TotalMembers int64     `json:"totalMembers"`
	Timestamp    time.Time `json:"timestamp"`
}

func newMembershipEvent(action, userID, communityID string, isModerator bool, total int64) MembershipEvent {
	return MembershipEvent{
		ID:           ulid.Make().String(),
		Action:       action,
		UserID:       userID,
		CommunityID:  communityID,
		IsModerator:  isModerator,
		TotalMembers: total,
		Timestamp:    time.Now().UTC(),
	}
}

type EventPublisher interface {
	Publish(ctx context.Context, ev MembershipEvent) error
}

// KafkaEventPublisher sends events keyed by community id.
type KafkaEventPublisher struct {
	producer *pkg.KafkaProducer
}

func NewKafkaEventPublisher(p *pkg.KafkaProducer) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: p}
}

func (k *KafkaEventPublisher) Publish(ctx context.Context, ev MembershipEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return k.producer.Send(ctx, ev.CommunityID, payload)
}
