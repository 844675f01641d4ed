package events

import (
	"context"
	"time"
)

// StreamRewards carries every settlement outcome; the websocket feed and the
// reconciler both subscribe to it.
const StreamRewards = "events:rewards"

// Event types
const (
	EventLikeRewarded      = "like_rewarded"
	EventRewardFailed      = "reward_failed"
	EventRewardReconciled  = "reward_reconciled"
	EventContentCreated    = "content_created"
	EventWalletRegistered  = "wallet_registered"
	EventTransferSubmitted = "transfer_submitted"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
