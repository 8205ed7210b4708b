package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType identifies a platform occurrence broadcast to subscribers.
// The set is closed: new event types are explicit additions here.
type EventType string

const (
	PostPublished         EventType = "post.published"
	PostUpdated           EventType = "post.updated"
	PostDeleted           EventType = "post.deleted"
	PayoutCreated         EventType = "payout.created"
	SubscriptionCreated   EventType = "subscription.created"
	SubscriptionCancelled EventType = "subscription.cancelled"
	FollowerCreated       EventType = "follower.created"
	CommentPosted         EventType = "comment.posted"
)

func (t EventType) String() string {
	return string(t)
}

// catalog maps every known event type to its human label, used by the admin
// UI to populate selection lists.
var catalog = map[EventType]string{
	PostPublished:         "Post published",
	PostUpdated:           "Post updated",
	PostDeleted:           "Post deleted",
	PayoutCreated:         "Payout made",
	SubscriptionCreated:   "Subscription started",
	SubscriptionCancelled: "Subscription cancelled",
	FollowerCreated:       "New follower",
	CommentPosted:         "Comment posted",
}

// Catalog returns a copy of the event-type -> label map.
func Catalog() map[EventType]string {
	out := make(map[EventType]string, len(catalog))
	for k, v := range catalog {
		out[k] = v
	}
	return out
}

// ParseEventType validates a raw event-type string against the catalog.
func ParseEventType(name string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := catalog[t]; !ok {
		return "", fmt.Errorf("unknown event type: %s", name)
	}
	return t, nil
}

// KnownEventType reports whether name, or the wildcard, is in the catalog.
func KnownEventType(name string) bool {
	if name == EventFilterWildcard {
		return true
	}
	_, ok := catalog[EventType(name)]
	return ok
}

// Event is an ephemeral occurrence flowing through the dispatch pipeline.
// It is never persisted as an entity; only its delivery attempts are.
type Event struct {
	ID        string          `json:"id"` // ULID, for attempt correlation
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Scope     *int64          `json:"scope,omitempty"` // owning principal, if any
}
