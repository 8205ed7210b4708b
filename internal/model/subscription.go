package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionFailing   SubscriptionStatus = "failing"
	SubscriptionSuspended SubscriptionStatus = "suspended"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Valid() bool {
	return s == SubscriptionActive || s == SubscriptionFailing || s == SubscriptionSuspended
}

// EventFilterWildcard in a subscription's event filter matches every event type.
const EventFilterWildcard = "*"

// Subscription is the DB entity persisted in the subscriptions table.
// Events and Headers are stored as JSON columns.
type Subscription struct {
	ID                  string             `db:"id" json:"id"`
	OwnerID             *int64             `db:"owner_id" json:"owner_id,omitempty"` // nil = platform-wide
	URL                 string             `db:"url" json:"url"`
	Secret              string             `db:"secret" json:"-"` // never serialized or logged
	Events              StringList         `db:"events" json:"events"`
	Headers             StringMap          `db:"headers" json:"headers,omitempty"`
	VerifySSL           bool               `db:"verify_ssl" json:"verify_ssl"`
	MaxRetries          int                `db:"max_retries" json:"max_retries"`
	MaxConcurrency      int                `db:"max_concurrency" json:"max_concurrency"`
	Status              SubscriptionStatus `db:"status" json:"status"`
	ConsecutiveFailures int                `db:"consecutive_failures" json:"consecutive_failures"`
	LastSuccessAt       *time.Time         `db:"last_success_at" json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time         `db:"last_failure_at" json:"last_failure_at,omitempty"`
	CreatedAt           time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `db:"updated_at" json:"updated_at"`
}

// Matches reports whether the subscription should receive an event of the
// given type and scope. Status is checked by the caller's query, not here.
func (s *Subscription) Matches(eventType string, scope *int64) bool {
	if !s.filterContains(eventType) {
		return false
	}
	if scope == nil {
		return true
	}
	return s.OwnerID == nil || *s.OwnerID == *scope
}

func (s *Subscription) filterContains(eventType string) bool {
	for _, e := range s.Events {
		if e == EventFilterWildcard || e == eventType {
			return true
		}
	}
	return false
}

// StringList is a []string stored as a JSON column.
type StringList []string

func (l *StringList) Scan(src any) error {
	return scanJSON(src, l)
}

func (l StringList) Value() (any, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

// StringMap is a map[string]string stored as a JSON column.
type StringMap map[string]string

func (m *StringMap) Scan(src any) error {
	return scanJSON(src, m)
}

func (m StringMap) Value() (any, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
