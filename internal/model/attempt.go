package model

import "time"

// DeliveryAttempt is one HTTP try of one envelope against one subscription.
// Rows are append-only: never updated or deleted in the delivery path, only
// purged by the retention job.
type DeliveryAttempt struct {
	ID              int64     `db:"id" json:"-"`
	AttemptID       string    `db:"attempt_id" json:"attempt_id"` // ULID
	SubscriptionID  string    `db:"subscription_id" json:"subscription_id"`
	EventID         string    `db:"event_id" json:"event_id"`
	EventType       string    `db:"event_type" json:"event_type"`
	AttemptNo       int       `db:"attempt_no" json:"attempt_no"` // 1-based
	RequestBody     []byte    `db:"request_body" json:"request_body"`
	StatusCode      *int      `db:"status_code" json:"status_code,omitempty"` // nil on network failure
	ResponseSnippet string    `db:"response_snippet" json:"response_snippet,omitempty"`
	Success         bool      `db:"success" json:"success"`
	Skipped         bool      `db:"skipped" json:"skipped"` // subscription gone or suspended mid-flight
	Error           *string   `db:"error" json:"error,omitempty"`
	LatencyMs       int64     `db:"latency_ms" json:"latency_ms"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
