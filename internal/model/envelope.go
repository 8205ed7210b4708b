package model

import (
	"encoding/json"
	"time"
)

// Envelope is the exact object serialized, signed, and POSTed to a
// subscriber endpoint. The timestamp rides inside the signed body so
// receivers can reject stale signatures; the sender does not enforce a
// freshness window itself.
type Envelope struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"` // RFC 3339 UTC
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope builds the envelope for one event occurrence.
func NewEnvelope(ev Event) Envelope {
	return Envelope{
		Event:     ev.Type.String(),
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
		Data:      ev.Payload,
	}
}
