package model

import (
	"encoding/json"
	"time"
)

// Envelope is the payload published to Kafka for an accepted event
// (via the Debezium outbox SMT). The dispatcher consumes it to run rule
// matching; the event row stays the source of truth.
type Envelope struct {
	EventID    string          `json:"eventId"`
	Source     string          `json:"source"`
	Type       string          `json:"type"`
	Subject    Subject         `json:"subject"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// Snapshot freezes the envelope into the form stored on jobs.
func (e Envelope) Snapshot() EventSnapshot {
	return EventSnapshot{
		ID:         e.EventID,
		Source:     e.Source,
		Type:       e.Type,
		Subject:    e.Subject,
		Payload:    e.Payload,
		OccurredAt: e.OccurredAt,
	}
}
