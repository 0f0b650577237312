package model

import (
	"encoding/json"
	"time"
)

type EventStatus string

const (
	EventAccepted   EventStatus = "ACCEPTED"
	EventProcessing EventStatus = "PROCESSING"
	EventDone       EventStatus = "DONE"
	EventFailed     EventStatus = "FAILED"
)

func (s EventStatus) String() string { return string(s) }

func (s EventStatus) Valid() bool {
	switch s {
	case EventAccepted, EventProcessing, EventDone, EventFailed:
		return true
	}
	return false
}

// Event is an immutable fact once accepted; only status moves afterwards.
type Event struct {
	ID             string          `db:"id"`
	Source         string          `db:"source"`
	Type           string          `db:"type"`
	SubjectKind    string          `db:"subject_kind"`
	SubjectID      string          `db:"subject_id"`
	Payload        json.RawMessage `db:"payload"`
	OccurredAt     time.Time       `db:"occurred_at"`
	ReceivedAt     time.Time       `db:"received_at"`
	IdempotencyKey *string         `db:"idempotency_key"` // nullable, unique
	Status         EventStatus     `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}
