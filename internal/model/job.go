package model

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobQueued     JobStatus = "QUEUED"
	JobProcessing JobStatus = "PROCESSING"
	JobSucceeded  JobStatus = "SUCCEEDED"
	JobFailed     JobStatus = "FAILED"
	JobDead       JobStatus = "DEAD"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobProcessing, JobSucceeded, JobFailed, JobDead:
		return true
	}
	return false
}

// Terminal reports whether the job needs no further scheduling.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobDead
}

const DefaultMaxAttempts = 3

// Job is one scheduled execution of one action for one event; the unit
// of retry and concurrency control. Payload is a snapshot taken at
// creation time and never changes if the source rule or event mutates.
type Job struct {
	ID          string          `db:"id"`
	EventID     string          `db:"event_id"`
	RuleID      *string         `db:"rule_id"`   // nullable if rule deleted later
	ActionID    *string         `db:"action_id"` // nullable likewise
	Kind        ActionKind      `db:"kind"`
	Status      JobStatus       `db:"status"`
	Attempts    int             `db:"attempts"`
	MaxAttempts int             `db:"max_attempts"`
	Payload     json.RawMessage `db:"payload"`
	LastError   *string         `db:"last_error"`
	NextRunAt   *time.Time      `db:"next_run_at"` // nil or <= now means due
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// JobPayload is the snapshot stored in Job.Payload: the event context the
// executor renders templates against, plus the raw action config.
type JobPayload struct {
	Event  EventSnapshot   `json:"event"`
	Config json.RawMessage `json:"config"`
}

// EventSnapshot is the slice of an event frozen into a job payload.
type EventSnapshot struct {
	ID         string          `json:"eventId"`
	Source     string          `json:"source"`
	Type       string          `json:"type"`
	Subject    Subject         `json:"subject"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

type Subject struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}
