package model

import (
	"encoding/json"
	"time"
)

type AttemptStatus string

const (
	AttemptSucceeded AttemptStatus = "SUCCEEDED"
	AttemptFailed    AttemptStatus = "FAILED"
)

func (s AttemptStatus) String() string { return string(s) }

// JobAttempt is the append-only audit record of one execution try.
// Never mutated once finished_at is set; attempt_no ordering is the
// canonical history of a job.
type JobAttempt struct {
	ID         string          `db:"id"`
	JobID      string          `db:"job_id"`
	AttemptNo  int             `db:"attempt_no"` // 1-based
	Status     AttemptStatus   `db:"status"`
	Error      *string         `db:"error"`
	Result     json.RawMessage `db:"result"`
	StartedAt  time.Time       `db:"started_at"`
	FinishedAt time.Time       `db:"finished_at"`
}
