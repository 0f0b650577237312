package model

import "time"

type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

func (s CircuitState) String() string { return string(s) }

func (s CircuitState) Valid() bool {
	switch s {
	case CircuitClosed, CircuitOpen, CircuitHalfOpen:
		return true
	}
	return false
}

// WebhookCircuit is the per-target fault-tracking row, keyed by the
// normalized authority of the webhook destination. One row per target,
// created lazily on first failure.
type WebhookCircuit struct {
	Key           string       `db:"key"`
	State         CircuitState `db:"state"`
	FailureCount  int          `db:"failure_count"`
	OpenedAt      *time.Time   `db:"opened_at"`
	LastFailureAt *time.Time   `db:"last_failure_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}
