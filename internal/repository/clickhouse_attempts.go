package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// AttemptReport is the denormalized attempt-history row served by the
// reports endpoint from ClickHouse.
type AttemptReport struct {
	ID         string    `db:"id"`
	JobID      string    `db:"job_id"`
	EventID    string    `db:"event_id"`
	Kind       string    `db:"kind"`
	AttemptNo  int       `db:"attempt_no"`
	Status     string    `db:"status"`
	Error      *string   `db:"error"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

// CHAttemptsRepository lists attempt history from ClickHouse (final view).
type CHAttemptsRepository interface {
	List(ctx context.Context, eventID, jobID, status string, limit, offset int) ([]AttemptReport, error)
}

type chAttemptsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHAttemptsRepository(ch *sqlx.DB) CHAttemptsRepository {
	return &chAttemptsRepository{ch: ch}
}

func (r *chAttemptsRepository) List(ctx context.Context, eventID, jobID, status string, limit, offset int) ([]AttemptReport, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, job_id, event_id, kind, attempt_no, status, error, started_at, finished_at
		FROM zoohub.job_attempts_latest
		WHERE 1 = 1
	`
	args := []any{}

	if eventID != "" {
		q += " AND event_id = ?"
		args = append(args, eventID)
	}
	if jobID != "" {
		q += " AND job_id = ?"
		args = append(args, jobID)
	}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status)
	}

	q += " ORDER BY finished_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []AttemptReport
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
