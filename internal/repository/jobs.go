package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmoiron/sqlx"
)

// JobsRepository defines persistence for the jobs table. Claim is the
// correctness-critical operation: a conditional QUEUED→PROCESSING update
// that exactly one concurrent worker can win.
type JobsRepository interface {
	InsertBatch(ctx context.Context, tx *sqlx.Tx, jobs []model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	// SelectDue lists QUEUED jobs whose next_run_at is null or past,
	// oldest-due first, bounded.
	SelectDue(ctx context.Context, now time.Time, limit int) ([]model.Job, error)
	// Claim transitions QUEUED→PROCESSING iff still QUEUED. Losers of
	// the race get (false, nil) and skip the job.
	Claim(ctx context.Context, id string) (bool, error)
	MarkSucceeded(ctx context.Context, tx *sqlx.Tx, id string, attempts int) error
	// MarkRetry requeues a failed job with its new attempt count, error
	// and next eligible time.
	MarkRetry(ctx context.Context, tx *sqlx.Tx, id string, attempts int, lastErr string, nextRunAt time.Time) error
	MarkDead(ctx context.Context, tx *sqlx.Tx, id string, attempts int, lastErr string) error
	// Reschedule returns a PROCESSING job to QUEUED without consuming an
	// attempt (circuit short-circuit path).
	Reschedule(ctx context.Context, id string, nextRunAt time.Time) error
	// RecoverStuck reverts jobs stuck PROCESSING since before cutoff:
	// back to QUEUED, or DEAD when attempts are exhausted. Returns
	// (requeued, killed).
	RecoverStuck(ctx context.Context, cutoff time.Time) (int64, int64, error)
	CountByEventAndStatus(ctx context.Context, eventID string, status model.JobStatus) (int, error)
}

type JobsRepositoryImpl struct {
	db *sqlx.DB
}

func NewJobsRepository(db *sqlx.DB) *JobsRepositoryImpl {
	return &JobsRepositoryImpl{db: db}
}

var _ JobsRepository = (*JobsRepositoryImpl)(nil)

func (r *JobsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *JobsRepositoryImpl) InsertBatch(ctx context.Context, tx *sqlx.Tx, jobs []model.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	const q = `
		INSERT INTO jobs
		    (id, event_id, rule_id, action_id, kind, status, attempts, max_attempts, payload, next_run_at, created_at, updated_at)
		VALUES
		    (?,  ?,        ?,       ?,         ?,    'QUEUED', 0,      ?,            ?,       ?,           NOW(),      NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		for _, j := range jobs {
			if _, err := tx.ExecContext(ctx, q,
				j.ID, j.EventID, j.RuleID, j.ActionID, j.Kind.String(),
				j.MaxAttempts, []byte(j.Payload), j.NextRunAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

const jobColumns = `
	id, event_id, rule_id, action_id, kind, status, attempts, max_attempts,
	payload, last_error, next_run_at, created_at, updated_at
`

func (r *JobsRepositoryImpl) Get(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	err := r.db.GetContext(ctx, &j, `SELECT `+jobColumns+` FROM jobs WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *JobsRepositoryImpl) SelectDue(ctx context.Context, now time.Time, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT ` + jobColumns + `
		  FROM jobs
		 WHERE status = 'QUEUED'
		   AND (next_run_at IS NULL OR next_run_at <= ?)
		 ORDER BY next_run_at ASC
		 LIMIT ?
	`
	var jobs []model.Job
	if err := r.db.SelectContext(ctx, &jobs, q, now, limit); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *JobsRepositoryImpl) Claim(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		   SET status = 'PROCESSING', updated_at = NOW()
		 WHERE id = ? AND status = 'QUEUED'
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *JobsRepositoryImpl) MarkSucceeded(ctx context.Context, tx *sqlx.Tx, id string, attempts int) error {
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE jobs
			   SET status = 'SUCCEEDED', attempts = ?, last_error = NULL, next_run_at = NULL, updated_at = NOW()
			 WHERE id = ?
		`, attempts, id)
		return err
	})
}

func (r *JobsRepositoryImpl) MarkRetry(ctx context.Context, tx *sqlx.Tx, id string, attempts int, lastErr string, nextRunAt time.Time) error {
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE jobs
			   SET status = 'QUEUED', attempts = ?, last_error = ?, next_run_at = ?, updated_at = NOW()
			 WHERE id = ?
		`, attempts, lastErr, nextRunAt, id)
		return err
	})
}

func (r *JobsRepositoryImpl) MarkDead(ctx context.Context, tx *sqlx.Tx, id string, attempts int, lastErr string) error {
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE jobs
			   SET status = 'DEAD', attempts = ?, last_error = ?, next_run_at = NULL, updated_at = NOW()
			 WHERE id = ?
		`, attempts, lastErr, id)
		return err
	})
}

func (r *JobsRepositoryImpl) Reschedule(ctx context.Context, id string, nextRunAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		   SET status = 'QUEUED', next_run_at = ?, updated_at = NOW()
		 WHERE id = ? AND status = 'PROCESSING'
	`, nextRunAt, id)
	return err
}

func (r *JobsRepositoryImpl) RecoverStuck(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	var requeued, killed int64
	err := r.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs
			   SET status = 'QUEUED', next_run_at = NOW(), updated_at = NOW()
			 WHERE status = 'PROCESSING' AND updated_at < ? AND attempts < max_attempts
		`, cutoff)
		if err != nil {
			return err
		}
		if requeued, err = res.RowsAffected(); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE jobs
			   SET status = 'DEAD', last_error = COALESCE(last_error, 'worker lost'), next_run_at = NULL, updated_at = NOW()
			 WHERE status = 'PROCESSING' AND updated_at < ? AND attempts >= max_attempts
		`, cutoff)
		if err != nil {
			return err
		}
		killed, err = res.RowsAffected()
		return err
	})
	return requeued, killed, err
}

func (r *JobsRepositoryImpl) CountByEventAndStatus(ctx context.Context, eventID string, status model.JobStatus) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM jobs WHERE event_id = ? AND status = ?`, eventID, status.String())
	return n, err
}
