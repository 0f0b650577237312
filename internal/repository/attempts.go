package repository

import (
	"context"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmoiron/sqlx"
)

// AttemptsRepository defines persistence for the append-only
// job_attempts audit table. Rows are never updated once written;
// attempt_no ordering is the canonical execution history of a job.
type AttemptsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, a model.JobAttempt) error
	ListByJob(ctx context.Context, jobID string) ([]model.JobAttempt, error)
}

type AttemptsRepositoryImpl struct {
	db *sqlx.DB
}

func NewAttemptsRepository(db *sqlx.DB) *AttemptsRepositoryImpl {
	return &AttemptsRepositoryImpl{db: db}
}

var _ AttemptsRepository = (*AttemptsRepositoryImpl)(nil)

func (r *AttemptsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *AttemptsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, a model.JobAttempt) error {
	const q = `
		INSERT INTO job_attempts
		    (id, job_id, attempt_no, status, error, result, started_at, finished_at)
		VALUES
		    (?,  ?,      ?,          ?,      ?,     ?,      ?,          ?)
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			a.ID, a.JobID, a.AttemptNo, a.Status.String(), a.Error, []byte(a.Result),
			a.StartedAt, a.FinishedAt,
		)
		return err
	})
}

func (r *AttemptsRepositoryImpl) ListByJob(ctx context.Context, jobID string) ([]model.JobAttempt, error) {
	var out []model.JobAttempt
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, job_id, attempt_no, status, error, result, started_at, finished_at
		  FROM job_attempts
		 WHERE job_id = ?
		 ORDER BY attempt_no ASC
	`, jobID)
	return out, err
}
