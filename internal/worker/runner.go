package worker

import (
	"context"
	"time"

	"github.com/jmehdipour/zoohub/internal/circuit"
	"github.com/jmehdipour/zoohub/internal/executor"
	"github.com/jmehdipour/zoohub/internal/logger"
	"github.com/jmehdipour/zoohub/internal/metrics"
	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmehdipour/zoohub/internal/repository"
	"github.com/jmehdipour/zoohub/internal/retry"
	"github.com/jmehdipour/zoohub/internal/util"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// CircuitGate is the breaker surface the runner consults before and
// after webhook calls.
type CircuitGate interface {
	Acquire(ctx context.Context, key string) (circuit.Decision, error)
	OnSuccess(ctx context.Context, tx *sqlx.Tx, key string) error
	OnFailure(ctx context.Context, tx *sqlx.Tx, key string) error
}

// Runner is the job scheduling core:
// - polls for due QUEUED jobs,
// - claims each with a conditional update (exactly one worker wins),
// - fans claimed jobs out to processor goroutines,
// - gates webhook targets through the circuit breaker,
// - executes, then writes attempt + job + circuit in one transaction,
// - periodically recovers jobs orphaned in PROCESSING by dead workers.
type Runner struct {
	// Dependencies
	DB       *sqlx.DB
	Jobs     repository.JobsRepository
	Attempts repository.AttemptsRepository
	Gate     CircuitGate
	Execs    executor.Registry
	Policy   retry.Policy

	// Behavior
	Workers           int           // processor goroutines
	BatchSize         int           // max claims per poll
	PollInterval      time.Duration // wait between polls
	IdleDelay         time.Duration // extra wait after an empty poll
	LivenessThreshold time.Duration // PROCESSING older than this is orphaned
	SweepInterval     time.Duration // recovery sweep cadence

	// runTx runs fn in a store transaction; replaced in tests.
	runTx func(ctx context.Context, fn func(*sqlx.Tx) error) error

	// now is the clock; replaced in tests.
	now func() time.Time
}

// NewRunner builds a runner with sane defaults.
func NewRunner(
	db *sqlx.DB,
	jobs repository.JobsRepository,
	attempts repository.AttemptsRepository,
	gate CircuitGate,
	execs executor.Registry,
	policy retry.Policy,
) *Runner {
	r := &Runner{
		DB:                db,
		Jobs:              jobs,
		Attempts:          attempts,
		Gate:              gate,
		Execs:             execs,
		Policy:            policy,
		Workers:           16,
		BatchSize:         50,
		PollInterval:      500 * time.Millisecond,
		IdleDelay:         800 * time.Millisecond,
		LivenessThreshold: 5 * time.Minute,
		SweepInterval:     time.Minute,
		now:               func() time.Time { return time.Now().UTC() },
	}
	r.runTx = r.storeTx
	return r
}

func (r *Runner) storeTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Run starts the poll loop and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.Workers <= 0 {
		r.Workers = 16
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 50
	}
	if r.PollInterval <= 0 {
		r.PollInterval = 500 * time.Millisecond
	}
	if r.IdleDelay <= 0 {
		r.IdleDelay = 800 * time.Millisecond
	}
	if r.LivenessThreshold <= 0 {
		r.LivenessThreshold = 5 * time.Minute
	}
	if r.SweepInterval <= 0 {
		r.SweepInterval = time.Minute
	}

	jobCh := make(chan model.Job, r.Workers*2)
	defer close(jobCh)

	for i := 0; i < r.Workers; i++ {
		go r.runProcessor(ctx, jobCh)
	}

	go r.runSweeper(ctx)

	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	logger.Log.Info("runner started",
		zap.Int("workers", r.Workers), zap.Int("batch", r.BatchSize),
		zap.Duration("poll", r.PollInterval))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			claimed, err := r.pollOnce(ctx, jobCh)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// store hiccup: abort this cycle, retry on the next poll
				logger.Log.Warn("runner: poll failed", zap.Error(err))
				continue
			}
			if claimed == 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(r.IdleDelay):
				}
			}
		}
	}
}

// pollOnce selects due jobs and claims them; losers of a claim race are
// silently skipped. Returns the number of jobs handed to processors.
func (r *Runner) pollOnce(ctx context.Context, out chan<- model.Job) (int, error) {
	due, err := r.Jobs.SelectDue(ctx, r.now(), r.BatchSize)
	if err != nil {
		return 0, err
	}

	claimed := 0
	for _, j := range due {
		ok, err := r.Jobs.Claim(ctx, j.ID)
		if err != nil {
			return claimed, err
		}
		if !ok {
			continue // another worker won
		}
		j.Status = model.JobProcessing
		select {
		case <-ctx.Done():
			return claimed, ctx.Err()
		case out <- j:
			claimed++
		}
	}
	return claimed, nil
}

func (r *Runner) runProcessor(ctx context.Context, in <-chan model.Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-in:
			if !ok {
				return
			}
			r.processOne(ctx, j)
		}
	}
}

// processOne executes a claimed job end to end. Nothing here may panic
// or return: every path ends with the job in a well-defined state (or
// left PROCESSING for the sweeper after a store failure).
func (r *Runner) processOne(ctx context.Context, job model.Job) {
	// circuit gate for webhook targets
	key, gated := executor.CircuitKey(job)
	if gated {
		d, err := r.Gate.Acquire(ctx, key)
		if err != nil {
			logger.Log.Warn("runner: circuit acquire failed",
				zap.String("job_id", job.ID), zap.String("key", key), zap.Error(err))
			r.reschedule(ctx, job, r.now().Add(r.IdleDelay))
			return
		}
		if !d.Allow {
			// short-circuit: no attempt consumed, try again after cool-down
			r.reschedule(ctx, job, d.RetryAt)
			return
		}
	}

	started := r.now()
	outcome := r.Execs.Execute(ctx, job)
	finished := r.now()

	attemptNo := job.Attempts + 1

	attempt := model.JobAttempt{
		ID:         util.NewID(),
		JobID:      job.ID,
		AttemptNo:  attemptNo,
		Result:     outcome.Result,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if outcome.Success {
		attempt.Status = model.AttemptSucceeded
	} else {
		attempt.Status = model.AttemptFailed
		errStr := outcome.Err
		attempt.Error = &errStr
	}

	// attempt row + job status + circuit update: one logical transaction
	err := r.runTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.Attempts.Insert(ctx, tx, attempt); err != nil {
			return err
		}

		if outcome.Success {
			if err := r.Jobs.MarkSucceeded(ctx, tx, job.ID, attemptNo); err != nil {
				return err
			}
			if gated {
				return r.Gate.OnSuccess(ctx, tx, key)
			}
			return nil
		}

		if r.Policy.Terminal(attemptNo, job.MaxAttempts) {
			if err := r.Jobs.MarkDead(ctx, tx, job.ID, attemptNo, outcome.Err); err != nil {
				return err
			}
		} else {
			nextRun := r.Policy.NextRunAt(finished, attemptNo, nil)
			if err := r.Jobs.MarkRetry(ctx, tx, job.ID, attemptNo, outcome.Err, nextRun); err != nil {
				return err
			}
		}
		if gated {
			return r.Gate.OnFailure(ctx, tx, key)
		}
		return nil
	})
	if err != nil {
		// job stays PROCESSING; the liveness sweep will requeue it
		logger.Log.Error("runner: bookkeeping failed",
			zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	kind := job.Kind.String()
	if outcome.Success {
		metrics.AttemptsTotal.WithLabelValues("succeeded", kind).Inc()
		metrics.JobsTotal.WithLabelValues("succeeded", kind).Inc()
	} else {
		metrics.AttemptsTotal.WithLabelValues("failed", kind).Inc()
		if r.Policy.Terminal(attemptNo, job.MaxAttempts) {
			metrics.JobsTotal.WithLabelValues("dead", kind).Inc()
			logger.Log.Warn("runner: job dead",
				zap.String("job_id", job.ID), zap.Int("attempts", attemptNo), zap.String("error", outcome.Err))
		} else {
			metrics.JobsTotal.WithLabelValues("retried", kind).Inc()
		}
	}
}

func (r *Runner) reschedule(ctx context.Context, job model.Job, at time.Time) {
	if at.Before(r.now()) {
		at = r.now().Add(r.IdleDelay)
	}
	if err := r.Jobs.Reschedule(ctx, job.ID, at); err != nil {
		logger.Log.Error("runner: reschedule failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}
}

// runSweeper reverts jobs orphaned in PROCESSING by crashed workers.
func (r *Runner) runSweeper(ctx context.Context) {
	tick := time.NewTicker(r.SweepInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			cutoff := r.now().Add(-r.LivenessThreshold)
			requeued, killed, err := r.Jobs.RecoverStuck(ctx, cutoff)
			if err != nil {
				logger.Log.Warn("runner: recovery sweep failed", zap.Error(err))
				continue
			}
			if requeued > 0 || killed > 0 {
				logger.Log.Info("runner: recovered stuck jobs",
					zap.Int64("requeued", requeued), zap.Int64("dead", killed))
			}
		}
	}
}
