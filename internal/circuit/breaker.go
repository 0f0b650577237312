package circuit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/zoohub/internal/metrics"
	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmehdipour/zoohub/internal/repository"
	"github.com/jmoiron/sqlx"
)

// Breaker gates webhook calls per target key. All state lives in the
// webhook_circuit row so any number of workers share one view; the row
// lock is the only synchronization (no in-memory caching, no
// split-brain).
type Breaker struct {
	db       *sqlx.DB
	circuits repository.CircuitsRepository
	cfg      Config

	// runTx runs fn in a store transaction; replaced in tests.
	runTx func(ctx context.Context, fn func(*sqlx.Tx) error) error
	now   func() time.Time
}

func NewBreaker(db *sqlx.DB, circuits repository.CircuitsRepository, cfg Config) *Breaker {
	b := &Breaker{db: db, circuits: circuits, cfg: cfg.normalized()}
	b.runTx = b.storeTx
	b.now = time.Now
	return b
}

func (b *Breaker) storeTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Acquire decides whether a call to key may proceed right now. Runs its
// own short transaction: lock row, evaluate, persist the mutation,
// commit before the outbound call starts.
func (b *Breaker) Acquire(ctx context.Context, key string) (Decision, error) {
	var d Decision
	err := b.runTx(ctx, func(tx *sqlx.Tx) error {
		c, err := b.circuits.GetForUpdate(ctx, tx, key)
		if err != nil {
			return fmt.Errorf("circuit get %q: %w", key, err)
		}

		before := c.State
		d = Evaluate(c, b.now().UTC(), b.cfg)
		if c.State != before {
			metrics.CircuitTransitionsTotal.WithLabelValues(c.State.String()).Inc()
		}

		// every probe admission bumps updated_at, including re-admission
		// on an already HALF_OPEN row whose owner died. The bump must be
		// committed or the next worker to lock the row is admitted too.
		if c.State != before || d.Probe {
			if err := b.circuits.Save(ctx, tx, *c); err != nil {
				return fmt.Errorf("circuit save %q: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	if !d.Allow {
		metrics.CircuitShortCircuitsTotal.Inc()
	}
	return d, nil
}

// OnSuccess records a successful call inside the caller's bookkeeping
// transaction.
func (b *Breaker) OnSuccess(ctx context.Context, tx *sqlx.Tx, key string) error {
	c, err := b.circuits.GetForUpdate(ctx, tx, key)
	if err != nil {
		return fmt.Errorf("circuit get %q: %w", key, err)
	}
	wasClosed := c.State == model.CircuitClosed
	if ApplySuccess(c, b.now().UTC()) && !wasClosed {
		metrics.CircuitTransitionsTotal.WithLabelValues(model.CircuitClosed.String()).Inc()
	}
	return b.circuits.Save(ctx, tx, *c)
}

// OnFailure records a failed call inside the caller's bookkeeping
// transaction.
func (b *Breaker) OnFailure(ctx context.Context, tx *sqlx.Tx, key string) error {
	c, err := b.circuits.GetForUpdate(ctx, tx, key)
	if err != nil {
		return fmt.Errorf("circuit get %q: %w", key, err)
	}
	if ApplyFailure(c, b.now().UTC(), b.cfg) {
		metrics.CircuitTransitionsTotal.WithLabelValues(model.CircuitOpen.String()).Inc()
	}
	return b.circuits.Save(ctx, tx, *c)
}
