package repository

import (
	"context"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmoiron/sqlx"
)

// CircuitsRepository defines persistence for webhook_circuit rows. The
// row lock taken by GetForUpdate is the serialization primitive for
// HALF_OPEN probing across workers.
type CircuitsRepository interface {
	// GetForUpdate upserts the row for key (lazily created CLOSED) and
	// returns it locked within tx.
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, key string) (*model.WebhookCircuit, error)
	Save(ctx context.Context, tx *sqlx.Tx, c model.WebhookCircuit) error
	List(ctx context.Context, state string, limit int) ([]model.WebhookCircuit, error)
	// Reset forces a circuit back to CLOSED; returns false when the key
	// does not exist.
	Reset(ctx context.Context, key string) (bool, error)
}

type CircuitsRepositoryImpl struct {
	db *sqlx.DB
}

func NewCircuitsRepository(db *sqlx.DB) *CircuitsRepositoryImpl {
	return &CircuitsRepositoryImpl{db: db}
}

var _ CircuitsRepository = (*CircuitsRepositoryImpl)(nil)

func (r *CircuitsRepositoryImpl) GetForUpdate(ctx context.Context, tx *sqlx.Tx, key string) (*model.WebhookCircuit, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO webhook_circuit (`+"`key`"+`, state, failure_count, updated_at)
		VALUES (?, 'CLOSED', 0, NOW())
		ON DUPLICATE KEY UPDATE `+"`key` = `key`"+`
	`, key); err != nil {
		return nil, err
	}

	var c model.WebhookCircuit
	err := tx.QueryRowxContext(ctx, `
		SELECT `+"`key`"+`, state, failure_count, opened_at, last_failure_at, updated_at
		  FROM webhook_circuit
		 WHERE `+"`key`"+` = ?
		 FOR UPDATE
	`, key).StructScan(&c)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CircuitsRepositoryImpl) Save(ctx context.Context, tx *sqlx.Tx, c model.WebhookCircuit) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE webhook_circuit
		   SET state = ?, failure_count = ?, opened_at = ?, last_failure_at = ?, updated_at = ?
		 WHERE `+"`key`"+` = ?
	`, c.State.String(), c.FailureCount, c.OpenedAt, c.LastFailureAt, c.UpdatedAt, c.Key)
	return err
}

func (r *CircuitsRepositoryImpl) List(ctx context.Context, state string, limit int) ([]model.WebhookCircuit, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	q := `
		SELECT ` + "`key`" + `, state, failure_count, opened_at, last_failure_at, updated_at
		  FROM webhook_circuit
	`
	args := []any{}
	if state != "" {
		q += ` WHERE state = ?`
		args = append(args, state)
	}
	q += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	var out []model.WebhookCircuit
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *CircuitsRepositoryImpl) Reset(ctx context.Context, key string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_circuit
		   SET state = 'CLOSED', failure_count = 0, opened_at = NULL, last_failure_at = NULL, updated_at = NOW()
		 WHERE `+"`key`"+` = ?
	`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
