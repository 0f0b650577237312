package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmoiron/sqlx"
)

// EventsRepository defines persistence for the events table.
type EventsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, e model.Event) error
	Get(ctx context.Context, id string) (*model.Event, error)
	// FindIDByIdemKey returns the existing event id for an idempotency
	// key, or ("", nil) when none exists.
	FindIDByIdemKey(ctx context.Context, key string) (string, error)
	// ClaimForDispatch is the single atomic ACCEPTED→PROCESSING
	// transition; it succeeds for exactly one delivery of an event.
	ClaimForDispatch(ctx context.Context, tx *sqlx.Tx, id string) (bool, error)
	MarkDone(ctx context.Context, tx *sqlx.Tx, id string) error
	MarkFailed(ctx context.Context, tx *sqlx.Tx, id string) error
}

type EventsRepositoryImpl struct {
	db *sqlx.DB
}

func NewEventsRepository(db *sqlx.DB) *EventsRepositoryImpl {
	return &EventsRepositoryImpl{db: db}
}

var _ EventsRepository = (*EventsRepositoryImpl)(nil)

func (r *EventsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *EventsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, e model.Event) error {
	const q = `
		INSERT INTO events
		    (id, source, type, subject_kind, subject_id, payload, occurred_at, received_at, idempotency_key, status, created_at, updated_at)
		VALUES
		    (?,  ?,      ?,    ?,            ?,          ?,       ?,           ?,           ?,               'ACCEPTED', NOW(), NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			e.ID, e.Source, e.Type, e.SubjectKind, e.SubjectID,
			[]byte(e.Payload), e.OccurredAt, e.ReceivedAt, e.IdempotencyKey,
		)
		return err
	})
}

func (r *EventsRepositoryImpl) Get(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := r.db.GetContext(ctx, &e, `
		SELECT id, source, type, subject_kind, subject_id, payload, occurred_at, received_at,
		       idempotency_key, status, created_at, updated_at
		  FROM events
		 WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EventsRepositoryImpl) FindIDByIdemKey(ctx context.Context, key string) (string, error) {
	var id string
	err := r.db.GetContext(ctx, &id, `SELECT id FROM events WHERE idempotency_key = ? LIMIT 1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *EventsRepositoryImpl) ClaimForDispatch(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	const q = `
		UPDATE events
		   SET status = 'PROCESSING', updated_at = NOW()
		 WHERE id = ? AND status = 'ACCEPTED'
	`
	var claimed bool
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		claimed = n == 1
		return nil
	})
	return claimed, err
}

func (r *EventsRepositoryImpl) MarkDone(ctx context.Context, tx *sqlx.Tx, id string) error {
	return r.setStatus(ctx, tx, id, model.EventDone)
}

func (r *EventsRepositoryImpl) MarkFailed(ctx context.Context, tx *sqlx.Tx, id string) error {
	return r.setStatus(ctx, tx, id, model.EventFailed)
}

func (r *EventsRepositoryImpl) setStatus(ctx context.Context, tx *sqlx.Tx, id string, st model.EventStatus) error {
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE events SET status = ?, updated_at = NOW() WHERE id = ?`, st.String(), id)
		return err
	})
}
