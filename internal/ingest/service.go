package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/zoohub/internal/metrics"
	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmehdipour/zoohub/internal/repository"
	"github.com/jmehdipour/zoohub/internal/util"
	"github.com/jmoiron/sqlx"
)

var (
	ErrMissingSource = errors.New("source is required")
	ErrMissingType   = errors.New("type is required")
	ErrBadPayload    = errors.New("payload must be a JSON object")
)

// Input is one event submitted by a producer.
type Input struct {
	Source         string
	Type           string
	Subject        model.Subject
	Payload        json.RawMessage
	OccurredAt     time.Time
	IdempotencyKey string
}

// Service accepts producer events. The event row and its outbox
// envelope land in one transaction, so every accepted event is
// guaranteed a dispatch hand-off (the Debezium connector publishes the
// outbox row to Kafka).
type Service struct {
	db     *sqlx.DB
	events repository.EventsRepository
	outbox repository.OutboxRepository
	topic  string

	// runTx runs fn in a store transaction; replaced in tests.
	runTx func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func NewService(db *sqlx.DB, events repository.EventsRepository, outbox repository.OutboxRepository, topic string) *Service {
	s := &Service{db: db, events: events, outbox: outbox, topic: topic}
	s.runTx = s.storeTx
	return s
}

func (s *Service) storeTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Accept stores the event as ACCEPTED and enqueues its envelope.
// Returns (eventID, deduped): deduped is true when the idempotency key
// matched an earlier submission, in which case the original id is
// returned and nothing new is written.
func (s *Service) Accept(ctx context.Context, in Input) (string, bool, error) {
	if in.Source == "" {
		return "", false, ErrMissingSource
	}
	if in.Type == "" {
		return "", false, ErrMissingType
	}
	if len(in.Payload) == 0 {
		in.Payload = json.RawMessage(`{}`)
	}
	if !json.Valid(in.Payload) {
		return "", false, ErrBadPayload
	}

	now := time.Now().UTC()
	if in.OccurredAt.IsZero() {
		in.OccurredAt = now
	}

	if in.IdempotencyKey != "" {
		id, err := s.events.FindIDByIdemKey(ctx, in.IdempotencyKey)
		if err != nil {
			return "", false, fmt.Errorf("idempotency lookup: %w", err)
		}
		if id != "" {
			metrics.EventsTotal.WithLabelValues("deduped").Inc()
			return id, true, nil
		}
	}

	ev := model.Event{
		ID:          util.NewID(),
		Source:      in.Source,
		Type:        in.Type,
		SubjectKind: in.Subject.Kind,
		SubjectID:   in.Subject.ID,
		Payload:     in.Payload,
		OccurredAt:  in.OccurredAt,
		ReceivedAt:  now,
		Status:      model.EventAccepted,
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		ev.IdempotencyKey = &key
	}

	envelope, err := json.Marshal(model.Envelope{
		EventID:    ev.ID,
		Source:     ev.Source,
		Type:       ev.Type,
		Subject:    in.Subject,
		Payload:    ev.Payload,
		OccurredAt: ev.OccurredAt,
		ReceivedAt: ev.ReceivedAt,
	})
	if err != nil {
		return "", false, fmt.Errorf("marshal envelope: %w", err)
	}

	err = s.runTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.events.Insert(ctx, tx, ev); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		if err := s.outbox.Insert(ctx, tx, "event", ev.ID, s.topic, envelope); err != nil {
			return fmt.Errorf("insert outbox: %w", err)
		}
		return nil
	})
	if err != nil {
		// a concurrent submission with the same idempotency key may win
		// the unique-index race; surface the original id instead
		if isDuplicateKey(err) && in.IdempotencyKey != "" {
			id, lookupErr := s.events.FindIDByIdemKey(ctx, in.IdempotencyKey)
			if lookupErr == nil && id != "" {
				metrics.EventsTotal.WithLabelValues("deduped").Inc()
				return id, true, nil
			}
		}
		return "", false, err
	}

	metrics.EventsTotal.WithLabelValues("accepted").Inc()
	return ev.ID, false, nil
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
