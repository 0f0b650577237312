package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmehdipour/zoohub/internal/logger"
	"github.com/jmehdipour/zoohub/internal/metrics"
	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmehdipour/zoohub/internal/repository"
	"github.com/jmehdipour/zoohub/internal/rules"
	"github.com/jmehdipour/zoohub/internal/util"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Service turns one accepted event into zero or more queued jobs.
//
// The whole dispatch is a single transaction around a single atomic
// claim: PROCESSING only succeeds from ACCEPTED, so a re-delivered
// envelope can never duplicate jobs. Zero matches is a valid outcome;
// the event still ends DONE.
type Service struct {
	db          *sqlx.DB
	events      repository.EventsRepository
	ruleRepo    repository.RulesRepository
	jobs        repository.JobsRepository
	maxAttempts int

	// runTx runs fn in a store transaction; replaced in tests.
	runTx func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func NewService(
	db *sqlx.DB,
	events repository.EventsRepository,
	ruleRepo repository.RulesRepository,
	jobs repository.JobsRepository,
	maxAttempts int,
) *Service {
	if maxAttempts < 1 {
		maxAttempts = model.DefaultMaxAttempts
	}
	s := &Service{
		db:          db,
		events:      events,
		ruleRepo:    ruleRepo,
		jobs:        jobs,
		maxAttempts: maxAttempts,
	}
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

// DispatchEnvelope runs rule matching for the event and snapshots one
// job per matched action. Returns the number of jobs created; (0, nil)
// when the event was already dispatched by an earlier delivery.
func (s *Service) DispatchEnvelope(ctx context.Context, env model.Envelope) (int, error) {
	enabled, err := s.ruleRepo.ListEnabledWithActions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rules: %w", err)
	}

	matches := rules.MatchEvent(enabled, env.Source, env.Type)
	snapshot := env.Snapshot()

	newJobs := make([]model.Job, 0, len(matches))
	for _, m := range matches {
		payload, err := json.Marshal(model.JobPayload{Event: snapshot, Config: m.Action.Config})
		if err != nil {
			// permanent: redelivering the envelope cannot fix its snapshot
			return 0, s.failEvent(ctx, env.EventID, fmt.Errorf("snapshot payload: %w", err))
		}
		ruleID := m.Rule.ID
		actionID := m.Action.ID
		now := env.ReceivedAt
		newJobs = append(newJobs, model.Job{
			ID:          util.NewID(),
			EventID:     env.EventID,
			RuleID:      &ruleID,
			ActionID:    &actionID,
			Kind:        m.Action.Kind,
			Status:      model.JobQueued,
			MaxAttempts: s.maxAttempts,
			Payload:     payload,
			NextRunAt:   &now,
		})
	}

	created := 0
	err = s.runTx(ctx, func(tx *sqlx.Tx) error {
		claimed, err := s.events.ClaimForDispatch(ctx, tx, env.EventID)
		if err != nil {
			return fmt.Errorf("claim event %s: %w", env.EventID, err)
		}
		if !claimed {
			// already PROCESSING/DONE: a previous delivery won the claim
			return nil
		}

		if err := s.jobs.InsertBatch(ctx, tx, newJobs); err != nil {
			return fmt.Errorf("insert jobs for event %s: %w", env.EventID, err)
		}

		if err := s.events.MarkDone(ctx, tx, env.EventID); err != nil {
			return fmt.Errorf("mark event %s done: %w", env.EventID, err)
		}

		created = len(newJobs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// failEvent flags an event whose dispatch can never succeed. The claim
// keeps a concurrent successful delivery from being overwritten. A nil
// return tells the consumer the envelope is settled and its offset may
// be committed.
func (s *Service) failEvent(ctx context.Context, eventID string, cause error) error {
	err := s.runTx(ctx, func(tx *sqlx.Tx) error {
		claimed, err := s.events.ClaimForDispatch(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		return s.events.MarkFailed(ctx, tx, eventID)
	})
	if err != nil {
		return fmt.Errorf("fail event %s: %w", eventID, err)
	}

	metrics.EventsTotal.WithLabelValues("failed").Inc()
	logger.Log.Error("dispatcher: event failed permanently",
		zap.String("event_id", eventID), zap.Error(cause))
	return nil
}
