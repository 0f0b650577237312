package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvents struct {
	byIdemKey map[string]string
	inserted  []model.Event
	insertErr error
}

func (f *fakeEvents) Insert(_ context.Context, _ *sqlx.Tx, e model.Event) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, e)
	return nil
}
func (f *fakeEvents) Get(context.Context, string) (*model.Event, error) { return nil, nil }
func (f *fakeEvents) FindIDByIdemKey(_ context.Context, key string) (string, error) {
	return f.byIdemKey[key], nil
}
func (f *fakeEvents) ClaimForDispatch(context.Context, *sqlx.Tx, string) (bool, error) {
	return false, nil
}
func (f *fakeEvents) MarkDone(context.Context, *sqlx.Tx, string) error   { return nil }
func (f *fakeEvents) MarkFailed(context.Context, *sqlx.Tx, string) error { return nil }

type outboxRow struct {
	aggregate   string
	aggregateID string
	topic       string
	payload     []byte
}

type fakeOutbox struct {
	rows []outboxRow
}

func (f *fakeOutbox) Insert(_ context.Context, _ *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error {
	f.rows = append(f.rows, outboxRow{aggregate, aggregateID, topic, payload})
	return nil
}

func newTestService(events *fakeEvents, outbox *fakeOutbox) *Service {
	svc := NewService(nil, events, outbox, "zoohub.events.ingested")
	svc.runTx = func(ctx context.Context, fn func(*sqlx.Tx) error) error { return fn(nil) }
	return svc
}

func TestAcceptStoresEventAndOutboxTogether(t *testing.T) {
	events := &fakeEvents{byIdemKey: map[string]string{}}
	outbox := &fakeOutbox{}
	svc := newTestService(events, outbox)

	occurred := time.Date(2024, 5, 1, 11, 59, 0, 0, time.UTC)
	id, deduped, err := svc.Accept(context.Background(), Input{
		Source:     "billing",
		Type:       "PAYMENT_FAILED",
		Subject:    model.Subject{Kind: "animal", ID: "elephant-7"},
		Payload:    json.RawMessage(`{"amount": 42}`),
		OccurredAt: occurred,
	})
	require.NoError(t, err)
	assert.False(t, deduped)
	assert.NotEmpty(t, id)

	require.Len(t, events.inserted, 1)
	ev := events.inserted[0]
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, model.EventAccepted, ev.Status)
	assert.Equal(t, occurred, ev.OccurredAt)
	assert.Nil(t, ev.IdempotencyKey)

	require.Len(t, outbox.rows, 1)
	row := outbox.rows[0]
	assert.Equal(t, "event", row.aggregate)
	assert.Equal(t, id, row.aggregateID)
	assert.Equal(t, "zoohub.events.ingested", row.topic)

	var env model.Envelope
	require.NoError(t, json.Unmarshal(row.payload, &env))
	assert.Equal(t, id, env.EventID)
	assert.Equal(t, "billing", env.Source)
	assert.Equal(t, "elephant-7", env.Subject.ID)
}

func TestAcceptValidation(t *testing.T) {
	svc := newTestService(&fakeEvents{}, &fakeOutbox{})

	_, _, err := svc.Accept(context.Background(), Input{Type: "X"})
	assert.ErrorIs(t, err, ErrMissingSource)

	_, _, err = svc.Accept(context.Background(), Input{Source: "x"})
	assert.ErrorIs(t, err, ErrMissingType)

	_, _, err = svc.Accept(context.Background(), Input{
		Source: "x", Type: "Y", Payload: json.RawMessage(`{broken`),
	})
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestAcceptDedupesOnIdempotencyKey(t *testing.T) {
	events := &fakeEvents{byIdemKey: map[string]string{"req-1": "01HOLD"}}
	outbox := &fakeOutbox{}
	svc := newTestService(events, outbox)

	id, deduped, err := svc.Accept(context.Background(), Input{
		Source:         "billing",
		Type:           "PAYMENT_FAILED",
		IdempotencyKey: "req-1",
	})
	require.NoError(t, err)
	assert.True(t, deduped)
	assert.Equal(t, "01HOLD", id)
	assert.Empty(t, events.inserted)
	assert.Empty(t, outbox.rows)
}

func TestAcceptDefaultsEmptyPayloadAndOccurredAt(t *testing.T) {
	events := &fakeEvents{byIdemKey: map[string]string{}}
	svc := newTestService(events, &fakeOutbox{})

	_, _, err := svc.Accept(context.Background(), Input{Source: "x", Type: "Y"})
	require.NoError(t, err)

	require.Len(t, events.inserted, 1)
	assert.JSONEq(t, `{}`, string(events.inserted[0].Payload))
	assert.False(t, events.inserted[0].OccurredAt.IsZero())
}
