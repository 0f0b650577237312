package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvents struct {
	claimOK    bool
	claimErr   error
	claimedIDs []string
	doneIDs    []string
	failedIDs  []string
}

func (f *fakeEvents) Insert(context.Context, *sqlx.Tx, model.Event) error { return nil }
func (f *fakeEvents) Get(context.Context, string) (*model.Event, error)  { return nil, nil }
func (f *fakeEvents) FindIDByIdemKey(context.Context, string) (string, error) {
	return "", nil
}
func (f *fakeEvents) ClaimForDispatch(_ context.Context, _ *sqlx.Tx, id string) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	f.claimedIDs = append(f.claimedIDs, id)
	return f.claimOK, nil
}
func (f *fakeEvents) MarkDone(_ context.Context, _ *sqlx.Tx, id string) error {
	f.doneIDs = append(f.doneIDs, id)
	return nil
}
func (f *fakeEvents) MarkFailed(_ context.Context, _ *sqlx.Tx, id string) error {
	f.failedIDs = append(f.failedIDs, id)
	return nil
}

type fakeRules struct {
	rules []model.Rule
	err   error
}

func (f *fakeRules) Insert(context.Context, *sqlx.Tx, model.Rule) error       { return nil }
func (f *fakeRules) Update(context.Context, *sqlx.Tx, model.Rule, bool) error { return nil }
func (f *fakeRules) Get(context.Context, string) (*model.Rule, error)         { return nil, nil }
func (f *fakeRules) List(context.Context, *bool) ([]model.Rule, error)        { return f.rules, f.err }
func (f *fakeRules) ListEnabledWithActions(context.Context) ([]model.Rule, error) {
	return f.rules, f.err
}

type fakeJobs struct {
	inserted []model.Job
}

func (f *fakeJobs) InsertBatch(_ context.Context, _ *sqlx.Tx, jobs []model.Job) error {
	f.inserted = append(f.inserted, jobs...)
	return nil
}
func (f *fakeJobs) Get(context.Context, string) (*model.Job, error) { return nil, nil }
func (f *fakeJobs) SelectDue(context.Context, time.Time, int) ([]model.Job, error) {
	return nil, nil
}
func (f *fakeJobs) Claim(context.Context, string) (bool, error) { return false, nil }
func (f *fakeJobs) MarkSucceeded(context.Context, *sqlx.Tx, string, int) error {
	return nil
}
func (f *fakeJobs) MarkRetry(context.Context, *sqlx.Tx, string, int, string, time.Time) error {
	return nil
}
func (f *fakeJobs) MarkDead(context.Context, *sqlx.Tx, string, int, string) error {
	return nil
}
func (f *fakeJobs) Reschedule(context.Context, string, time.Time) error { return nil }
func (f *fakeJobs) RecoverStuck(context.Context, time.Time) (int64, int64, error) {
	return 0, 0, nil
}
func (f *fakeJobs) CountByEventAndStatus(context.Context, string, model.JobStatus) (int, error) {
	return 0, nil
}

func strptr(s string) *string { return &s }

func testEnvelope() model.Envelope {
	return model.Envelope{
		EventID:    "01HEVT",
		Source:     "billing",
		Type:       "PAYMENT_FAILED",
		Subject:    model.Subject{Kind: "animal", ID: "elephant-7"},
		Payload:    json.RawMessage(`{"amount": 42}`),
		OccurredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ReceivedAt: time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC),
	}
}

func newTestService(events *fakeEvents, rules *fakeRules, jobs *fakeJobs) *Service {
	svc := NewService(nil, events, rules, jobs, 3)
	svc.runTx = func(ctx context.Context, fn func(*sqlx.Tx) error) error { return fn(nil) }
	return svc
}

func TestDispatchCreatesOneJobPerMatchedAction(t *testing.T) {
	rule := model.Rule{
		ID:          "01R",
		Name:        "payments",
		Enabled:     true,
		MatchSource: strptr("billing"),
		Actions: []model.RuleAction{
			{ID: "a1", RuleID: "01R", Kind: model.ActionWebhook, OrderNo: 0,
				Config: json.RawMessage(`{"url":"https://x.test","method":"POST"}`)},
			{ID: "a2", RuleID: "01R", Kind: model.ActionEmail, OrderNo: 1,
				Config: json.RawMessage(`{"to":"a@b.c","template":"hi"}`)},
		},
	}
	events := &fakeEvents{claimOK: true}
	jobs := &fakeJobs{}
	svc := newTestService(events, &fakeRules{rules: []model.Rule{rule}}, jobs)

	created, err := svc.DispatchEnvelope(context.Background(), testEnvelope())
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	require.Len(t, jobs.inserted, 2)

	first := jobs.inserted[0]
	assert.Equal(t, "01HEVT", first.EventID)
	assert.Equal(t, model.ActionWebhook, first.Kind)
	assert.Equal(t, model.JobQueued, first.Status)
	assert.Equal(t, 3, first.MaxAttempts)
	assert.NotEmpty(t, first.ID)
	require.NotNil(t, first.RuleID)
	assert.Equal(t, "01R", *first.RuleID)

	// the payload snapshot carries the event and the action config
	var p model.JobPayload
	require.NoError(t, json.Unmarshal(first.Payload, &p))
	assert.Equal(t, "01HEVT", p.Event.ID)
	assert.Equal(t, "PAYMENT_FAILED", p.Event.Type)
	assert.JSONEq(t, `{"url":"https://x.test","method":"POST"}`, string(p.Config))

	assert.Equal(t, model.ActionEmail, jobs.inserted[1].Kind)
	assert.Equal(t, []string{"01HEVT"}, events.doneIDs)
}

func TestDispatchNoMatchesStillFinishesEvent(t *testing.T) {
	events := &fakeEvents{claimOK: true}
	jobs := &fakeJobs{}
	svc := newTestService(events, &fakeRules{}, jobs)

	created, err := svc.DispatchEnvelope(context.Background(), testEnvelope())
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Empty(t, jobs.inserted)
	assert.Equal(t, []string{"01HEVT"}, events.doneIDs)
}

func TestDispatchLostClaimCreatesNothing(t *testing.T) {
	rule := model.Rule{
		ID: "01R", Enabled: true,
		Actions: []model.RuleAction{{ID: "a1", Kind: model.ActionEmail,
			Config: json.RawMessage(`{"to":"a@b.c","template":"hi"}`)}},
	}
	events := &fakeEvents{claimOK: false} // another delivery already dispatched
	jobs := &fakeJobs{}
	svc := newTestService(events, &fakeRules{rules: []model.Rule{rule}}, jobs)

	created, err := svc.DispatchEnvelope(context.Background(), testEnvelope())
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Empty(t, jobs.inserted)
	assert.Empty(t, events.doneIDs)
}

func TestDispatchStoreErrorPropagates(t *testing.T) {
	events := &fakeEvents{claimErr: errors.New("deadlock")}
	svc := newTestService(events, &fakeRules{}, &fakeJobs{})

	_, err := svc.DispatchEnvelope(context.Background(), testEnvelope())
	assert.Error(t, err)
}
