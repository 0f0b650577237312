package executor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	kind model.ActionKind
	out  Outcome
}

func (s stubExecutor) Kind() model.ActionKind                     { return s.kind }
func (s stubExecutor) Execute(context.Context, model.Job) Outcome { return s.out }

func TestRegistryDispatchesByKind(t *testing.T) {
	r := NewRegistry(
		stubExecutor{kind: model.ActionEmail, out: Outcome{Success: true}},
		stubExecutor{kind: model.ActionWebhook, out: Outcome{Err: "boom"}},
	)

	out := r.Execute(context.Background(), model.Job{Kind: model.ActionEmail})
	assert.True(t, out.Success)

	out = r.Execute(context.Background(), model.Job{Kind: model.ActionWebhook})
	assert.Equal(t, "boom", out.Err)
}

func TestRegistryUnknownKindIsFailedOutcome(t *testing.T) {
	r := NewRegistry()

	out := r.Execute(context.Background(), model.Job{Kind: model.ActionKind("CARRIER_PIGEON")})
	assert.False(t, out.Success)
	assert.Contains(t, out.Err, "CARRIER_PIGEON")
}

func TestCircuitKey(t *testing.T) {
	mkJob := func(kind model.ActionKind, config string) model.Job {
		payload, err := json.Marshal(model.JobPayload{
			Event:  model.EventSnapshot{ID: "01HEVT"},
			Config: json.RawMessage(config),
		})
		require.NoError(t, err)
		return model.Job{Kind: kind, Payload: payload}
	}

	t.Run("webhook key is the normalized authority", func(t *testing.T) {
		key, ok := CircuitKey(mkJob(model.ActionWebhook, `{"url":"https://API.Example.com:8443/hooks/x","method":"POST"}`))
		require.True(t, ok)
		assert.Equal(t, "api.example.com:8443", key)
	})

	t.Run("same host different paths share a circuit", func(t *testing.T) {
		a, _ := CircuitKey(mkJob(model.ActionWebhook, `{"url":"https://api.example.com/a","method":"POST"}`))
		b, _ := CircuitKey(mkJob(model.ActionWebhook, `{"url":"https://api.example.com/b","method":"POST"}`))
		assert.Equal(t, a, b)
	})

	t.Run("email jobs are not gated", func(t *testing.T) {
		_, ok := CircuitKey(mkJob(model.ActionEmail, `{"to":"x@y.z","template":"hi"}`))
		assert.False(t, ok)
	})

	t.Run("unparseable config is not gated", func(t *testing.T) {
		_, ok := CircuitKey(model.Job{Kind: model.ActionWebhook, Payload: json.RawMessage(`not json`)})
		assert.False(t, ok)
	})
}
