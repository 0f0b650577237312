package rules

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T) map[string]any {
	t.Helper()
	return Context(model.EventSnapshot{
		ID:      "01HEVT",
		Source:  "billing",
		Type:    "PAYMENT_FAILED",
		Subject: model.Subject{Kind: "animal", ID: "elephant-7"},
		Payload: json.RawMessage(`{"amount": 99.5, "currency": "EUR", "flags": {"overdue": true}}`),
		OccurredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})
}

func TestRenderString(t *testing.T) {
	ctx := testCtx(t)

	t.Run("dotted paths resolve into the payload", func(t *testing.T) {
		out, err := RenderString("pay {{payload.amount}} {{payload.currency}} for {{subject.id}}", ctx)
		require.NoError(t, err)
		assert.Equal(t, "pay 99.5 EUR for elephant-7", out)
	})

	t.Run("booleans and event identity", func(t *testing.T) {
		out, err := RenderString("{{eventId}}/{{type}}/{{payload.flags.overdue}}", ctx)
		require.NoError(t, err)
		assert.Equal(t, "01HEVT/PAYMENT_FAILED/true", out)
	})

	t.Run("unresolved placeholder is an error", func(t *testing.T) {
		_, err := RenderString("oops {{payload.missing}}", ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "payload.missing")
	})

	t.Run("no placeholders passes through", func(t *testing.T) {
		out, err := RenderString("plain text", ctx)
		require.NoError(t, err)
		assert.Equal(t, "plain text", out)
	})
}

func TestRenderJSON(t *testing.T) {
	ctx := testCtx(t)

	t.Run("renders nested strings, keeps other types", func(t *testing.T) {
		doc := json.RawMessage(`{"subject":"{{subject.id}}","nested":{"amount":"{{payload.amount}}"},"n":3,"list":["{{source}}"]}`)
		out, err := RenderJSON(doc, ctx)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(out, &got))
		assert.Equal(t, "elephant-7", got["subject"])
		assert.Equal(t, float64(3), got["n"])
		assert.Equal(t, "99.5", got["nested"].(map[string]any)["amount"])
		assert.Equal(t, []any{"billing"}, got["list"])
	})

	t.Run("unresolved placeholder anywhere fails the document", func(t *testing.T) {
		doc := json.RawMessage(`{"a":"ok","b":{"c":"{{nope}}"}}`)
		_, err := RenderJSON(doc, ctx)
		assert.Error(t, err)
	})

	t.Run("empty document passes through", func(t *testing.T) {
		out, err := RenderJSON(nil, ctx)
		require.NoError(t, err)
		assert.Nil(t, out)
	})
}
