package rules

import (
	"testing"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestMatchEvent(t *testing.T) {
	ruleA := model.Rule{
		ID:          "01A",
		Name:        "payments",
		Enabled:     true,
		MatchSource: strptr("billing"),
		MatchType:   strptr("PAYMENT_FAILED"),
		Actions: []model.RuleAction{
			{ID: "a2", RuleID: "01A", Kind: model.ActionEmail, OrderNo: 1},
			{ID: "a1", RuleID: "01A", Kind: model.ActionWebhook, OrderNo: 0},
		},
	}
	ruleB := model.Rule{
		ID:      "01B",
		Name:    "everything",
		Enabled: true,
		Actions: []model.RuleAction{
			{ID: "b1", RuleID: "01B", Kind: model.ActionWebhook, OrderNo: 0},
		},
	}
	disabled := model.Rule{
		ID:      "01C",
		Name:    "off",
		Enabled: false,
		Actions: []model.RuleAction{
			{ID: "c1", RuleID: "01C", Kind: model.ActionWebhook, OrderNo: 0},
		},
	}

	t.Run("source and type must both match", func(t *testing.T) {
		ms := MatchEvent([]model.Rule{ruleA}, "billing", "PAYMENT_OK")
		assert.Empty(t, ms)

		ms = MatchEvent([]model.Rule{ruleA}, "other", "PAYMENT_FAILED")
		assert.Empty(t, ms)

		ms = MatchEvent([]model.Rule{ruleA}, "billing", "PAYMENT_FAILED")
		assert.Len(t, ms, 2)
	})

	t.Run("nil match fields mean any", func(t *testing.T) {
		ms := MatchEvent([]model.Rule{ruleB}, "anything", "WHATEVER")
		require.Len(t, ms, 1)
		assert.Equal(t, "b1", ms[0].Action.ID)
	})

	t.Run("disabled rules never match", func(t *testing.T) {
		ms := MatchEvent([]model.Rule{disabled}, "anything", "WHATEVER")
		assert.Empty(t, ms)
	})

	t.Run("ordering is rule id then action order_no", func(t *testing.T) {
		// pass rules out of order, actions out of order
		ms := MatchEvent([]model.Rule{ruleB, ruleA}, "billing", "PAYMENT_FAILED")
		require.Len(t, ms, 3)
		assert.Equal(t, "a1", ms[0].Action.ID)
		assert.Equal(t, "a2", ms[1].Action.ID)
		assert.Equal(t, "b1", ms[2].Action.ID)
	})

	t.Run("zero matches is a valid outcome", func(t *testing.T) {
		assert.Empty(t, MatchEvent(nil, "billing", "PAYMENT_FAILED"))
	})
}
