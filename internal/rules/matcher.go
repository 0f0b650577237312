package rules

import (
	"sort"

	"github.com/jmehdipour/zoohub/internal/model"
)

// Match is one (rule, action) pair to instantiate as a job.
type Match struct {
	Rule   model.Rule
	Action model.RuleAction
}

// MatchEvent returns the ordered list of rule actions whose owning rule
// matches the event's (source, type). Rules are walked in stable id
// order; within a rule, actions run order_no ascending. Pure function:
// no store access, no side effects.
func MatchEvent(enabled []model.Rule, source, typ string) []Match {
	rs := make([]model.Rule, len(enabled))
	copy(rs, enabled)
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })

	var out []Match
	for _, r := range rs {
		if !r.Matches(source, typ) {
			continue
		}

		actions := make([]model.RuleAction, len(r.Actions))
		copy(actions, r.Actions)
		sort.SliceStable(actions, func(i, j int) bool { return actions[i].OrderNo < actions[j].OrderNo })

		for _, a := range actions {
			out = append(out, Match{Rule: r, Action: a})
		}
	}

	return out
}
