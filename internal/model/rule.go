package model

import (
	"encoding/json"
	"time"
)

// Rule maps event-matching criteria to an ordered set of actions.
// A nil match field means "any"; a disabled rule never matches.
type Rule struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Enabled     bool      `db:"enabled"`
	MatchSource *string   `db:"match_source"`
	MatchType   *string   `db:"match_type"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`

	Actions []RuleAction `db:"-"`
}

// Matches reports whether the rule applies to an event's (source, type).
func (r Rule) Matches(source, typ string) bool {
	if !r.Enabled {
		return false
	}
	if r.MatchSource != nil && *r.MatchSource != source {
		return false
	}
	if r.MatchType != nil && *r.MatchType != typ {
		return false
	}
	return true
}

// RuleAction is one action template attached to a rule.
type RuleAction struct {
	ID      string          `db:"id"`
	RuleID  string          `db:"rule_id"`
	Kind    ActionKind      `db:"kind"`
	Config  json.RawMessage `db:"config"`
	OrderNo int             `db:"order_no"`
}
