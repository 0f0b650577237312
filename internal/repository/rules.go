package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmoiron/sqlx"
)

// RulesRepository defines persistence for rules and their owned actions.
// Actions are cascade-deleted with the rule and replaced wholesale on
// update, matching the write contract of the ingestion API.
type RulesRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, rule model.Rule) error
	Update(ctx context.Context, tx *sqlx.Tx, rule model.Rule, replaceActions bool) error
	Get(ctx context.Context, id string) (*model.Rule, error)
	// List returns rules newest-first with actions attached; enabled
	// filters when non-nil.
	List(ctx context.Context, enabled *bool) ([]model.Rule, error)
	// ListEnabledWithActions is the matcher's read: all enabled rules
	// with actions ordered by order_no.
	ListEnabledWithActions(ctx context.Context) ([]model.Rule, error)
}

type RulesRepositoryImpl struct {
	db *sqlx.DB
}

func NewRulesRepository(db *sqlx.DB) *RulesRepositoryImpl {
	return &RulesRepositoryImpl{db: db}
}

var _ RulesRepository = (*RulesRepositoryImpl)(nil)

func (r *RulesRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *RulesRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, rule model.Rule) error {
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		const q = `
			INSERT INTO rules (id, name, enabled, match_source, match_type, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, NOW(), NOW())
		`
		if _, err := tx.ExecContext(ctx, q, rule.ID, rule.Name, rule.Enabled, rule.MatchSource, rule.MatchType); err != nil {
			return err
		}
		return insertActions(ctx, tx, rule.ID, rule.Actions)
	})
}

func (r *RulesRepositoryImpl) Update(ctx context.Context, tx *sqlx.Tx, rule model.Rule, replaceActions bool) error {
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		const q = `
			UPDATE rules
			   SET name = ?, enabled = ?, match_source = ?, match_type = ?, updated_at = NOW()
			 WHERE id = ?
		`
		if _, err := tx.ExecContext(ctx, q, rule.Name, rule.Enabled, rule.MatchSource, rule.MatchType, rule.ID); err != nil {
			return err
		}
		if !replaceActions {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM rule_actions WHERE rule_id = ?`, rule.ID); err != nil {
			return err
		}
		return insertActions(ctx, tx, rule.ID, rule.Actions)
	})
}

func insertActions(ctx context.Context, tx *sqlx.Tx, ruleID string, actions []model.RuleAction) error {
	const q = `
		INSERT INTO rule_actions (id, rule_id, kind, config, order_no)
		VALUES (?, ?, ?, ?, ?)
	`
	for _, a := range actions {
		if _, err := tx.ExecContext(ctx, q, a.ID, ruleID, a.Kind.String(), []byte(a.Config), a.OrderNo); err != nil {
			return err
		}
	}
	return nil
}

func (r *RulesRepositoryImpl) Get(ctx context.Context, id string) (*model.Rule, error) {
	var rule model.Rule
	err := r.db.GetContext(ctx, &rule, `
		SELECT id, name, enabled, match_source, match_type, created_at, updated_at
		  FROM rules WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachActions(ctx, []*model.Rule{&rule}); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *RulesRepositoryImpl) List(ctx context.Context, enabled *bool) ([]model.Rule, error) {
	q := `
		SELECT id, name, enabled, match_source, match_type, created_at, updated_at
		  FROM rules
	`
	args := []any{}
	if enabled != nil {
		q += ` WHERE enabled = ?`
		args = append(args, *enabled)
	}
	q += ` ORDER BY created_at DESC`

	var rs []model.Rule
	if err := r.db.SelectContext(ctx, &rs, q, args...); err != nil {
		return nil, err
	}

	ptrs := make([]*model.Rule, len(rs))
	for i := range rs {
		ptrs[i] = &rs[i]
	}
	if err := r.attachActions(ctx, ptrs); err != nil {
		return nil, err
	}
	return rs, nil
}

func (r *RulesRepositoryImpl) ListEnabledWithActions(ctx context.Context) ([]model.Rule, error) {
	t := true
	return r.List(ctx, &t)
}

func (r *RulesRepositoryImpl) attachActions(ctx context.Context, rs []*model.Rule) error {
	if len(rs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rs))
	byID := make(map[string]*model.Rule, len(rs))
	for _, rule := range rs {
		ids = append(ids, rule.ID)
		byID[rule.ID] = rule
	}

	const base = `
		SELECT id, rule_id, kind, config, order_no
		  FROM rule_actions
		 WHERE rule_id IN (?)
		 ORDER BY rule_id, order_no
	`
	q, args, err := sqlx.In(base, ids)
	if err != nil {
		return err
	}
	q = r.db.Rebind(q)

	var actions []model.RuleAction
	if err := r.db.SelectContext(ctx, &actions, q, args...); err != nil {
		return err
	}
	for _, a := range actions {
		if rule, ok := byID[a.RuleID]; ok {
			rule.Actions = append(rule.Actions, a)
		}
	}
	return nil
}
