package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmehdipour/zoohub/internal/repository"
	"github.com/jmehdipour/zoohub/internal/util"
	echo "github.com/labstack/echo/v4"
)

type ruleActionReq struct {
	Kind   string          `json:"kind"`
	Config json.RawMessage `json:"config"`
}

type ruleReq struct {
	Name        string          `json:"name"`
	Enabled     *bool           `json:"enabled"`
	MatchSource *string         `json:"matchSource"`
	MatchType   *string         `json:"matchType"`
	Actions     []ruleActionReq `json:"actions"`
}

func buildActions(ruleID string, reqs []ruleActionReq) ([]model.RuleAction, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("at least one action is required")
	}
	out := make([]model.RuleAction, 0, len(reqs))
	for i, a := range reqs {
		kind, ok := model.ParseActionKind(a.Kind)
		if !ok {
			return nil, fmt.Errorf("action %d: invalid kind %q", i, a.Kind)
		}
		if _, err := model.ParseActionConfig(kind, a.Config); err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, model.RuleAction{
			ID:      util.NewID(),
			RuleID:  ruleID,
			Kind:    kind,
			Config:  a.Config,
			OrderNo: i,
		})
	}
	return out, nil
}

func ruleResponse(r model.Rule) map[string]any {
	actions := make([]map[string]any, 0, len(r.Actions))
	for _, a := range r.Actions {
		actions = append(actions, map[string]any{
			"id":     a.ID,
			"kind":   a.Kind.String(),
			"config": a.Config,
			"order":  a.OrderNo,
		})
	}
	return map[string]any{
		"id":          r.ID,
		"name":        r.Name,
		"enabled":     r.Enabled,
		"matchSource": r.MatchSource,
		"matchType":   r.MatchType,
		"actions":     actions,
		"createdAt":   r.CreatedAt,
		"updatedAt":   r.UpdatedAt,
	}
}

func createRuleHandler(rules repository.RulesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ruleReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "name is required"})
		}

		rule := model.Rule{
			ID:          util.NewID(),
			Name:        req.Name,
			Enabled:     true,
			MatchSource: req.MatchSource,
			MatchType:   req.MatchType,
		}
		if req.Enabled != nil {
			rule.Enabled = *req.Enabled
		}

		actions, err := buildActions(rule.ID, req.Actions)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		rule.Actions = actions

		if err := rules.Insert(c.Request().Context(), nil, rule); err != nil {
			c.Logger().Errorf("insert rule failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusCreated, ruleResponse(rule))
	}
}

func listRulesHandler(rules repository.RulesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		var enabled *bool
		if raw := c.QueryParam("enabled"); raw != "" {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid enabled filter"})
			}
			enabled = &b
		}

		rs, err := rules.List(c.Request().Context(), enabled)
		if err != nil {
			c.Logger().Errorf("list rules failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		out := make([]map[string]any, 0, len(rs))
		for _, r := range rs {
			out = append(out, ruleResponse(r))
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(out), "results": out})
	}
}

func getRuleHandler(rules repository.RulesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		rule, err := rules.Get(c.Request().Context(), c.Param("id"))
		if err != nil {
			c.Logger().Errorf("get rule failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if rule == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		return c.JSON(http.StatusOK, ruleResponse(*rule))
	}
}

// updateRuleHandler is a partial update: omitted fields keep their
// current value; providing actions replaces the whole set. Running jobs
// are unaffected either way since payloads snapshot the config.
func updateRuleHandler(rules repository.RulesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		rule, err := rules.Get(c.Request().Context(), c.Param("id"))
		if err != nil {
			c.Logger().Errorf("get rule failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if rule == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		var req struct {
			Name        *string          `json:"name"`
			Enabled     *bool            `json:"enabled"`
			MatchSource *string          `json:"matchSource"`
			MatchType   *string          `json:"matchType"`
			Actions     *[]ruleActionReq `json:"actions"`
		}
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "name cannot be empty"})
			}
			rule.Name = name
		}
		if req.Enabled != nil {
			rule.Enabled = *req.Enabled
		}
		// empty string clears a match field back to "any"
		if req.MatchSource != nil {
			if *req.MatchSource == "" {
				rule.MatchSource = nil
			} else {
				rule.MatchSource = req.MatchSource
			}
		}
		if req.MatchType != nil {
			if *req.MatchType == "" {
				rule.MatchType = nil
			} else {
				rule.MatchType = req.MatchType
			}
		}

		replaceActions := false
		if req.Actions != nil {
			actions, err := buildActions(rule.ID, *req.Actions)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}
			rule.Actions = actions
			replaceActions = true
		}

		if err := rules.Update(c.Request().Context(), nil, *rule, replaceActions); err != nil {
			c.Logger().Errorf("update rule failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, ruleResponse(*rule))
	}
}
