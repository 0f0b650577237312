package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmehdipour/zoohub/internal/model"
)

var tokenRe = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Context builds the template context for a job payload: event identity
// and payload fields addressable as dotted paths ({{eventId}},
// {{payload.amount}}, {{subject.id}}, ...).
func Context(ev model.EventSnapshot) map[string]any {
	var payload any
	if len(ev.Payload) > 0 {
		_ = json.Unmarshal(ev.Payload, &payload)
	}
	return map[string]any{
		"eventId":    ev.ID,
		"source":     ev.Source,
		"type":       ev.Type,
		"subject":    map[string]any{"kind": ev.Subject.Kind, "id": ev.Subject.ID},
		"payload":    payload,
		"occurredAt": ev.OccurredAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// RenderString substitutes {{path}} placeholders in s from ctx. An
// unresolved path is a configuration error, not an empty string, so a
// bad rule surfaces as a failed attempt instead of a silent blank.
func RenderString(s string, ctx map[string]any) (string, error) {
	var renderErr error
	out := tokenRe.ReplaceAllStringFunc(s, func(m string) string {
		path := strings.TrimSpace(tokenRe.FindStringSubmatch(m)[1])
		v, ok := resolvePath(ctx, path)
		if !ok {
			if renderErr == nil {
				renderErr = fmt.Errorf("unresolved placeholder {{%s}}", path)
			}
			return m
		}
		return stringify(v)
	})
	if renderErr != nil {
		return "", renderErr
	}
	return out, nil
}

// RenderJSON walks a JSON document and renders every string value.
func RenderJSON(raw json.RawMessage, ctx map[string]any) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("template document: %w", err)
	}
	rendered, err := renderValue(doc, ctx)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(rendered)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func renderValue(v any, ctx map[string]any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			r, err := renderValue(vv, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			r, err := renderValue(vv, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case string:
		return RenderString(t, ctx)
	default:
		return v, nil
	}
}

func resolvePath(ctx map[string]any, path string) (any, bool) {
	var cur any = ctx
	for _, p := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
