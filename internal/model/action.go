package model

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type ActionKind string

const (
	ActionEmail   ActionKind = "EMAIL"
	ActionWebhook ActionKind = "WEBHOOK"
)

func (k ActionKind) String() string { return string(k) }

func (k ActionKind) Valid() bool {
	return k == ActionEmail || k == ActionWebhook
}

// ParseActionKind normalizes input. Returns (value, true) if valid.
func ParseActionKind(s string) (ActionKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EMAIL":
		return ActionEmail, true
	case "WEBHOOK":
		return ActionWebhook, true
	default:
		return "", false
	}
}

// WebhookConfig is the validated config document for WEBHOOK actions.
// URL and Method may contain {{path}} placeholders resolved per event.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

func (c WebhookConfig) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("webhook config: url is required")
	}
	if strings.TrimSpace(c.Method) == "" {
		return fmt.Errorf("webhook config: method is required")
	}
	switch strings.ToUpper(c.Method) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("webhook config: unsupported method %q", c.Method)
	}
	return nil
}

// TargetKey derives the circuit-breaker key for the configured URL:
// the normalized authority of the destination. Placeholders in the host
// are rare but tolerated; the raw string is the fallback key.
func (c WebhookConfig) TargetKey() string {
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" {
		return c.URL
	}
	return strings.ToLower(u.Host)
}

// EmailConfig is the validated config document for EMAIL actions.
type EmailConfig struct {
	To       string `json:"to"`
	Subject  string `json:"subject,omitempty"`
	Template string `json:"template"`
}

func (c EmailConfig) Validate() error {
	if strings.TrimSpace(c.To) == "" {
		return fmt.Errorf("email config: to is required")
	}
	if strings.TrimSpace(c.Template) == "" {
		return fmt.Errorf("email config: template is required")
	}
	return nil
}

// ParseActionConfig decodes and validates a config document for the given
// kind. Config documents are a closed tagged union keyed by ActionKind so
// malformed rules are caught at write time, not at execution time.
func ParseActionConfig(kind ActionKind, raw json.RawMessage) (any, error) {
	switch kind {
	case ActionWebhook:
		var c WebhookConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("webhook config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return c, nil
	case ActionEmail:
		var c EmailConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("email config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
}
