package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmehdipour/zoohub/internal/model"
)

// Outcome is the uniform result of one execution try. Executors never
// let a failure escape as a panic or unhandled error; everything is
// folded into the outcome so the worker can always proceed to
// bookkeeping.
type Outcome struct {
	Success bool
	Result  json.RawMessage
	Err     string
}

func failure(format string, args ...any) Outcome {
	return Outcome{Err: fmt.Sprintf(format, args...)}
}

// Executor performs the side effect for one action kind.
type Executor interface {
	Kind() model.ActionKind
	Execute(ctx context.Context, job model.Job) Outcome
}

// Registry dispatches jobs to the executor for their kind.
type Registry map[model.ActionKind]Executor

func NewRegistry(execs ...Executor) Registry {
	r := make(Registry, len(execs))
	for _, e := range execs {
		r[e.Kind()] = e
	}
	return r
}

// Execute runs the job with the registered executor for its kind; an
// unknown kind is a failed outcome, not an error.
func (r Registry) Execute(ctx context.Context, job model.Job) Outcome {
	e, ok := r[job.Kind]
	if !ok {
		return failure("no executor for kind %q", job.Kind)
	}
	return e.Execute(ctx, job)
}

// CircuitKey derives the breaker key for a webhook job from its payload
// snapshot. Returns ("", false) for non-webhook jobs and payloads whose
// config cannot be parsed (those fail in the executor instead).
func CircuitKey(job model.Job) (string, bool) {
	if job.Kind != model.ActionWebhook {
		return "", false
	}
	var p model.JobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return "", false
	}
	var cfg model.WebhookConfig
	if err := json.Unmarshal(p.Config, &cfg); err != nil || cfg.URL == "" {
		return "", false
	}
	return cfg.TargetKey(), true
}
