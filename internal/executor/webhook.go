package executor

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmehdipour/zoohub/internal/rules"
)

// WebhookOpts tunes the webhook executor.
type WebhookOpts struct {
	Timeout         time.Duration // bound on the whole call; elapsed = failure
	SigningSecret   string        // empty disables signing
	SignatureHeader string        // default X-Zoo-Signature
	TimestampHeader string        // default X-Zoo-Timestamp
}

// WebhookExecutor renders a job's webhook config and performs the HTTP
// call. 2xx is success; non-2xx, timeout and connection errors are
// failures with an error detail string.
type WebhookExecutor struct {
	client    *http.Client
	secret    string
	sigHeader string
	tsHeader  string
}

func NewWebhookExecutor(opts WebhookOpts) *WebhookExecutor {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.SignatureHeader == "" {
		opts.SignatureHeader = "X-Zoo-Signature"
	}
	if opts.TimestampHeader == "" {
		opts.TimestampHeader = "X-Zoo-Timestamp"
	}
	return &WebhookExecutor{
		client:    &http.Client{Timeout: opts.Timeout},
		secret:    opts.SigningSecret,
		sigHeader: opts.SignatureHeader,
		tsHeader:  opts.TimestampHeader,
	}
}

func (e *WebhookExecutor) Kind() model.ActionKind { return model.ActionWebhook }

func (e *WebhookExecutor) Execute(ctx context.Context, job model.Job) Outcome {
	var p model.JobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return failure("decode payload: %v", err)
	}

	parsed, err := model.ParseActionConfig(model.ActionWebhook, p.Config)
	if err != nil {
		return failure("%v", err)
	}
	cfg := parsed.(model.WebhookConfig)

	tmplCtx := rules.Context(p.Event)

	url, err := rules.RenderString(cfg.URL, tmplCtx)
	if err != nil {
		return failure("render url: %v", err)
	}

	var body []byte
	if len(cfg.Body) > 0 {
		rendered, err := rules.RenderJSON(cfg.Body, tmplCtx)
		if err != nil {
			return failure("render body: %v", err)
		}
		body = rendered
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(cfg.Method), url, bytes.NewReader(body))
	if err != nil {
		return failure("build request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	// one key per (event, job, attempt) so receivers can dedupe redeliveries
	req.Header.Set("Idempotency-Key", fmt.Sprintf("%s:%s:%d", job.EventID, job.ID, job.Attempts+1))
	for k, v := range cfg.Headers {
		hv, err := rules.RenderString(v, tmplCtx)
		if err != nil {
			return failure("render header %s: %v", k, err)
		}
		req.Header.Set(k, hv)
	}

	if e.secret != "" {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set(e.tsHeader, ts)
		req.Header.Set(e.sigHeader, "sha256="+e.sign(ts, body))
	}

	res, err := e.client.Do(req)
	if err != nil {
		return failure("call %s: %v", url, err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))

	result, _ := json.Marshal(map[string]any{
		"kind":     model.ActionWebhook.String(),
		"status":   res.StatusCode,
		"response": string(respBody),
	})

	if res.StatusCode/100 != 2 {
		return Outcome{Result: result, Err: fmt.Sprintf("HTTP %d from %s", res.StatusCode, url)}
	}
	return Outcome{Success: true, Result: result}
}

// sign computes the HMAC-SHA256 of "<timestamp>.<body>".
func (e *WebhookExecutor) sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(e.secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
