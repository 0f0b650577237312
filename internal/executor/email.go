package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"

	"github.com/jmehdipour/zoohub/internal/logger"
	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmehdipour/zoohub/internal/rules"
	"go.uber.org/zap"
)

// EmailOpts tunes the email executor. With no SMTP address configured
// the executor renders and accepts the message without sending, which
// keeps dev environments free of a relay.
type EmailOpts struct {
	SMTPAddr string // host:port of the relay; empty = log-only
	From     string
}

type EmailExecutor struct {
	addr string
	from string
	send func(addr, from, to string, msg []byte) error
}

func NewEmailExecutor(opts EmailOpts) *EmailExecutor {
	if opts.From == "" {
		opts.From = "no-reply@zoohub.local"
	}
	return &EmailExecutor{
		addr: opts.SMTPAddr,
		from: opts.From,
		send: func(addr, from, to string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, []string{to}, msg)
		},
	}
}

func (e *EmailExecutor) Kind() model.ActionKind { return model.ActionEmail }

func (e *EmailExecutor) Execute(ctx context.Context, job model.Job) Outcome {
	var p model.JobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return failure("decode payload: %v", err)
	}

	parsed, err := model.ParseActionConfig(model.ActionEmail, p.Config)
	if err != nil {
		return failure("%v", err)
	}
	cfg := parsed.(model.EmailConfig)

	tmplCtx := rules.Context(p.Event)

	to, err := rules.RenderString(cfg.To, tmplCtx)
	if err != nil {
		return failure("render recipient: %v", err)
	}
	subject, err := rules.RenderString(cfg.Subject, tmplCtx)
	if err != nil {
		return failure("render subject: %v", err)
	}
	body, err := rules.RenderString(cfg.Template, tmplCtx)
	if err != nil {
		return failure("render template: %v", err)
	}

	result, _ := json.Marshal(map[string]any{
		"kind":    model.ActionEmail.String(),
		"to":      to,
		"subject": subject,
	})

	if e.addr == "" {
		if logger.Log != nil {
			logger.Log.Info("email accepted (log-only delivery)",
				zap.String("to", to), zap.String("subject", subject), zap.String("job_id", job.ID))
		}
		return Outcome{Success: true, Result: result}
	}

	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", e.from, to, subject, body))
	if err := e.send(e.addr, e.from, to, msg); err != nil {
		return failure("smtp send to %s: %v", to, err)
	}
	return Outcome{Success: true, Result: result}
}
