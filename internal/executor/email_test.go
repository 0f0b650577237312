package executor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmehdipour/zoohub/internal/logger"
	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { logger.Init("error") }

func emailJob(t *testing.T, cfg model.EmailConfig) model.Job {
	t.Helper()

	rawCfg, err := json.Marshal(cfg)
	require.NoError(t, err)

	payload, err := json.Marshal(model.JobPayload{
		Event: model.EventSnapshot{
			ID:         "01HEVT",
			Source:     "keeper-app",
			Type:       "FEEDING_MISSED",
			Subject:    model.Subject{Kind: "animal", ID: "tiger-3"},
			Payload:    json.RawMessage(`{"keeper":"sam"}`),
			OccurredAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		},
		Config: rawCfg,
	})
	require.NoError(t, err)

	return model.Job{ID: "01HJOB", EventID: "01HEVT", Kind: model.ActionEmail, Payload: payload}
}

func TestEmailExecutorSendsRenderedMessage(t *testing.T) {
	var sentTo string
	var sentMsg []byte

	e := NewEmailExecutor(EmailOpts{SMTPAddr: "mail.local:25", From: "hub@zoo.local"})
	e.send = func(addr, from, to string, msg []byte) error {
		assert.Equal(t, "mail.local:25", addr)
		assert.Equal(t, "hub@zoo.local", from)
		sentTo = to
		sentMsg = msg
		return nil
	}

	job := emailJob(t, model.EmailConfig{
		To:       "vet@zoo.local",
		Subject:  "Missed feeding for {{subject.id}}",
		Template: "Keeper {{payload.keeper}} missed feeding {{subject.id}}.",
	})

	out := e.Execute(context.Background(), job)
	require.True(t, out.Success, "err=%s", out.Err)

	assert.Equal(t, "vet@zoo.local", sentTo)
	assert.Contains(t, string(sentMsg), "Subject: Missed feeding for tiger-3")
	assert.Contains(t, string(sentMsg), "Keeper sam missed feeding tiger-3.")
}

func TestEmailExecutorSendFailure(t *testing.T) {
	e := NewEmailExecutor(EmailOpts{SMTPAddr: "mail.local:25"})
	e.send = func(addr, from, to string, msg []byte) error {
		return errors.New("connection refused")
	}

	job := emailJob(t, model.EmailConfig{To: "vet@zoo.local", Template: "hi"})

	out := e.Execute(context.Background(), job)
	assert.False(t, out.Success)
	assert.Contains(t, out.Err, "connection refused")
}

func TestEmailExecutorLogOnlyWithoutRelay(t *testing.T) {
	e := NewEmailExecutor(EmailOpts{})
	e.send = func(addr, from, to string, msg []byte) error {
		t.Fatal("send must not be called without an SMTP address")
		return nil
	}

	job := emailJob(t, model.EmailConfig{To: "vet@zoo.local", Template: "hi"})

	out := e.Execute(context.Background(), job)
	assert.True(t, out.Success)
}

func TestEmailExecutorUnresolvedRecipient(t *testing.T) {
	e := NewEmailExecutor(EmailOpts{SMTPAddr: "mail.local:25"})

	job := emailJob(t, model.EmailConfig{To: "{{payload.owner}}", Template: "hi"})

	out := e.Execute(context.Background(), job)
	assert.False(t, out.Success)
	assert.Contains(t, out.Err, "payload.owner")
}
