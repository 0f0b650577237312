package executor

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookJob(t *testing.T, cfg model.WebhookConfig) model.Job {
	t.Helper()

	rawCfg, err := json.Marshal(cfg)
	require.NoError(t, err)

	payload, err := json.Marshal(model.JobPayload{
		Event: model.EventSnapshot{
			ID:         "01HEVT",
			Source:     "billing",
			Type:       "PAYMENT_FAILED",
			Subject:    model.Subject{Kind: "animal", ID: "elephant-7"},
			Payload:    json.RawMessage(`{"amount": 42}`),
			OccurredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		Config: rawCfg,
	})
	require.NoError(t, err)

	return model.Job{
		ID:          "01HJOB",
		EventID:     "01HEVT",
		Kind:        model.ActionWebhook,
		Status:      model.JobProcessing,
		Attempts:    0,
		MaxAttempts: 3,
		Payload:     payload,
	}
}

func TestWebhookExecutorSuccess(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	job := webhookJob(t, model.WebhookConfig{
		URL:     srv.URL + "/hooks",
		Method:  "POST",
		Headers: map[string]string{"X-Animal": "{{subject.id}}"},
		Body:    json.RawMessage(`{"event":"{{type}}","amount":"{{payload.amount}}"}`),
	})

	e := NewWebhookExecutor(WebhookOpts{Timeout: 2 * time.Second})
	out := e.Execute(context.Background(), job)

	require.True(t, out.Success, "err=%s", out.Err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, "PAYMENT_FAILED", body["event"])
	assert.Equal(t, "42", body["amount"])

	assert.Equal(t, "elephant-7", gotHeader.Get("X-Animal"))
	assert.Equal(t, "01HEVT:01HJOB:1", gotHeader.Get("Idempotency-Key"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))

	var result map[string]any
	require.NoError(t, json.Unmarshal(out.Result, &result))
	assert.Equal(t, float64(200), result["status"])
}

func TestWebhookExecutorSignsRequests(t *testing.T) {
	const secret = "topsecret"

	var gotBody []byte
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	job := webhookJob(t, model.WebhookConfig{
		URL:    srv.URL,
		Method: "POST",
		Body:   json.RawMessage(`{"id":"{{eventId}}"}`),
	})

	e := NewWebhookExecutor(WebhookOpts{Timeout: 2 * time.Second, SigningSecret: secret})
	out := e.Execute(context.Background(), job)
	require.True(t, out.Success)

	ts := gotHeader.Get("X-Zoo-Timestamp")
	require.NotEmpty(t, ts)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, gotHeader.Get("X-Zoo-Signature"))
}

func TestWebhookExecutorNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	job := webhookJob(t, model.WebhookConfig{URL: srv.URL, Method: "POST"})

	e := NewWebhookExecutor(WebhookOpts{Timeout: 2 * time.Second})
	out := e.Execute(context.Background(), job)

	assert.False(t, out.Success)
	assert.Contains(t, out.Err, "HTTP 502")

	var result map[string]any
	require.NoError(t, json.Unmarshal(out.Result, &result))
	assert.Equal(t, float64(502), result["status"])
}

func TestWebhookExecutorTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	job := webhookJob(t, model.WebhookConfig{URL: srv.URL, Method: "GET"})

	e := NewWebhookExecutor(WebhookOpts{Timeout: 50 * time.Millisecond})
	out := e.Execute(context.Background(), job)

	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Err)
}

func TestWebhookExecutorUnresolvedPlaceholder(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	job := webhookJob(t, model.WebhookConfig{
		URL:    srv.URL,
		Method: "POST",
		Body:   json.RawMessage(`{"x":"{{payload.does.not.exist}}"}`),
	})

	e := NewWebhookExecutor(WebhookOpts{Timeout: 2 * time.Second})
	out := e.Execute(context.Background(), job)

	assert.False(t, out.Success)
	assert.Contains(t, out.Err, "does.not.exist")
	assert.False(t, called, "no HTTP call for an unrenderable body")
}
