package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/lupppig/dirbackup/internal/backup"
	"github.com/lupppig/dirbackup/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	calls []Stats
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, stats Stats) error {
	r.calls = append(r.calls, stats)
	return r.err
}

func TestWebhookNotifier_DefaultPayload(t *testing.T) {
	bodies := make(chan map[string]any, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PUT", r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, "PUT", "", map[string]string{"X-Token": "secret"})
	err := n.Notify(context.Background(), Stats{Status: StatusSuccess, Operation: "Backup", Copied: 5, Target: "/dst"})
	require.NoError(t, err)

	got := <-bodies
	assert.Equal(t, "success", got["status"])
	assert.Equal(t, float64(5), got["copied"])
	assert.Equal(t, "/dst", got["target"])
}

func TestWebhookNotifier_DefaultsToPost(t *testing.T) {
	assert.Equal(t, "POST", NewWebhookNotifier("http://example", "", "", nil).Method)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := NewWebhookNotifier(server.URL, "", "", nil).Notify(context.Background(), Stats{})
	assert.EqualError(t, err, "webhook returned status 400")
}

func TestWebhookNotifier_BadTemplate(t *testing.T) {
	err := NewWebhookNotifier("http://127.0.0.1:0", "", "{{.Nope", nil).Notify(context.Background(), Stats{})
	assert.ErrorContains(t, err, "failed to render webhook template")
}

func TestMultiNotifier_JoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("down")}

	m := &MultiNotifier{Notifiers: []Notifier{bad, ok}}
	err := m.Notify(context.Background(), Stats{Operation: "Backup"})

	assert.ErrorContains(t, err, "down")
	assert.Len(t, ok.calls, 1)
	assert.Len(t, bad.calls, 1)
}

func TestBuildNotifier(t *testing.T) {
	assert.Nil(t, BuildNotifier(&config.Config{}))

	cfg := &config.Config{}
	cfg.Notifications.Slack.WebhookURL = "https://hooks.slack.test/x"
	_, isSlack := BuildNotifier(cfg).(*SlackNotifier)
	assert.True(t, isSlack)

	cfg.Notifications.Webhooks = []config.WebhookConfig{{URL: "https://example.test/hook"}, {URL: ""}}
	multi, ok := BuildNotifier(cfg).(*MultiNotifier)
	require.True(t, ok)
	assert.Len(t, multi.Notifiers, 2)
}

func TestObserver_OnComplete(t *testing.T) {
	rec := &recordingNotifier{}
	req := backup.Request{Sources: []string{"/a", "/b"}, Target: "/t"}
	o := NewObserver(context.Background(), rec, "nightly", req)

	require.NoError(t, o.OnProgress(backup.ProgressEvent{}))
	require.NoError(t, o.OnError(backup.ErrorEvent{}))
	assert.Empty(t, rec.calls)

	require.NoError(t, o.OnComplete(backup.Result{
		Success:     false,
		CopiedCount: 3,
		ErrorCount:  1,
		BytesCopied: 2048,
		Message:     "Copied 3 files with 1 errors",
	}))

	require.Len(t, rec.calls, 1)
	got := rec.calls[0]
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "nightly", got.Job)
	assert.Equal(t, []string{"/a", "/b"}, got.Sources)
	assert.Equal(t, "/t", got.Target)
	assert.Equal(t, uint64(3), got.Copied)
	assert.Equal(t, 1, got.Errors)
	assert.Equal(t, int64(2048), got.Size)
	assert.EqualError(t, got.Error, "Copied 3 files with 1 errors")
}

func TestObserver_NilNotifier(t *testing.T) {
	o := NewObserver(context.Background(), nil, "", backup.Request{})
	assert.NoError(t, o.OnComplete(backup.Result{Success: true}))
}

func TestObserver_CancelledContextStillNotifies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var called atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	o := NewObserver(ctx, NewWebhookNotifier(server.URL, "", "", nil), "", backup.Request{})
	require.NoError(t, o.OnComplete(backup.Result{Cancelled: true}))
	assert.True(t, called.Load())
}
