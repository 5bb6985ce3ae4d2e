package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "intel-registry/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, evt Event) error {
	r.events = append(r.events, evt)
	return r.err
}

func TestFanoutDeliversToAllChannels(t *testing.T) {
	a := &recordingNotifier{channel: ChannelLog}
	b := &recordingNotifier{channel: ChannelWebhook, err: errors.New("down")}
	d := NewFanout(a, b, nil)

	err := d.Notify(context.Background(), Event{Code: xerrors.CodeStorageFailure})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel webhook")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Equal(t, []Channel{ChannelLog, ChannelWebhook}, d.Channels())
}

func TestNilFanoutIsNoop(t *testing.T) {
	var d *FanoutDispatcher
	assert.NoError(t, d.Notify(context.Background(), Event{}))
}

func TestFromError(t *testing.T) {
	err := xerrors.Wrap(xerrors.CodeStorageFailure, errors.New("disk"), "commit", xerrors.WithMetadata("key", "proof/p-1"))
	evt := FromError("attest", "p-1", err)
	assert.Equal(t, xerrors.CodeStorageFailure, evt.Code)
	assert.Equal(t, xerrors.SeverityCritical, evt.Severity)
	assert.Equal(t, "proof/p-1", evt.Metadata["key"])
	assert.Equal(t, "attest", evt.Operation)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := &LogNotifier{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	require.NoError(t, n.Notify(context.Background(), Event{Code: xerrors.CodeStorageFailure, Metadata: map[string]string{"key": "k"}}))
	assert.Contains(t, buf.String(), "registry_alert")
	assert.Contains(t, buf.String(), `"meta.key":"k"`)
}

func TestWebhookNotifier(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL}
	require.NoError(t, n.Notify(context.Background(), Event{Code: xerrors.CodeStorageFailure, ProofID: "p-9"}))
	assert.Equal(t, "p-9", got.ProofID)
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := (&WebhookNotifier{URL: srv.URL}).Notify(context.Background(), Event{})
	assert.Error(t, err)
}

type slackRecorder struct{ channel, content string }

func (s *slackRecorder) Send(_ context.Context, channel, content string) error {
	s.channel, s.content = channel, content
	return nil
}

func TestSlackNotifier(t *testing.T) {
	sender := &slackRecorder{}
	n := &SlackNotifier{Sender: sender, ChannelID: "C123"}
	require.NoError(t, n.Notify(context.Background(), Event{Code: xerrors.CodeStorageFailure, Severity: xerrors.SeverityCritical, Operation: "refute"}))
	assert.Equal(t, "C123", sender.channel)
	assert.Contains(t, sender.content, "STORAGE_FAILURE")

	assert.NoError(t, (&SlackNotifier{}).Notify(context.Background(), Event{}))
}
