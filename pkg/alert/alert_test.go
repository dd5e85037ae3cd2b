package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Notification {
	return &Notification{
		AlertID:    7,
		AlertType:  "growth_10000",
		VideoID:    "dQw4w9WgXcQ",
		VideoTitle: "Never Gonna Give You Up",
		URL:        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Message:    "Daily views grew by 11,000",
		Current:    11_000,
		Threshold:  10_000,
	}
}

type recorded struct {
	header http.Header
	body   []byte
}

func captureServer(t *testing.T, status int) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		rec.header = r.Header.Clone()
		rec.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestNotification_Text(t *testing.T) {
	n := sample()
	assert.Equal(t, "📈 Growth: Never Gonna Give You Up", n.Headline())
	assert.Equal(t, "current 11,000 / threshold 10,000", n.Values())

	n.VideoTitle = ""
	n.AlertType = "100k"
	assert.Equal(t, "🏆 Milestone: dQw4w9WgXcQ", n.Headline())
}

func TestSlack_Send(t *testing.T) {
	srv, rec := captureServer(t, http.StatusOK)
	require.NoError(t, NewSlack(srv.URL).Send(context.Background(), sample()))

	var payload struct {
		Blocks []map[string]any `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(rec.body, &payload))
	require.Len(t, payload.Blocks, 3)
	assert.Equal(t, "header", payload.Blocks[0]["type"])
	assert.Contains(t, string(rec.body), "11,000")
}

func TestDiscord_Send(t *testing.T) {
	srv, rec := captureServer(t, http.StatusNoContent)
	n := sample()
	n.AlertType = "data_anomaly"
	require.NoError(t, NewDiscord(srv.URL).Send(context.Background(), n))

	var payload struct {
		Embeds []map[string]any `json:"embeds"`
	}
	require.NoError(t, json.Unmarshal(rec.body, &payload))
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, float64(colorAnomaly), payload.Embeds[0]["color"])
	assert.Equal(t, n.URL, payload.Embeds[0]["url"])
}

func TestWebhook_SignsBody(t *testing.T) {
	srv, rec := captureServer(t, http.StatusAccepted)
	require.NoError(t, NewWebhook(srv.URL, "s3cret").Send(context.Background(), sample()))

	assert.Equal(t, "sha256="+Sign("s3cret", rec.body), rec.header.Get("X-Signature-256"))

	var got Notification
	require.NoError(t, json.Unmarshal(rec.body, &got))
	assert.Equal(t, "growth_10000", got.AlertType)
	assert.Equal(t, int64(11_000), got.Current)
}

func TestWebhook_NoSecretNoSignature(t *testing.T) {
	srv, rec := captureServer(t, http.StatusOK)
	require.NoError(t, NewWebhook(srv.URL, "").Send(context.Background(), sample()))
	assert.Empty(t, rec.header.Get("X-Signature-256"))
}

func TestSend_Non2xxFails(t *testing.T) {
	srv, _ := captureServer(t, http.StatusBadGateway)
	err := NewSlack(srv.URL).Send(context.Background(), sample())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

type fakeNotifier struct {
	name string
	err  error
	got  []*Notification
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Send(_ context.Context, n *Notification) error {
	f.got = append(f.got, n)
	return f.err
}

func TestManager_BroadcastJoinsErrors(t *testing.T) {
	ok := &fakeNotifier{name: "ok"}
	bad := &fakeNotifier{name: "bad", err: errors.New("down")}
	m := NewManager([]Notifier{bad, ok})

	err := m.Broadcast(context.Background(), sample())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bad: down"))
	assert.Len(t, ok.got, 1, "a failing notifier must not block the others")
	assert.True(t, m.HasNotifiers())
}

func TestManager_Nil(t *testing.T) {
	var m *Manager
	assert.False(t, m.HasNotifiers())
	assert.NoError(t, m.Broadcast(context.Background(), sample()))
	assert.False(t, NewManager(nil).HasNotifiers())
}
