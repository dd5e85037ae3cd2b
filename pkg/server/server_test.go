package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/vidpulse/internal/ingest"
	"github.com/elonfeng/vidpulse/internal/store"
)

const testVideo = "dQw4w9WgXcQ"

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeIngester struct {
	runErr   error
	panicRun bool
	tracked  []string
	untrack  []string
}

func (f *fakeIngester) Run(ctx context.Context, at time.Time) (*ingest.RunSummary, error) {
	if f.panicRun {
		panic("boom")
	}
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &ingest.RunSummary{RunID: "run-1", StartedAt: at, Videos: 1, Succeeded: 1}, nil
}

func (f *fakeIngester) Track(ctx context.Context, input string) (*ingest.TrackResult, error) {
	f.tracked = append(f.tracked, input)
	if !strings.Contains(input, testVideo) {
		return nil, ingest.ErrInvalidVideoID
	}
	return &ingest.TrackResult{Video: store.Video{ID: testVideo}, FirstSeen: true}, nil
}

func (f *fakeIngester) TrackMany(ctx context.Context, inputs []string) ([]ingest.TrackResult, []error) {
	f.tracked = append(f.tracked, inputs...)
	return []ingest.TrackResult{{Video: store.Video{ID: testVideo}}}, []error{&ingest.LineError{Line: 2, Input: "x", Err: ingest.ErrInvalidVideoID}}
}

func (f *fakeIngester) Untrack(ctx context.Context, input string) error {
	f.untrack = append(f.untrack, input)
	return nil
}

type harness struct {
	store *store.SQLiteStore
	ing   *fakeIngester
	reg   *prometheus.Registry
	ts    *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := &harness{store: st, ing: &fakeIngester{}, reg: prometheus.NewRegistry()}
	srv := New(st, h.ing, Options{
		Gatherer: h.reg,
		Location: time.UTC,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return testNow },
	})
	h.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(h.ts.Close)
	return h
}

func (h *harness) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.UpsertVideo(ctx, &store.Video{
		ID:          testVideo,
		Title:       "Never Gonna Give You Up",
		ChannelID:   "UC1",
		PublishedAt: testNow.AddDate(0, 0, -10),
		Active:      true,
		AddedAt:     testNow,
	}))
	require.NoError(t, h.store.ReplaceTags(ctx, testVideo, []string{"music", "80s"}))

	for i, views := range []int64{1000, 1100, 1200} {
		require.NoError(t, h.store.UpsertSnapshot(ctx, &store.StatSnapshot{
			VideoID:      testVideo,
			Date:         testNow.AddDate(0, 0, i-2).Format(store.DateLayout),
			ViewCount:    views,
			LikeCount:    views / 20,
			CommentCount: 5,
			Synthetic:    i == 0,
			FetchedAt:    testNow,
		}))
	}

	require.NoError(t, h.store.ReplaceComments(ctx, testVideo, []store.Comment{
		{VideoID: testVideo, CommentID: "c1", AuthorName: "ann", LikeCount: 3, Text: "amazing song", PublishedAt: testNow, UpdatedAt: testNow, FetchedAt: testNow},
		{VideoID: testVideo, CommentID: "c2", AuthorName: "bob", LikeCount: 9, Text: "terrible dance", PublishedAt: testNow, UpdatedAt: testNow, FetchedAt: testNow},
	}))
}

func (h *harness) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, h.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestVideos_ListAndGet(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	status, body := h.do(t, http.MethodGet, "/api/v1/videos?active=true", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, body = h.do(t, http.MethodGet, "/api/v1/videos/"+testVideo, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://www.youtube.com/watch?v="+testVideo, body["url"])
	assert.ElementsMatch(t, []any{"music", "80s"}, body["tags"])
	latest := body["latest"].(map[string]any)
	assert.EqualValues(t, 1200, latest["view_count"])
}

func TestVideos_Errors(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodGet, "/api/v1/videos/bad!", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "invalid video id")

	status, body = h.do(t, http.MethodGet, "/api/v1/videos/aaaaaaaaaaa", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, body["error"])

	status, _ = h.do(t, http.MethodGet, "/api/v1/videos?active=maybe", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStats_WindowAndSynthetic(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	_, body := h.do(t, http.MethodGet, "/api/v1/videos/"+testVideo+"/stats", "")
	assert.EqualValues(t, 3, body["count"])

	_, body = h.do(t, http.MethodGet, "/api/v1/videos/"+testVideo+"/stats?days=2", "")
	assert.EqualValues(t, 2, body["count"])

	_, body = h.do(t, http.MethodGet, "/api/v1/videos/"+testVideo+"/stats?synthetic=false", "")
	assert.EqualValues(t, 2, body["count"])
	for _, row := range body["data"].([]any) {
		assert.Equal(t, false, row.(map[string]any)["synthetic"])
	}
}

func TestAnalysis(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	status, body := h.do(t, http.MethodGet, "/api/v1/videos/"+testVideo+"/analysis", "")
	require.Equal(t, http.StatusOK, status)
	a := body["analysis"].(map[string]any)
	assert.Equal(t, "rapid_up", a["trend"])
	assert.InDelta(t, 20, a["growth_rate"], 1e-9)
	assert.EqualValues(t, 1, a["synthetic_days"])
	assert.Equal(t, "rapid rise", body["trend_label"])
}

func TestSuggestions(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	status, body := h.do(t, http.MethodGet, "/api/v1/videos/"+testVideo+"/suggestions", "")
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["suggestions"])
	seo := body["seo"].(map[string]any)
	assert.Equal(t, "short", seo["description"].(map[string]any)["status"])
}

func TestComments(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	_, body := h.do(t, http.MethodGet, "/api/v1/videos/"+testVideo+"/comments?limit=1", "")
	assert.EqualValues(t, 1, body["count"])
	first := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "c2", first["comment_id"])

	_, body = h.do(t, http.MethodGet, "/api/v1/videos/"+testVideo+"/comments/insights?words=10&top=5", "")
	sentiment := body["sentiment"].(map[string]any)
	assert.EqualValues(t, 1, sentiment["positive"])
	assert.EqualValues(t, 1, sentiment["negative"])
	assert.Len(t, body["top_commenters"], 2)
}

func TestTrackAndUntrack(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodPost, "/api/v1/videos", `{"input":"https://youtu.be/`+testVideo+`"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, body["first_seen"])

	status, _ = h.do(t, http.MethodPost, "/api/v1/videos", `{"input":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodPost, "/api/v1/videos", `{`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = h.do(t, http.MethodPost, "/api/v1/videos", `{"inputs":["`+testVideo+`","x"]}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["tracked"], 1)
	assert.Len(t, body["errors"], 1)

	status, _ = h.do(t, http.MethodDelete, "/api/v1/videos/"+testVideo, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{testVideo}, h.ing.untrack)
}

func TestAlerts_ListAndRead(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	a := &store.Alert{
		VideoID:        testVideo,
		AlertType:      store.AlertMilestone,
		ThresholdValue: 100_000,
		CurrentValue:   100_050,
		Message:        "milestone",
		AlertDate:      testNow.Format(store.DateLayout),
		CreatedAt:      testNow,
	}
	require.NoError(t, h.store.InsertAlert(context.Background(), a))

	_, body := h.do(t, http.MethodGet, "/api/v1/alerts?unread=true", "")
	require.EqualValues(t, 1, body["count"])
	assert.Equal(t, "Never Gonna Give You Up", body["data"].([]any)[0].(map[string]any)["video_title"])

	status, _ := h.do(t, http.MethodPost, "/api/v1/alerts/"+strconv.FormatInt(a.ID, 10)+"/read", "")
	assert.Equal(t, http.StatusOK, status)

	_, body = h.do(t, http.MethodGet, "/api/v1/alerts?unread=true", "")
	assert.EqualValues(t, 0, body["count"])

	status, _ = h.do(t, http.MethodPost, "/api/v1/alerts/999/read", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = h.do(t, http.MethodPost, "/api/v1/alerts/abc/read", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestOverviewTagsRuns(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	_, body := h.do(t, http.MethodGet, "/api/v1/overview", "")
	assert.EqualValues(t, 1, body["videos"])
	assert.EqualValues(t, 1200, body["total_views"])

	_, body = h.do(t, http.MethodGet, "/api/v1/tags", "")
	assert.EqualValues(t, 2, body["count"])

	_, body = h.do(t, http.MethodGet, "/api/v1/runs", "")
	assert.EqualValues(t, 0, body["count"])
}

func TestIngest(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodPost, "/api/v1/ingest", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "run-1", body["run_id"])

	h.ing.runErr = ingest.ErrRunInProgress
	status, _ = h.do(t, http.MethodPost, "/api/v1/ingest", "")
	assert.Equal(t, http.StatusConflict, status)
}

func TestRecoversFromPanic(t *testing.T) {
	h := newHarness(t)
	h.ing.panicRun = true

	status, _ := h.do(t, http.MethodPost, "/api/v1/ingest", "")
	assert.Equal(t, http.StatusInternalServerError, status)

	status, _ = h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "vidpulse_test_total"})
	h.reg.MustRegister(c)
	c.Inc()

	resp, err := http.Get(h.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "vidpulse_test_total 1")
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not found", body["error"])
}
