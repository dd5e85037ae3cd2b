package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/vidpulse/internal/store"
	"github.com/elonfeng/vidpulse/pkg/youtube"
)

func TestTrack_FirstSeen(t *testing.T) {
	at := day(2024, 3, 31, 11)
	h := newHarness(t, at, Options{})
	h.client.put(youtube.Video{ID: vid, Title: "Rick", Tags: []string{"music"},
		PublishedAt: day(2024, 3, 21, 8), ViewCount: 250_000, LikeCount: 3_000})

	res, err := h.pipeline.Track(context.Background(), "https://youtu.be/"+vid)
	require.NoError(t, err)
	assert.True(t, res.FirstSeen)
	assert.False(t, res.Reactivated)
	assert.Equal(t, 10, res.Backfilled)
	assert.Equal(t, "Rick", res.Video.Title)
	assert.True(t, res.Video.Active)

	snap, err := h.store.LatestSnapshot(context.Background(), vid)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-31", snap.Date)
	assert.False(t, snap.Synthetic)

	tags, err := h.store.ListTags(context.Background(), vid)
	require.NoError(t, err)
	assert.Equal(t, []string{"music"}, tags)

	// Tracking raises no alerts, even past the milestone.
	assert.Empty(t, h.alerts(t, vid))
}

func TestTrack_InvalidInput(t *testing.T) {
	h := newHarness(t, day(2024, 3, 31, 11), Options{})
	_, err := h.pipeline.Track(context.Background(), "not a video")
	assert.True(t, errors.Is(err, ErrInvalidVideoID))

	err = h.pipeline.Untrack(context.Background(), "://")
	assert.True(t, errors.Is(err, ErrInvalidVideoID))
}

func TestTrack_RemoteMissing(t *testing.T) {
	h := newHarness(t, day(2024, 3, 31, 11), Options{})
	_, err := h.pipeline.Track(context.Background(), vid)
	assert.True(t, errors.Is(err, youtube.ErrNotFound))
}

func TestUntrackThenTrackReactivates(t *testing.T) {
	at := day(2024, 3, 31, 11)
	h := newHarness(t, at, Options{})
	h.client.put(youtube.Video{ID: vid, PublishedAt: day(2023, 1, 1, 0), ViewCount: 10})

	_, err := h.pipeline.Track(context.Background(), vid)
	require.NoError(t, err)
	require.NoError(t, h.pipeline.Untrack(context.Background(), vid))

	v, err := h.store.GetVideo(context.Background(), vid)
	require.NoError(t, err)
	assert.False(t, v.Active)

	res, err := h.pipeline.Track(context.Background(), "https://www.youtube.com/watch?v="+vid)
	require.NoError(t, err)
	assert.True(t, res.Reactivated)
	assert.False(t, res.FirstSeen)
	assert.Zero(t, res.Backfilled)
	assert.True(t, res.Video.Active)

	n, err := h.store.CountSnapshots(context.Background(), vid)
	require.NoError(t, err)
	assert.Equal(t, 31, n)
}

func TestUntrack_Unknown(t *testing.T) {
	h := newHarness(t, day(2024, 3, 31, 11), Options{})
	err := h.pipeline.Untrack(context.Background(), vid)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestTrackMany(t *testing.T) {
	h := newHarness(t, day(2024, 3, 31, 11), Options{})
	h.client.put(youtube.Video{ID: "aaaaaaaaaaa", PublishedAt: day(2024, 3, 30, 0), ViewCount: 10})
	h.client.put(youtube.Video{ID: "bbbbbbbbbbb", PublishedAt: day(2024, 3, 30, 0), ViewCount: 20})

	results, errs := h.pipeline.TrackMany(context.Background(), []string{
		"# my list",
		"aaaaaaaaaaa",
		"",
		"https://youtu.be/bbbbbbbbbbb",
		"https://youtube.com/shorts/aaaaaaaaaaa",
		"garbage",
		"ccccccccccc",
	})
	require.Len(t, results, 2)
	assert.Equal(t, "aaaaaaaaaaa", results[0].Video.ID)
	assert.Equal(t, "bbbbbbbbbbb", results[1].Video.ID)

	require.Len(t, errs, 2)
	var le *LineError
	require.True(t, errors.As(errs[0], &le))
	assert.Equal(t, 6, le.Line)
	assert.True(t, errors.Is(errs[0], ErrInvalidVideoID))
	require.True(t, errors.As(errs[1], &le))
	assert.Equal(t, 7, le.Line)
	assert.True(t, errors.Is(errs[1], youtube.ErrNotFound))

	videos, err := h.store.ListVideos(context.Background(), store.VideoListOpts{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, videos, 2)
}
