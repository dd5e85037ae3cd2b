package ingest

import (
	"context"
	"math"
	"time"

	"github.com/elonfeng/vidpulse/internal/store"
	"github.com/elonfeng/vidpulse/pkg/youtube"
)

// backfill synthesises up to maxDays days of history before local's day on a
// logistic curve ending at the current counters. Existing days are kept.
// It returns the number of rows inserted; all of them are flagged synthetic.
func backfill(ctx context.Context, tx store.Tx, videoID string, fv *youtube.Video,
	local time.Time, maxDays int, loc *time.Location, now time.Time) (int, error) {
	days := maxDays
	if !fv.PublishedAt.IsZero() {
		days = min(days, daysBetween(fv.PublishedAt.In(loc), local))
	}
	if days <= 0 {
		return 0, nil
	}

	inserted := 0
	for _, snap := range SimulateHistory(videoID, fv.ViewCount, fv.LikeCount, fv.CommentCount, local, days, now) {
		ok, err := tx.InsertSnapshotIfAbsent(ctx, &snap)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// SimulateHistory returns days synthetic snapshots, oldest first, for the
// days before local. Progress through the window runs from 0 on the oldest
// day towards 1, and each counter follows 1/(1+e^(-5(p-0.5))) of its current
// value. Views never drop below a tenth of the current value and likes
// never below one.
func SimulateHistory(videoID string, views, likes, comments int64, local time.Time, days int, now time.Time) []store.StatSnapshot {
	if days <= 0 {
		return nil
	}
	out := make([]store.StatSnapshot, 0, days)
	for i := days; i >= 1; i-- {
		p := float64(days-i) / float64(days)
		s := 1 / (1 + math.Exp(-5*(p-0.5)))

		v := max(int64(float64(views)*s), int64(float64(views)*0.1))
		l := max(int64(float64(likes)*s), 1)
		c := max(int64(float64(comments)*s), 0)

		out = append(out, store.StatSnapshot{
			VideoID:        videoID,
			Date:           local.AddDate(0, 0, -i).Format(store.DateLayout),
			ViewCount:      v,
			LikeCount:      l,
			CommentCount:   c,
			EngagementRate: EngagementRate(v, l, c),
			Synthetic:      true,
			FetchedAt:      now,
		})
	}
	return out
}
