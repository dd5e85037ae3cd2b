// Package ingest refreshes tracked videos from the YouTube API, records one
// snapshot per video per day and raises threshold alerts.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/elonfeng/vidpulse/internal/config"
	"github.com/elonfeng/vidpulse/internal/metrics"
	"github.com/elonfeng/vidpulse/internal/store"
	"github.com/elonfeng/vidpulse/pkg/alert"
	"github.com/elonfeng/vidpulse/pkg/youtube"
)

var (
	// ErrInvalidVideoID is returned when input holds no recognisable video id.
	ErrInvalidVideoID = errors.New("invalid video id or url")
	// ErrRunInProgress is returned when a run is requested while one is active.
	ErrRunInProgress = errors.New("ingestion run already in progress")
)

// MetricsClient is the subset of the YouTube client the pipeline uses.
type MetricsClient interface {
	FetchVideo(ctx context.Context, id string) (*youtube.Video, error)
	FetchVideos(ctx context.Context, ids []string) ([]youtube.Video, error)
	FetchComments(ctx context.Context, videoID string, limit int) ([]youtube.Comment, error)
}

// Notifier delivers newly created alerts.
type Notifier interface {
	HasNotifiers() bool
	Broadcast(ctx context.Context, n *alert.Notification) error
}

// Rules are the alert thresholds.
type Rules struct {
	// GrowthThresholds maps the hour of a run to the daily view growth that
	// raises a growth alert. Runs at other hours skip the growth check.
	GrowthThresholds map[int]int64
	MilestoneViews   int64
	AnomalyViews     int64
}

// Options configures a Pipeline. Zero values select the defaults, except
// BackfillDays where zero or less disables the history backfill.
type Options struct {
	Rules            Rules
	BackfillDays     int
	MaxComments      int
	MinCommentLength int
	Location         *time.Location

	Logger   *slog.Logger
	Metrics  metrics.Recorder
	Notifier Notifier
	Now      func() time.Time
}

// OptionsFromConfig maps the ingest and schedule sections of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Rules: Rules{
			GrowthThresholds: cfg.Ingest.GrowthThresholds,
			MilestoneViews:   cfg.Ingest.MilestoneViews,
			AnomalyViews:     cfg.Ingest.AnomalyViews,
		},
		BackfillDays:     cfg.Ingest.BackfillDays,
		MaxComments:      cfg.Ingest.MaxComments,
		MinCommentLength: cfg.Ingest.MinCommentLength,
		Location:         cfg.Schedule.Location(),
	}
}

// Pipeline runs the fetch, snapshot and alert cycle over tracked videos.
type Pipeline struct {
	store  store.Store
	client MetricsClient
	opts   Options
	log    *slog.Logger

	mu sync.Mutex
}

// New creates a new Pipeline.
func New(st store.Store, client MetricsClient, opts Options) *Pipeline {
	if opts.Rules.GrowthThresholds == nil {
		opts.Rules.GrowthThresholds = map[int]int64{9: 10_000, 12: 30_000, 18: 50_000}
	}
	if opts.Rules.MilestoneViews <= 0 {
		opts.Rules.MilestoneViews = 100_000
	}
	if opts.Rules.AnomalyViews <= 0 {
		opts.Rules.AnomalyViews = 5_000
	}
	if opts.BackfillDays < 0 {
		opts.BackfillDays = 0
	}
	if opts.MaxComments <= 0 {
		opts.MaxComments = 100
	}
	if opts.MinCommentLength <= 0 {
		opts.MinCommentLength = 3
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		store:  st,
		client: client,
		opts:   opts,
		log:    log.With("component", "ingest"),
	}
}

// VideoError is a per-video failure recorded in a run.
type VideoError struct {
	VideoID string `json:"video_id"`
	Err     string `json:"error"`
}

// RunSummary is the outcome of one run.
type RunSummary struct {
	RunID         string        `json:"run_id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Hour          int           `json:"hour"`
	Threshold     int64         `json:"growth_threshold,omitempty"`
	Videos        int           `json:"videos"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	Alerts        []store.Alert `json:"alerts"`
	Errors        []VideoError  `json:"errors,omitempty"`
	CommentErrors int           `json:"comment_errors"`
}

// Run refreshes every active video as of at. The hour of at, in the
// configured location, selects the growth threshold.
func (p *Pipeline) Run(ctx context.Context, at time.Time) (*RunSummary, error) {
	if !p.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.mu.Unlock()

	local := at.In(p.opts.Location)
	sum := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: p.opts.Now(),
		Hour:      local.Hour(),
		Alerts:    []store.Alert{},
	}
	threshold, hasThreshold := p.opts.Rules.GrowthThresholds[sum.Hour]
	if hasThreshold {
		sum.Threshold = threshold
	}
	log := p.log.With("run_id", sum.RunID)

	videos, err := p.store.ListVideos(ctx, store.VideoListOpts{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list active videos: %w", err)
	}
	sum.Videos = len(videos)
	log.Info("ingest run started", "videos", len(videos), "hour", sum.Hour, "growth_threshold", threshold)

	for i := range videos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		v := &videos[i]
		res, err := p.processVideo(ctx, v, local, threshold, hasThreshold)
		if errors.Is(err, youtube.ErrMissingAPIKey) {
			return nil, fmt.Errorf("%w: %w", config.ErrMissingAPIKey, err)
		}
		if err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, VideoError{VideoID: v.ID, Err: err.Error()})
			log.Warn("video ingest failed", "video_id", v.ID, "error", err)
			continue
		}

		sum.Succeeded++
		if res.commentErr != nil {
			sum.CommentErrors++
		}
		log.Info("video ingested",
			"video_id", v.ID,
			"views", res.snapshot.ViewCount,
			"daily_growth", res.growth,
			"alerts", len(res.alerts),
			"backfilled", res.backfilled,
		)

		p.notify(ctx, log, res.title, res.alerts)
		sum.Alerts = append(sum.Alerts, res.alerts...)
	}

	sum.FinishedAt = p.opts.Now()
	run := &store.Run{
		ID:            sum.RunID,
		StartedAt:     sum.StartedAt,
		FinishedAt:    sum.FinishedAt,
		ThresholdHour: sum.Hour,
		Videos:        sum.Videos,
		Succeeded:     sum.Succeeded,
		Failed:        sum.Failed,
		Alerts:        len(sum.Alerts),
	}
	if err := p.store.RecordRun(ctx, run); err != nil {
		log.Error("record run", "error", err)
	}
	p.opts.Metrics.RecordRun(sum.Succeeded, sum.Failed)

	log.Info("ingest run finished",
		"videos", sum.Videos,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"alerts", len(sum.Alerts),
		"duration", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond),
	)
	return sum, nil
}

type videoResult struct {
	title      string
	snapshot   store.StatSnapshot
	growth     int64
	backfilled int
	alerts     []store.Alert
	commentErr error
}

// processVideo fetches one video and commits its snapshot, alerts, comments
// and metadata in a single transaction.
func (p *Pipeline) processVideo(ctx context.Context, v *store.Video, local time.Time, threshold int64, hasThreshold bool) (*videoResult, error) {
	fv, err := p.fetch(ctx, v.ID)
	if err != nil {
		return nil, err
	}

	comments, commentErr := p.client.FetchComments(ctx, v.ID, p.opts.MaxComments)
	if errors.Is(commentErr, youtube.ErrMissingAPIKey) {
		return nil, commentErr
	}
	if commentErr != nil {
		p.log.Warn("fetch comments failed, keeping stored comments", "video_id", v.ID, "error", commentErr)
	}

	now := p.opts.Now()
	today := local.Format(store.DateLayout)
	yesterday := local.AddDate(0, 0, -1).Format(store.DateLayout)
	res := &videoResult{title: fv.Title, commentErr: commentErr}

	err = p.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.UpsertVideo(ctx, videoRecord(fv, v.Active, v.AddedAt)); err != nil {
			return err
		}
		if err := tx.ReplaceTags(ctx, v.ID, fv.Tags); err != nil {
			return err
		}

		n, err := tx.CountSnapshots(ctx, v.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			res.backfilled, err = backfill(ctx, tx, v.ID, fv, local, p.opts.BackfillDays, p.opts.Location, now)
			if err != nil {
				return err
			}
		}

		res.snapshot = snapshotOf(fv, today, now)
		if err := tx.UpsertSnapshot(ctx, &res.snapshot); err != nil {
			return err
		}

		var yesterdayViews int64
		prev, err := tx.GetSnapshot(ctx, v.ID, yesterday)
		switch {
		case err == nil:
			yesterdayViews = prev.ViewCount
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		res.growth = fv.ViewCount - yesterdayViews

		res.alerts, err = p.evaluateAlerts(ctx, tx, fv, local, res.growth, threshold, hasThreshold, now)
		if err != nil {
			return err
		}

		if commentErr == nil {
			kept := p.filterComments(v.ID, comments, now)
			if err := tx.ReplaceComments(ctx, v.ID, kept); err != nil {
				return err
			}
			p.opts.Metrics.RecordCommentsStored(len(kept))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save video %s: %w", v.ID, err)
	}

	for _, a := range res.alerts {
		p.opts.Metrics.RecordAlert(a.AlertType)
	}
	return res, nil
}

func (p *Pipeline) fetch(ctx context.Context, id string) (*youtube.Video, error) {
	start := time.Now()
	fv, err := p.client.FetchVideo(ctx, id)
	p.opts.Metrics.RecordFetchLatency(time.Since(start))
	if err != nil {
		reason := "network"
		if errors.Is(err, youtube.ErrNotFound) {
			reason = "not_found"
		}
		p.opts.Metrics.RecordFetchFailure(reason)
		return nil, err
	}
	p.opts.Metrics.RecordFetchSuccess()
	return fv, nil
}

// filterComments drops comments whose trimmed text is shorter than the
// configured minimum.
func (p *Pipeline) filterComments(videoID string, in []youtube.Comment, now time.Time) []store.Comment {
	out := make([]store.Comment, 0, len(in))
	for _, c := range in {
		text := strings.TrimSpace(c.Text)
		if utf8.RuneCountInString(text) < p.opts.MinCommentLength {
			continue
		}
		out = append(out, store.Comment{
			VideoID:          videoID,
			CommentID:        c.ID,
			AuthorName:       c.AuthorName,
			AuthorChannelURL: c.AuthorChannelURL,
			LikeCount:        c.LikeCount,
			Text:             text,
			PublishedAt:      c.PublishedAt,
			UpdatedAt:        c.UpdatedAt,
			FetchedAt:        now,
		})
	}
	return out
}

// notify broadcasts committed alerts and stamps the delivered ones.
func (p *Pipeline) notify(ctx context.Context, log *slog.Logger, title string, alerts []store.Alert) {
	if p.opts.Notifier == nil || !p.opts.Notifier.HasNotifiers() {
		return
	}
	for i := range alerts {
		a := &alerts[i]
		n := &alert.Notification{
			AlertID:    a.ID,
			AlertType:  a.AlertType,
			VideoID:    a.VideoID,
			VideoTitle: title,
			URL:        youtube.WatchURL(a.VideoID),
			Message:    a.Message,
			Current:    a.CurrentValue,
			Threshold:  a.ThresholdValue,
			CreatedAt:  a.CreatedAt,
		}
		if err := p.opts.Notifier.Broadcast(ctx, n); err != nil {
			log.Warn("alert delivery failed", "alert_id", a.ID, "type", a.AlertType, "error", err)
			continue
		}
		at := p.opts.Now()
		if err := p.store.MarkAlertNotified(ctx, a.ID, at); err != nil {
			log.Warn("mark alert notified", "alert_id", a.ID, "error", err)
			continue
		}
		a.NotifiedAt = &at
	}
}

// EngagementRate is (likes + comments) / views, or 0 without views.
func EngagementRate(views, likes, comments int64) float64 {
	if views <= 0 {
		return 0
	}
	return float64(likes+comments) / float64(views)
}

func snapshotOf(fv *youtube.Video, date string, now time.Time) store.StatSnapshot {
	return store.StatSnapshot{
		VideoID:        fv.ID,
		Date:           date,
		ViewCount:      fv.ViewCount,
		LikeCount:      fv.LikeCount,
		CommentCount:   fv.CommentCount,
		EngagementRate: EngagementRate(fv.ViewCount, fv.LikeCount, fv.CommentCount),
		FetchedAt:      now,
	}
}

func videoRecord(fv *youtube.Video, active bool, addedAt time.Time) *store.Video {
	return &store.Video{
		ID:              fv.ID,
		Title:           fv.Title,
		ChannelID:       fv.ChannelID,
		ChannelTitle:    fv.ChannelTitle,
		Description:     fv.Description,
		ThumbnailURL:    fv.ThumbnailURL,
		Duration:        fv.Duration,
		DurationSeconds: fv.DurationSeconds,
		CategoryID:      fv.CategoryID,
		PublishedAt:     fv.PublishedAt,
		Active:          active,
		AddedAt:         addedAt,
	}
}
