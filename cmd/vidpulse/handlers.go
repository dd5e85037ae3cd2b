package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/vidpulse/internal/config"
	"github.com/elonfeng/vidpulse/internal/ingest"
	"github.com/elonfeng/vidpulse/internal/metrics"
	"github.com/elonfeng/vidpulse/internal/scheduler"
	"github.com/elonfeng/vidpulse/internal/store"
	"github.com/elonfeng/vidpulse/pkg/alert"
	"github.com/elonfeng/vidpulse/pkg/analytics"
	"github.com/elonfeng/vidpulse/pkg/server"
	"github.com/elonfeng/vidpulse/pkg/youtube"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func buildClient(cfg *config.Config) *youtube.Client {
	return youtube.New(cfg.YouTube.APIKey, youtube.Options{
		BaseURL:           cfg.YouTube.BaseURL,
		FeedURL:           cfg.YouTube.FeedURL,
		Timeout:           cfg.YouTube.ParseTimeout(),
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		Retries:           cfg.YouTube.Retries,
		RetryDelay:        cfg.YouTube.ParseRetryDelay(),
	})
}

// app holds the wiring shared by every command.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *store.SQLiteStore
	client   *youtube.Client
	registry *prometheus.Registry
	pipeline *ingest.Pipeline
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg.Log)
	slog.SetDefault(log)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := buildClient(cfg)
	opts := ingest.OptionsFromConfig(cfg)
	opts.Logger = log
	opts.Metrics = metrics.NewCollector(reg)
	opts.Notifier = buildAlertManager(cfg)

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		client:   client,
		registry: reg,
		pipeline: ingest.New(db, client, opts),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("close store", "err", err)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readLines(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

func runTrack(ctx context.Context, args []string, file string, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.RequireAPIKey(); err != nil {
		return err
	}

	inputs := args
	if file != "" {
		lines, err := readLines(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		inputs = append(inputs, lines...)
	}

	var (
		results []ingest.TrackResult
		errs    []error
	)
	if len(inputs) == 1 {
		res, err := a.pipeline.Track(ctx, inputs[0])
		if err != nil {
			return err
		}
		results = append(results, *res)
	} else {
		results, errs = a.pipeline.TrackMany(ctx, inputs)
	}

	if jsonOutput {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return printJSON(map[string]any{"tracked": results, "errors": msgs})
	}

	for _, r := range results {
		state := "tracking"
		switch {
		case r.FirstSeen:
			state = fmt.Sprintf("tracking (backfilled %d days)", r.Backfilled)
		case r.Reactivated:
			state = "tracking again"
		}
		fmt.Printf("%s  %s  %s\n", r.Video.ID, state, r.Video.Title)
	}
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "  error: %v\n", e)
	}
	if len(results) == 0 && len(errs) > 0 {
		return fmt.Errorf("no videos tracked")
	}
	return nil
}

func runUntrack(ctx context.Context, input string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.pipeline.Untrack(ctx, input); err != nil {
		return err
	}
	fmt.Println("untracked", input)
	return nil
}

func runList(ctx context.Context, all, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	summaries, err := a.db.ListVideoSummaries(ctx, store.VideoListOpts{ActiveOnly: !all})
	if err != nil {
		return fmt.Errorf("list videos: %w", err)
	}

	if jsonOutput {
		return printJSON(summaries)
	}
	if len(summaries) == 0 {
		fmt.Println("no tracked videos (add one: vidpulse track <url>)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVIEWS\tLIKES\tCOMMENTS\tENGAGEMENT\tLAST\tTITLE")
	for _, s := range summaries {
		title := s.Title
		if !s.Active {
			title += " (untracked)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			analytics.FormatNumber(s.ViewCount),
			analytics.FormatNumber(s.LikeCount),
			analytics.FormatNumber(s.CommentCount),
			analytics.FormatPercent(s.EngagementRate),
			s.LastDate,
			title,
		)
	}
	return w.Flush()
}

func runIngest(ctx context.Context, hour int, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.RequireAPIKey(); err != nil {
		return err
	}

	at := time.Now()
	if hour >= 0 {
		if hour > 23 {
			return fmt.Errorf("--hour must be between 0 and 23")
		}
		local := at.In(a.cfg.Schedule.Location())
		at = time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, local.Location())
	}

	sum, err := a.pipeline.Run(ctx, at)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(sum)
	}

	fmt.Printf("run %s: %d videos, %d succeeded, %d failed, %d alerts\n",
		sum.RunID, sum.Videos, sum.Succeeded, sum.Failed, len(sum.Alerts))
	if sum.Threshold > 0 {
		fmt.Printf("growth threshold for hour %d: %s views\n", sum.Hour, humanize.Comma(sum.Threshold))
	} else {
		fmt.Printf("no growth threshold for hour %d\n", sum.Hour)
	}
	for _, al := range sum.Alerts {
		fmt.Printf("  [%s] %s\n", al.AlertType, al.Message)
	}
	for _, e := range sum.Errors {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", e.VideoID, e.Err)
	}
	return nil
}

func runDiscover(ctx context.Context, channel string, track bool, limit int, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	uploads, err := a.client.ChannelUploads(ctx, channel)
	if err != nil {
		return err
	}
	if limit > 0 && len(uploads) > limit {
		uploads = uploads[:limit]
	}

	if !track {
		if jsonOutput {
			return printJSON(uploads)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPUBLISHED\tTITLE")
		for _, u := range uploads {
			fmt.Fprintf(w, "%s\t%s\t%s\n", u.VideoID, humanize.Time(u.Published), u.Title)
		}
		return w.Flush()
	}

	if err := a.cfg.RequireAPIKey(); err != nil {
		return err
	}
	ids := make([]string, len(uploads))
	for i, u := range uploads {
		ids[i] = u.VideoID
	}
	results, errs := a.pipeline.TrackMany(ctx, ids)
	if jsonOutput {
		return printJSON(map[string]any{"tracked": results, "errors": len(errs)})
	}
	for _, r := range results {
		fmt.Printf("%s  tracking  %s\n", r.Video.ID, r.Video.Title)
	}
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "  error: %v\n", e)
	}
	return nil
}

func runAlerts(ctx context.Context, all bool, video string, limit int, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if video != "" {
		id, ok := youtube.ExtractVideoID(video)
		if !ok {
			return fmt.Errorf("%w: %q", ingest.ErrInvalidVideoID, video)
		}
		video = id
	}

	alerts, err := a.db.ListAlerts(ctx, store.AlertListOpts{UnreadOnly: !all, VideoID: video, Limit: limit})
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}

	if jsonOutput {
		return printJSON(alerts)
	}
	if len(alerts) == 0 {
		fmt.Println("no alerts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTYPE\tREAD\tMESSAGE")
	for _, al := range alerts {
		read := ""
		if al.IsRead {
			read = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", al.ID, al.AlertDate, al.AlertType, read, al.Message)
	}
	return w.Flush()
}

func runRead(ctx context.Context, raw string) error {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid alert id %q", raw)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.db.MarkAlertRead(ctx, id); err != nil {
		return err
	}
	fmt.Printf("alert %d marked as read\n", id)
	return nil
}

type report struct {
	Video       *store.Video               `json:"video"`
	Latest      *store.StatSnapshot        `json:"latest,omitempty"`
	Analysis    analytics.Analysis         `json:"analysis"`
	Suggestions []analytics.Suggestion     `json:"suggestions"`
	SEO         analytics.SEOReport        `json:"seo"`
	Comments    *analytics.CommentInsights `json:"comments"`
}

func runReport(ctx context.Context, input string, days int, jsonOutput bool) error {
	id, ok := youtube.ExtractVideoID(input)
	if !ok {
		return fmt.Errorf("%w: %q", ingest.ErrInvalidVideoID, input)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	video, err := a.db.GetVideo(ctx, id)
	if err != nil {
		return err
	}
	latest, err := a.db.LatestSnapshot(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	opts := store.SnapshotListOpts{}
	if days > 0 {
		loc := a.cfg.Schedule.Location()
		opts.Since = time.Now().In(loc).AddDate(0, 0, -(days - 1)).Format(store.DateLayout)
	}
	snaps, err := a.db.ListSnapshots(ctx, id, opts)
	if err != nil {
		return err
	}
	comments, err := a.db.ListComments(ctx, id, 1000)
	if err != nil {
		return err
	}
	insights := analytics.Insights(comments, 15, 5)

	r := report{
		Video:       video,
		Latest:      latest,
		Analysis:    analytics.Analyze(snaps),
		Suggestions: analytics.Suggest(video, latest),
		SEO:         analytics.SEO(video),
		Comments:    &insights,
	}
	if jsonOutput {
		return printJSON(r)
	}

	fmt.Printf("%s\n%s\n\n", video.Title, youtube.WatchURL(video.ID))
	if latest != nil {
		fmt.Printf("views %s  likes %s  comments %s  engagement %s  (%s)\n",
			analytics.FormatCount(latest.ViewCount),
			analytics.FormatCount(latest.LikeCount),
			analytics.FormatCount(latest.CommentCount),
			analytics.FormatPercent(latest.EngagementRate),
			latest.Date)
	}
	an := r.Analysis
	fmt.Printf("trend: %s, growth %.1f%% over %d days (%d observed, %d simulated), avg %s views/day\n\n",
		an.Trend.Label(), an.GrowthRate, an.Days, an.ObservedDays, an.SyntheticDays,
		analytics.FormatNumber(int64(an.AvgDailyViews)))

	fmt.Printf("seo: title %d chars (%s), description %d chars (%s)\n",
		r.SEO.Title.Length, r.SEO.Title.Status, r.SEO.Description.Length, r.SEO.Description.Status)
	for _, s := range r.Suggestions {
		fmt.Printf("  [%s] %s: %s\n", s.Level, s.Title, s.Message)
	}

	if len(comments) > 0 {
		s := insights.Sentiment
		fmt.Printf("\ncomments: %d positive, %d neutral, %d negative\n", s.Positive, s.Neutral, s.Negative)
		words := make([]string, 0, len(insights.Words))
		for _, wc := range insights.Words {
			words = append(words, fmt.Sprintf("%s(%d)", wc.Word, wc.Count))
		}
		fmt.Printf("top words: %s\n", strings.Join(words, " "))
		for _, c := range insights.Commenters {
			fmt.Printf("  %s: %d comments\n", c.AuthorName, c.CommentCount)
		}
	}
	return nil
}

func (a *app) server(port int) *server.Server {
	if port == 0 {
		port = a.cfg.Server.Port
	}
	return server.New(a.db, a.pipeline, server.Options{
		Port:     port,
		Gatherer: a.registry,
		Location: a.cfg.Schedule.Location(),
		Logger:   a.log,
	})
}

func runServe(ctx context.Context, port int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return a.server(port).ListenAndServe(ctx)
}

func runDaemon(ctx context.Context, port int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.RequireAPIKey(); err != nil {
		return err
	}

	sched := scheduler.New(a.pipeline, scheduler.Options{
		Hours:      a.cfg.Schedule.Hours,
		Location:   a.cfg.Schedule.Location(),
		RunOnStart: a.cfg.Schedule.RunOnStart,
		Logger:     a.log,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.server(port).ListenAndServe(ctx)
	})

	err = g.Wait()
	a.log.Info("shutting down")
	return err
}
