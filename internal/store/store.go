package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// VideoListOpts controls video listing.
type VideoListOpts struct {
	ActiveOnly bool
}

// SnapshotListOpts controls snapshot listing.
type SnapshotListOpts struct {
	Since            string // inclusive YYYY-MM-DD, empty for all
	ExcludeSynthetic bool
}

// AlertListOpts controls alert listing.
type AlertListOpts struct {
	UnreadOnly bool
	VideoID    string
	Limit      int
}

// Tx is the set of writes the ingestion pipeline performs for one video.
// Every method is available both inside and outside a transaction.
type Tx interface {
	UpsertVideo(ctx context.Context, v *Video) error
	SetActive(ctx context.Context, id string, active bool) error
	ReplaceTags(ctx context.Context, videoID string, tags []string) error

	GetSnapshot(ctx context.Context, videoID, date string) (*StatSnapshot, error)
	UpsertSnapshot(ctx context.Context, s *StatSnapshot) error
	InsertSnapshotIfAbsent(ctx context.Context, s *StatSnapshot) (bool, error)
	CountSnapshots(ctx context.Context, videoID string) (int, error)

	ReplaceComments(ctx context.Context, videoID string, comments []Comment) error

	AlertExists(ctx context.Context, videoID, alertType, date string) (bool, error)
	AlertEverExists(ctx context.Context, videoID, alertType string) (bool, error)
	InsertAlert(ctx context.Context, a *Alert) error
}

// Store is the persistence interface.
type Store interface {
	Tx

	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetVideo(ctx context.Context, id string) (*Video, error)
	ListVideos(ctx context.Context, opts VideoListOpts) ([]Video, error)
	ListVideoSummaries(ctx context.Context, opts VideoListOpts) ([]VideoSummary, error)

	ListTags(ctx context.Context, videoID string) ([]string, error)
	TopTags(ctx context.Context, limit int) ([]TagCount, error)

	LatestSnapshot(ctx context.Context, videoID string) (*StatSnapshot, error)
	ListSnapshots(ctx context.Context, videoID string, opts SnapshotListOpts) ([]StatSnapshot, error)

	ListComments(ctx context.Context, videoID string, limit int) ([]Comment, error)

	ListAlerts(ctx context.Context, opts AlertListOpts) ([]Alert, error)
	MarkAlertRead(ctx context.Context, id int64) error
	MarkAlertNotified(ctx context.Context, id int64, at time.Time) error

	RecordRun(ctx context.Context, r *Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	*queries
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{queries: &queries{ext: db}, db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a transaction, committing when fn returns nil.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&queries{ext: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ReplaceTags swaps the tag set of a video atomically.
func (s *SQLiteStore) ReplaceTags(ctx context.Context, videoID string, tags []string) error {
	return s.InTx(ctx, func(tx Tx) error {
		return tx.ReplaceTags(ctx, videoID, tags)
	})
}

// ReplaceComments swaps the stored comments of a video atomically.
func (s *SQLiteStore) ReplaceComments(ctx context.Context, videoID string, comments []Comment) error {
	return s.InTx(ctx, func(tx Tx) error {
		return tx.ReplaceComments(ctx, videoID, comments)
	})
}

func (s *SQLiteStore) GetVideo(ctx context.Context, id string) (*Video, error) {
	var v Video
	err := s.db.GetContext(ctx, &v, "SELECT * FROM videos WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get video %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", id, err)
	}
	return &v, nil
}

func (s *SQLiteStore) ListVideos(ctx context.Context, opts VideoListOpts) ([]Video, error) {
	query := "SELECT * FROM videos"
	if opts.ActiveOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY published_at DESC"

	var videos []Video
	if err := s.db.SelectContext(ctx, &videos, query); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

func (s *SQLiteStore) ListVideoSummaries(ctx context.Context, opts VideoListOpts) ([]VideoSummary, error) {
	query := `
		SELECT v.*,
			COALESCE(s.view_count, 0) AS view_count,
			COALESCE(s.like_count, 0) AS like_count,
			COALESCE(s.comment_count, 0) AS comment_count,
			COALESCE(s.engagement_rate, 0) AS engagement_rate,
			COALESCE(s.date, '') AS last_date
		FROM videos v
		LEFT JOIN stat_snapshots s ON s.video_id = v.id
			AND s.date = (SELECT MAX(date) FROM stat_snapshots WHERE video_id = v.id)`
	if opts.ActiveOnly {
		query += " WHERE v.active = 1"
	}
	query += " ORDER BY v.published_at DESC"

	var summaries []VideoSummary
	if err := s.db.SelectContext(ctx, &summaries, query); err != nil {
		return nil, fmt.Errorf("list video summaries: %w", err)
	}
	return summaries, nil
}

func (s *SQLiteStore) ListTags(ctx context.Context, videoID string) ([]string, error) {
	var tags []string
	err := s.db.SelectContext(ctx, &tags, "SELECT tag FROM tags WHERE video_id = ? ORDER BY id", videoID)
	if err != nil {
		return nil, fmt.Errorf("list tags %s: %w", videoID, err)
	}
	return tags, nil
}

func (s *SQLiteStore) TopTags(ctx context.Context, limit int) ([]TagCount, error) {
	if limit <= 0 {
		limit = 50
	}
	var counts []TagCount
	err := s.db.SelectContext(ctx, &counts, `
		SELECT tag, COUNT(*) AS cnt FROM tags
		GROUP BY tag ORDER BY cnt DESC, tag ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top tags: %w", err)
	}
	return counts, nil
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context, videoID string) (*StatSnapshot, error) {
	var snap StatSnapshot
	err := s.db.GetContext(ctx, &snap,
		"SELECT * FROM stat_snapshots WHERE video_id = ? ORDER BY date DESC LIMIT 1", videoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest snapshot %s: %w", videoID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot %s: %w", videoID, err)
	}
	return &snap, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, videoID string, opts SnapshotListOpts) ([]StatSnapshot, error) {
	query := "SELECT * FROM stat_snapshots WHERE video_id = ?"
	args := []any{videoID}

	if opts.Since != "" {
		query += " AND date >= ?"
		args = append(args, opts.Since)
	}
	if opts.ExcludeSynthetic {
		query += " AND synthetic = 0"
	}
	query += " ORDER BY date ASC"

	var snaps []StatSnapshot
	if err := s.db.SelectContext(ctx, &snaps, query, args...); err != nil {
		return nil, fmt.Errorf("list snapshots %s: %w", videoID, err)
	}
	return snaps, nil
}

func (s *SQLiteStore) ListComments(ctx context.Context, videoID string, limit int) ([]Comment, error) {
	if limit <= 0 {
		limit = 100
	}
	var comments []Comment
	err := s.db.SelectContext(ctx, &comments, `
		SELECT * FROM comments WHERE video_id = ?
		ORDER BY like_count DESC, id ASC LIMIT ?`, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("list comments %s: %w", videoID, err)
	}
	return comments, nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, opts AlertListOpts) ([]Alert, error) {
	query := `
		SELECT a.*, COALESCE(v.title, '') AS video_title
		FROM alerts a LEFT JOIN videos v ON v.id = a.video_id
		WHERE 1=1`
	var args []any

	if opts.UnreadOnly {
		query += " AND a.is_read = 0"
	}
	if opts.VideoID != "" {
		query += " AND a.video_id = ?"
		args = append(args, opts.VideoID)
	}

	query += " ORDER BY a.created_at DESC, a.id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var alerts []Alert
	if err := s.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

func (s *SQLiteStore) MarkAlertRead(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE alerts SET is_read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark alert read %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark alert read %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) MarkAlertNotified(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE alerts SET notified_at = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("mark alert notified %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, r *Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_runs (id, started_at, finished_at, threshold_hour, videos, succeeded, failed, alerts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.StartedAt, r.FinishedAt, r.ThresholdHour, r.Videos, r.Succeeded, r.Failed, r.Alerts)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	err := s.db.SelectContext(ctx, &runs,
		"SELECT * FROM ingestion_runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
