package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// queries runs the Tx operations against either the database or an open
// transaction.
type queries struct {
	ext sqlx.ExtContext
}

func (q *queries) UpsertVideo(ctx context.Context, v *Video) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO videos (id, title, channel_id, channel_title, description, thumbnail_url,
			duration, duration_seconds, category_id, published_at, active, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			channel_id = excluded.channel_id,
			channel_title = excluded.channel_title,
			description = excluded.description,
			thumbnail_url = excluded.thumbnail_url,
			duration = excluded.duration,
			duration_seconds = excluded.duration_seconds,
			category_id = excluded.category_id,
			published_at = excluded.published_at
	`, v.ID, v.Title, v.ChannelID, v.ChannelTitle, v.Description, v.ThumbnailURL,
		v.Duration, v.DurationSeconds, v.CategoryID, v.PublishedAt, v.Active, v.AddedAt)
	if err != nil {
		return fmt.Errorf("upsert video %s: %w", v.ID, err)
	}
	return nil
}

func (q *queries) SetActive(ctx context.Context, id string, active bool) error {
	res, err := q.ext.ExecContext(ctx, "UPDATE videos SET active = ? WHERE id = ?", active, id)
	if err != nil {
		return fmt.Errorf("set active %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set active %s: %w", id, ErrNotFound)
	}
	return nil
}

func (q *queries) ReplaceTags(ctx context.Context, videoID string, tags []string) error {
	if _, err := q.ext.ExecContext(ctx, "DELETE FROM tags WHERE video_id = ?", videoID); err != nil {
		return fmt.Errorf("delete tags %s: %w", videoID, err)
	}
	for _, tag := range tags {
		if _, err := q.ext.ExecContext(ctx,
			"INSERT INTO tags (video_id, tag) VALUES (?, ?)", videoID, tag); err != nil {
			return fmt.Errorf("insert tag %s: %w", videoID, err)
		}
	}
	return nil
}

func (q *queries) GetSnapshot(ctx context.Context, videoID, date string) (*StatSnapshot, error) {
	var snap StatSnapshot
	err := sqlx.GetContext(ctx, q.ext, &snap,
		"SELECT * FROM stat_snapshots WHERE video_id = ? AND date = ?", videoID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get snapshot %s@%s: %w", videoID, date, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s@%s: %w", videoID, date, err)
	}
	return &snap, nil
}

func (q *queries) UpsertSnapshot(ctx context.Context, s *StatSnapshot) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO stat_snapshots (video_id, date, view_count, like_count, comment_count, engagement_rate, synthetic, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id, date) DO UPDATE SET
			view_count = excluded.view_count,
			like_count = excluded.like_count,
			comment_count = excluded.comment_count,
			engagement_rate = excluded.engagement_rate,
			synthetic = excluded.synthetic,
			fetched_at = excluded.fetched_at
	`, s.VideoID, s.Date, s.ViewCount, s.LikeCount, s.CommentCount, s.EngagementRate, s.Synthetic, s.FetchedAt)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s@%s: %w", s.VideoID, s.Date, err)
	}
	return nil
}

func (q *queries) InsertSnapshotIfAbsent(ctx context.Context, s *StatSnapshot) (bool, error) {
	res, err := q.ext.ExecContext(ctx, `
		INSERT INTO stat_snapshots (video_id, date, view_count, like_count, comment_count, engagement_rate, synthetic, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id, date) DO NOTHING
	`, s.VideoID, s.Date, s.ViewCount, s.LikeCount, s.CommentCount, s.EngagementRate, s.Synthetic, s.FetchedAt)
	if err != nil {
		return false, fmt.Errorf("insert snapshot %s@%s: %w", s.VideoID, s.Date, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (q *queries) CountSnapshots(ctx context.Context, videoID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q.ext, &n,
		"SELECT COUNT(*) FROM stat_snapshots WHERE video_id = ?", videoID)
	if err != nil {
		return 0, fmt.Errorf("count snapshots %s: %w", videoID, err)
	}
	return n, nil
}

func (q *queries) ReplaceComments(ctx context.Context, videoID string, comments []Comment) error {
	if _, err := q.ext.ExecContext(ctx, "DELETE FROM comments WHERE video_id = ?", videoID); err != nil {
		return fmt.Errorf("delete comments %s: %w", videoID, err)
	}
	for i := range comments {
		c := &comments[i]
		_, err := q.ext.ExecContext(ctx, `
			INSERT INTO comments (video_id, comment_id, author_name, author_channel_url, like_count, text, published_at, updated_at, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(comment_id) DO UPDATE SET
				video_id = excluded.video_id,
				author_name = excluded.author_name,
				author_channel_url = excluded.author_channel_url,
				like_count = excluded.like_count,
				text = excluded.text,
				published_at = excluded.published_at,
				updated_at = excluded.updated_at,
				fetched_at = excluded.fetched_at
		`, videoID, c.CommentID, c.AuthorName, c.AuthorChannelURL, c.LikeCount, c.Text,
			c.PublishedAt, c.UpdatedAt, c.FetchedAt)
		if err != nil {
			return fmt.Errorf("insert comment %s: %w", c.CommentID, err)
		}
	}
	return nil
}

func (q *queries) AlertExists(ctx context.Context, videoID, alertType, date string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.ext, &exists, `
		SELECT EXISTS(SELECT 1 FROM alerts WHERE video_id = ? AND alert_type = ? AND alert_date = ?)
	`, videoID, alertType, date)
	if err != nil {
		return false, fmt.Errorf("check alert %s/%s: %w", videoID, alertType, err)
	}
	return exists, nil
}

func (q *queries) AlertEverExists(ctx context.Context, videoID, alertType string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.ext, &exists, `
		SELECT EXISTS(SELECT 1 FROM alerts WHERE video_id = ? AND alert_type = ?)
	`, videoID, alertType)
	if err != nil {
		return false, fmt.Errorf("check alert %s/%s: %w", videoID, alertType, err)
	}
	return exists, nil
}

func (q *queries) InsertAlert(ctx context.Context, a *Alert) error {
	res, err := q.ext.ExecContext(ctx, `
		INSERT INTO alerts (video_id, alert_type, threshold_value, current_value, message, alert_date, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.VideoID, a.AlertType, a.ThresholdValue, a.CurrentValue, a.Message, a.AlertDate, a.IsRead, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert %s/%s: %w", a.VideoID, a.AlertType, err)
	}
	a.ID, _ = res.LastInsertId()
	return nil
}
