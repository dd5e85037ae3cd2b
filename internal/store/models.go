package store

import (
	"strconv"
	"time"
)

// DateLayout is the day granularity used for snapshot and alert dates.
const DateLayout = "2006-01-02"

// Video is a tracked YouTube video.
type Video struct {
	ID              string    `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	ChannelID       string    `db:"channel_id" json:"channel_id"`
	ChannelTitle    string    `db:"channel_title" json:"channel_title"`
	Description     string    `db:"description" json:"description"`
	ThumbnailURL    string    `db:"thumbnail_url" json:"thumbnail_url"`
	Duration        string    `db:"duration" json:"duration"`
	DurationSeconds int       `db:"duration_seconds" json:"duration_seconds"`
	CategoryID      string    `db:"category_id" json:"category_id"`
	PublishedAt     time.Time `db:"published_at" json:"published_at"`
	Active          bool      `db:"active" json:"active"`
	AddedAt         time.Time `db:"added_at" json:"added_at"`
}

// VideoSummary is a video joined with its most recent snapshot.
type VideoSummary struct {
	Video
	ViewCount      int64   `db:"view_count" json:"view_count"`
	LikeCount      int64   `db:"like_count" json:"like_count"`
	CommentCount   int64   `db:"comment_count" json:"comment_count"`
	EngagementRate float64 `db:"engagement_rate" json:"engagement_rate"`
	LastDate       string  `db:"last_date" json:"last_date"`
}

// StatSnapshot is one day's counters for a video. Synthetic rows were
// generated by the history backfill, not observed.
type StatSnapshot struct {
	ID             int64     `db:"id" json:"-"`
	VideoID        string    `db:"video_id" json:"video_id"`
	Date           string    `db:"date" json:"date"`
	ViewCount      int64     `db:"view_count" json:"view_count"`
	LikeCount      int64     `db:"like_count" json:"like_count"`
	CommentCount   int64     `db:"comment_count" json:"comment_count"`
	EngagementRate float64   `db:"engagement_rate" json:"engagement_rate"`
	Synthetic      bool      `db:"synthetic" json:"synthetic"`
	FetchedAt      time.Time `db:"fetched_at" json:"fetched_at"`
}

// Comment is a top-level comment stored for a video.
type Comment struct {
	ID               int64     `db:"id" json:"-"`
	VideoID          string    `db:"video_id" json:"video_id"`
	CommentID        string    `db:"comment_id" json:"comment_id"`
	AuthorName       string    `db:"author_name" json:"author_name"`
	AuthorChannelURL string    `db:"author_channel_url" json:"author_channel_url"`
	LikeCount        int64     `db:"like_count" json:"like_count"`
	Text             string    `db:"text" json:"text"`
	PublishedAt      time.Time `db:"published_at" json:"published_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
	FetchedAt        time.Time `db:"fetched_at" json:"fetched_at"`
}

// TagCount is a tag and the number of videos carrying it.
type TagCount struct {
	Tag   string `db:"tag" json:"tag"`
	Count int    `db:"cnt" json:"count"`
}

// Alert types raised by the ingestion rules.
const (
	AlertMilestone = "100k"
	AlertAnomaly   = "data_anomaly"
)

// GrowthAlertType returns the alert type for a growth threshold.
func GrowthAlertType(threshold int64) string {
	return "growth_" + strconv.FormatInt(threshold, 10)
}

// Alert is a threshold notification raised for a video.
type Alert struct {
	ID             int64      `db:"id" json:"id"`
	VideoID        string     `db:"video_id" json:"video_id"`
	AlertType      string     `db:"alert_type" json:"alert_type"`
	ThresholdValue int64      `db:"threshold_value" json:"threshold_value"`
	CurrentValue   int64      `db:"current_value" json:"current_value"`
	Message        string     `db:"message" json:"message"`
	AlertDate      string     `db:"alert_date" json:"alert_date"`
	IsRead         bool       `db:"is_read" json:"is_read"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	NotifiedAt     *time.Time `db:"notified_at" json:"notified_at,omitempty"`
	VideoTitle     string     `db:"video_title" json:"video_title,omitempty"`
}

// Run is the summary of one ingestion pass.
type Run struct {
	ID            string    `db:"id" json:"id"`
	StartedAt     time.Time `db:"started_at" json:"started_at"`
	FinishedAt    time.Time `db:"finished_at" json:"finished_at"`
	ThresholdHour int       `db:"threshold_hour" json:"threshold_hour"`
	Videos        int       `db:"videos" json:"videos"`
	Succeeded     int       `db:"succeeded" json:"succeeded"`
	Failed        int       `db:"failed" json:"failed"`
	Alerts        int       `db:"alerts" json:"alerts"`
}
