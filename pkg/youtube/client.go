// Package youtube is a thin client for the YouTube Data API v3 and the
// public channel upload feeds.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

var (
	// ErrNotFound is returned when the API has no item for a video id.
	ErrNotFound = errors.New("youtube: video not found")
	// ErrMissingAPIKey is returned by every API call when no key is set.
	ErrMissingAPIKey = errors.New("youtube: API key required (set YOUTUBE_API_KEY)")
)

const (
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"
	DefaultFeedURL = "https://www.youtube.com/feeds/videos.xml"

	maxBatch        = 50
	maxCommentsPage = 100
)

// Video is the metadata and counters of one video.
type Video struct {
	ID              string
	Title           string
	ChannelID       string
	ChannelTitle    string
	Description     string
	ThumbnailURL    string
	Duration        string
	DurationSeconds int
	CategoryID      string
	Tags            []string
	PublishedAt     time.Time
	ViewCount       int64
	LikeCount       int64
	CommentCount    int64
	FavoriteCount   int64
}

// Comment is a top-level comment with its HTML stripped.
type Comment struct {
	ID               string
	AuthorName       string
	AuthorChannelURL string
	LikeCount        int64
	Text             string
	PublishedAt      time.Time
	UpdatedAt        time.Time
}

// Options tunes a Client. Zero values select the defaults.
type Options struct {
	BaseURL           string
	FeedURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Retries           int
	RetryDelay        time.Duration
	HTTPClient        *http.Client
}

// Client calls the YouTube Data API.
type Client struct {
	client     *http.Client
	apiKey     string
	baseURL    string
	feedURL    string
	limiter    *rate.Limiter
	retries    int
	retryDelay time.Duration
	parser     *gofeed.Parser
	sanitizer  *bluemonday.Policy
}

// New creates a new API client.
func New(apiKey string, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.FeedURL == "" {
		opts.FeedURL = DefaultFeedURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		client:     hc,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		feedURL:    opts.FeedURL,
		limiter:    rate.NewLimiter(limit, 1),
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		parser:     gofeed.NewParser(),
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

// FetchVideo returns the metadata and counters of a single video.
func (c *Client) FetchVideo(ctx context.Context, id string) (*Video, error) {
	videos, err := c.FetchVideos(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("fetch video %s: %w", id, ErrNotFound)
	}
	return &videos[0], nil
}

// FetchVideos returns the videos the API knows about, in batches of 50 ids
// per request. Unknown ids are silently absent from the result.
func (c *Client) FetchVideos(ctx context.Context, ids []string) ([]Video, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	var videos []Video
	for start := 0; start < len(ids); start += maxBatch {
		end := min(start+maxBatch, len(ids))

		params := url.Values{}
		params.Set("part", "snippet,contentDetails,statistics")
		params.Set("id", strings.Join(ids[start:end], ","))

		var result videoListResponse
		if err := c.get(ctx, "videos", params, &result); err != nil {
			return nil, fmt.Errorf("fetch videos: %w", err)
		}
		for _, item := range result.Items {
			videos = append(videos, item.toVideo())
		}
	}
	return videos, nil
}

// FetchComments returns up to limit top-level comments ordered by relevance,
// following page tokens until enough are collected.
func (c *Client) FetchComments(ctx context.Context, videoID string, limit int) ([]Comment, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	var comments []Comment
	pageToken := ""
	for len(comments) < limit {
		params := url.Values{}
		params.Set("part", "snippet")
		params.Set("videoId", videoID)
		params.Set("order", "relevance")
		params.Set("textFormat", "html")
		params.Set("maxResults", fmt.Sprint(min(maxCommentsPage, limit-len(comments))))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var result commentThreadsResponse
		if err := c.get(ctx, "commentThreads", params, &result); err != nil {
			return nil, fmt.Errorf("fetch comments %s: %w", videoID, err)
		}

		for _, item := range result.Items {
			s := item.Snippet.TopLevelComment.Snippet
			updated := s.UpdatedAt
			if updated.IsZero() {
				updated = s.PublishedAt
			}
			comments = append(comments, Comment{
				ID:               item.ID,
				AuthorName:       s.AuthorDisplayName,
				AuthorChannelURL: s.AuthorChannelURL,
				LikeCount:        s.LikeCount,
				Text:             c.plainText(s.TextDisplay),
				PublishedAt:      s.PublishedAt,
				UpdatedAt:        updated,
			})
		}

		pageToken = result.NextPageToken
		if pageToken == "" || len(result.Items) == 0 {
			break
		}
	}

	if len(comments) > limit {
		comments = comments[:limit]
	}
	return comments, nil
}

func (c *Client) plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(c.sanitizer.Sanitize(s)))
}

// get performs one paced API request, retrying transport and 5xx failures
// with a fixed delay.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 && c.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		var retry bool
		retry, err = c.do(ctx, reqURL, endpoint, out)
		if err == nil || !retry {
			return err
		}
	}
	return err
}

func (c *Client) do(ctx context.Context, reqURL, endpoint string, out any) (retry bool, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("wait for rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("create %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error.Message != "" {
			return resp.StatusCode >= 500, fmt.Errorf("%s status %d: %s", endpoint, resp.StatusCode, apiErr.Error.Message)
		}
		return resp.StatusCode >= 500, fmt.Errorf("%s status %d", endpoint, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return false, nil
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type videoListResponse struct {
	Items []videoItem `json:"items"`
}

type videoItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Title        string    `json:"title"`
		Description  string    `json:"description"`
		ChannelID    string    `json:"channelId"`
		ChannelTitle string    `json:"channelTitle"`
		CategoryID   string    `json:"categoryId"`
		Tags         []string  `json:"tags"`
		PublishedAt  time.Time `json:"publishedAt"`
		Thumbnails   map[string]struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
	Statistics struct {
		ViewCount     int64 `json:"viewCount,string"`
		LikeCount     int64 `json:"likeCount,string"`
		CommentCount  int64 `json:"commentCount,string"`
		FavoriteCount int64 `json:"favoriteCount,string"`
	} `json:"statistics"`
}

func (v videoItem) toVideo() Video {
	thumb := ""
	for _, size := range []string{"high", "medium", "default"} {
		if t, ok := v.Snippet.Thumbnails[size]; ok && t.URL != "" {
			thumb = t.URL
			break
		}
	}
	return Video{
		ID:              v.ID,
		Title:           v.Snippet.Title,
		ChannelID:       v.Snippet.ChannelID,
		ChannelTitle:    v.Snippet.ChannelTitle,
		Description:     v.Snippet.Description,
		ThumbnailURL:    thumb,
		Duration:        v.ContentDetails.Duration,
		DurationSeconds: ParseDuration(v.ContentDetails.Duration),
		CategoryID:      v.Snippet.CategoryID,
		Tags:            v.Snippet.Tags,
		PublishedAt:     v.Snippet.PublishedAt,
		ViewCount:       v.Statistics.ViewCount,
		LikeCount:       v.Statistics.LikeCount,
		CommentCount:    v.Statistics.CommentCount,
		FavoriteCount:   v.Statistics.FavoriteCount,
	}
}

type commentThreadsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID      string `json:"id"`
		Snippet struct {
			TopLevelComment struct {
				Snippet struct {
					AuthorDisplayName string    `json:"authorDisplayName"`
					AuthorChannelURL  string    `json:"authorChannelUrl"`
					TextDisplay       string    `json:"textDisplay"`
					LikeCount         int64     `json:"likeCount"`
					PublishedAt       time.Time `json:"publishedAt"`
					UpdatedAt         time.Time `json:"updatedAt"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	} `json:"items"`
}
