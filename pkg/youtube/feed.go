package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Upload is a recent upload listed in a channel feed.
type Upload struct {
	VideoID   string    `json:"video_id"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Published time.Time `json:"published"`
}

// ChannelUploads reads the public Atom feed of a channel. The feed needs no
// API key and lists the most recent uploads, newest first.
func (c *Client) ChannelUploads(ctx context.Context, channelID string) ([]Upload, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}

	reqURL := c.feedURL + "?" + url.Values{"channel_id": {channelID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", channelID, err)
	}
	req.Header.Set("User-Agent", "vidpulse/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", channelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", channelID, resp.StatusCode)
	}

	parsed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", channelID, err)
	}

	var uploads []Upload
	for _, entry := range parsed.Items {
		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}

		id := ""
		if yt, ok := entry.Extensions["yt"]; ok {
			if ext := yt["videoId"]; len(ext) > 0 {
				id = ext[0].Value
			}
		}
		if id == "" {
			id, _ = ExtractVideoID(link)
		}
		if id == "" {
			continue
		}

		var published time.Time
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}

		uploads = append(uploads, Upload{
			VideoID:   id,
			Title:     entry.Title,
			Link:      link,
			Published: published,
		})
	}
	return uploads, nil
}
