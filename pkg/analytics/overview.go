package analytics

import "github.com/elonfeng/vidpulse/internal/store"

// OverviewReport aggregates the latest counters of a set of videos.
type OverviewReport struct {
	Videos          int     `json:"videos"`
	Channels        int     `json:"channels"`
	TotalViews      int64   `json:"total_views"`
	TotalLikes      int64   `json:"total_likes"`
	TotalComments   int64   `json:"total_comments"`
	AvgEngagement   float64 `json:"avg_engagement_rate"`
	TopByViews      string  `json:"top_by_views,omitempty"`
	TopByEngagement string  `json:"top_by_engagement,omitempty"`
}

// Overview sums the counters and averages the engagement rate, a ratio,
// across summaries.
func Overview(summaries []store.VideoSummary) OverviewReport {
	r := OverviewReport{Videos: len(summaries)}
	if len(summaries) == 0 {
		return r
	}

	channels := make(map[string]bool)
	var rates float64
	var bestViews, bestRate *store.VideoSummary
	for i := range summaries {
		s := &summaries[i]
		r.TotalViews += s.ViewCount
		r.TotalLikes += s.LikeCount
		r.TotalComments += s.CommentCount
		rates += s.EngagementRate
		channels[s.ChannelID] = true

		if bestViews == nil || s.ViewCount > bestViews.ViewCount {
			bestViews = s
		}
		if bestRate == nil || s.EngagementRate > bestRate.EngagementRate {
			bestRate = s
		}
	}

	r.Channels = len(channels)
	r.AvgEngagement = rates / float64(len(summaries))
	r.TopByViews = bestViews.ID
	r.TopByEngagement = bestRate.ID
	return r
}
