// Package analytics derives reports from stored snapshots, videos and
// comments. Every function is pure; callers load the rows from the store.
package analytics

import (
	"github.com/elonfeng/vidpulse/internal/store"
)

// Trend is the direction band of a growth rate.
type Trend string

const (
	TrendNoData    Trend = "no_data"
	TrendRapidUp   Trend = "rapid_up"
	TrendSlowUp    Trend = "slow_up"
	TrendSlowDown  Trend = "slow_down"
	TrendRapidDown Trend = "rapid_down"
)

// Label is the human readable form of the band.
func (t Trend) Label() string {
	switch t {
	case TrendRapidUp:
		return "rapid rise"
	case TrendSlowUp:
		return "slow rise"
	case TrendSlowDown:
		return "slow decline"
	case TrendRapidDown:
		return "rapid decline"
	default:
		return "no data"
	}
}

// Analysis summarizes a window of daily snapshots.
type Analysis struct {
	Trend         Trend   `json:"trend"`
	GrowthRate    float64 `json:"growth_rate"`
	AvgDailyViews float64 `json:"avg_daily_views"`
	FirstViews    int64   `json:"first_views"`
	LastViews     int64   `json:"last_views"`
	Days          int     `json:"days"`
	ObservedDays  int     `json:"observed_days"`
	SyntheticDays int     `json:"synthetic_days"`
}

// Analyze computes growth and trend over snapshots ordered oldest first.
// The growth rate is the percent change from the first to the last day's
// view count, and zero when the first day has no views.
func Analyze(snapshots []store.StatSnapshot) Analysis {
	a := Analysis{Trend: TrendNoData, Days: len(snapshots)}
	if len(snapshots) == 0 {
		return a
	}

	var total int64
	for _, s := range snapshots {
		total += s.ViewCount
		if s.Synthetic {
			a.SyntheticDays++
		} else {
			a.ObservedDays++
		}
	}

	a.FirstViews = snapshots[0].ViewCount
	a.LastViews = snapshots[len(snapshots)-1].ViewCount
	a.AvgDailyViews = float64(total) / float64(len(snapshots))
	if a.FirstViews > 0 {
		a.GrowthRate = float64(a.LastViews-a.FirstViews) / float64(a.FirstViews) * 100
	}
	a.Trend = band(a.GrowthRate)
	return a
}

func band(rate float64) Trend {
	switch {
	case rate > 10:
		return TrendRapidUp
	case rate > 0:
		return TrendSlowUp
	case rate > -10:
		return TrendSlowDown
	default:
		return TrendRapidDown
	}
}
