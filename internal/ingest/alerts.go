package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/elonfeng/vidpulse/internal/store"
	"github.com/elonfeng/vidpulse/pkg/youtube"
)

// evaluateAlerts applies the growth, milestone and anomaly rules and inserts
// every alert that is not already on record.
func (p *Pipeline) evaluateAlerts(ctx context.Context, tx store.Tx, fv *youtube.Video, local time.Time,
	growth, threshold int64, hasThreshold bool, now time.Time) ([]store.Alert, error) {
	today := local.Format(store.DateLayout)
	rules := p.opts.Rules

	var created []store.Alert
	raise := func(alertType string, thresholdValue, current int64, message string, lifetime bool) error {
		var exists bool
		var err error
		if lifetime {
			exists, err = tx.AlertEverExists(ctx, fv.ID, alertType)
		} else {
			exists, err = tx.AlertExists(ctx, fv.ID, alertType, today)
		}
		if err != nil || exists {
			return err
		}

		a := store.Alert{
			VideoID:        fv.ID,
			AlertType:      alertType,
			ThresholdValue: thresholdValue,
			CurrentValue:   current,
			Message:        message,
			AlertDate:      today,
			CreatedAt:      now,
		}
		if err := tx.InsertAlert(ctx, &a); err != nil {
			return err
		}
		created = append(created, a)
		return nil
	}

	if hasThreshold && growth >= threshold {
		msg := fmt.Sprintf("%q gained %s views today (threshold %s)",
			fv.Title, humanize.Comma(growth), humanize.Comma(threshold))
		if err := raise(store.GrowthAlertType(threshold), threshold, growth, msg, false); err != nil {
			return nil, err
		}
	}

	if fv.ViewCount >= rules.MilestoneViews {
		msg := fmt.Sprintf("%q passed %s views (now %s)",
			fv.Title, humanize.Comma(rules.MilestoneViews), humanize.Comma(fv.ViewCount))
		if err := raise(store.AlertMilestone, rules.MilestoneViews, fv.ViewCount, msg, true); err != nil {
			return nil, err
		}
	}

	if isDayAfterPublish(fv.PublishedAt, local, p.opts.Location) && fv.ViewCount < rules.AnomalyViews {
		msg := fmt.Sprintf("%q has only %s views the day after publishing",
			fv.Title, humanize.Comma(fv.ViewCount))
		if err := raise(store.AlertAnomaly, rules.AnomalyViews, fv.ViewCount, msg, false); err != nil {
			return nil, err
		}
	}

	return created, nil
}

func isDayAfterPublish(published, local time.Time, loc *time.Location) bool {
	if published.IsZero() {
		return false
	}
	return daysBetween(published.In(loc), local) == 1
}

// daysBetween counts calendar days from a to b, each taken in its own
// location.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
