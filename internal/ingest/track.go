package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/elonfeng/vidpulse/internal/store"
	"github.com/elonfeng/vidpulse/pkg/youtube"
)

// TrackResult describes a video after it was added to tracking.
type TrackResult struct {
	Video       store.Video `json:"video"`
	FirstSeen   bool        `json:"first_seen"`
	Reactivated bool        `json:"reactivated"`
	Backfilled  int         `json:"backfilled"`
}

// LineError is a failure for one input of a bulk track.
type LineError struct {
	Line  int
	Input string
	Err   error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (%s): %v", e.Line, e.Input, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Track starts tracking the video referenced by input, a bare id or URL.
// An untracked video is reactivated. The first time a video is seen its
// history is backfilled. Today's snapshot is recorded but no alerts are
// evaluated.
func (p *Pipeline) Track(ctx context.Context, input string) (*TrackResult, error) {
	id, ok := youtube.ExtractVideoID(input)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVideoID, input)
	}

	fv, err := p.fetch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", id, err)
	}
	return p.save(ctx, fv)
}

// TrackMany tracks every id or URL in inputs, fetching them in batches.
// Blank lines and lines starting with # are skipped. Failures are returned
// per line and do not stop the others.
func (p *Pipeline) TrackMany(ctx context.Context, inputs []string) ([]TrackResult, []error) {
	var (
		errs  []error
		ids   []string
		lines = map[string]int{}
		raw   = map[string]string{}
	)
	for i, in := range inputs {
		in = strings.TrimSpace(in)
		if in == "" || strings.HasPrefix(in, "#") {
			continue
		}
		id, ok := youtube.ExtractVideoID(in)
		if !ok {
			errs = append(errs, &LineError{Line: i + 1, Input: in, Err: ErrInvalidVideoID})
			continue
		}
		if _, dup := lines[id]; dup {
			continue
		}
		lines[id] = i + 1
		raw[id] = in
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errs
	}

	fetched, err := p.client.FetchVideos(ctx, ids)
	if err != nil {
		for _, id := range ids {
			errs = append(errs, &LineError{Line: lines[id], Input: raw[id], Err: err})
		}
		return nil, errs
	}
	byID := make(map[string]*youtube.Video, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	var results []TrackResult
	for _, id := range ids {
		fv, ok := byID[id]
		if !ok {
			errs = append(errs, &LineError{Line: lines[id], Input: raw[id], Err: youtube.ErrNotFound})
			continue
		}
		res, err := p.save(ctx, fv)
		if err != nil {
			errs = append(errs, &LineError{Line: lines[id], Input: raw[id], Err: err})
			continue
		}
		results = append(results, *res)
	}
	return results, errs
}

// Untrack stops refreshing a video. Its history is kept.
func (p *Pipeline) Untrack(ctx context.Context, input string) error {
	id, ok := youtube.ExtractVideoID(input)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidVideoID, input)
	}
	if err := p.store.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("untrack %s: %w", id, err)
	}
	p.log.Info("video untracked", "video_id", id)
	return nil
}

func (p *Pipeline) save(ctx context.Context, fv *youtube.Video) (*TrackResult, error) {
	now := p.opts.Now()
	local := now.In(p.opts.Location)
	res := &TrackResult{}

	existing, err := p.store.GetVideo(ctx, fv.ID)
	switch {
	case err == nil:
		res.Reactivated = !existing.Active
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	rec := videoRecord(fv, true, now)
	err = p.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.UpsertVideo(ctx, rec); err != nil {
			return err
		}
		if err := tx.SetActive(ctx, fv.ID, true); err != nil {
			return err
		}
		if err := tx.ReplaceTags(ctx, fv.ID, fv.Tags); err != nil {
			return err
		}

		n, err := tx.CountSnapshots(ctx, fv.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			res.FirstSeen = true
			res.Backfilled, err = backfill(ctx, tx, fv.ID, fv, local, p.opts.BackfillDays, p.opts.Location, now)
			if err != nil {
				return err
			}
		}

		snap := snapshotOf(fv, local.Format(store.DateLayout), now)
		return tx.UpsertSnapshot(ctx, &snap)
	})
	if err != nil {
		return nil, fmt.Errorf("save video %s: %w", fv.ID, err)
	}

	saved, err := p.store.GetVideo(ctx, fv.ID)
	if err != nil {
		return nil, err
	}
	res.Video = *saved

	p.log.Info("video tracked",
		"video_id", fv.ID,
		"title", fv.Title,
		"first_seen", res.FirstSeen,
		"reactivated", res.Reactivated,
		"backfilled", res.Backfilled,
	)
	return res, nil
}
