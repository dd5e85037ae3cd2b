package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/vidpulse/internal/ingest"
)

func TestNextRun(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	hours := []int{9, 12, 18}
	at := func(d, h, m int) time.Time { return time.Date(2026, 3, d, h, m, 0, 0, loc) }

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before first", at(10, 7, 30), at(10, 9, 0)},
		{"exactly on hour", at(10, 9, 0), at(10, 12, 0)},
		{"between", at(10, 12, 1), at(10, 18, 0)},
		{"rolls over", at(10, 18, 0), at(11, 9, 0)},
		{"late night", at(10, 23, 59), at(11, 9, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextRun(tt.now, hours))
		})
	}
}

func TestNextRun_MonthEnd(t *testing.T) {
	now := time.Date(2026, 1, 31, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC), NextRun(now, nil))
}

func TestNextRun_UnsortedHours(t *testing.T) {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC), NextRun(now, []int{21, 6, 15}))
}

type fakeRunner struct {
	calls  []time.Time
	stopAt int
	cancel context.CancelFunc
	err    error
}

func (f *fakeRunner) Run(_ context.Context, at time.Time) (*ingest.RunSummary, error) {
	f.calls = append(f.calls, at)
	if len(f.calls) >= f.stopAt {
		f.cancel()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.RunSummary{RunID: "r"}, nil
}

func newTestScheduler(r Runner, opts Options, clock *time.Time) *Scheduler {
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(r, opts)
	s.now = func() time.Time { return *clock }
	s.after = func(d time.Duration) <-chan time.Time {
		*clock = clock.Add(d)
		ch := make(chan time.Time, 1)
		ch <- *clock
		return ch
	}
	return s
}

func TestRun_FiresAtScheduledInstants(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	r := &fakeRunner{stopAt: 3, cancel: cancel}
	s := newTestScheduler(r, Options{Hours: []int{18, 9, 12}, Location: time.UTC}, &clock)

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
	}, r.calls)
}

func TestRun_RunOnStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := time.Date(2026, 3, 10, 10, 15, 0, 0, time.UTC)
	r := &fakeRunner{stopAt: 2, cancel: cancel}
	s := newTestScheduler(r, Options{Hours: []int{12}, Location: time.UTC, RunOnStart: true}, &clock)

	require.ErrorIs(t, s.Run(ctx), context.Canceled)
	require.Len(t, r.calls, 2)
	assert.Equal(t, time.Date(2026, 3, 10, 10, 15, 0, 0, time.UTC), r.calls[0])
	assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), r.calls[1])
}

func TestRun_ContinuesAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	r := &fakeRunner{stopAt: 2, cancel: cancel, err: errors.New("boom")}
	s := newTestScheduler(r, Options{Hours: []int{9}, Location: time.UTC}, &clock)

	require.ErrorIs(t, s.Run(ctx), context.Canceled)
	assert.Len(t, r.calls, 2)
}

func TestRun_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &fakeRunner{stopAt: 1, cancel: cancel}
	s := New(r, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	require.ErrorIs(t, s.Run(ctx), context.Canceled)
	assert.Empty(t, r.calls)
}
