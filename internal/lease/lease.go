// Package lease implements the watermark and processing-lease protocol that
// gives the streak engine its resumable, mutually exclusive day ranges.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwsmith1983/rollcall/internal/calendar"
	"github.com/dwsmith1983/rollcall/internal/metrics"
	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// DefaultDuration is how long an acquired lease blocks other runs.
const DefaultDuration = 5 * time.Minute

// ErrLeaseLost is returned by Renew when another actor holds the lease.
var ErrLeaseLost = errors.New("processing lease lost")

// Range is the inclusive day range a run is allowed to process.
type Range struct {
	StartDay string `json:"startDay"`
	EndDay   string `json:"endDay"`
}

// Options configures a Coordinator.
type Options struct {
	Store    provider.WatermarkStore
	Location *time.Location // reference timezone for "yesterday"; nil means UTC
	Duration time.Duration  // defaults to DefaultDuration if zero
	Logger   *slog.Logger
	Now      func() time.Time // injectable for testing
}

// Coordinator acquires, renews and releases the processing lease on the
// singleton watermark record.
type Coordinator struct {
	store    provider.WatermarkStore
	loc      *time.Location
	duration time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		store:    opts.Store,
		loc:      opts.Location,
		duration: opts.Duration,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.duration <= 0 {
		c.duration = DefaultDuration
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Decision is the outcome of a BeginRun attempt.
type Decision struct {
	Range  *Range
	Reason types.SkipReason // set when Range is nil
}

// BeginRun computes the next unprocessed range and acquires the lease for
// actorID. It returns a nil range, without mutating the record, when another
// valid lease exists or there is nothing to process.
func (c *Coordinator) BeginRun(ctx context.Context, actorID string) (*Range, error) {
	d, err := c.Acquire(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return d.Range, nil
}

// Acquire is BeginRun with the skip reason exposed.
func (c *Coordinator) Acquire(ctx context.Context, actorID string) (Decision, error) {
	var (
		d        Decision
		rangeErr error
		endDay   string
		expires  time.Time
	)
	_, err := c.store.UpdateWatermark(ctx, func(cur types.Watermark) (types.Watermark, bool) {
		// Each optimistic retry re-reads the clock.
		now := c.now()
		endDay = calendar.Yesterday(now, c.loc)
		d, rangeErr = Decision{}, nil
		if cur.ProcessingLease.ValidAt(now) {
			d.Reason = types.SkipLeaseHeld
			return cur, false
		}
		startDay, err := StartDay(cur, endDay)
		if err != nil {
			rangeErr = err
			return cur, false
		}
		if startDay > endDay {
			d.Reason = types.SkipUpToDate
			return cur, false
		}
		expires = now.Add(c.duration)
		cur.ProcessingLease = &types.Lease{
			Holder:           actorID,
			ExpiresAtEpochMs: expires.UnixMilli(),
		}
		d.Range = &Range{StartDay: startDay, EndDay: endDay}
		return cur, true
	})
	if err != nil {
		return Decision{}, fmt.Errorf("acquire lease: %w", err)
	}
	if rangeErr != nil {
		return Decision{}, fmt.Errorf("acquire lease: %w", rangeErr)
	}

	switch d.Reason {
	case types.SkipLeaseHeld:
		metrics.LeaseContended.Add(1)
		c.logger.Info("streak run skipped, lease held", "actor", actorID)
	case types.SkipUpToDate:
		c.logger.Info("streak run skipped, nothing to process", "actor", actorID, "endDay", endDay)
	default:
		c.logger.Info("lease acquired", "actor", actorID,
			"startDay", d.Range.StartDay, "endDay", d.Range.EndDay,
			"expiresAt", expires.UTC())
	}
	return d, nil
}

// StartDay returns the first day a run ending at endDay should process.
func StartDay(wm types.Watermark, endDay string) (string, error) {
	if wm.LastStreakRunDate != "" {
		return calendar.AddDays(wm.LastStreakRunDate, 1)
	}
	if wm.LastAbsenceBackfillDate != "" && wm.LastAbsenceBackfillDate < endDay {
		return calendar.AddDays(wm.LastAbsenceBackfillDate, 1)
	}
	return endDay, nil
}

// CompleteRun advances LastStreakRunDate to endDay, never moving it
// backwards, and releases the lease if actorID holds it or it has lapsed.
// Other watermark fields are preserved.
func (c *Coordinator) CompleteRun(ctx context.Context, actorID, endDay string) error {
	_, err := c.store.UpdateWatermark(ctx, func(cur types.Watermark) (types.Watermark, bool) {
		if endDay > cur.LastStreakRunDate {
			cur.LastStreakRunDate = endDay
		}
		if releasable(cur.ProcessingLease, actorID, c.now()) {
			cur.ProcessingLease = nil
		}
		return cur, true
	})
	if err != nil {
		return fmt.Errorf("complete run through %s: %w", endDay, err)
	}
	c.logger.Info("streak run completed", "actor", actorID, "endDay", endDay)
	return nil
}

// AbortRun clears the lease without touching the watermark dates, so the next
// run retries the whole unprocessed range.
func (c *Coordinator) AbortRun(ctx context.Context, actorID string) error {
	wrote, err := c.store.UpdateWatermark(ctx, func(cur types.Watermark) (types.Watermark, bool) {
		if cur.ProcessingLease == nil || !releasable(cur.ProcessingLease, actorID, c.now()) {
			return cur, false
		}
		cur.ProcessingLease = nil
		return cur, true
	})
	if err != nil {
		return fmt.Errorf("abort run: %w", err)
	}
	c.logger.Warn("streak run aborted", "actor", actorID, "leaseCleared", wrote)
	return nil
}

// Renew extends the lease held by actorID. It returns ErrLeaseLost when the
// lease is absent or held by another actor.
func (c *Coordinator) Renew(ctx context.Context, actorID string) error {
	var lost bool
	_, err := c.store.UpdateWatermark(ctx, func(cur types.Watermark) (types.Watermark, bool) {
		lost = false
		if cur.ProcessingLease == nil || cur.ProcessingLease.Holder != actorID {
			lost = true
			return cur, false
		}
		cur.ProcessingLease = &types.Lease{
			Holder:           actorID,
			ExpiresAtEpochMs: c.now().Add(c.duration).UnixMilli(),
		}
		return cur, true
	})
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	if lost {
		metrics.LeaseLost.Add(1)
		return ErrLeaseLost
	}
	return nil
}

// releasable reports whether actorID may clear l.
func releasable(l *types.Lease, actorID string, now time.Time) bool {
	return l == nil || l.Holder == actorID || !l.ValidAt(now)
}
