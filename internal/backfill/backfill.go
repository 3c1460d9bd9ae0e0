// Package backfill materializes default "Absent" attendance facts for
// enrolled students who have no record on a school day, so the streak engine
// can treat fact presence as ground truth.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/rollcall/internal/calendar"
	"github.com/dwsmith1983/rollcall/internal/metrics"
	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

const defaultConcurrency = 8

// Options configures a Sweeper.
type Options struct {
	Provider    provider.Provider
	Calendar    *types.Calendar // non-school days; nil excludes nothing
	Location    *time.Location  // reference timezone; nil means UTC
	Concurrency int             // parallel subjects per day; defaults to 8
	Logger      *slog.Logger
	Now         func() time.Time // injectable for testing
}

// Sweeper runs the absence backfill.
type Sweeper struct {
	provider    provider.Provider
	cal         *types.Calendar
	loc         *time.Location
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a Sweeper.
func New(opts Options) *Sweeper {
	s := &Sweeper{
		provider:    opts.Provider,
		cal:         opts.Calendar,
		loc:         opts.Location,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultConcurrency
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Sweep backfills every day after LastAbsenceBackfillDate through yesterday,
// or only yesterday on a fresh record. The watermark advances after each
// completed day, so a failed sweep resumes where it stopped.
func (s *Sweeper) Sweep(ctx context.Context) (*types.BackfillSummary, error) {
	endDay := calendar.Yesterday(s.now(), s.loc)

	wm, err := s.provider.GetWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	startDay := endDay
	if wm.LastAbsenceBackfillDate != "" {
		startDay, err = calendar.AddDays(wm.LastAbsenceBackfillDate, 1)
		if err != nil {
			return nil, fmt.Errorf("watermark: %w", err)
		}
	}

	summary := &types.BackfillSummary{StartDay: startDay, EndDay: endDay}
	if startDay > endDay {
		summary.UpToDate = true
		return summary, nil
	}

	days, err := calendar.Days(startDay, endDay)
	if err != nil {
		return nil, err
	}
	for _, day := range days {
		if calendar.IsExcluded(s.cal, day) {
			summary.ExcludedDays = append(summary.ExcludedDays, day)
		} else {
			created, err := s.SweepDay(ctx, day)
			if err != nil {
				return summary, fmt.Errorf("backfill %s: %w", day, err)
			}
			summary.Created += created
		}
		if err := s.advance(ctx, day); err != nil {
			return summary, err
		}
		summary.Days++
		metrics.BackfillDaysSwept.Add(1)
	}

	s.logger.Info("absence backfill finished",
		"startDay", startDay, "endDay", endDay,
		"days", summary.Days, "excluded", len(summary.ExcludedDays), "created", summary.Created)
	return summary, nil
}

// SweepDay creates an Absent fact for every enrolled student without one on
// day, across the active subjects meeting that weekday. Existing facts are
// never overwritten. It returns the number of facts created.
func (s *Sweeper) SweepDay(ctx context.Context, day string) (int, error) {
	weekday, err := calendar.Weekday(day)
	if err != nil {
		return 0, err
	}
	subjects, err := s.provider.ListSubjects(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subjects: %w", err)
	}
	scheduled := calendar.Scheduled(subjects, weekday)

	var created atomic.Int64
	now := s.now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, subj := range scheduled {
		g.Go(func() error {
			n, err := s.sweepSubject(gctx, day, subj, now)
			created.Add(int64(n))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return int(created.Load()), err
	}

	n := int(created.Load())
	metrics.BackfillFactsCreated.Add(int64(n))
	if n > 0 {
		s.logger.Info("absences backfilled", "day", day, "subjects", len(scheduled), "created", n)
	}
	return n, nil
}

func (s *Sweeper) sweepSubject(ctx context.Context, day string, subj types.Subject, now time.Time) (int, error) {
	roster, err := s.provider.ListRoster(ctx, subj.ID)
	if err != nil {
		return 0, fmt.Errorf("list roster for %s: %w", subj.ID, err)
	}
	if len(roster) == 0 {
		return 0, nil
	}
	facts, err := s.provider.ListAttendance(ctx, day, subj.ID)
	if err != nil {
		return 0, fmt.Errorf("list attendance for %s: %w", subj.ID, err)
	}
	seen := make(map[string]bool, len(facts))
	for _, f := range facts {
		seen[f.StudentID] = true
	}

	var created int
	for _, entry := range roster {
		if seen[entry.StudentID] {
			continue
		}
		ok, err := s.provider.CreateAttendance(ctx, types.AttendanceFact{
			Date:        day,
			SubjectID:   subj.ID,
			StudentID:   entry.StudentID,
			StudentName: entry.StudentName,
			Status:      string(types.StatusAbsent),
			Source:      types.SourceBackfill,
			Timestamp:   now,
		})
		if err != nil {
			return created, fmt.Errorf("create absence for %s/%s: %w", subj.ID, entry.StudentID, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// advance moves LastAbsenceBackfillDate forward to day, never backwards.
func (s *Sweeper) advance(ctx context.Context, day string) error {
	_, err := s.provider.UpdateWatermark(ctx, func(cur types.Watermark) (types.Watermark, bool) {
		if cur.LastAbsenceBackfillDate >= day {
			return cur, false
		}
		cur.LastAbsenceBackfillDate = day
		return cur, true
	})
	if err != nil {
		return fmt.Errorf("advance backfill watermark to %s: %w", day, err)
	}
	return nil
}
