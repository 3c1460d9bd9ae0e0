package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/rollcall/internal/alert"
	"github.com/dwsmith1983/rollcall/internal/calendar"
	"github.com/dwsmith1983/rollcall/internal/metrics"
	"github.com/dwsmith1983/rollcall/internal/streak"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// subjectDay holds everything read for one subject on one day.
type subjectDay struct {
	subject types.Subject
	roster  []types.RosterEntry
	facts   []types.AttendanceFact
}

// aggregate is a student's global rollup for one day.
type aggregate struct {
	scheduled int
	attended  int
}

// ProcessDay computes and persists every streak transition for day. All
// reads for the day complete before any write is issued.
func (e *Engine) ProcessDay(ctx context.Context, day string) (*types.DaySummary, error) {
	ctx, span := e.tracer.Start(ctx, "streak.ProcessDay", trace.WithAttributes(attribute.String("day", day)))
	defer span.End()

	ds, err := e.processDay(ctx, day)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "day failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("subjects", ds.Subjects),
		attribute.Int("updates", ds.Updates),
		attribute.Int("notifications", ds.Notifications),
	)
	metrics.DaysProcessed.Add(1)
	e.logger.Info("day processed", "day", day,
		"subjects", ds.Subjects, "subjectsSkipped", ds.SubjectsSkipped,
		"facts", ds.Facts, "ignored", ds.Ignored,
		"updates", ds.Updates, "skipped", ds.Skipped, "notifications", ds.Notifications)
	return ds, nil
}

func (e *Engine) processDay(ctx context.Context, day string) (*types.DaySummary, error) {
	weekday, err := calendar.Weekday(day)
	if err != nil {
		return nil, err
	}
	subjects, err := e.provider.ListSubjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	scheduled := calendar.Scheduled(subjects, weekday)

	ds := &types.DaySummary{Day: day, Subjects: len(scheduled)}
	data, err := e.load(ctx, day, scheduled)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var updates []types.StreakUpdate
	rollup := make(map[string]*aggregate)

	for _, sd := range data {
		if len(sd.facts) == 0 {
			ds.SubjectsSkipped++
			continue
		}
		enrolled := make(map[string]types.RosterEntry, len(sd.roster))
		for _, entry := range sd.roster {
			enrolled[entry.StudentID] = entry
		}

		for _, fact := range sd.facts {
			entry, ok := enrolled[fact.StudentID]
			if !ok {
				ds.Ignored++
				continue
			}
			ds.Facts++
			status := streak.Normalize(fact)

			agg := rollup[fact.StudentID]
			if agg == nil {
				agg = &aggregate{}
				rollup[fact.StudentID] = agg
			}
			agg.scheduled++
			if streak.Attended(status) {
				agg.attended++
			}

			if entry.Streak.AppliedThrough(day) {
				ds.Skipped++
				continue
			}
			updates = append(updates, e.transition(types.ScopeSubject, sd.subject.ID, fact.StudentID, day, entry.Streak, status, status.IsMiss(), now))
		}
	}
	metrics.FactsIgnored.Add(int64(ds.Ignored))

	globalUpdates, skipped, err := e.globalTransitions(ctx, day, rollup, now)
	if err != nil {
		return nil, err
	}
	updates = append(updates, globalUpdates...)
	ds.Skipped += skipped

	if len(updates) == 0 {
		metrics.StreakUpdatesSkipped.Add(int64(ds.Skipped))
		return ds, nil
	}

	res, err := e.provider.ApplyStreakUpdates(ctx, updates)
	if err != nil {
		return nil, fmt.Errorf("apply %d streak updates: %w", len(updates), err)
	}
	ds.Updates = res.Applied
	ds.Skipped += res.Skipped
	ds.Notifications = len(res.Notifications)
	metrics.StreakUpdatesApplied.Add(int64(res.Applied))
	metrics.StreakUpdatesSkipped.Add(int64(ds.Skipped))
	metrics.NotificationsCreated.Add(int64(len(res.Notifications)))

	for _, n := range res.Notifications {
		e.fireAlert(ctx, alert.ForNotification(n))
	}
	return ds, nil
}

// load fetches facts and rosters for every scheduled subject in parallel.
// Rosters are only read for subjects that have facts.
func (e *Engine) load(ctx context.Context, day string, subjects []types.Subject) ([]subjectDay, error) {
	data := make([]subjectDay, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, s := range subjects {
		g.Go(func() error {
			facts, err := e.provider.ListAttendance(gctx, day, s.ID)
			if err != nil {
				return fmt.Errorf("list attendance for %s: %w", s.ID, err)
			}
			data[i] = subjectDay{subject: s, facts: facts}
			if len(facts) == 0 {
				return nil
			}
			roster, err := e.provider.ListRoster(gctx, s.ID)
			if err != nil {
				return fmt.Errorf("list roster for %s: %w", s.ID, err)
			}
			data[i].roster = roster
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

// globalTransitions advances the global streak of every student scheduled at
// least once on day. Students with no scheduled class are left untouched.
func (e *Engine) globalTransitions(ctx context.Context, day string, rollup map[string]*aggregate, now time.Time) ([]types.StreakUpdate, int, error) {
	if len(rollup) == 0 {
		return nil, 0, nil
	}
	ids := make([]string, 0, len(rollup))
	for id, agg := range rollup {
		if agg.scheduled >= 1 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	current, err := e.provider.GetGlobalStreaks(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("get global streaks: %w", err)
	}

	var updates []types.StreakUpdate
	var skipped int
	for _, id := range ids {
		prev := current[id]
		if prev.AppliedThrough(day) {
			skipped++
			continue
		}
		attendedAny := rollup[id].attended > 0
		status := types.StatusPresent
		if !attendedAny {
			status = types.StatusAbsent
		}
		updates = append(updates, e.transition(types.ScopeGlobal, "", id, day, prev, status, !attendedAny, now))
	}
	return updates, skipped, nil
}

// transition builds the write intent for one entity, attaching a notification
// when the streak ascends to the threshold.
func (e *Engine) transition(scope types.StreakScope, subjectID, studentID, day string, prev types.StreakState, status types.AttendanceStatus, miss bool, now time.Time) types.StreakUpdate {
	next, notify := streak.Apply(prev, day, status, miss, now)
	u := types.StreakUpdate{
		Scope:     scope,
		SubjectID: subjectID,
		StudentID: studentID,
		Date:      day,
		State:     next,
	}
	if notify {
		u.Notification = &types.Notification{
			ID:        e.newID(),
			Type:      types.NotificationTypeFor(scope),
			StudentID: studentID,
			SubjectID: subjectID,
			Date:      day,
			Streak:    next.Streak,
			CreatedAt: now.UTC(),
		}
	}
	return u
}
