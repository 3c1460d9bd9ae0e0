// Package engine implements the nightly absence-streak computation: it walks
// each unprocessed day, advances per-subject and global streak counters from
// attendance facts, and emits threshold notifications.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/rollcall/internal/calendar"
	"github.com/dwsmith1983/rollcall/internal/lease"
	"github.com/dwsmith1983/rollcall/internal/metrics"
	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

const (
	tracerName              = "github.com/dwsmith1983/rollcall/internal/engine"
	defaultFetchConcurrency = 8
)

// Options configures an Engine.
type Options struct {
	Provider         provider.Provider
	Leases           *lease.Coordinator
	Location         *time.Location // reference timezone; nil means UTC
	FetchConcurrency int            // parallel subject reads per day; defaults to 8
	AlertFn          func(context.Context, types.Alert)
	Logger           *slog.Logger
	Now              func() time.Time // injectable for testing
	NewID            func() string    // notification ids; defaults to ULIDs
}

// Engine processes attendance days and maintains streak state.
type Engine struct {
	provider    provider.Provider
	leases      *lease.Coordinator
	loc         *time.Location
	concurrency int
	alertFn     func(context.Context, types.Alert)
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
	tracer      trace.Tracer
}

// New creates a new Engine. When opts.Leases is nil a coordinator backed by
// opts.Provider is created with default settings.
func New(opts Options) *Engine {
	e := &Engine{
		provider:    opts.Provider,
		leases:      opts.Leases,
		loc:         opts.Location,
		concurrency: opts.FetchConcurrency,
		alertFn:     opts.AlertFn,
		logger:      opts.Logger,
		now:         opts.Now,
		newID:       opts.NewID,
		tracer:      otel.Tracer(tracerName),
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.concurrency <= 0 {
		e.concurrency = defaultFetchConcurrency
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = func() string { return ulid.Make().String() }
	}
	if e.leases == nil {
		e.leases = lease.New(lease.Options{
			Store:    opts.Provider,
			Location: e.loc,
			Logger:   e.logger,
			Now:      e.now,
		})
	}
	return e
}

// Run acquires the processing lease, processes every day of the returned
// range in ascending order and advances the watermark. A run that finds the
// lease held or nothing to do returns a summary with Skipped set and no
// error. Any failure clears the lease, leaves the watermark unadvanced and is
// returned.
func (e *Engine) Run(ctx context.Context, actorID string) (*types.RunSummary, error) {
	ctx, span := e.tracer.Start(ctx, "streak.Run", trace.WithAttributes(attribute.String("actor", actorID)))
	defer span.End()

	summary := &types.RunSummary{ActorID: actorID, StartedAt: e.now()}

	decision, err := e.leases.Acquire(ctx, actorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire failed")
		return nil, err
	}
	if decision.Range == nil {
		metrics.RunsSkipped.Add(1)
		summary.Skipped = decision.Reason
		summary.FinishedAt = e.now()
		span.SetAttributes(attribute.String("skipped", string(decision.Reason)))
		return summary, nil
	}

	rng := decision.Range
	summary.StartDay, summary.EndDay = rng.StartDay, rng.EndDay
	span.SetAttributes(
		attribute.String("start_day", rng.StartDay),
		attribute.String("end_day", rng.EndDay),
	)
	metrics.RunsStarted.Add(1)
	e.logger.Info("streak run started", "actor", actorID, "startDay", rng.StartDay, "endDay", rng.EndDay)

	days, err := calendar.Days(rng.StartDay, rng.EndDay)
	if err != nil {
		return nil, e.abort(ctx, span, actorID, err)
	}

	for i, day := range days {
		ds, err := e.ProcessDay(ctx, day)
		if err != nil {
			return nil, e.abort(ctx, span, actorID, fmt.Errorf("process day %s: %w", day, err))
		}
		summary.Days = append(summary.Days, *ds)
		summary.Notifications += ds.Notifications

		if i < len(days)-1 {
			if err := e.leases.Renew(ctx, actorID); err != nil {
				return nil, e.abort(ctx, span, actorID, fmt.Errorf("after day %s: %w", day, err))
			}
		}
	}

	if err := e.leases.CompleteRun(ctx, actorID, rng.EndDay); err != nil {
		return nil, e.abort(ctx, span, actorID, err)
	}

	metrics.RunsCompleted.Add(1)
	summary.FinishedAt = e.now()
	span.SetAttributes(
		attribute.Int("days", len(summary.Days)),
		attribute.Int("notifications", summary.Notifications),
	)
	e.logger.Info("streak run finished", "actor", actorID,
		"days", len(summary.Days), "notifications", summary.Notifications,
		"duration", summary.FinishedAt.Sub(summary.StartedAt))
	return summary, nil
}

// abort releases the lease after a failed run and returns cause. Cleanup runs
// even when ctx is already cancelled.
func (e *Engine) abort(ctx context.Context, span trace.Span, actorID string, cause error) error {
	metrics.RunsAborted.Add(1)
	span.RecordError(cause)
	span.SetStatus(codes.Error, "run aborted")
	e.logger.Error("streak run failed", "actor", actorID, "error", cause)

	if err := e.leases.AbortRun(context.WithoutCancel(ctx), actorID); err != nil {
		e.logger.Error("failed to clear lease", "actor", actorID, "error", err)
		return errors.Join(cause, err)
	}
	return cause
}

func (e *Engine) fireAlert(ctx context.Context, alert types.Alert) {
	if e.alertFn != nil {
		e.alertFn(ctx, alert)
	}
}
