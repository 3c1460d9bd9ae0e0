// Package job runs the nightly sequence: absence backfill, then the streak
// engine.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwsmith1983/rollcall/internal/backfill"
	"github.com/dwsmith1983/rollcall/internal/engine"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// Report combines the outcome of both stages.
type Report struct {
	Backfill *types.BackfillSummary `json:"backfill,omitempty"`
	Streak   *types.RunSummary      `json:"streak,omitempty"`
}

// Runner sequences the backfill sweep and the streak engine.
type Runner struct {
	sweeper *backfill.Sweeper
	engine  *engine.Engine
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner creates a Runner. A nil logger uses slog.Default.
func NewRunner(sweeper *backfill.Sweeper, eng *engine.Engine, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{sweeper: sweeper, engine: eng, logger: logger, now: time.Now}
}

// Run backfills missing absences and then processes streaks. The streak
// stage is skipped when the backfill fails, since the engine relies on every
// absent student having a materialized fact.
func (r *Runner) Run(ctx context.Context, actorID string) (*Report, error) {
	report := &Report{}

	bf, err := r.sweeper.Sweep(ctx)
	report.Backfill = bf
	if err != nil {
		r.logger.Error("backfill failed, skipping streak run", "actor", actorID, "error", err)
		now := r.now()
		report.Streak = &types.RunSummary{ActorID: actorID, Skipped: types.SkipBackfill, StartedAt: now, FinishedAt: now}
		return report, fmt.Errorf("backfill: %w", err)
	}

	rs, err := r.engine.Run(ctx, actorID)
	if err != nil {
		return report, fmt.Errorf("streak run: %w", err)
	}
	report.Streak = rs
	return report, nil
}
