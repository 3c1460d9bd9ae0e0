// backfill Lambda records default absences for the days since the last sweep
// and then hands off to the streak function. Invoked nightly by EventBridge.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	intlambda "github.com/dwsmith1983/rollcall/internal/lambda"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

// Response is returned to the invoker.
type Response struct {
	Backfill      *types.BackfillSummary `json:"backfill"`
	StreakChained bool                   `json:"streakChained"`
	// Streak is set when no streak function is configured and the engine
	// ran in this invocation.
	Streak *types.RunSummary `json:"streak,omitempty"`
}

// handleBackfill sweeps, then chains the streak function. A failed sweep is
// returned so the scheduler retries, and the streak stage does not run.
func handleBackfill(ctx context.Context, d *intlambda.Deps) (*Response, error) {
	summary, err := d.Sweeper.Sweep(ctx)
	if err != nil {
		return nil, fmt.Errorf("backfill: %w", err)
	}
	resp := &Response{Backfill: summary}

	chained, err := d.ChainStreak(ctx, intlambda.StreakRequest{Trigger: "backfill", BackfillEndDay: summary.EndDay})
	if err != nil {
		return resp, err
	}
	if chained {
		resp.StreakChained = true
		return resp, nil
	}

	rs, err := d.Engine.Run(ctx, intlambda.ActorID(ctx))
	if err != nil {
		return resp, fmt.Errorf("streak run: %w", err)
	}
	resp.Streak = rs
	return resp, nil
}

func handler(ctx context.Context) (*Response, error) {
	d, err := getDeps()
	if err != nil {
		return nil, err
	}
	return handleBackfill(ctx, d)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
