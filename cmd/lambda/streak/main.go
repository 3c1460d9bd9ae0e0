// streak Lambda advances absence streaks through yesterday. Invoked by the
// backfill function after a sweep, or directly by EventBridge.
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

// handleStreak runs the engine. A lease held by another invocation is a
// normal skip, not an error, so async retries do not pile up.
func handleStreak(ctx context.Context, d *intlambda.Deps, req intlambda.StreakRequest) (*types.RunSummary, error) {
	trigger := req.Trigger
	if trigger == "" {
		trigger = "schedule"
	}
	actor := intlambda.ActorID(ctx)

	summary, err := d.Engine.Run(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("streak run: %w", err)
	}
	d.Logger.Info("streak invocation complete",
		"trigger", trigger, "actor", actor, "skipped", summary.Skipped,
		"startDay", summary.StartDay, "endDay", summary.EndDay, "notifications", summary.Notifications)
	return summary, nil
}

func handler(ctx context.Context, req intlambda.StreakRequest) (*types.RunSummary, error) {
	d, err := getDeps()
	if err != nil {
		return nil, err
	}
	return handleStreak(ctx, d, req)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
