// watchdog Lambda checks that the nightly backfill and streak runs keep up
// and that no crashed run left the processing lease behind.
// Invoked by EventBridge on a regular interval (e.g. hourly).
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	intlambda "github.com/dwsmith1983/rollcall/internal/lambda"
	"github.com/dwsmith1983/rollcall/internal/watchdog"
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

func handleWatchdog(ctx context.Context, d *intlambda.Deps) (*watchdog.Result, error) {
	res, err := watchdog.Check(ctx, watchdog.CheckOptions{
		Store:      d.Provider,
		Location:   d.Location,
		AlertFn:    d.Notifier.AlertFunc(),
		Logger:     d.Logger,
		MaxLagDays: d.MaxLagDays,
	})
	if err != nil {
		return nil, err
	}
	d.Logger.Info("watchdog scan complete", "lags", len(res.Lags), "staleLease", res.StaleLease != nil)
	return res, nil
}

func handler(ctx context.Context) (*watchdog.Result, error) {
	d, err := getDeps()
	if err != nil {
		return nil, err
	}
	return handleWatchdog(ctx, d)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
