// Package watchdog detects a stalled nightly pipeline. The streak engine and
// the backfill sweep only ever report their own outcomes; when the scheduler
// stops invoking them, or a run crashes while holding the lease, nothing is
// written at all. The watchdog independently inspects the watermark and
// alerts when progress falls behind.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dwsmith1983/rollcall/internal/calendar"
	"github.com/dwsmith1983/rollcall/internal/metrics"
	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

const (
	defaultInterval        = 5 * time.Minute
	defaultMaxLagDays      = 1
	defaultStaleLeaseGrace = 15 * time.Minute
)

// Alert categories raised by the watchdog.
const (
	CategoryStreakLag   = "watchdog.streak_lag"
	CategoryBackfillLag = "watchdog.backfill_lag"
	CategoryStaleLease  = "watchdog.stale_lease"
)

// Lag records a watermark date that trails yesterday by more than allowed.
// NeverRun marks a stage whose watermark was never written.
type Lag struct {
	Category  string `json:"category"`
	LastDate  string `json:"lastDate,omitempty"`
	Yesterday string `json:"yesterday"`
	Days      int    `json:"days,omitempty"`
	NeverRun  bool   `json:"neverRun,omitempty"`
}

// StaleLease records a lease that expired without being released.
type StaleLease struct {
	Holder    string        `json:"holder"`
	ExpiredAt time.Time     `json:"expiredAt"`
	Overdue   time.Duration `json:"overdueNs"`
}

// CheckOptions configures a single watchdog scan pass.
type CheckOptions struct {
	Store           provider.WatermarkStore
	Location        *time.Location // reference timezone; nil means UTC
	AlertFn         func(context.Context, types.Alert)
	Logger          *slog.Logger
	Now             time.Time     // injectable for testing
	MaxLagDays      int           // days a watermark may trail yesterday; defaults to 1
	StaleLeaseGrace time.Duration // defaults to 15m if zero
}

func (o *CheckOptions) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.MaxLagDays <= 0 {
		o.MaxLagDays = defaultMaxLagDays
	}
	if o.StaleLeaseGrace <= 0 {
		o.StaleLeaseGrace = defaultStaleLeaseGrace
	}
}

// Result is the outcome of a full scan.
type Result struct {
	Lags       []Lag       `json:"lags,omitempty"`
	StaleLease *StaleLease `json:"staleLease,omitempty"`
}

// Check reads the watermark once and runs every check against it.
func Check(ctx context.Context, opts CheckOptions) (*Result, error) {
	opts.defaults()
	wm, err := opts.Store.GetWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watchdog: reading watermark: %w", err)
	}

	res := &Result{}
	if lag := checkLag(ctx, opts, CategoryStreakLag, "streak run", wm.LastStreakRunDate); lag != nil {
		res.Lags = append(res.Lags, *lag)
	}
	if lag := checkLag(ctx, opts, CategoryBackfillLag, "absence backfill", wm.LastAbsenceBackfillDate); lag != nil {
		res.Lags = append(res.Lags, *lag)
	}
	res.StaleLease = checkLease(ctx, opts, wm.ProcessingLease)
	return res, nil
}

// checkLag alerts when lastDate trails yesterday by more than MaxLagDays. A
// watermark that was never written counts as lagging.
func checkLag(ctx context.Context, opts CheckOptions, category, stage, lastDate string) *Lag {
	yesterday := calendar.Yesterday(opts.Now, opts.Location)
	if lastDate == "" {
		return neverRun(ctx, opts, category, stage, yesterday)
	}
	if lastDate >= yesterday {
		return nil
	}
	days, err := calendar.Days(lastDate, yesterday)
	if err != nil {
		opts.Logger.Error("watchdog: invalid watermark date", "stage", stage, "date", lastDate, "error", err)
		return nil
	}
	behind := len(days) - 1
	if behind <= opts.MaxLagDays {
		return nil
	}

	metrics.WatchdogFindings.Add(1)
	opts.Logger.Warn("watchdog: stage behind", "stage", stage, "lastDate", lastDate, "yesterday", yesterday, "days", behind)
	if opts.AlertFn != nil {
		opts.AlertFn(ctx, types.Alert{
			Level:    types.AlertLevelWarning,
			Category: category,
			Message:  fmt.Sprintf("%s is %d day(s) behind: last processed %s, expected %s", stage, behind, lastDate, yesterday),
			Details: map[string]interface{}{
				"lastDate":   lastDate,
				"yesterday":  yesterday,
				"daysBehind": behind,
			},
			Timestamp: opts.Now,
		})
	}
	return &Lag{Category: category, LastDate: lastDate, Yesterday: yesterday, Days: behind}
}

func neverRun(ctx context.Context, opts CheckOptions, category, stage, yesterday string) *Lag {
	metrics.WatchdogFindings.Add(1)
	opts.Logger.Warn("watchdog: stage never ran", "stage", stage, "yesterday", yesterday)
	if opts.AlertFn != nil {
		opts.AlertFn(ctx, types.Alert{
			Level:    types.AlertLevelWarning,
			Category: category,
			Message:  fmt.Sprintf("%s has never run: expected %s to be processed", stage, yesterday),
			Details: map[string]interface{}{
				"neverRun":  true,
				"yesterday": yesterday,
			},
			Timestamp: opts.Now,
		})
	}
	return &Lag{Category: category, Yesterday: yesterday, NeverRun: true}
}

// checkLease alerts when a lease expired more than StaleLeaseGrace ago and
// was never cleared, which means its holder died mid-run. The next run takes
// it over; the alert only surfaces the crash.
func checkLease(ctx context.Context, opts CheckOptions, l *types.Lease) *StaleLease {
	if l == nil || l.ValidAt(opts.Now) {
		return nil
	}
	expired := time.UnixMilli(l.ExpiresAtEpochMs)
	overdue := opts.Now.Sub(expired)
	if overdue < opts.StaleLeaseGrace {
		return nil
	}

	metrics.WatchdogFindings.Add(1)
	opts.Logger.Warn("watchdog: stale processing lease", "holder", l.Holder, "expiredAt", expired, "overdue", overdue)
	if opts.AlertFn != nil {
		opts.AlertFn(ctx, types.Alert{
			Level:    types.AlertLevelError,
			Category: CategoryStaleLease,
			Message:  fmt.Sprintf("processing lease held by %s expired at %s without release", l.Holder, expired.UTC().Format(time.RFC3339)),
			Details: map[string]interface{}{
				"holder":    l.Holder,
				"expiresAt": l.ExpiresAtEpochMs,
			},
			Timestamp: opts.Now,
		})
	}
	return &StaleLease{Holder: l.Holder, ExpiredAt: expired, Overdue: overdue}
}

// ---------------------------------------------------------------------------
// Watchdog: polling wrapper for the long-running server.
// ---------------------------------------------------------------------------

// Options configures a polling Watchdog.
type Options struct {
	Store           provider.WatermarkStore
	Location        *time.Location
	AlertFn         func(context.Context, types.Alert)
	Logger          *slog.Logger
	Interval        time.Duration // defaults to 5m if zero
	MaxLagDays      int
	StaleLeaseGrace time.Duration
	Now             func() time.Time // injectable for testing
}

// Watchdog runs Check on a regular interval. Each distinct alert is raised
// once per process.
type Watchdog struct {
	opts   Options
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	seen map[string]bool
}

// New creates a new Watchdog.
func New(opts Options) *Watchdog {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Watchdog{opts: opts, seen: make(map[string]bool)}
}

// Start begins the watchdog polling loop.
func (w *Watchdog) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)
	w.opts.Logger.Info("watchdog started", "interval", w.opts.Interval)
}

// Stop signals the watchdog to stop and waits for it to finish.
func (w *Watchdog) Stop(_ context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.opts.Logger.Info("watchdog stopped")
}

func (w *Watchdog) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	// Run once immediately on start.
	w.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *Watchdog) scan(ctx context.Context) {
	_, err := Check(ctx, CheckOptions{
		Store:           w.opts.Store,
		Location:        w.opts.Location,
		AlertFn:         w.alertOnce,
		Logger:          w.opts.Logger,
		Now:             w.opts.Now(),
		MaxLagDays:      w.opts.MaxLagDays,
		StaleLeaseGrace: w.opts.StaleLeaseGrace,
	})
	if err != nil && ctx.Err() == nil {
		w.opts.Logger.Error("watchdog scan failed", "error", err)
	}
}

func (w *Watchdog) alertOnce(ctx context.Context, a types.Alert) {
	key := a.Category + "|" + a.Message
	w.mu.Lock()
	dup := w.seen[key]
	w.seen[key] = true
	w.mu.Unlock()
	if dup || w.opts.AlertFn == nil {
		return
	}
	w.opts.AlertFn(ctx, a)
}
