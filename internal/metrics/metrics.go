// Package metrics exposes runtime counters via expvar.
package metrics

import (
	"context"
	"expvar"

	"go.opentelemetry.io/otel/metric"
)

var (
	RunsStarted          = expvar.NewInt("streak_runs_started")
	RunsCompleted        = expvar.NewInt("streak_runs_completed")
	RunsAborted          = expvar.NewInt("streak_runs_aborted")
	RunsSkipped          = expvar.NewInt("streak_runs_skipped")
	LeaseContended       = expvar.NewInt("lease_contended")
	LeaseLost            = expvar.NewInt("lease_lost")
	DaysProcessed        = expvar.NewInt("days_processed")
	FactsIgnored         = expvar.NewInt("facts_ignored")
	StreakUpdatesApplied = expvar.NewInt("streak_updates_applied")
	StreakUpdatesSkipped = expvar.NewInt("streak_updates_skipped")
	NotificationsCreated = expvar.NewInt("notifications_created")
	BackfillFactsCreated = expvar.NewInt("backfill_facts_created")
	BackfillDaysSwept    = expvar.NewInt("backfill_days_swept")
	AlertsDispatched     = expvar.NewInt("alerts_dispatched")
	AlertsFailed         = expvar.NewInt("alerts_failed")
	WatchdogFindings     = expvar.NewInt("watchdog_findings")
)

// counters lists every exported counter by its OpenTelemetry instrument name.
var counters = []struct {
	name string
	v    *expvar.Int
}{
	{"rollcall.runs.started", RunsStarted},
	{"rollcall.runs.completed", RunsCompleted},
	{"rollcall.runs.aborted", RunsAborted},
	{"rollcall.runs.skipped", RunsSkipped},
	{"rollcall.lease.contended", LeaseContended},
	{"rollcall.lease.lost", LeaseLost},
	{"rollcall.days.processed", DaysProcessed},
	{"rollcall.facts.ignored", FactsIgnored},
	{"rollcall.streak_updates.applied", StreakUpdatesApplied},
	{"rollcall.streak_updates.skipped", StreakUpdatesSkipped},
	{"rollcall.notifications.created", NotificationsCreated},
	{"rollcall.backfill.facts_created", BackfillFactsCreated},
	{"rollcall.backfill.days_swept", BackfillDaysSwept},
	{"rollcall.alerts.dispatched", AlertsDispatched},
	{"rollcall.alerts.failed", AlertsFailed},
	{"rollcall.watchdog.findings", WatchdogFindings},
}

// Observe registers an observable counter on meter for every expvar counter,
// so the same values are exported through OpenTelemetry.
func Observe(meter metric.Meter) (metric.Registration, error) {
	instruments := make([]metric.Observable, 0, len(counters))
	observed := make([]metric.Int64ObservableCounter, 0, len(counters))
	for _, c := range counters {
		inst, err := meter.Int64ObservableCounter(c.name)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, inst)
		observed = append(observed, inst)
	}
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for i, inst := range observed {
			o.ObserveInt64(inst, counters[i].v.Value())
		}
		return nil
	}, instruments...)
}
