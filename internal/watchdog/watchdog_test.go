package watchdog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/internal/testutil"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC)

func collectAlerts(t *testing.T) (alertFn func(context.Context, types.Alert), getAlerts func() []types.Alert) {
	t.Helper()
	var mu sync.Mutex
	var alerts []types.Alert
	return func(_ context.Context, a types.Alert) {
			mu.Lock()
			alerts = append(alerts, a)
			mu.Unlock()
		}, func() []types.Alert {
			mu.Lock()
			defer mu.Unlock()
			return alerts
		}
}

func storeWith(wm types.Watermark) *testutil.MockProvider {
	prov := testutil.NewMockProvider()
	prov.SetWatermark(wm)
	return prov
}

func TestCheck_UpToDate(t *testing.T) {
	alertFn, alerts := collectAlerts(t)
	res, err := Check(context.Background(), CheckOptions{
		Store:   storeWith(types.Watermark{LastStreakRunDate: "2025-03-07", LastAbsenceBackfillDate: "2025-03-07"}),
		AlertFn: alertFn,
		Now:     now,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Lags)
	assert.Nil(t, res.StaleLease)
	assert.Empty(t, alerts())
}

func TestCheck_NeverRunIsLag(t *testing.T) {
	alertFn, alerts := collectAlerts(t)
	res, err := Check(context.Background(), CheckOptions{Store: storeWith(types.Watermark{}), AlertFn: alertFn, Now: now})
	require.NoError(t, err)
	require.Len(t, res.Lags, 2)
	assert.Equal(t, Lag{Category: CategoryStreakLag, Yesterday: "2025-03-07", NeverRun: true}, res.Lags[0])
	assert.Equal(t, Lag{Category: CategoryBackfillLag, Yesterday: "2025-03-07", NeverRun: true}, res.Lags[1])

	got := alerts()
	require.Len(t, got, 2)
	assert.Equal(t, types.AlertLevelWarning, got[0].Level)
	assert.Contains(t, got[0].Message, "never run")
	assert.Equal(t, true, got[1].Details["neverRun"])
}

func TestCheck_OnlyBackfillNeverRan(t *testing.T) {
	res, err := Check(context.Background(), CheckOptions{
		Store: storeWith(types.Watermark{LastStreakRunDate: "2025-03-07"}),
		Now:   now,
	})
	require.NoError(t, err)
	require.Len(t, res.Lags, 1)
	assert.Equal(t, CategoryBackfillLag, res.Lags[0].Category)
	assert.True(t, res.Lags[0].NeverRun)
}

func TestResult_JSONKeys(t *testing.T) {
	res := Result{
		Lags:       []Lag{{Category: CategoryStreakLag, LastDate: "2025-03-04", Yesterday: "2025-03-07", Days: 3}},
		StaleLease: &StaleLease{Holder: "nightly-1", ExpiredAt: now, Overdue: time.Hour},
	}
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"lags": [{"category": "watchdog.streak_lag", "lastDate": "2025-03-04", "yesterday": "2025-03-07", "days": 3}],
		"staleLease": {"holder": "nightly-1", "expiredAt": "2025-03-08T09:00:00Z", "overdueNs": 3600000000000}
	}`, string(b))
}

func TestCheck_LagWithinTolerance(t *testing.T) {
	res, err := Check(context.Background(), CheckOptions{
		Store: storeWith(types.Watermark{LastStreakRunDate: "2025-03-06", LastAbsenceBackfillDate: "2025-03-07"}),
		Now:   now,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Lags)
}

func TestCheck_StreakAndBackfillBehind(t *testing.T) {
	alertFn, alerts := collectAlerts(t)
	res, err := Check(context.Background(), CheckOptions{
		Store:   storeWith(types.Watermark{LastStreakRunDate: "2025-03-04", LastAbsenceBackfillDate: "2025-03-05"}),
		AlertFn: alertFn,
		Now:     now,
	})
	require.NoError(t, err)
	require.Len(t, res.Lags, 2)
	assert.Equal(t, Lag{Category: CategoryStreakLag, LastDate: "2025-03-04", Yesterday: "2025-03-07", Days: 3}, res.Lags[0])
	assert.Equal(t, CategoryBackfillLag, res.Lags[1].Category)
	assert.Equal(t, 2, res.Lags[1].Days)

	got := alerts()
	require.Len(t, got, 2)
	assert.Equal(t, types.AlertLevelWarning, got[0].Level)
	assert.Equal(t, CategoryStreakLag, got[0].Category)
	assert.Contains(t, got[0].Message, "3 day(s) behind")
}

func TestCheck_MaxLagDays(t *testing.T) {
	res, err := Check(context.Background(), CheckOptions{
		Store:      storeWith(types.Watermark{LastStreakRunDate: "2025-03-04", LastAbsenceBackfillDate: "2025-03-07"}),
		Now:        now,
		MaxLagDays: 3,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Lags)
}

func TestCheck_ReferenceTimezone(t *testing.T) {
	manila, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)

	// 2025-03-07 20:00 UTC is already 2025-03-08 in Manila.
	res, err := Check(context.Background(), CheckOptions{
		Store:    storeWith(types.Watermark{LastStreakRunDate: "2025-03-05", LastAbsenceBackfillDate: "2025-03-07"}),
		Location: manila,
		Now:      time.Date(2025, 3, 7, 20, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, res.Lags, 1)
	assert.Equal(t, "2025-03-07", res.Lags[0].Yesterday)
	assert.Equal(t, 2, res.Lags[0].Days)
}

func TestCheck_StaleLease(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		stale   bool
	}{
		{"still valid", now.Add(time.Minute), false},
		{"within grace", now.Add(-5 * time.Minute), false},
		{"overdue", now.Add(-time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alertFn, alerts := collectAlerts(t)
			res, err := Check(context.Background(), CheckOptions{
				Store: storeWith(types.Watermark{
					LastStreakRunDate:       "2025-03-07",
					LastAbsenceBackfillDate: "2025-03-07",
					ProcessingLease:         &types.Lease{Holder: "nightly-1", ExpiresAtEpochMs: tt.expires.UnixMilli()},
				}),
				AlertFn: alertFn,
				Now:     now,
			})
			require.NoError(t, err)
			if !tt.stale {
				assert.Nil(t, res.StaleLease)
				assert.Empty(t, alerts())
				return
			}
			require.NotNil(t, res.StaleLease)
			assert.Equal(t, "nightly-1", res.StaleLease.Holder)
			assert.Equal(t, time.Hour, res.StaleLease.Overdue)
			require.Len(t, alerts(), 1)
			assert.Equal(t, CategoryStaleLease, alerts()[0].Category)
			assert.Equal(t, types.AlertLevelError, alerts()[0].Level)
		})
	}
}

type failingStore struct{ provider.WatermarkStore }

func (failingStore) GetWatermark(context.Context) (types.Watermark, error) {
	return types.Watermark{}, errors.New("throttled")
}

func TestCheck_ReadError(t *testing.T) {
	_, err := Check(context.Background(), CheckOptions{Store: failingStore{}, Now: now})
	assert.ErrorContains(t, err, "throttled")
}

type countingStore struct {
	*testutil.MockProvider
	reads atomic.Int64
}

func (c *countingStore) GetWatermark(ctx context.Context) (types.Watermark, error) {
	c.reads.Add(1)
	return c.MockProvider.GetWatermark(ctx)
}

func TestWatchdog_AlertsOncePerFinding(t *testing.T) {
	store := &countingStore{MockProvider: storeWith(types.Watermark{
		LastStreakRunDate:       "2025-03-01",
		LastAbsenceBackfillDate: "2025-03-07",
		ProcessingLease:         &types.Lease{Holder: "crashed", ExpiresAtEpochMs: now.Add(-time.Hour).UnixMilli()},
	})}
	alertFn, alerts := collectAlerts(t)

	w := New(Options{
		Store:    store,
		AlertFn:  alertFn,
		Interval: 5 * time.Millisecond,
		Now:      testutil.FixedClock(now),
	})
	w.Start(context.Background())
	require.Eventually(t, func() bool { return store.reads.Load() >= 3 }, time.Second, time.Millisecond)
	w.Stop(context.Background())

	got := alerts()
	require.Len(t, got, 2)
	assert.Equal(t, CategoryStreakLag, got[0].Category)
	assert.Equal(t, CategoryStaleLease, got[1].Category)
}

func TestWatchdog_NeverRunAlertsOnce(t *testing.T) {
	store := &countingStore{MockProvider: storeWith(types.Watermark{LastAbsenceBackfillDate: "2025-03-07"})}
	alertFn, alerts := collectAlerts(t)

	w := New(Options{
		Store:    store,
		AlertFn:  alertFn,
		Interval: 5 * time.Millisecond,
		Now:      testutil.FixedClock(now),
	})
	w.Start(context.Background())
	require.Eventually(t, func() bool { return store.reads.Load() >= 3 }, time.Second, time.Millisecond)
	w.Stop(context.Background())

	got := alerts()
	require.Len(t, got, 1)
	assert.Equal(t, CategoryStreakLag, got[0].Category)
	assert.Contains(t, got[0].Message, "never run")
}

func TestWatchdog_StopWithoutStart(t *testing.T) {
	w := New(Options{Store: testutil.NewMockProvider()})
	w.Stop(context.Background())
}
