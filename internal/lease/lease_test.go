package lease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/internal/testutil"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// 2025-03-08 10:00 UTC, so yesterday is 2025-03-07.
var testNow = time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC)

func newCoordinator(prov *testutil.MockProvider, now time.Time) *Coordinator {
	return New(Options{Store: prov, Now: testutil.FixedClock(now)})
}

func TestBeginRun_RangeSelection(t *testing.T) {
	tests := []struct {
		name      string
		wm        types.Watermark
		wantStart string
	}{
		{"fresh record processes yesterday", types.Watermark{}, "2025-03-07"},
		{"resume after last streak run", types.Watermark{LastStreakRunDate: "2025-03-03"}, "2025-03-04"},
		{"streak run wins over backfill", types.Watermark{LastStreakRunDate: "2025-03-05", LastAbsenceBackfillDate: "2025-03-01"}, "2025-03-06"},
		{"seeded from backfill watermark", types.Watermark{LastAbsenceBackfillDate: "2025-03-02"}, "2025-03-03"},
		{"backfill at end day falls back to end day", types.Watermark{LastAbsenceBackfillDate: "2025-03-07"}, "2025-03-07"},
		{"expired lease is ignored", types.Watermark{
			LastStreakRunDate: "2025-03-05",
			ProcessingLease:   &types.Lease{Holder: "old", ExpiresAtEpochMs: testNow.Add(-time.Second).UnixMilli()},
		}, "2025-03-06"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov := testutil.NewMockProvider()
			prov.SetWatermark(tt.wm)
			c := newCoordinator(prov, testNow)

			rng, err := c.BeginRun(context.Background(), "actor-1")
			require.NoError(t, err)
			require.NotNil(t, rng)
			assert.Equal(t, tt.wantStart, rng.StartDay)
			assert.Equal(t, "2025-03-07", rng.EndDay)

			wm, err := prov.GetWatermark(context.Background())
			require.NoError(t, err)
			require.NotNil(t, wm.ProcessingLease)
			assert.Equal(t, "actor-1", wm.ProcessingLease.Holder)
			assert.Equal(t, testNow.Add(DefaultDuration).UnixMilli(), wm.ProcessingLease.ExpiresAtEpochMs)
			assert.Equal(t, tt.wm.LastStreakRunDate, wm.LastStreakRunDate)
		})
	}
}

func TestBeginRun_ReferenceTimezone(t *testing.T) {
	manila, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)

	prov := testutil.NewMockProvider()
	// 20:00 UTC on the 7th is already the 8th in Manila.
	c := New(Options{Store: prov, Location: manila, Now: testutil.FixedClock(time.Date(2025, 3, 7, 20, 0, 0, 0, time.UTC))})

	rng, err := c.BeginRun(context.Background(), "actor-1")
	require.NoError(t, err)
	require.NotNil(t, rng)
	assert.Equal(t, "2025-03-07", rng.EndDay)
}

func TestBeginRun_LeaseHeld(t *testing.T) {
	prov := testutil.NewMockProvider()
	held := types.Watermark{
		LastStreakRunDate: "2025-03-05",
		ProcessingLease:   &types.Lease{Holder: "other", ExpiresAtEpochMs: testNow.Add(time.Minute).UnixMilli()},
	}
	prov.SetWatermark(held)
	c := newCoordinator(prov, testNow)

	d, err := c.Acquire(context.Background(), "actor-1")
	require.NoError(t, err)
	assert.Nil(t, d.Range)
	assert.Equal(t, types.SkipLeaseHeld, d.Reason)
	assert.Equal(t, int64(0), prov.WatermarkWrites())

	wm, _ := prov.GetWatermark(context.Background())
	assert.Equal(t, held, wm)
}

func TestBeginRun_UpToDate(t *testing.T) {
	prov := testutil.NewMockProvider()
	prov.SetWatermark(types.Watermark{LastStreakRunDate: "2025-03-07"})
	c := newCoordinator(prov, testNow)

	d, err := c.Acquire(context.Background(), "actor-1")
	require.NoError(t, err)
	assert.Nil(t, d.Range)
	assert.Equal(t, types.SkipUpToDate, d.Reason)
	assert.Equal(t, int64(0), prov.WatermarkWrites())
}

func TestBeginRun_MutualExclusion(t *testing.T) {
	prov := testutil.NewMockProvider()
	c := newCoordinator(prov, testNow)

	const callers = 10
	results := make([]*Range, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rng, err := c.BeginRun(context.Background(), "actor")
			if err == nil {
				results[i] = rng
			}
		}(i)
	}
	wg.Wait()

	var granted int
	for _, r := range results {
		if r != nil {
			granted++
		}
	}
	assert.Equal(t, 1, granted)
}

func TestCompleteRun_AdvancesAndReleases(t *testing.T) {
	prov := testutil.NewMockProvider()
	prov.SetWatermark(types.Watermark{LastAbsenceBackfillDate: "2025-03-07", LastStreakRunDate: "2025-03-01"})
	c := newCoordinator(prov, testNow)
	ctx := context.Background()

	rng, err := c.BeginRun(ctx, "actor-1")
	require.NoError(t, err)
	require.NotNil(t, rng)
	assert.Equal(t, "2025-03-02", rng.StartDay)

	require.NoError(t, c.CompleteRun(ctx, "actor-1", rng.EndDay))

	wm, err := prov.GetWatermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-07", wm.LastStreakRunDate)
	assert.Equal(t, "2025-03-07", wm.LastAbsenceBackfillDate)
	assert.Nil(t, wm.ProcessingLease)

	// The next run computes lastStreakRunDate+1 and has nothing to do today.
	d, err := c.Acquire(ctx, "actor-2")
	require.NoError(t, err)
	assert.Equal(t, types.SkipUpToDate, d.Reason)

	next := newCoordinator(prov, testNow.AddDate(0, 0, 1))
	rng, err = next.BeginRun(ctx, "actor-2")
	require.NoError(t, err)
	require.NotNil(t, rng)
	assert.Equal(t, "2025-03-08", rng.StartDay)
}

func TestCompleteRun_NeverMovesBackwards(t *testing.T) {
	prov := testutil.NewMockProvider()
	prov.SetWatermark(types.Watermark{LastStreakRunDate: "2025-03-07"})
	c := newCoordinator(prov, testNow)

	require.NoError(t, c.CompleteRun(context.Background(), "actor-1", "2025-03-04"))

	wm, err := prov.GetWatermark(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-03-07", wm.LastStreakRunDate)
}

func TestCompleteRun_KeepsForeignLease(t *testing.T) {
	prov := testutil.NewMockProvider()
	foreign := &types.Lease{Holder: "other", ExpiresAtEpochMs: testNow.Add(time.Minute).UnixMilli()}
	prov.SetWatermark(types.Watermark{LastStreakRunDate: "2025-03-05", ProcessingLease: foreign})
	c := newCoordinator(prov, testNow)

	require.NoError(t, c.CompleteRun(context.Background(), "actor-1", "2025-03-06"))

	wm, err := prov.GetWatermark(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-03-06", wm.LastStreakRunDate)
	require.NotNil(t, wm.ProcessingLease)
	assert.Equal(t, "other", wm.ProcessingLease.Holder)
}

func TestAbortRun_ClearsOnlyLease(t *testing.T) {
	prov := testutil.NewMockProvider()
	prov.SetWatermark(types.Watermark{LastAbsenceBackfillDate: "2025-03-07", LastStreakRunDate: "2025-03-03"})
	c := newCoordinator(prov, testNow)
	ctx := context.Background()

	rng, err := c.BeginRun(ctx, "actor-1")
	require.NoError(t, err)
	require.NotNil(t, rng)

	require.NoError(t, c.AbortRun(ctx, "actor-1"))

	wm, err := prov.GetWatermark(ctx)
	require.NoError(t, err)
	assert.Nil(t, wm.ProcessingLease)
	assert.Equal(t, "2025-03-03", wm.LastStreakRunDate)
	assert.Equal(t, "2025-03-07", wm.LastAbsenceBackfillDate)

	// The same range is offered again.
	again, err := c.BeginRun(ctx, "actor-2")
	require.NoError(t, err)
	assert.Equal(t, rng, again)
}

func TestAbortRun_LeavesForeignLease(t *testing.T) {
	prov := testutil.NewMockProvider()
	foreign := &types.Lease{Holder: "other", ExpiresAtEpochMs: testNow.Add(time.Minute).UnixMilli()}
	prov.SetWatermark(types.Watermark{ProcessingLease: foreign})
	c := newCoordinator(prov, testNow)

	require.NoError(t, c.AbortRun(context.Background(), "actor-1"))

	wm, _ := prov.GetWatermark(context.Background())
	require.NotNil(t, wm.ProcessingLease)
	assert.Equal(t, "other", wm.ProcessingLease.Holder)
	assert.Equal(t, int64(0), prov.WatermarkWrites())
}

func TestRenew(t *testing.T) {
	prov := testutil.NewMockProvider()
	ctx := context.Background()

	c := newCoordinator(prov, testNow)
	_, err := c.BeginRun(ctx, "actor-1")
	require.NoError(t, err)

	later := testNow.Add(3 * time.Minute)
	require.NoError(t, newCoordinator(prov, later).Renew(ctx, "actor-1"))
	wm, _ := prov.GetWatermark(ctx)
	assert.Equal(t, later.Add(DefaultDuration).UnixMilli(), wm.ProcessingLease.ExpiresAtEpochMs)

	err = c.Renew(ctx, "actor-2")
	assert.ErrorIs(t, err, ErrLeaseLost)

	require.NoError(t, c.AbortRun(ctx, "actor-1"))
	assert.ErrorIs(t, c.Renew(ctx, "actor-1"), ErrLeaseLost)
}

func TestStartDay_InvalidWatermark(t *testing.T) {
	_, err := StartDay(types.Watermark{LastStreakRunDate: "not-a-date"}, "2025-03-07")
	assert.Error(t, err)
}

// conflictingStore fails the first conditional write, runs between, then
// retries the mutator against the current record like the DynamoDB store.
type conflictingStore struct {
	*testutil.MockProvider
	between  func()
	attempts int
}

func (s *conflictingStore) UpdateWatermark(ctx context.Context, fn provider.WatermarkMutator) (bool, error) {
	s.attempts++
	cur, err := s.MockProvider.GetWatermark(ctx)
	if err != nil {
		return false, err
	}
	if _, write := fn(cur); !write {
		return false, nil
	}
	s.between()
	s.attempts++
	return s.MockProvider.UpdateWatermark(ctx, fn)
}

type steppingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestAcquire_RetryUsesFreshClock(t *testing.T) {
	prov := testutil.NewMockProvider()
	prov.SetWatermark(types.Watermark{LastStreakRunDate: "2025-03-06"})
	clock := &steppingClock{t: testNow}
	store := &conflictingStore{MockProvider: prov, between: func() { clock.Advance(2 * time.Minute) }}
	c := New(Options{Store: store, Now: clock.Now})

	rng, err := c.BeginRun(context.Background(), "actor-1")
	require.NoError(t, err)
	require.NotNil(t, rng)
	assert.Equal(t, 2, store.attempts)

	wm, _ := prov.GetWatermark(context.Background())
	require.NotNil(t, wm.ProcessingLease)
	assert.Equal(t, testNow.Add(2*time.Minute+DefaultDuration).UnixMilli(), wm.ProcessingLease.ExpiresAtEpochMs)
}

func TestAcquire_RetryRechecksLeaseAtFreshTime(t *testing.T) {
	prov := testutil.NewMockProvider()
	prov.SetWatermark(types.Watermark{LastStreakRunDate: "2025-03-06"})
	clock := &steppingClock{t: testNow}
	// A competing actor wins the first write with a short lease, which has
	// lapsed by the time the retry runs.
	store := &conflictingStore{MockProvider: prov, between: func() {
		prov.SetWatermark(types.Watermark{
			LastStreakRunDate: "2025-03-06",
			ProcessingLease:   &types.Lease{Holder: "other", ExpiresAtEpochMs: testNow.Add(30 * time.Second).UnixMilli()},
		})
		clock.Advance(time.Minute)
	}}
	c := New(Options{Store: store, Now: clock.Now})

	d, err := c.Acquire(context.Background(), "actor-1")
	require.NoError(t, err)
	require.NotNil(t, d.Range)
	assert.Equal(t, "2025-03-07", d.Range.StartDay)

	wm, _ := prov.GetWatermark(context.Background())
	require.NotNil(t, wm.ProcessingLease)
	assert.Equal(t, "actor-1", wm.ProcessingLease.Holder)
}

func TestRenew_RetryUsesFreshClock(t *testing.T) {
	prov := testutil.NewMockProvider()
	prov.SetWatermark(types.Watermark{
		ProcessingLease: &types.Lease{Holder: "actor-1", ExpiresAtEpochMs: testNow.Add(time.Minute).UnixMilli()},
	})
	clock := &steppingClock{t: testNow}
	store := &conflictingStore{MockProvider: prov, between: func() { clock.Advance(90 * time.Second) }}
	c := New(Options{Store: store, Now: clock.Now})

	require.NoError(t, c.Renew(context.Background(), "actor-1"))
	assert.Equal(t, 2, store.attempts)

	wm, _ := prov.GetWatermark(context.Background())
	require.NotNil(t, wm.ProcessingLease)
	assert.Equal(t, testNow.Add(90*time.Second+DefaultDuration).UnixMilli(), wm.ProcessingLease.ExpiresAtEpochMs)
}
