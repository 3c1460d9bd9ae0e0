package providertest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// TestWatermarkUpdate verifies read-modify-write semantics and no-op mutators.
func TestWatermarkUpdate(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	wrote, err := prov.UpdateWatermark(ctx, func(cur types.Watermark) (types.Watermark, bool) {
		cur.LastAbsenceBackfillDate = "2025-03-02"
		cur.ProcessingLease = nil
		return cur, true
	})
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = prov.UpdateWatermark(ctx, func(cur types.Watermark) (types.Watermark, bool) {
		cur.LastStreakRunDate = "2025-03-01"
		cur.ProcessingLease = &types.Lease{Holder: "ct-a", ExpiresAtEpochMs: 4102444800000}
		return cur, true
	})
	require.NoError(t, err)
	assert.True(t, wrote)

	wm, err := prov.GetWatermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-02", wm.LastAbsenceBackfillDate, "fields not touched by the mutator survive")
	assert.Equal(t, "2025-03-01", wm.LastStreakRunDate)
	require.NotNil(t, wm.ProcessingLease)
	assert.Equal(t, "ct-a", wm.ProcessingLease.Holder)

	wrote, err = prov.UpdateWatermark(ctx, func(cur types.Watermark) (types.Watermark, bool) {
		cur.LastStreakRunDate = "1999-01-01"
		return cur, false
	})
	require.NoError(t, err)
	assert.False(t, wrote)

	wm, err = prov.GetWatermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", wm.LastStreakRunDate)

	// Leave the record clean for later tests.
	_, err = prov.UpdateWatermark(ctx, func(cur types.Watermark) (types.Watermark, bool) {
		cur.ProcessingLease = nil
		return cur, true
	})
	require.NoError(t, err)
}

// TestWatermarkRace verifies exactly one of several concurrent conditional
// updates observes the record unleased.
func TestWatermarkRace(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	_, err := prov.UpdateWatermark(ctx, func(cur types.Watermark) (types.Watermark, bool) {
		cur.ProcessingLease = nil
		return cur, true
	})
	require.NoError(t, err)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wrote, err := prov.UpdateWatermark(ctx, func(cur types.Watermark) (types.Watermark, bool) {
				if cur.ProcessingLease != nil {
					return cur, false
				}
				cur.ProcessingLease = &types.Lease{Holder: "ct-race", ExpiresAtEpochMs: 4102444800000}
				return cur, true
			})
			if err == nil && wrote {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load(), "exactly 1 goroutine should take the lease")

	_, err = prov.UpdateWatermark(ctx, func(cur types.Watermark) (types.Watermark, bool) {
		cur.ProcessingLease = nil
		return cur, true
	})
	require.NoError(t, err)
}
