package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dwsmith1983/rollcall/internal/testutil"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var mwf = types.Subject{ID: "math", Days: []string{"Mon", "Wed", "Fri"}}

// Saturday morning, so yesterday is Friday 2025-03-07.
var saturday = time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC)

func newSweeper(prov *testutil.MockProvider, cal *types.Calendar) *Sweeper {
	return New(Options{Provider: prov, Calendar: cal, Now: testutil.FixedClock(saturday)})
}

func TestSweep_FreshRecordBackfillsYesterday(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1", "stu2", "stu3")
	testutil.MustMark(t, prov, "2025-03-07", "math", "stu1", "Present")

	summary, err := newSweeper(prov, nil).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-03-07", summary.StartDay)
	assert.Equal(t, 1, summary.Days)
	assert.Equal(t, 2, summary.Created)

	facts := prov.Facts("2025-03-07")
	require.Len(t, facts, 3)
	assert.Equal(t, "Present", facts[0].Status)
	assert.Equal(t, types.SourceScan, facts[0].Source)
	for _, f := range facts[1:] {
		assert.Equal(t, "Absent", f.Status)
		assert.Equal(t, types.SourceBackfill, f.Source)
	}

	wm, _ := prov.GetWatermark(context.Background())
	assert.Equal(t, "2025-03-07", wm.LastAbsenceBackfillDate)
}

func TestSweep_RangeSkipsNonMeetingAndExcludedDays(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1")
	prov.SetWatermark(types.Watermark{LastAbsenceBackfillDate: "2025-03-02"})
	holiday := &types.Calendar{Name: "school", Dates: []string{"2025-03-05"}}

	summary, err := newSweeper(prov, holiday).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-03-03", summary.StartDay)
	assert.Equal(t, 5, summary.Days)
	assert.Equal(t, []string{"2025-03-05"}, summary.ExcludedDays)
	assert.Equal(t, 2, summary.Created, "Monday and Friday only")

	assert.Len(t, prov.Facts("2025-03-03"), 1)
	assert.Empty(t, prov.Facts("2025-03-04"))
	assert.Empty(t, prov.Facts("2025-03-05"))
	assert.Len(t, prov.Facts("2025-03-07"), 1)
}

func TestSweep_SkipsInactiveSubjects(t *testing.T) {
	prov := testutil.NewMockProvider()
	inactive := false
	testutil.MustPutSubject(t, prov, types.Subject{ID: "old", Days: []string{"Fri"}, Active: &inactive}, "stu1")

	summary, err := newSweeper(prov, nil).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Empty(t, prov.Facts("2025-03-07"))
}

func TestSweep_UpToDate(t *testing.T) {
	prov := testutil.NewMockProvider()
	prov.SetWatermark(types.Watermark{LastAbsenceBackfillDate: "2025-03-07"})

	summary, err := newSweeper(prov, nil).Sweep(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.UpToDate)
	assert.Zero(t, prov.WatermarkWrites())
}

func TestSweep_Rerunnable(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1")
	sw := newSweeper(prov, nil)

	created, err := sw.SweepDay(context.Background(), "2025-03-07")
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	created, err = sw.SweepDay(context.Background(), "2025-03-07")
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, prov.Facts("2025-03-07"), 1)
}

func TestSweep_FailureKeepsWatermark(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1")
	prov.SetWatermark(types.Watermark{LastAbsenceBackfillDate: "2025-03-05"})
	prov.ListRosterErr = errors.New("throttled")

	_, err := newSweeper(prov, nil).Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backfill 2025-03-07")

	wm, _ := prov.GetWatermark(context.Background())
	assert.Equal(t, "2025-03-06", wm.LastAbsenceBackfillDate, "completed days stay committed")
}

func TestSweep_UsesStudentName(t *testing.T) {
	prov := testutil.NewMockProvider()
	require.NoError(t, prov.PutSubject(context.Background(), mwf))
	require.NoError(t, prov.PutRosterEntry(context.Background(), "math", types.RosterEntry{StudentID: "stu1", StudentName: "Ana"}))

	_, err := newSweeper(prov, nil).SweepDay(context.Background(), "2025-03-07")
	require.NoError(t, err)
	facts := prov.Facts("2025-03-07")
	require.Len(t, facts, 1)
	assert.Equal(t, "Ana", facts[0].StudentName)
	assert.Equal(t, saturday, facts[0].Timestamp)
}
