package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
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

var mwf = types.Subject{ID: "math", Name: "Math", Days: []string{"Mon", "Wed", "Fri"}}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []types.Alert
}

func (r *alertRecorder) record(_ context.Context, a types.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *alertRecorder) all() []types.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Alert(nil), r.alerts...)
}

// runAt returns an engine whose clock reads the morning after lastDay.
func runAt(prov *testutil.MockProvider, lastDay string, rec *alertRecorder) *Engine {
	d, _ := time.Parse(types.DateLayout, lastDay)
	var seq atomic.Int64
	opts := Options{
		Provider: prov,
		Now:      testutil.FixedClock(d.AddDate(0, 0, 1).Add(9 * time.Hour)),
		NewID:    func() string { return fmt.Sprintf("n-%03d", seq.Add(1)) },
	}
	if rec != nil {
		opts.AlertFn = rec.record
	}
	return New(opts)
}

func notificationsOfType(prov *testutil.MockProvider, typ types.NotificationType) []types.Notification {
	var out []types.Notification
	for _, n := range prov.Notifications() {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func TestRun_EndToEndMondayWednesdayFriday(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1")
	for _, day := range []string{"2025-03-03", "2025-03-05", "2025-03-07"} {
		testutil.MustMark(t, prov, day, "math", "stu1", "Absent")
	}
	prov.SetWatermark(types.Watermark{LastStreakRunDate: "2025-03-02"})
	rec := &alertRecorder{}

	summary, err := runAt(prov, "2025-03-07", rec).Run(context.Background(), "actor-1")
	require.NoError(t, err)
	assert.Equal(t, types.SkipNone, summary.Skipped)
	assert.Equal(t, "2025-03-03", summary.StartDay)
	assert.Equal(t, "2025-03-07", summary.EndDay)
	assert.Len(t, summary.Days, 5)
	assert.Equal(t, 2, summary.Notifications)

	st := prov.SubjectStreak("math", "stu1")
	assert.Equal(t, 3, st.Streak)
	assert.True(t, st.Notified())

	subjectNotes := notificationsOfType(prov, types.NotificationAbsent3Subject)
	require.Len(t, subjectNotes, 1)
	assert.Equal(t, "stu1", subjectNotes[0].StudentID)
	assert.Equal(t, "math", subjectNotes[0].SubjectID)
	assert.Equal(t, "2025-03-07", subjectNotes[0].Date)
	assert.Equal(t, 3, subjectNotes[0].Streak)

	globalNotes := notificationsOfType(prov, types.NotificationAbsent3Global)
	require.Len(t, globalNotes, 1)
	assert.Empty(t, globalNotes[0].SubjectID)
	assert.Len(t, rec.all(), 2)

	wm, err := prov.GetWatermark(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-03-07", wm.LastStreakRunDate)
	assert.Nil(t, wm.ProcessingLease)

	// A fourth consecutive miss wraps the counter without a new notification.
	testutil.MustMark(t, prov, "2025-03-10", "math", "stu1", "absent")
	summary, err = runAt(prov, "2025-03-10", rec).Run(context.Background(), "actor-2")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-08", summary.StartDay)
	assert.Equal(t, 0, summary.Notifications)

	st = prov.SubjectStreak("math", "stu1")
	assert.Equal(t, 1, st.Streak)
	assert.True(t, st.Notified(), "flag survives the wrap until a reset")
	assert.Len(t, notificationsOfType(prov, types.NotificationAbsent3Subject), 1)
	g, ok := prov.GlobalStreak("stu1")
	require.True(t, ok)
	assert.Equal(t, 1, g.Streak)
}

func TestProcessDay_NotifiesOncePerAscension(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1")
	eng := runAt(prov, "2025-03-12", nil)
	ctx := context.Background()

	days := []string{"2025-03-03", "2025-03-05", "2025-03-07", "2025-03-10"}
	want := []int{1, 2, 3, 1}
	for i, day := range days {
		testutil.MustMark(t, prov, day, "math", "stu1", "Absent")
		_, err := eng.ProcessDay(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, want[i], prov.SubjectStreak("math", "stu1").Streak, day)
	}
	assert.Len(t, notificationsOfType(prov, types.NotificationAbsent3Subject), 1)
}

func TestProcessDay_ResetReNotifies(t *testing.T) {
	prov := testutil.NewMockProvider()
	daily := types.Subject{ID: "hr", Days: []string{"Mon", "Tue", "Wed", "Thu", "Fri"}}
	testutil.MustPutSubject(t, prov, daily, "stu1")
	eng := runAt(prov, "2025-03-14", nil)
	ctx := context.Background()

	marks := []struct{ day, status string }{
		{"2025-03-03", "Absent"},
		{"2025-03-04", "Absent"},
		{"2025-03-05", "Absent"},
		{"2025-03-06", "Present"},
		{"2025-03-07", "Absent"},
		{"2025-03-10", "Absent"},
		{"2025-03-11", "Absent"},
	}
	for _, m := range marks {
		testutil.MustMark(t, prov, m.day, "hr", "stu1", m.status)
		_, err := eng.ProcessDay(ctx, m.day)
		require.NoError(t, err)
		if m.day == "2025-03-06" {
			st := prov.SubjectStreak("hr", "stu1")
			assert.Equal(t, 0, st.Streak)
			assert.False(t, st.Notified())
		}
	}

	notes := notificationsOfType(prov, types.NotificationAbsent3Subject)
	require.Len(t, notes, 2)
	assert.Equal(t, "2025-03-05", notes[0].Date)
	assert.Equal(t, "2025-03-11", notes[1].Date)
}

func TestProcessDay_Idempotent(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1", "stu2")
	prov.SetSubjectStreak("math", "stu1", types.StreakState{Streak: 2, LastDate: "2025-03-03"})
	prov.SetGlobalStreak("stu1", types.StreakState{Streak: 2, LastDate: "2025-03-03"})
	testutil.MustMark(t, prov, "2025-03-05", "math", "stu1", "Absent")
	testutil.MustMark(t, prov, "2025-03-05", "math", "stu2", "Late")
	eng := runAt(prov, "2025-03-05", nil)
	ctx := context.Background()

	first, err := eng.ProcessDay(ctx, "2025-03-05")
	require.NoError(t, err)
	assert.Equal(t, 4, first.Updates)
	assert.Equal(t, 2, first.Notifications)

	subject := prov.SubjectStreak("math", "stu1")
	global, _ := prov.GlobalStreak("stu1")
	notes := prov.Notifications()

	second, err := eng.ProcessDay(ctx, "2025-03-05")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Updates)
	assert.Equal(t, 4, second.Skipped)
	assert.Equal(t, 0, second.Notifications)

	assert.Equal(t, subject, prov.SubjectStreak("math", "stu1"))
	g2, _ := prov.GlobalStreak("stu1")
	assert.Equal(t, global, g2)
	assert.Equal(t, notes, prov.Notifications())
}

func TestProcessDay_ZeroScheduledLeavesGlobalUntouched(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1")
	tuesday := types.Subject{ID: "art", Days: []string{"Tue"}}
	testutil.MustPutSubject(t, prov, tuesday, "stu1")
	seeded := types.StreakState{Streak: 2, LastStatus: "Absent", LastDate: "2025-03-03"}
	prov.SetGlobalStreak("stu1", seeded)

	// A fact for a subject that does not meet on Wednesday is never read.
	testutil.MustMark(t, prov, "2025-03-05", "art", "stu1", "Absent")

	ds, err := runAt(prov, "2025-03-05", nil).ProcessDay(context.Background(), "2025-03-05")
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Subjects)
	assert.Equal(t, 1, ds.SubjectsSkipped, "math has no facts")

	g, ok := prov.GlobalStreak("stu1")
	require.True(t, ok)
	assert.Equal(t, seeded, g)
	assert.Zero(t, prov.ApplyCalls())
}

func TestProcessDay_GlobalAttendanceSuppressesMiss(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1")
	testutil.MustPutSubject(t, prov, types.Subject{ID: "sci", Days: []string{"wed"}}, "stu1")
	prov.SetGlobalStreak("stu1", types.StreakState{Streak: 2, LastDate: "2025-03-04"})
	testutil.MustMark(t, prov, "2025-03-05", "math", "stu1", "Absent")
	testutil.MustMark(t, prov, "2025-03-05", "sci", "stu1", "Present")

	_, err := runAt(prov, "2025-03-05", nil).ProcessDay(context.Background(), "2025-03-05")
	require.NoError(t, err)

	assert.Equal(t, 1, prov.SubjectStreak("math", "stu1").Streak)
	assert.Equal(t, 0, prov.SubjectStreak("sci", "stu1").Streak)
	g, _ := prov.GlobalStreak("stu1")
	assert.Equal(t, 0, g.Streak)
	assert.Equal(t, string(types.StatusPresent), g.LastStatus)
}

func TestProcessDay_ExcusedIsNotAMissAtEitherLevel(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1")
	prov.SetSubjectStreak("math", "stu1", types.StreakState{Streak: 2, LastDate: "2025-03-03"})
	prov.SetGlobalStreak("stu1", types.StreakState{Streak: 2, LastDate: "2025-03-03"})
	testutil.MustMark(t, prov, "2025-03-05", "math", "stu1", "Excused")

	_, err := runAt(prov, "2025-03-05", nil).ProcessDay(context.Background(), "2025-03-05")
	require.NoError(t, err)

	st := prov.SubjectStreak("math", "stu1")
	assert.Equal(t, 0, st.Streak)
	assert.Equal(t, string(types.StatusExcused), st.LastStatus)
	g, _ := prov.GlobalStreak("stu1")
	assert.Equal(t, 0, g.Streak)
}

func TestProcessDay_IgnoresNonEnrolledAndInactive(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1")
	inactive := false
	testutil.MustPutSubject(t, prov, types.Subject{ID: "old", Days: []string{"Wed"}, Active: &inactive}, "stu1")
	testutil.MustMark(t, prov, "2025-03-05", "math", "stu1", "Absent")
	testutil.MustMark(t, prov, "2025-03-05", "math", "ghost", "Absent")
	testutil.MustMark(t, prov, "2025-03-05", "old", "stu1", "Absent")

	ds, err := runAt(prov, "2025-03-05", nil).ProcessDay(context.Background(), "2025-03-05")
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Subjects)
	assert.Equal(t, 1, ds.Facts)
	assert.Equal(t, 1, ds.Ignored)

	assert.Equal(t, 1, prov.SubjectStreak("math", "stu1").Streak)
	assert.Equal(t, 0, prov.SubjectStreak("old", "stu1").Streak)
	_, ok := prov.GlobalStreak("ghost")
	assert.False(t, ok)
	g, _ := prov.GlobalStreak("stu1")
	assert.Equal(t, 1, g.Streak, "inactive subject does not count toward the global rollup")
}

func TestRun_SkipsWhenLeaseHeld(t *testing.T) {
	prov := testutil.NewMockProvider()
	now := time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC)
	prov.SetWatermark(types.Watermark{ProcessingLease: &types.Lease{Holder: "other", ExpiresAtEpochMs: now.Add(time.Minute).UnixMilli()}})

	summary, err := runAt(prov, "2025-03-07", nil).Run(context.Background(), "actor-1")
	require.NoError(t, err)
	assert.Equal(t, types.SkipLeaseHeld, summary.Skipped)
	assert.Empty(t, summary.Days)
	assert.Zero(t, prov.ApplyCalls())
}

func TestRun_SkipsWhenUpToDate(t *testing.T) {
	prov := testutil.NewMockProvider()
	prov.SetWatermark(types.Watermark{LastStreakRunDate: "2025-03-07"})

	summary, err := runAt(prov, "2025-03-07", nil).Run(context.Background(), "actor-1")
	require.NoError(t, err)
	assert.Equal(t, types.SkipUpToDate, summary.Skipped)
}

func TestRun_ConcurrentRunsAreMutuallyExclusive(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1")
	testutil.MustMark(t, prov, "2025-03-07", "math", "stu1", "Absent")
	eng := runAt(prov, "2025-03-07", nil)

	const callers = 8
	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summary, err := eng.Run(context.Background(), fmt.Sprintf("actor-%d", i))
			if err == nil && summary.Skipped == types.SkipNone {
				ran.Add(1)
			}
		}(i)
	}
	wg.Wait()

	// Whoever ran first completed; later callers saw a held lease or an
	// advanced watermark.
	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, 1, prov.SubjectStreak("math", "stu1").Streak)
}

func TestRun_FailureAbortsAndLeavesWatermark(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1")
	testutil.MustMark(t, prov, "2025-03-05", "math", "stu1", "Absent")
	prov.SetWatermark(types.Watermark{LastStreakRunDate: "2025-03-04"})
	prov.ApplyErr = errors.New("backend unavailable")

	_, err := runAt(prov, "2025-03-07", nil).Run(context.Background(), "actor-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")

	wm, _ := prov.GetWatermark(context.Background())
	assert.Equal(t, "2025-03-04", wm.LastStreakRunDate)
	assert.Nil(t, wm.ProcessingLease)
}

func TestRun_RetryAfterPartialFailureMatchesCleanRun(t *testing.T) {
	seed := func() *testutil.MockProvider {
		prov := testutil.NewMockProvider()
		testutil.MustPutSubject(t, prov, mwf, "stu1")
		for _, day := range []string{"2025-03-03", "2025-03-05", "2025-03-07"} {
			testutil.MustMark(t, prov, day, "math", "stu1", "Absent")
		}
		prov.SetWatermark(types.Watermark{LastStreakRunDate: "2025-03-02"})
		return prov
	}

	clean := seed()
	_, err := runAt(clean, "2025-03-07", nil).Run(context.Background(), "actor-1")
	require.NoError(t, err)

	flaky := seed()
	flaky.ApplyErrAfter = 2
	_, err = runAt(flaky, "2025-03-07", nil).Run(context.Background(), "actor-1")
	require.Error(t, err)
	assert.Equal(t, 2, flaky.SubjectStreak("math", "stu1").Streak, "committed days keep their writes")

	flaky.ApplyErrAfter = 0
	summary, err := runAt(flaky, "2025-03-07", nil).Run(context.Background(), "actor-2")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-03", summary.StartDay, "the whole range is retried")

	assert.Equal(t, clean.SubjectStreak("math", "stu1").Streak, flaky.SubjectStreak("math", "stu1").Streak)
	cg, _ := clean.GlobalStreak("stu1")
	fg, _ := flaky.GlobalStreak("stu1")
	assert.Equal(t, cg.Streak, fg.Streak)
	assert.Len(t, flaky.Notifications(), len(clean.Notifications()))
}

func TestRun_ReadFailureAborts(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1")
	testutil.MustMark(t, prov, "2025-03-07", "math", "stu1", "Absent")
	prov.ListRosterErr = errors.New("throttled")

	_, err := runAt(prov, "2025-03-07", nil).Run(context.Background(), "actor-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list roster for math")
	assert.Zero(t, prov.ApplyCalls())

	wm, _ := prov.GetWatermark(context.Background())
	assert.Nil(t, wm.ProcessingLease)
	assert.Empty(t, wm.LastStreakRunDate)
}

func TestProcessDay_FiresAlertsForNotifications(t *testing.T) {
	prov := testutil.NewMockProvider()
	testutil.MustPutSubject(t, prov, mwf, "stu1")
	prov.SetSubjectStreak("math", "stu1", types.StreakState{Streak: 2, LastDate: "2025-03-03"})
	testutil.MustMark(t, prov, "2025-03-05", "math", "stu1", "Absent")
	rec := &alertRecorder{}

	_, err := runAt(prov, "2025-03-05", rec).ProcessDay(context.Background(), "2025-03-05")
	require.NoError(t, err)

	alerts := rec.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, string(types.NotificationAbsent3Subject), alerts[0].Category)
	assert.Equal(t, types.AlertLevelWarning, alerts[0].Level)
	assert.Equal(t, "math", alerts[0].SubjectID)
	assert.Equal(t, "n-001", alerts[0].Details["notificationId"])
}
