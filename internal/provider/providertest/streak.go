package providertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// TestStreakUpdateSubject verifies a subject update with a notification.
func TestStreakUpdateSubject(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, prov.PutRosterEntry(ctx, "ct-su", types.RosterEntry{StudentID: "stu1"}))

	n := types.Notification{
		ID:        "ct-su-n1",
		Type:      types.NotificationAbsent3Subject,
		StudentID: "stu1",
		SubjectID: "ct-su",
		Date:      "2025-03-05",
		Streak:    3,
		CreatedAt: now,
	}
	res, err := prov.ApplyStreakUpdates(ctx, []types.StreakUpdate{{
		Scope:        types.ScopeSubject,
		SubjectID:    "ct-su",
		StudentID:    "stu1",
		Date:         "2025-03-05",
		State:        types.StreakState{Streak: 3, LastStatus: "Absent", LastDate: "2025-03-05", TriggeredAt3: &now},
		Notification: &n,
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 0, res.Skipped)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, "ct-su-n1", res.Notifications[0].ID)

	roster, err := prov.ListRoster(ctx, "ct-su")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	st := roster[0].Streak
	assert.Equal(t, 3, st.Streak)
	assert.Equal(t, "2025-03-05", st.LastDate)
	require.NotNil(t, st.TriggeredAt3)
	assert.True(t, st.TriggeredAt3.Equal(now))

	notes, err := prov.ListNotifications(ctx, "stu1", 10)
	require.NoError(t, err)
	var found bool
	for _, got := range notes {
		if got.ID == "ct-su-n1" {
			found = true
			assert.Equal(t, types.NotificationAbsent3Subject, got.Type)
			assert.Equal(t, "ct-su", got.SubjectID)
			assert.False(t, got.Resolved)
		}
	}
	assert.True(t, found)
}

// TestStreakUpdateGlobal verifies global state round-trips.
func TestStreakUpdateGlobal(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	res, err := prov.ApplyStreakUpdates(ctx, []types.StreakUpdate{
		{Scope: types.ScopeGlobal, StudentID: "ct-g1", Date: "2025-03-03", State: types.StreakState{Streak: 1, LastStatus: "Absent", LastDate: "2025-03-03"}},
		{Scope: types.ScopeGlobal, StudentID: "ct-g2", Date: "2025-03-03", State: types.StreakState{Streak: 0, LastStatus: "Present", LastDate: "2025-03-03"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)

	got, err := prov.GetGlobalStreaks(ctx, []string{"ct-g1", "ct-g2", "ct-g-missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got["ct-g1"].Streak)
	assert.Equal(t, "Present", got["ct-g2"].LastStatus)
	_, ok := got["ct-g-missing"]
	assert.False(t, ok)

	empty, err := prov.GetGlobalStreaks(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// TestStreakUpdateGuard verifies updates for days already applied are skipped
// together with their notification.
func TestStreakUpdateGuard(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	first := types.StreakUpdate{
		Scope: types.ScopeGlobal, StudentID: "ct-guard", Date: "2025-03-05",
		State: types.StreakState{Streak: 2, LastStatus: "Absent", LastDate: "2025-03-05"},
	}
	res, err := prov.ApplyStreakUpdates(ctx, []types.StreakUpdate{first})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)

	n := types.Notification{ID: "ct-guard-n", Type: types.NotificationAbsent3Global, StudentID: "ct-guard", Date: "2025-03-05", Streak: 3}
	replay := types.StreakUpdate{
		Scope: types.ScopeGlobal, StudentID: "ct-guard", Date: "2025-03-05",
		State:        types.StreakState{Streak: 3, LastStatus: "Absent", LastDate: "2025-03-05"},
		Notification: &n,
	}
	older := types.StreakUpdate{
		Scope: types.ScopeGlobal, StudentID: "ct-guard", Date: "2025-03-04",
		State: types.StreakState{Streak: 9, LastDate: "2025-03-04"},
	}
	res, err = prov.ApplyStreakUpdates(ctx, []types.StreakUpdate{replay, older})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 2, res.Skipped)
	assert.Empty(t, res.Notifications)

	got, err := prov.GetGlobalStreaks(ctx, []string{"ct-guard"})
	require.NoError(t, err)
	assert.Equal(t, 2, got["ct-guard"].Streak)

	notes, err := prov.ListNotifications(ctx, "ct-guard", 10)
	require.NoError(t, err)
	assert.Empty(t, notes)
}
