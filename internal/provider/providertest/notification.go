package providertest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// TestNotificationListResolve verifies listing order and resolution.
func TestNotificationListResolve(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	base := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	// IDs sort in creation order, as ULIDs do.
	ids := []string{"01JNCT0000000000000000000A", "01JNCT0000000000000000000B", "01JNCT0000000000000000000C"}
	days := []string{"2025-03-05", "2025-03-06", "2025-03-07"}
	for i, id := range ids {
		n := types.Notification{
			ID: id, Type: types.NotificationAbsent3Global, StudentID: "ct-notify",
			Date: days[i], Streak: 3, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		_, err := prov.ApplyStreakUpdates(ctx, []types.StreakUpdate{{
			Scope: types.ScopeGlobal, StudentID: "ct-notify", Date: days[i],
			State:        types.StreakState{Streak: 3, LastDate: days[i]},
			Notification: &n,
		}})
		require.NoError(t, err)
	}

	notes, err := prov.ListNotifications(ctx, "ct-notify", 2)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, ids[2], notes[0].ID, "newest first")
	assert.Equal(t, ids[1], notes[1].ID)

	require.NoError(t, prov.ResolveNotification(ctx, "ct-notify", ids[0]))
	notes, err = prov.ListNotifications(ctx, "ct-notify", 10)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	for _, n := range notes {
		assert.Equal(t, n.ID == ids[0], n.Resolved, n.ID)
	}

	err = prov.ResolveNotification(ctx, "ct-notify", "no-such-id")
	assert.True(t, errors.Is(err, provider.ErrNotFound))
}
