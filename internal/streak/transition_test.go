package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

func TestAdvance(t *testing.T) {
	tests := []struct {
		name       string
		prev       State
		miss       bool
		wantStreak int
		wantNotify bool
		wantFlag   bool
	}{
		{"first miss", State{0, false}, true, 1, false, false},
		{"second miss", State{1, false}, true, 2, false, false},
		{"third miss notifies", State{2, false}, true, 3, true, true},
		{"third miss already notified", State{2, true}, true, 3, false, true},
		{"miss after threshold wraps", State{3, true}, true, 1, false, true},
		{"miss above threshold wraps", State{5, false}, true, 1, false, false},
		{"attend resets", State{2, false}, false, 0, false, false},
		{"attend clears flag", State{3, true}, false, 0, false, false},
		{"attend from zero", State{0, false}, false, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Advance(tt.prev, tt.miss)
			assert.Equal(t, tt.wantStreak, out.Next.Streak)
			assert.Equal(t, tt.wantNotify, out.Notify)
			assert.Equal(t, tt.wantFlag, out.Next.Notified)
		})
	}
}

func TestAdvance_FourMissesNotifyOnce(t *testing.T) {
	var st State
	var streaks []int
	notifications := 0
	for range 4 {
		out := Advance(st, true)
		st = out.Next
		streaks = append(streaks, st.Streak)
		if out.Notify {
			notifications++
		}
	}
	assert.Equal(t, []int{1, 2, 3, 1}, streaks)
	assert.Equal(t, 1, notifications)
}

func TestAdvance_ResetThenNewRunNotifiesAgain(t *testing.T) {
	st := State{Streak: 3, Notified: true}
	st = Advance(st, false).Next
	assert.Equal(t, State{0, false}, st)

	notifications := 0
	for range 3 {
		out := Advance(st, true)
		st = out.Next
		if out.Notify {
			notifications++
		}
	}
	assert.Equal(t, 3, st.Streak)
	assert.Equal(t, 1, notifications)
}

func TestAdvance_WrapWithoutResetDoesNotRenotify(t *testing.T) {
	st := State{}
	notifications := 0
	for range 6 {
		out := Advance(st, true)
		st = out.Next
		if out.Notify {
			notifications++
		}
	}
	// 1,2,3,1,2,3: the flag survives the wrap so the second 3 is silent.
	assert.Equal(t, 3, st.Streak)
	assert.Equal(t, 1, notifications)
}

func TestApply_StampsAndClearsTrigger(t *testing.T) {
	now := time.Date(2025, 3, 5, 1, 0, 0, 0, time.UTC)

	prev := types.StreakState{Streak: 2, LastDate: "2025-03-03"}
	next, notify := Apply(prev, "2025-03-04", types.StatusAbsent, true, now)
	assert.True(t, notify)
	assert.Equal(t, 3, next.Streak)
	assert.Equal(t, "2025-03-04", next.LastDate)
	assert.Equal(t, "Absent", next.LastStatus)
	if assert.NotNil(t, next.TriggeredAt3) {
		assert.True(t, next.TriggeredAt3.Equal(now))
	}

	wrapped, notify := Apply(next, "2025-03-05", types.StatusAbsent, true, now.Add(24*time.Hour))
	assert.False(t, notify)
	assert.Equal(t, 1, wrapped.Streak)
	assert.Equal(t, next.TriggeredAt3, wrapped.TriggeredAt3, "flag is kept until a reset")

	reset, notify := Apply(wrapped, "2025-03-06", types.StatusPresent, false, now)
	assert.False(t, notify)
	assert.Equal(t, 0, reset.Streak)
	assert.Nil(t, reset.TriggeredAt3)
}

func TestApply_Idempotent(t *testing.T) {
	now := time.Date(2025, 3, 5, 1, 0, 0, 0, time.UTC)
	prev := types.StreakState{Streak: 1, LastDate: "2025-03-03"}

	a, na := Apply(prev, "2025-03-04", types.StatusAbsent, true, now)
	b, nb := Apply(prev, "2025-03-04", types.StatusAbsent, true, now)
	assert.Equal(t, a, b)
	assert.Equal(t, na, nb)
}

func TestFromState_ClampsNegative(t *testing.T) {
	st := FromState(types.StreakState{Streak: -4})
	assert.Equal(t, 0, st.Streak)
	assert.False(t, st.Notified)
}
