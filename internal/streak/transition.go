// Package streak implements the consecutive-absence state machine shared by
// the per-subject and global streak counters.
package streak

import (
	"time"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// Threshold is the streak length that triggers a notification.
const Threshold = 3

// State is the in-memory form of a streak counter.
type State struct {
	Streak   int
	Notified bool
}

// Outcome is the result of advancing a streak by one day.
type Outcome struct {
	Next   State
	Notify bool
}

// Advance applies one day to a streak. A miss increments the counter, wrapping
// back to 1 once it has reached Threshold; anything else resets it to 0.
// Notify is true only when the counter reaches Threshold and the alert for the
// current run has not fired yet. The notified flag is cleared only by a reset.
func Advance(prev State, miss bool) Outcome {
	if !miss {
		return Outcome{Next: State{Streak: 0, Notified: false}}
	}

	next := prev.Streak + 1
	if prev.Streak >= Threshold {
		next = 1
	}

	out := Outcome{Next: State{Streak: next, Notified: prev.Notified}}
	if next == Threshold && !prev.Notified {
		out.Notify = true
		out.Next.Notified = true
	}
	return out
}

// FromState converts a persisted state into its state-machine form.
func FromState(s types.StreakState) State {
	st := State{Streak: s.Streak, Notified: s.Notified()}
	if st.Streak < 0 {
		st.Streak = 0
	}
	return st
}

// Apply advances a persisted state by one day and returns the state to write.
// TriggeredAt3 is stamped with now on notification, preserved while the run
// continues, and cleared on reset.
func Apply(prev types.StreakState, day string, status types.AttendanceStatus, miss bool, now time.Time) (types.StreakState, bool) {
	out := Advance(FromState(prev), miss)

	next := types.StreakState{
		Streak:     out.Next.Streak,
		LastStatus: string(status),
		LastDate:   day,
	}
	switch {
	case out.Notify:
		ts := now.UTC()
		next.TriggeredAt3 = &ts
	case out.Next.Notified:
		next.TriggeredAt3 = prev.TriggeredAt3
	}
	return next, out.Notify
}
