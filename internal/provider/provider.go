// Package provider defines the storage backend interface for rollcall.
package provider

import (
	"context"
	"errors"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// WatermarkMutator inspects the current watermark and returns the value to
// store. Returning write=false leaves the record untouched. Stores may invoke
// the mutator more than once when a concurrent writer wins the race, so it
// must not have side effects.
type WatermarkMutator func(current types.Watermark) (next types.Watermark, write bool)

// RosterStore reads and writes subject definitions and enrollments.
type RosterStore interface {
	ListSubjects(ctx context.Context) ([]types.Subject, error)
	PutSubject(ctx context.Context, subject types.Subject) error
	// ListRoster returns the subject's enrolled students together with their
	// per-subject streak state.
	ListRoster(ctx context.Context, subjectID string) ([]types.RosterEntry, error)
	PutRosterEntry(ctx context.Context, subjectID string, entry types.RosterEntry) error
}

// AttendanceStore reads and writes attendance facts.
type AttendanceStore interface {
	ListAttendance(ctx context.Context, date, subjectID string) ([]types.AttendanceFact, error)
	// PutAttendance writes a fact, replacing any existing one for the same key.
	PutAttendance(ctx context.Context, fact types.AttendanceFact) error
	// CreateAttendance writes a fact only if none exists for its key and
	// reports whether it was created.
	CreateAttendance(ctx context.Context, fact types.AttendanceFact) (bool, error)
}

// StreakStore reads global streak state and applies streak updates.
type StreakStore interface {
	// GetGlobalStreaks returns the stored global state for each requested
	// student. Students without state are absent from the map.
	GetGlobalStreaks(ctx context.Context, studentIDs []string) (map[string]types.StreakState, error)
	// ApplyStreakUpdates merges each update into its entity unless the stored
	// LastDate is already at or after the update's Date. A notification is
	// created only together with the state write that carries it.
	ApplyStreakUpdates(ctx context.Context, updates []types.StreakUpdate) (types.ApplyResult, error)
}

// WatermarkStore holds the singleton progress record.
type WatermarkStore interface {
	GetWatermark(ctx context.Context) (types.Watermark, error)
	// UpdateWatermark runs fn as an atomic read-modify-write against the
	// singleton record and reports whether a write happened.
	UpdateWatermark(ctx context.Context, fn WatermarkMutator) (bool, error)
}

// NotificationStore exposes the append-only alert records.
type NotificationStore interface {
	// ListNotifications returns notifications newest first. An empty
	// studentID lists across all students.
	ListNotifications(ctx context.Context, studentID string, limit int) ([]types.Notification, error)
	ResolveNotification(ctx context.Context, studentID, notificationID string) error
}

// Provider is the full storage backend interface.
type Provider interface {
	RosterStore
	AttendanceStore
	StreakStore
	WatermarkStore
	NotificationStore

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
