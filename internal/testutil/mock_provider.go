// Package testutil provides shared test utilities for rollcall.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*MockProvider)(nil)

// MockProvider is an in-memory Provider implementation for testing.
type MockProvider struct {
	mu            sync.Mutex
	subjects      map[string]types.Subject
	rosters       map[string]map[string]types.RosterEntry // subjectID -> studentID
	facts         map[string]types.AttendanceFact          // key: "date:subjectID:studentID"
	global        map[string]types.StreakState
	watermark     types.Watermark
	notifications []types.Notification

	// Fault injection. When set, the matching call returns the error.
	ListRosterErr     error
	ListAttendanceErr error
	ApplyErr          error
	// ApplyErrAfter makes ApplyStreakUpdates fail once this many successful
	// calls have been made. Zero disables it.
	ApplyErrAfter int

	applyCalls atomic.Int64
	wmWrites   atomic.Int64
}

// NewMockProvider creates a new in-memory mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		subjects: make(map[string]types.Subject),
		rosters:  make(map[string]map[string]types.RosterEntry),
		facts:    make(map[string]types.AttendanceFact),
		global:   make(map[string]types.StreakState),
	}
}

func factKey(date, subjectID, studentID string) string {
	return date + ":" + subjectID + ":" + studentID
}

func (m *MockProvider) ListSubjects(_ context.Context) ([]types.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]types.Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockProvider) PutSubject(_ context.Context, subject types.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[subject.ID] = subject
	return nil
}

func (m *MockProvider) ListRoster(_ context.Context, subjectID string) ([]types.RosterEntry, error) {
	if m.ListRosterErr != nil {
		return nil, m.ListRosterErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.RosterEntry
	for _, e := range m.rosters[subjectID] {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StudentID < result[j].StudentID })
	return result, nil
}

func (m *MockProvider) PutRosterEntry(_ context.Context, subjectID string, entry types.RosterEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	roster, ok := m.rosters[subjectID]
	if !ok {
		roster = make(map[string]types.RosterEntry)
		m.rosters[subjectID] = roster
	}
	// Enrollment writes never touch the streak state stored alongside.
	if existing, ok := roster[entry.StudentID]; ok {
		entry.Streak = existing.Streak
	}
	roster[entry.StudentID] = entry
	return nil
}

func (m *MockProvider) ListAttendance(_ context.Context, date, subjectID string) ([]types.AttendanceFact, error) {
	if m.ListAttendanceErr != nil {
		return nil, m.ListAttendanceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.AttendanceFact
	for _, f := range m.facts {
		if f.Date == date && f.SubjectID == subjectID {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StudentID < result[j].StudentID })
	return result, nil
}

func (m *MockProvider) PutAttendance(_ context.Context, fact types.AttendanceFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts[factKey(fact.Date, fact.SubjectID, fact.StudentID)] = fact
	return nil
}

func (m *MockProvider) CreateAttendance(_ context.Context, fact types.AttendanceFact) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := factKey(fact.Date, fact.SubjectID, fact.StudentID)
	if _, ok := m.facts[key]; ok {
		return false, nil
	}
	m.facts[key] = fact
	return true, nil
}

func (m *MockProvider) GetGlobalStreaks(_ context.Context, studentIDs []string) (map[string]types.StreakState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]types.StreakState, len(studentIDs))
	for _, id := range studentIDs {
		if st, ok := m.global[id]; ok {
			result[id] = st
		}
	}
	return result, nil
}

func (m *MockProvider) ApplyStreakUpdates(_ context.Context, updates []types.StreakUpdate) (types.ApplyResult, error) {
	n := m.applyCalls.Add(1)
	if m.ApplyErr != nil {
		return types.ApplyResult{}, m.ApplyErr
	}
	if m.ApplyErrAfter > 0 && n > int64(m.ApplyErrAfter) {
		return types.ApplyResult{}, fmt.Errorf("injected apply failure on call %d", n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var res types.ApplyResult
	for _, u := range updates {
		var current types.StreakState
		switch u.Scope {
		case types.ScopeGlobal:
			current = m.global[u.StudentID]
		default:
			current = m.rosters[u.SubjectID][u.StudentID].Streak
		}
		if current.AppliedThrough(u.Date) {
			res.Skipped++
			continue
		}

		switch u.Scope {
		case types.ScopeGlobal:
			m.global[u.StudentID] = u.State
		default:
			roster, ok := m.rosters[u.SubjectID]
			if !ok {
				roster = make(map[string]types.RosterEntry)
				m.rosters[u.SubjectID] = roster
			}
			entry := roster[u.StudentID]
			entry.StudentID = u.StudentID
			entry.Streak = u.State
			roster[u.StudentID] = entry
		}
		res.Applied++
		if u.Notification != nil {
			m.notifications = append(m.notifications, *u.Notification)
			res.Notifications = append(res.Notifications, *u.Notification)
		}
	}
	return res, nil
}

func (m *MockProvider) GetWatermark(_ context.Context) (types.Watermark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyWatermark(m.watermark), nil
}

func (m *MockProvider) UpdateWatermark(_ context.Context, fn provider.WatermarkMutator) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, write := fn(copyWatermark(m.watermark))
	if !write {
		return false, nil
	}
	m.watermark = copyWatermark(next)
	m.wmWrites.Add(1)
	return true, nil
}

func (m *MockProvider) ListNotifications(_ context.Context, studentID string, limit int) ([]types.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.Notification
	for i := len(m.notifications) - 1; i >= 0 && len(result) < limit; i-- {
		n := m.notifications[i]
		if studentID == "" || n.StudentID == studentID {
			result = append(result, n)
		}
	}
	return result, nil
}

func (m *MockProvider) ResolveNotification(_ context.Context, studentID, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		n := &m.notifications[i]
		if n.ID == notificationID && n.StudentID == studentID {
			n.Resolved = true
			return nil
		}
	}
	return fmt.Errorf("notification %q: %w", notificationID, provider.ErrNotFound)
}

func (m *MockProvider) Start(_ context.Context) error { return nil }
func (m *MockProvider) Stop(_ context.Context) error  { return nil }
func (m *MockProvider) Ping(_ context.Context) error  { return nil }

// --- inspection helpers ---

// SubjectStreak returns the stored per-subject state for a student.
func (m *MockProvider) SubjectStreak(subjectID, studentID string) types.StreakState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rosters[subjectID][studentID].Streak
}

// GlobalStreak returns the stored global state for a student and whether it exists.
func (m *MockProvider) GlobalStreak(studentID string) (types.StreakState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.global[studentID]
	return st, ok
}

// SetGlobalStreak seeds a student's global state.
func (m *MockProvider) SetGlobalStreak(studentID string, st types.StreakState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global[studentID] = st
}

// SetSubjectStreak seeds a student's per-subject state.
func (m *MockProvider) SetSubjectStreak(subjectID, studentID string, st types.StreakState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roster, ok := m.rosters[subjectID]
	if !ok {
		roster = make(map[string]types.RosterEntry)
		m.rosters[subjectID] = roster
	}
	entry := roster[studentID]
	entry.StudentID = studentID
	entry.Streak = st
	roster[studentID] = entry
}

// SetWatermark replaces the watermark record.
func (m *MockProvider) SetWatermark(wm types.Watermark) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watermark = copyWatermark(wm)
}

// Notifications returns every notification in creation order.
func (m *MockProvider) Notifications() []types.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// Facts returns every stored fact for a day.
func (m *MockProvider) Facts(date string) []types.AttendanceFact {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.AttendanceFact
	for _, f := range m.facts {
		if f.Date == date {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubjectID != out[j].SubjectID {
			return out[i].SubjectID < out[j].SubjectID
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}

// ApplyCalls returns how many times ApplyStreakUpdates was called.
func (m *MockProvider) ApplyCalls() int64 {
	return m.applyCalls.Load()
}

// WatermarkWrites returns how many watermark writes were committed.
func (m *MockProvider) WatermarkWrites() int64 {
	return m.wmWrites.Load()
}

func copyWatermark(wm types.Watermark) types.Watermark {
	if wm.ProcessingLease != nil {
		l := *wm.ProcessingLease
		wm.ProcessingLease = &l
	}
	return wm
}
