// Package providertest provides shared conformance tests for provider.Provider
// implementations. Call RunAll from a test function to verify a provider
// satisfies the full behavioral contract.
package providertest

import (
	"testing"

	"github.com/dwsmith1983/rollcall/internal/provider"
)

// RunAll runs the complete provider conformance suite as subtests.
func RunAll(t *testing.T, prov provider.Provider) {
	t.Helper()

	t.Run("SubjectCRUD", func(t *testing.T) { TestSubjectCRUD(t, prov) })
	t.Run("RosterPreservesStreak", func(t *testing.T) { TestRosterPreservesStreak(t, prov) })
	t.Run("AttendancePutList", func(t *testing.T) { TestAttendancePutList(t, prov) })
	t.Run("AttendanceCreateOnly", func(t *testing.T) { TestAttendanceCreateOnly(t, prov) })
	t.Run("StreakUpdateSubject", func(t *testing.T) { TestStreakUpdateSubject(t, prov) })
	t.Run("StreakUpdateGlobal", func(t *testing.T) { TestStreakUpdateGlobal(t, prov) })
	t.Run("StreakUpdateGuard", func(t *testing.T) { TestStreakUpdateGuard(t, prov) })
	t.Run("WatermarkUpdate", func(t *testing.T) { TestWatermarkUpdate(t, prov) })
	t.Run("WatermarkRace", func(t *testing.T) { TestWatermarkRace(t, prov) })
	t.Run("NotificationListResolve", func(t *testing.T) { TestNotificationListResolve(t, prov) })
}
