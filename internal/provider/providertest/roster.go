package providertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// TestSubjectCRUD verifies subject registration, overwrite and listing.
func TestSubjectCRUD(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	inactive := false
	require.NoError(t, prov.PutSubject(ctx, types.Subject{ID: "ct-math", Name: "Math", Days: []string{"Mon", "Wed"}}))
	require.NoError(t, prov.PutSubject(ctx, types.Subject{ID: "ct-art", Days: []string{"Fri"}, Active: &inactive}))
	require.NoError(t, prov.PutSubject(ctx, types.Subject{ID: "ct-math", Name: "Mathematics", Days: []string{"Mon", "Wed", "Fri"}}))

	subjects, err := prov.ListSubjects(ctx)
	require.NoError(t, err)

	byID := make(map[string]types.Subject)
	for _, s := range subjects {
		byID[s.ID] = s
	}
	require.Contains(t, byID, "ct-math")
	require.Contains(t, byID, "ct-art")
	assert.Equal(t, "Mathematics", byID["ct-math"].Name)
	assert.Equal(t, []string{"Mon", "Wed", "Fri"}, byID["ct-math"].Days)
	assert.True(t, byID["ct-math"].IsActive())
	assert.False(t, byID["ct-art"].IsActive())
}

// TestRosterPreservesStreak verifies enrollment writes leave streak state untouched.
func TestRosterPreservesStreak(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	require.NoError(t, prov.PutRosterEntry(ctx, "ct-roster", types.RosterEntry{StudentID: "stu1", StudentName: "Ana"}))
	require.NoError(t, prov.PutRosterEntry(ctx, "ct-roster", types.RosterEntry{StudentID: "stu2"}))

	_, err := prov.ApplyStreakUpdates(ctx, []types.StreakUpdate{{
		Scope:     types.ScopeSubject,
		SubjectID: "ct-roster",
		StudentID: "stu1",
		Date:      "2025-03-03",
		State:     types.StreakState{Streak: 2, LastStatus: "Absent", LastDate: "2025-03-03"},
	}})
	require.NoError(t, err)

	// Re-enrolling with a new display name keeps the counter.
	require.NoError(t, prov.PutRosterEntry(ctx, "ct-roster", types.RosterEntry{StudentID: "stu1", StudentName: "Ana M."}))

	roster, err := prov.ListRoster(ctx, "ct-roster")
	require.NoError(t, err)
	require.Len(t, roster, 2)

	byID := make(map[string]types.RosterEntry)
	for _, e := range roster {
		byID[e.StudentID] = e
	}
	assert.Equal(t, "Ana M.", byID["stu1"].StudentName)
	assert.Equal(t, 2, byID["stu1"].Streak.Streak)
	assert.Equal(t, "2025-03-03", byID["stu1"].Streak.LastDate)
	assert.Equal(t, 0, byID["stu2"].Streak.Streak)

	empty, err := prov.ListRoster(ctx, "ct-no-such-subject")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
