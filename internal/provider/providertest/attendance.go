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

// TestAttendancePutList verifies facts are scoped to (date, subject).
func TestAttendancePutList(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	facts := []types.AttendanceFact{
		{Date: "2025-03-03", SubjectID: "ct-att", StudentID: "stu1", Status: "Present", Timestamp: now},
		{Date: "2025-03-03", SubjectID: "ct-att", StudentID: "stu2", Remark: "Late", Timestamp: now},
		{Date: "2025-03-03", SubjectID: "ct-att-other", StudentID: "stu1", Status: "Absent", Timestamp: now},
		{Date: "2025-03-04", SubjectID: "ct-att", StudentID: "stu1", Status: "Absent", Timestamp: now},
	}
	for _, f := range facts {
		require.NoError(t, prov.PutAttendance(ctx, f))
	}

	got, err := prov.ListAttendance(ctx, "2025-03-03", "ct-att")
	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := make(map[string]types.AttendanceFact)
	for _, f := range got {
		byID[f.StudentID] = f
	}
	assert.Equal(t, "Present", byID["stu1"].Status)
	assert.Equal(t, "Late", byID["stu2"].Remark)

	// Overwrite replaces the fact for the same key.
	require.NoError(t, prov.PutAttendance(ctx, types.AttendanceFact{
		Date: "2025-03-03", SubjectID: "ct-att", StudentID: "stu1", Status: "Absent", Timestamp: now,
	}))
	got, err = prov.ListAttendance(ctx, "2025-03-03", "ct-att")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, f := range got {
		if f.StudentID == "stu1" {
			assert.Equal(t, "Absent", f.Status)
		}
	}

	none, err := prov.ListAttendance(ctx, "2025-03-05", "ct-att")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// TestAttendanceCreateOnly verifies CreateAttendance never overwrites.
func TestAttendanceCreateOnly(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	require.NoError(t, prov.PutAttendance(ctx, types.AttendanceFact{
		Date: "2025-03-10", SubjectID: "ct-create", StudentID: "stu1", Status: "Present", Source: types.SourceScan,
	}))

	created, err := prov.CreateAttendance(ctx, types.AttendanceFact{
		Date: "2025-03-10", SubjectID: "ct-create", StudentID: "stu1", Status: "Absent", Source: types.SourceBackfill,
	})
	require.NoError(t, err)
	assert.False(t, created)

	created, err = prov.CreateAttendance(ctx, types.AttendanceFact{
		Date: "2025-03-10", SubjectID: "ct-create", StudentID: "stu2", Status: "Absent", Source: types.SourceBackfill,
	})
	require.NoError(t, err)
	assert.True(t, created)

	got, err := prov.ListAttendance(ctx, "2025-03-10", "ct-create")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, f := range got {
		switch f.StudentID {
		case "stu1":
			assert.Equal(t, "Present", f.Status, "scan record must survive backfill")
		case "stu2":
			assert.Equal(t, types.SourceBackfill, f.Source)
		}
	}
}
