package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// FixedClock returns a clock func that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// MustPutSubject registers a subject and enrolls the given students.
func MustPutSubject(t *testing.T, p provider.RosterStore, subject types.Subject, studentIDs ...string) {
	t.Helper()
	ctx := context.Background()
	if err := p.PutSubject(ctx, subject); err != nil {
		t.Fatalf("PutSubject: %v", err)
	}
	for _, id := range studentIDs {
		if err := p.PutRosterEntry(ctx, subject.ID, types.RosterEntry{StudentID: id}); err != nil {
			t.Fatalf("PutRosterEntry: %v", err)
		}
	}
}

// MustMark writes an attendance fact with the given status text.
func MustMark(t *testing.T, p provider.AttendanceStore, date, subjectID, studentID, status string) {
	t.Helper()
	err := p.PutAttendance(context.Background(), types.AttendanceFact{
		Date:      date,
		SubjectID: subjectID,
		StudentID: studentID,
		Status:    status,
		Source:    types.SourceScan,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("PutAttendance: %v", err)
	}
}
