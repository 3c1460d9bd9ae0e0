package firestore

import "testing"

func TestDocID(t *testing.T) {
	got := docID(subjectPK("math"), studentSK("stu1"))
	if got != "SUBJECT#math|STUDENT#stu1" {
		t.Errorf("docID = %q", got)
	}
}

func TestDocIDPrefix(t *testing.T) {
	start, end := docIDPrefix(studentPK("stu1"), prefixNotification)
	if start != "STUDENT#stu1|NOTIFICATION#" {
		t.Errorf("start = %q", start)
	}
	if end != "STUDENT#stu1|NOTIFICATION$" {
		t.Errorf("end = %q", end)
	}
	inside := docID(studentPK("stu1"), notificationSK("01JNCT0000000000000000000A"))
	if !(inside >= start && inside < end) {
		t.Errorf("%q not within [%q, %q)", inside, start, end)
	}
	global := docID(studentPK("stu1"), skGlobalStreak)
	if global >= start && global < end {
		t.Errorf("%q must fall outside the notification range", global)
	}
}

func TestExtractSK(t *testing.T) {
	if got := extractSK("SUBJECT#math|STUDENT#stu1"); got != "STUDENT#stu1" {
		t.Errorf("extractSK = %q", got)
	}
	if got := extractSK("no-separator"); got != "no-separator" {
		t.Errorf("extractSK = %q", got)
	}
}

func TestAttendancePK(t *testing.T) {
	if got := attendancePK("2025-03-05", "math"); got != "ATTENDANCE#2025-03-05#math" {
		t.Errorf("attendancePK = %q", got)
	}
}
