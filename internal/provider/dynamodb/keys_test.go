package dynamodb

import "testing"

func TestSubjectPK(t *testing.T) {
	got := subjectPK("math-7a")
	if got != "SUBJECT#math-7a" {
		t.Errorf("subjectPK = %q, want %q", got, "SUBJECT#math-7a")
	}
}

func TestStudentKeys(t *testing.T) {
	if got := studentPK("stu1"); got != "STUDENT#stu1" {
		t.Errorf("studentPK = %q, want %q", got, "STUDENT#stu1")
	}
	if got := studentSK("stu1"); got != "STUDENT#stu1" {
		t.Errorf("studentSK = %q, want %q", got, "STUDENT#stu1")
	}
}

func TestAttendancePK(t *testing.T) {
	got := attendancePK("2025-03-05", "math-7a")
	if got != "ATTENDANCE#2025-03-05#math-7a" {
		t.Errorf("attendancePK = %q, want %q", got, "ATTENDANCE#2025-03-05#math-7a")
	}
}

func TestNotificationSK(t *testing.T) {
	got := notificationSK("01JNCT0000000000000000000A")
	if got != "NOTIFICATION#01JNCT0000000000000000000A" {
		t.Errorf("notificationSK = %q, want %q", got, "NOTIFICATION#01JNCT0000000000000000000A")
	}
}

func TestNotificationSK_SortsByID(t *testing.T) {
	a := notificationSK("01JNCT0000000000000000000A")
	b := notificationSK("01JNCT0000000000000000000B")
	if a >= b {
		t.Errorf("expected %q < %q", a, b)
	}
}

func TestIsNotificationKey(t *testing.T) {
	if !IsNotificationKey("STUDENT#stu1", "NOTIFICATION#01J") {
		t.Error("expected notification key")
	}
	if IsNotificationKey("STUDENT#stu1", "STREAK#GLOBAL") {
		t.Error("global streak is not a notification")
	}
	if IsNotificationKey("SUBJECT#math", "NOTIFICATION#01J") {
		t.Error("subject partition is not a notification")
	}
}

func TestDecodeNotification(t *testing.T) {
	n, err := DecodeNotification(`{"id":"n1","type":"absent3_global","studentId":"stu1","date":"2025-03-07","streak":3}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ID != "n1" || n.StudentID != "stu1" || n.Streak != 3 {
		t.Errorf("decoded %+v", n)
	}
	if _, err := DecodeNotification(`{"type":"absent3_global"}`); err == nil {
		t.Error("expected error for missing id")
	}
	if _, err := DecodeNotification(`not json`); err == nil {
		t.Error("expected error for invalid json")
	}
}
