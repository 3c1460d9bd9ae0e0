// Package types defines the public domain types for the rollcall attendance
// streak engine.
package types

// AttendanceStatus is the normalized classification of an attendance fact.
type AttendanceStatus string

// AttendanceStatus values enumerate the normalized attendance outcomes.
const (
	StatusPresent AttendanceStatus = "Present"
	StatusLate    AttendanceStatus = "Late"
	StatusAbsent  AttendanceStatus = "Absent"
	StatusExcused AttendanceStatus = "Excused"
)

// IsMiss reports whether the status counts against a streak.
func (s AttendanceStatus) IsMiss() bool {
	return s == StatusAbsent
}

// StreakScope identifies whether a streak is tracked per subject or across
// all subjects a student attends on a day.
type StreakScope string

// StreakScope values.
const (
	ScopeSubject StreakScope = "subject"
	ScopeGlobal  StreakScope = "global"
)

// NotificationType identifies the kind of threshold alert.
type NotificationType string

// NotificationType values enumerate the threshold alerts the engine emits.
const (
	NotificationAbsent3Subject NotificationType = "absent3_subject"
	NotificationAbsent3Global  NotificationType = "absent3_global"
)

// NotificationTypeFor returns the notification type for a streak scope.
func NotificationTypeFor(scope StreakScope) NotificationType {
	if scope == ScopeGlobal {
		return NotificationAbsent3Global
	}
	return NotificationAbsent3Subject
}

// FactSource records which subsystem wrote an attendance fact.
type FactSource string

// FactSource values.
const (
	SourceScan     FactSource = "scan"
	SourceBackfill FactSource = "backfill"
	SourceManual   FactSource = "manual"
)

// AlertLevel represents alert severity.
type AlertLevel string

// AlertLevel values define the severity tiers for alerts.
const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertLog         AlertType = "log"
	AlertWebhook     AlertType = "webhook"
	AlertFile        AlertType = "file"
	AlertEventBridge AlertType = "eventbridge"
	AlertSQS         AlertType = "sqs"
)

// SkipReason explains why a streak run did not process any days.
type SkipReason string

// SkipReason values.
const (
	SkipNone      SkipReason = ""
	SkipLeaseHeld SkipReason = "lease_held"
	SkipUpToDate  SkipReason = "up_to_date"
	SkipBackfill  SkipReason = "backfill_failed"
)
