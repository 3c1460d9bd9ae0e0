package types

import "time"

// DateLayout is the civil-date layout used for every day key.
const DateLayout = "2006-01-02"

// AttendanceFact is one student's attendance for one subject on one day.
// Remark, Status and Remarks are free text; the engine classifies them with
// streak.Normalize.
type AttendanceFact struct {
	Date        string     `json:"date"`
	SubjectID   string     `json:"subjectId"`
	StudentID   string     `json:"studentId"`
	Remark      string     `json:"remark,omitempty"`
	Status      string     `json:"status,omitempty"`
	Remarks     string     `json:"remarks,omitempty"`
	StudentName string     `json:"studentName,omitempty"`
	Source      FactSource `json:"source,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Subject is a class offering with its meeting days.
type Subject struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Active   *bool    `json:"active,omitempty" yaml:"active,omitempty"` // nil means active
	Days     []string `json:"days" yaml:"days"`                         // "Mon", "Wed", ...
	Schedule string   `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// IsActive reports whether the subject is active. Only an explicit false
// deactivates a subject.
func (s Subject) IsActive() bool {
	return s.Active == nil || *s.Active
}

// StreakState is the persisted counter for one (subject, student) pair or for
// one student's global attendance.
type StreakState struct {
	Streak       int        `json:"streak"`
	LastStatus   string     `json:"lastStatus,omitempty"`
	LastDate     string     `json:"lastDate,omitempty"`
	TriggeredAt3 *time.Time `json:"triggeredAt3,omitempty"`
}

// Notified reports whether the threshold alert for the current run of misses
// was already emitted.
func (s StreakState) Notified() bool {
	return s.TriggeredAt3 != nil
}

// AppliedThrough reports whether the state already reflects the given day.
func (s StreakState) AppliedThrough(day string) bool {
	return s.LastDate != "" && s.LastDate >= day
}

// RosterEntry is a student's enrollment in a subject together with the
// per-subject streak state stored alongside it.
type RosterEntry struct {
	StudentID   string      `json:"studentId"`
	StudentName string      `json:"studentName,omitempty"`
	Streak      StreakState `json:"-"`
}

// Lease is a time-bounded mutual-exclusion marker on the watermark record.
type Lease struct {
	Holder           string `json:"holder"`
	ExpiresAtEpochMs int64  `json:"expiresAtEpochMs"`
}

// ValidAt reports whether the lease still blocks other runs at now.
func (l *Lease) ValidAt(now time.Time) bool {
	return l != nil && now.UnixMilli() < l.ExpiresAtEpochMs
}

// Watermark is the singleton progress record shared by the backfill sweep and
// the streak engine.
type Watermark struct {
	LastAbsenceBackfillDate string `json:"lastAbsenceBackfillDate,omitempty"`
	LastStreakRunDate       string `json:"lastStreakRunDate,omitempty"`
	ProcessingLease         *Lease `json:"processingLease,omitempty"`
}

// Notification is an append-only threshold alert record.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	StudentID string           `json:"studentId"`
	SubjectID string           `json:"subjectId,omitempty"`
	Date      string           `json:"date"`
	Streak    int              `json:"streak"`
	CreatedAt time.Time        `json:"createdAt"`
	Resolved  bool             `json:"resolved"`
}

// StreakUpdate is a write intent produced by the engine for one entity on one
// day. Stores apply it only when the stored LastDate is before Date, and
// create Notification atomically with the state write.
type StreakUpdate struct {
	Scope        StreakScope   `json:"scope"`
	SubjectID    string        `json:"subjectId,omitempty"`
	StudentID    string        `json:"studentId"`
	Date         string        `json:"date"`
	State        StreakState   `json:"state"`
	Notification *Notification `json:"notification,omitempty"`
}

// ApplyResult reports the outcome of a batch of streak updates.
type ApplyResult struct {
	Applied       int            `json:"applied"`
	Skipped       int            `json:"skipped"`
	Notifications []Notification `json:"notifications,omitempty"`
}

// DaySummary reports what the engine did for a single day.
type DaySummary struct {
	Day             string `json:"day"`
	Subjects        int    `json:"subjects"`
	SubjectsSkipped int    `json:"subjectsSkipped"`
	Facts           int    `json:"facts"`
	Ignored         int    `json:"ignored"`
	Updates         int    `json:"updates"`
	Skipped         int    `json:"skipped"`
	Notifications   int    `json:"notifications"`
}

// RunSummary reports the outcome of one streak engine invocation.
type RunSummary struct {
	ActorID       string       `json:"actorId"`
	StartDay      string       `json:"startDay,omitempty"`
	EndDay        string       `json:"endDay,omitempty"`
	Skipped       SkipReason   `json:"skipped,omitempty"`
	Days          []DaySummary `json:"days,omitempty"`
	Notifications int          `json:"notifications"`
	StartedAt     time.Time    `json:"startedAt"`
	FinishedAt    time.Time    `json:"finishedAt"`
}

// BackfillSummary reports the outcome of one absence backfill sweep.
type BackfillSummary struct {
	StartDay     string   `json:"startDay,omitempty"`
	EndDay       string   `json:"endDay,omitempty"`
	Days         int      `json:"days"`
	ExcludedDays []string `json:"excludedDays,omitempty"`
	Created      int      `json:"created"`
	UpToDate     bool     `json:"upToDate"`
}

// Alert is a notification fan-out message delivered to alert sinks.
type Alert struct {
	Level     AlertLevel             `json:"level"`
	Category  string                 `json:"category"`
	StudentID string                 `json:"studentId,omitempty"`
	SubjectID string                 `json:"subjectId,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
