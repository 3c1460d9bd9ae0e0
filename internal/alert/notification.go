package alert

import (
	"fmt"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// ForNotification builds the alert fanned out for a threshold notification.
func ForNotification(n types.Notification) types.Alert {
	msg := fmt.Sprintf("Student %s reached %d consecutive absences on %s", n.StudentID, n.Streak, n.Date)
	if n.SubjectID != "" {
		msg = fmt.Sprintf("Student %s reached %d consecutive absences in %s on %s", n.StudentID, n.Streak, n.SubjectID, n.Date)
	}
	return types.Alert{
		Level:     types.AlertLevelWarning,
		Category:  string(n.Type),
		StudentID: n.StudentID,
		SubjectID: n.SubjectID,
		Message:   msg,
		Details: map[string]interface{}{
			"notificationId": n.ID,
			"date":           n.Date,
			"streak":         n.Streak,
		},
		Timestamp: n.CreatedAt,
	}
}
