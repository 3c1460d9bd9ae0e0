package streak

import (
	"strings"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// Normalize classifies a fact's free-text status. The first non-empty field of
// Remark, Status and Remarks is used. Matching is a case-insensitive substring
// test in the order absent, late, excused; everything else, including an empty
// value, is Present.
func Normalize(f types.AttendanceFact) types.AttendanceStatus {
	return Classify(firstNonEmpty(f.Remark, f.Status, f.Remarks))
}

// Classify maps free text to an attendance status.
func Classify(text string) types.AttendanceStatus {
	s := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.Contains(s, "absent"):
		return types.StatusAbsent
	case strings.Contains(s, "late"):
		return types.StatusLate
	case strings.Contains(s, "excus"):
		return types.StatusExcused
	default:
		return types.StatusPresent
	}
}

// Attended reports whether the status counts as attending a scheduled class
// in the global rollup. It is the complement of a subject-level miss so both
// levels agree on every status.
func Attended(s types.AttendanceStatus) bool {
	return !s.IsMiss()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
