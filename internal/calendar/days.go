package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// ParseDay parses a "YYYY-MM-DD" civil date. The result is midnight UTC and
// only its calendar fields are meaningful.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(types.DateLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", day, err)
	}
	return t, nil
}

// Today returns the civil date of now in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(types.DateLayout)
}

// Yesterday returns the civil date before now in loc.
func Yesterday(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, time.UTC).Format(types.DateLayout)
}

// AddDays returns day shifted by n calendar days.
func AddDays(day string, n int) (string, error) {
	t, err := ParseDay(day)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(types.DateLayout), nil
}

// Days returns every day from start through end inclusive, ascending. An
// empty slice is returned when start is after end.
func Days(start, end string) ([]string, error) {
	s, err := ParseDay(start)
	if err != nil {
		return nil, err
	}
	e, err := ParseDay(end)
	if err != nil {
		return nil, err
	}
	var days []string
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(types.DateLayout))
	}
	return days, nil
}

// Weekday returns the lowercase three-letter weekday of a civil date.
func Weekday(day string) (string, error) {
	t, err := ParseDay(day)
	if err != nil {
		return "", err
	}
	return strings.ToLower(t.Weekday().String()[:3]), nil
}

// NormalizeWeekday folds "Mon", "monday" and "MON" to "mon".
func NormalizeWeekday(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > 3 {
		s = s[:3]
	}
	return s
}

// MeetsOn reports whether a subject's meeting days include the weekday.
func MeetsOn(days []string, weekday string) bool {
	for _, d := range days {
		if NormalizeWeekday(d) == weekday {
			return true
		}
	}
	return false
}

// Scheduled filters subjects to those that are active and meet on weekday.
func Scheduled(subjects []types.Subject, weekday string) []types.Subject {
	var out []types.Subject
	for _, s := range subjects {
		if !s.IsActive() {
			continue
		}
		if MeetsOn(s.Days, weekday) {
			out = append(out, s)
		}
	}
	return out
}

// LoadLocation resolves a timezone name, defaulting to UTC when empty.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", name, err)
	}
	return loc, nil
}
