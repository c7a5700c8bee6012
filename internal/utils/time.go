package utils

import (
	"fmt"
	"time"

	"github.com/julianstephens/daylit-sync/internal/constants"
)

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}

// ParseDate parses a date string (YYYY-MM-DD) at midnight in the local timezone.
func ParseDate(dateStr string) (time.Time, error) {
	t, err := time.ParseInLocation(constants.DateFormat, dateStr, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", dateStr, err)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(constants.DateFormat)
}

// WeekStart returns midnight of the Monday on or before t, in t's location.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // days since Monday
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return d.AddDate(0, 0, -offset)
}

// WeekKey returns the YYYY-MM-DD Monday of t's week.
func WeekKey(t time.Time) string {
	return FormatDate(WeekStart(t))
}

// PreviousWeekKey returns the Monday seven days before t's week.
func PreviousWeekKey(t time.Time) string {
	return FormatDate(WeekStart(t).AddDate(0, 0, -constants.DaysPerWeek))
}

// WeekDates returns the seven YYYY-MM-DD dates of t's week, Monday first.
func WeekDates(t time.Time) []string {
	start := WeekStart(t)
	dates := make([]string, constants.DaysPerWeek)
	for i := range dates {
		dates[i] = FormatDate(start.AddDate(0, 0, i))
	}
	return dates
}

// ParseTimeOfDay parses HH:MM and returns hour and minute.
func ParseTimeOfDay(timeStr string) (int, int, error) {
	t, err := time.Parse(constants.TimeFormat, timeStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q (expected HH:MM): %w", timeStr, err)
	}
	return t.Hour(), t.Minute(), nil
}
