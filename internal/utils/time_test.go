package utils

import (
	"testing"
	"time"
)

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name string
		date string
		want string
	}{
		{"monday stays", "2024-01-08", "2024-01-08"},
		{"wednesday", "2024-01-10", "2024-01-08"},
		{"sunday belongs to previous monday", "2024-01-14", "2024-01-08"},
		{"crosses month", "2024-03-02", "2024-02-26"},
		{"crosses year", "2025-01-01", "2024-12-30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDate(tt.date)
			if err != nil {
				t.Fatalf("ParseDate(%q) error: %v", tt.date, err)
			}
			got := WeekKey(d)
			if got != tt.want {
				t.Errorf("WeekKey(%s) = %s, want %s", tt.date, got, tt.want)
			}
			if WeekStart(d).Weekday() != time.Monday {
				t.Errorf("WeekStart(%s) is not a Monday", tt.date)
			}
		})
	}
}

func TestPreviousWeekKey(t *testing.T) {
	d, _ := ParseDate("2024-01-10")
	if got := PreviousWeekKey(d); got != "2024-01-01" {
		t.Errorf("PreviousWeekKey = %s, want 2024-01-01", got)
	}
}

func TestWeekDates(t *testing.T) {
	d, _ := ParseDate("2024-01-14")
	dates := WeekDates(d)
	if len(dates) != 7 {
		t.Fatalf("expected 7 dates, got %d", len(dates))
	}
	if dates[0] != "2024-01-08" || dates[6] != "2024-01-14" {
		t.Errorf("unexpected week range %s..%s", dates[0], dates[6])
	}
}

func TestParseTimeOfDay(t *testing.T) {
	h, m, err := ParseTimeOfDay("08:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h != 8 || m != 30 {
		t.Errorf("got %d:%d, want 8:30", h, m)
	}

	for _, bad := range []string{"", "8", "25:00", "08:61", "noon"} {
		if _, _, err := ParseTimeOfDay(bad); err == nil {
			t.Errorf("ParseTimeOfDay(%q) expected error", bad)
		}
	}
}
