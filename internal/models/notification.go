package models

import (
	"fmt"
	"time"

	"github.com/julianstephens/daylit-sync/internal/constants"
)

type NotificationType string

const (
	NotificationMeal       NotificationType = "meal"
	NotificationHabit      NotificationType = "habit"
	NotificationPriority   NotificationType = "priority"
	NotificationReflection NotificationType = "reflection"
	NotificationTimeBlock  NotificationType = "time_block"
	NotificationStretching NotificationType = "stretching"
	NotificationExpense    NotificationType = "expense"
)

// NotificationSetting is one logical reminder. When DaysOfWeek is empty or
// lists all seven days the reminder is daily.
type NotificationSetting struct {
	Base
	Type       NotificationType `json:"type"`
	Enabled    bool             `json:"enabled"`
	Time       string           `json:"time"`                   // HH:MM format
	DaysOfWeek []int            `json:"days_of_week,omitempty"` // 0=Sunday..6=Saturday
	CustomText string           `json:"custom_text,omitempty"`
}

func (n *NotificationSetting) Validate() error {
	if n.Type == "" {
		return fmt.Errorf("notification type cannot be empty")
	}
	if _, err := time.Parse(constants.TimeFormat, n.Time); err != nil {
		return fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}
	return ValidateWeekdays(n.DaysOfWeek)
}

// IsDaily reports whether the reminder fires every day.
func (n *NotificationSetting) IsDaily() bool {
	return len(DistinctWeekdays(n.DaysOfWeek)) == 0 || len(DistinctWeekdays(n.DaysOfWeek)) == constants.DaysPerWeek
}

// ValidateWeekdays checks that each entry is a domain weekday index (0..6).
func ValidateWeekdays(days []int) error {
	for _, d := range days {
		if d < int(time.Sunday) || d > int(time.Saturday) {
			return fmt.Errorf("invalid weekday %d (expected 0=Sunday..6=Saturday)", d)
		}
	}
	return nil
}

// DistinctWeekdays returns the sorted set of valid weekday indices in days.
func DistinctWeekdays(days []int) []int {
	var seen [constants.DaysPerWeek]bool
	for _, d := range days {
		if d >= 0 && d < constants.DaysPerWeek {
			seen[d] = true
		}
	}
	out := make([]int, 0, len(days))
	for d, ok := range seen {
		if ok {
			out = append(out, d)
		}
	}
	return out
}
