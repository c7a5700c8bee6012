package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/daylit-sync/internal/constants"
)

// Habit is one week's row of a recurring practice. The same habit across
// weeks is a family of rows sharing name/color/reminder with distinct IDs.
type Habit struct {
	Base
	Name          string `json:"name"`
	Color         string `json:"color"`
	ReminderTime  string `json:"reminder_time,omitempty"` // HH:MM format
	ReminderDays  []int  `json:"reminder_days,omitempty"` // 0=Sunday..6=Saturday
	WeekStartDate string `json:"week_start_date"`         // YYYY-MM-DD, always a Monday
}

// HabitCompletion marks a habit as done on a date. Its existence is the
// completed flag; there is no boolean column.
type HabitCompletion struct {
	Base
	HabitID string `json:"habit_id"`
	Date    string `json:"date"` // YYYY-MM-DD format
}

func (h *Habit) Validate() error {
	if strings.TrimSpace(h.Name) == "" {
		return fmt.Errorf("habit name cannot be empty")
	}

	week, err := time.Parse(constants.DateFormat, h.WeekStartDate)
	if err != nil {
		return fmt.Errorf("invalid week_start_date (expected YYYY-MM-DD): %w", err)
	}
	if week.Weekday() != time.Monday {
		return fmt.Errorf("week_start_date %s is not a Monday", h.WeekStartDate)
	}

	if h.ReminderTime != "" {
		if _, err := time.Parse(constants.TimeFormat, h.ReminderTime); err != nil {
			return fmt.Errorf("invalid reminder_time (expected HH:MM): %w", err)
		}
	}

	return ValidateWeekdays(h.ReminderDays)
}

func (c *HabitCompletion) Validate() error {
	if c.HabitID == "" {
		return fmt.Errorf("habit completion requires a habit_id")
	}
	if _, err := time.Parse(constants.DateFormat, c.Date); err != nil {
		return fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
	}
	return nil
}
