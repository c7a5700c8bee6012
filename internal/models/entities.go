package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/daylit-sync/internal/constants"
)

type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

type Meal struct {
	Base
	Name     string   `json:"name"`
	MealType MealType `json:"meal_type"`
	Date     string   `json:"date"` // YYYY-MM-DD format
	Calories int      `json:"calories,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

type Expense struct {
	Base
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
	Date        string  `json:"date"` // YYYY-MM-DD format
}

type TimeBlock struct {
	Base
	Title     string `json:"title"`
	Date      string `json:"date"`       // YYYY-MM-DD format
	StartTime string `json:"start_time"` // HH:MM format
	EndTime   string `json:"end_time"`   // HH:MM format
	Color     string `json:"color,omitempty"`
}

type RecurringTimeBlock struct {
	Base
	Title      string `json:"title"`
	StartTime  string `json:"start_time"`   // HH:MM format
	EndTime    string `json:"end_time"`     // HH:MM format
	DaysOfWeek []int  `json:"days_of_week"` // 0=Sunday..6=Saturday
	Color      string `json:"color,omitempty"`
}

type Reflection struct {
	Base
	Date    string `json:"date"` // YYYY-MM-DD format
	Content string `json:"content"`
	Mood    int    `json:"mood,omitempty"` // 1..5
}

type Note struct {
	Base
	Title   string `json:"title"`
	Content string `json:"content"`
}

type StretchingRoutine struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type StretchingExercise struct {
	Base
	RoutineID       string `json:"routine_id"`
	Name            string `json:"name"`
	DurationSeconds int    `json:"duration_seconds"`
	Position        int    `json:"position"`
}

func (m *Meal) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("meal name cannot be empty")
	}
	switch m.MealType {
	case MealBreakfast, MealLunch, MealDinner, MealSnack:
	default:
		return fmt.Errorf("invalid meal type %q", m.MealType)
	}
	return validateDate(m.Date)
}

func (e *Expense) Validate() error {
	if e.Amount <= 0 {
		return fmt.Errorf("expense amount must be positive")
	}
	return validateDate(e.Date)
}

func (tb *TimeBlock) Validate() error {
	if strings.TrimSpace(tb.Title) == "" {
		return fmt.Errorf("time block title cannot be empty")
	}
	if err := validateDate(tb.Date); err != nil {
		return err
	}
	return validateTimeRange(tb.StartTime, tb.EndTime)
}

func (rb *RecurringTimeBlock) Validate() error {
	if strings.TrimSpace(rb.Title) == "" {
		return fmt.Errorf("recurring time block title cannot be empty")
	}
	if len(rb.DaysOfWeek) == 0 {
		return fmt.Errorf("recurring time block requires at least one weekday")
	}
	if err := ValidateWeekdays(rb.DaysOfWeek); err != nil {
		return err
	}
	return validateTimeRange(rb.StartTime, rb.EndTime)
}

func (r *Reflection) Validate() error {
	if r.Mood != 0 && (r.Mood < 1 || r.Mood > 5) {
		return fmt.Errorf("mood must be between 1 and 5, got %d", r.Mood)
	}
	return validateDate(r.Date)
}

func (se *StretchingExercise) Validate() error {
	if se.RoutineID == "" {
		return fmt.Errorf("stretching exercise requires a routine_id")
	}
	if se.DurationSeconds <= 0 {
		return fmt.Errorf("duration_seconds must be positive")
	}
	return nil
}

func validateDate(date string) error {
	if _, err := time.Parse(constants.DateFormat, date); err != nil {
		return fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
	}
	return nil
}

func validateTimeRange(start, end string) error {
	s, err := time.Parse(constants.TimeFormat, start)
	if err != nil {
		return fmt.Errorf("invalid start_time (expected HH:MM): %w", err)
	}
	e, err := time.Parse(constants.TimeFormat, end)
	if err != nil {
		return fmt.Errorf("invalid end_time (expected HH:MM): %w", err)
	}
	if !e.After(s) {
		return fmt.Errorf("end_time %s must be after start_time %s", end, start)
	}
	return nil
}
