package habits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/remote"
	"github.com/julianstephens/daylit-sync/internal/repository"
	"github.com/julianstephens/daylit-sync/internal/utils"
)

// Tracker manages habit rows and their completions. A completion row's
// existence is the "done" flag.
type Tracker struct {
	habits      *repository.Repository[models.Habit]
	completions *repository.Repository[models.HabitCompletion]
}

func NewTracker(reg *repository.Registry) *Tracker {
	return &Tracker{
		habits:      reg.Habits,
		completions: reg.HabitCompletions,
	}
}

// CreateHabit adds a habit to the week containing its week_start_date (or
// the current week when unset), normalized to that week's Monday.
func (t *Tracker) CreateHabit(ctx context.Context, owner string, habit models.Habit) (*models.Habit, error) {
	habit.Name = strings.TrimSpace(habit.Name)
	week := time.Now()
	if habit.WeekStartDate != "" {
		d, err := utils.ParseDate(habit.WeekStartDate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", repository.ErrWriteFailed, err)
		}
		week = d
	}
	habit.WeekStartDate = utils.WeekKey(week)
	return t.habits.Create(ctx, owner, habit)
}

// DeleteHabit removes one week's habit row and its completions. Other
// weeks' rows of the same habit are not touched.
func (t *Tracker) DeleteHabit(ctx context.Context, owner, habitID string) error {
	if err := t.completions.DeleteWhere(ctx, owner, remote.Filter{remote.Eq("habit_id", habitID)}); err != nil {
		return err
	}
	return t.habits.Delete(ctx, owner, habitID)
}

// Toggle flips the completion of habitID on date and returns the new state.
func (t *Tracker) Toggle(ctx context.Context, owner, habitID string, date time.Time) (bool, error) {
	if owner == "" {
		return false, repository.ErrUnauthenticated
	}
	day := utils.FormatDate(date)
	existing := t.completions.GetByFilter(ctx, owner, remote.Filter{
		remote.Eq("habit_id", habitID),
		remote.Eq("date", day),
	})

	if len(existing) > 0 {
		var errs []error
		for _, c := range existing {
			if err := t.completions.Delete(ctx, owner, c.ID); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return true, err
		}
		return false, nil
	}

	if _, err := t.completions.Create(ctx, owner, models.HabitCompletion{HabitID: habitID, Date: day}); err != nil {
		return false, err
	}
	return true, nil
}

// CompletionsForWeek returns habit_id -> date -> done for the seven days of
// the week containing week.
func (t *Tracker) CompletionsForWeek(ctx context.Context, owner string, week time.Time) map[string]map[string]bool {
	dates := utils.WeekDates(week)
	rows := t.completions.GetByFilter(ctx, owner, remote.Filter{
		remote.Gte("date", dates[0]),
		remote.Lte("date", dates[len(dates)-1]),
	})

	out := make(map[string]map[string]bool)
	for _, c := range rows {
		if out[c.HabitID] == nil {
			out[c.HabitID] = make(map[string]bool)
		}
		out[c.HabitID][c.Date] = true
	}
	return out
}
