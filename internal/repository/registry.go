package repository

import (
	"context"
	"fmt"

	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/localstore"
	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/remote"
)

// Tables lists the descriptor of every synchronized entity.
var Tables = map[string]Table{
	constants.TableMeals:                {Name: constants.TableMeals, Order: []remote.Order{remote.Desc("date"), remote.Asc("created_at")}},
	constants.TableExpenses:             {Name: constants.TableExpenses, Order: []remote.Order{remote.Desc("date"), remote.Asc("created_at")}},
	constants.TableHabits:               {Name: constants.TableHabits, Order: []remote.Order{remote.Asc("week_start_date"), remote.Asc("created_at")}},
	constants.TableHabitCompletions:     {Name: constants.TableHabitCompletions, Order: []remote.Order{remote.Asc("date")}},
	constants.TablePriorities:           {Name: constants.TablePriorities, Order: []remote.Order{remote.Asc("created_at")}},
	constants.TablePriorityWeeks:        {Name: constants.TablePriorityWeeks, Order: []remote.Order{remote.Asc("week_start_date"), remote.Asc("rank_order")}},
	constants.TableTimeBlocks:           {Name: constants.TableTimeBlocks, Order: []remote.Order{remote.Asc("date"), remote.Asc("start_time")}},
	constants.TableRecurringTimeBlocks:  {Name: constants.TableRecurringTimeBlocks, Order: []remote.Order{remote.Asc("start_time")}},
	constants.TableReflections:          {Name: constants.TableReflections, Order: []remote.Order{remote.Desc("date")}},
	constants.TableNotes:                {Name: constants.TableNotes, Order: []remote.Order{remote.Desc("updated_at")}},
	constants.TableNotificationSettings: {Name: constants.TableNotificationSettings, Order: []remote.Order{remote.Asc("created_at")}},
	constants.TableStretchingRoutines:   {Name: constants.TableStretchingRoutines, Order: []remote.Order{remote.Asc("created_at")}},
	constants.TableStretchingExercises:  {Name: constants.TableStretchingExercises, Order: []remote.Order{remote.Asc("position")}},
}

// Refresher is the type-erased view of a repository used for whole-cache
// operations.
type Refresher interface {
	Table() Table
	Count(ctx context.Context, owner string) (int, error)
}

// Count refreshes the owner's rows from the remote and returns how many
// there are.
func (r *Repository[T]) Count(ctx context.Context, owner string) (int, error) {
	rows, err := r.Refresh(ctx, owner)
	return len(rows), err
}

// Registry holds one repository per entity. It is built once at start-up
// and passed to the components that need it.
type Registry struct {
	Meals                *Repository[models.Meal]
	Expenses             *Repository[models.Expense]
	Habits               *Repository[models.Habit]
	HabitCompletions     *Repository[models.HabitCompletion]
	Priorities           *Repository[models.Priority]
	PriorityWeeks        *Repository[models.PriorityWeek]
	TimeBlocks           *Repository[models.TimeBlock]
	RecurringTimeBlocks  *Repository[models.RecurringTimeBlock]
	Reflections          *Repository[models.Reflection]
	Notes                *Repository[models.Note]
	NotificationSettings *Repository[models.NotificationSetting]
	StretchingRoutines   *Repository[models.StretchingRoutine]
	StretchingExercises  *Repository[models.StretchingExercise]

	deps Deps
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		Meals:                New[models.Meal](Tables[constants.TableMeals], deps),
		Expenses:             New[models.Expense](Tables[constants.TableExpenses], deps),
		Habits:               New[models.Habit](Tables[constants.TableHabits], deps),
		HabitCompletions:     New[models.HabitCompletion](Tables[constants.TableHabitCompletions], deps),
		Priorities:           New[models.Priority](Tables[constants.TablePriorities], deps),
		PriorityWeeks:        New[models.PriorityWeek](Tables[constants.TablePriorityWeeks], deps),
		TimeBlocks:           New[models.TimeBlock](Tables[constants.TableTimeBlocks], deps),
		RecurringTimeBlocks:  New[models.RecurringTimeBlock](Tables[constants.TableRecurringTimeBlocks], deps),
		Reflections:          New[models.Reflection](Tables[constants.TableReflections], deps),
		Notes:                New[models.Note](Tables[constants.TableNotes], deps),
		NotificationSettings: New[models.NotificationSetting](Tables[constants.TableNotificationSettings], deps),
		StretchingRoutines:   New[models.StretchingRoutine](Tables[constants.TableStretchingRoutines], deps),
		StretchingExercises:  New[models.StretchingExercise](Tables[constants.TableStretchingExercises], deps),
		deps:                 deps,
	}
}

// All returns every repository in AllTables order.
func (r *Registry) All() []Refresher {
	return []Refresher{
		r.Meals,
		r.Expenses,
		r.Habits,
		r.HabitCompletions,
		r.Priorities,
		r.PriorityWeeks,
		r.TimeBlocks,
		r.RecurringTimeBlocks,
		r.Reflections,
		r.Notes,
		r.NotificationSettings,
		r.StretchingRoutines,
		r.StretchingExercises,
	}
}

// SyncResult reports the outcome of refreshing one entity.
type SyncResult struct {
	Entity string
	Rows   int
	Err    error
}

// SyncAll refreshes every entity cache for owner. A failing entity does not
// stop the others.
func (r *Registry) SyncAll(ctx context.Context, owner string) []SyncResult {
	repos := r.All()
	results := make([]SyncResult, 0, len(repos))
	for _, repo := range repos {
		n, err := repo.Count(ctx, owner)
		results = append(results, SyncResult{Entity: repo.Table().Name, Rows: n, Err: err})
	}
	return results
}

// ClearCache drops every cached entry of owner.
func (r *Registry) ClearCache(ctx context.Context, owner string) (int, error) {
	keys, err := r.deps.Cache.Keys(ctx, localstore.OwnerPrefix(owner))
	if err != nil {
		return 0, fmt.Errorf("failed to list cache keys: %w", err)
	}
	for _, key := range keys {
		if err := r.deps.Cache.Delete(ctx, key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}
