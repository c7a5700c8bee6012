package constants

// Remote table names. Cache keys reuse the table name as the entity segment.
const (
	TableMeals                = "meals"
	TableExpenses             = "expenses"
	TableHabits               = "habits"
	TableHabitCompletions     = "habit_completions"
	TablePriorities           = "priorities"
	TablePriorityWeeks        = "priority_weeks"
	TableTimeBlocks           = "time_blocks"
	TableRecurringTimeBlocks  = "recurring_time_blocks"
	TableReflections          = "reflections"
	TableNotes                = "notes"
	TableNotificationSettings = "notification_settings"
	TableStretchingRoutines   = "stretching_routines"
	TableStretchingExercises  = "stretching_exercises"

	// RPCCopyHabitsToWeek is the server-side bulk copy used by habit propagation
	RPCCopyHabitsToWeek = "copy_habits_to_week"
)

// AllTables lists every synchronized table in dependency order (parents first).
var AllTables = []string{
	TableMeals,
	TableExpenses,
	TableHabits,
	TableHabitCompletions,
	TablePriorities,
	TablePriorityWeeks,
	TableTimeBlocks,
	TableRecurringTimeBlocks,
	TableReflections,
	TableNotes,
	TableNotificationSettings,
	TableStretchingRoutines,
	TableStretchingExercises,
}
