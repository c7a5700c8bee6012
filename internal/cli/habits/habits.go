package habits

import (
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/daylit-sync/internal/cli"
	"github.com/julianstephens/daylit-sync/internal/habits"
	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/utils"
)

type HabitCmd struct {
	Week   HabitWeekCmd   `cmd:"" help:"Show a week's habits, carrying last week's forward if empty." default:"1"`
	Add    HabitAddCmd    `cmd:"" help:"Add a habit to a week."`
	Toggle HabitToggleCmd `cmd:"" help:"Toggle a habit's completion for a day."`
	Delete HabitDeleteCmd `cmd:"" help:"Delete one week's habit and its completions."`
}

type HabitWeekCmd struct {
	Week string `help:"Any day in the week (YYYY-MM-DD, today, last, next)." default:"today"`
}

func (cmd *HabitWeekCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	week, err := cli.ParseWeek(cmd.Week)
	if err != nil {
		return err
	}

	propagator := habits.NewPropagator(ctx.Registry.Habits, ctx.Remote, ctx.Config.RemoteTimeout)
	rows, propErr := propagator.EnsureWeek(ctx.Ctx, owner, week)
	if propErr != nil {
		fmt.Fprintln(ctx.Out, cli.WarnStyle.Render("Could not carry habits forward: "+propErr.Error()))
	}

	dates := utils.WeekDates(week)
	fmt.Fprintln(ctx.Out, cli.HeaderStyle.Render("Week of "+dates[0]))
	if len(rows) == 0 {
		fmt.Fprintln(ctx.Out, cli.MutedStyle.Render("No habits this week. Add one with: daylit-sync habits add <name>"))
		return nil
	}

	done := habits.NewTracker(ctx.Registry).CompletionsForWeek(ctx.Ctx, owner, week)
	fmt.Fprint(ctx.Out, renderGrid(rows, dates, done))
	return nil
}

// renderGrid draws one line per habit with a mark per day, Monday first.
func renderGrid(rows []models.Habit, dates []string, done map[string]map[string]bool) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %-20s", ""))
	for _, d := range dates {
		t, _ := utils.ParseDate(d)
		b.WriteString(fmt.Sprintf(" %s", t.Weekday().String()[:2]))
	}
	b.WriteString("\n")

	for _, h := range rows {
		b.WriteString(fmt.Sprintf("%s %-20s", cli.Swatch(h.Color), truncate(h.Name, 20)))
		for _, d := range dates {
			if done[h.ID][d] {
				b.WriteString("  " + cli.OKStyle.Render("✓"))
			} else {
				b.WriteString("  " + cli.MutedStyle.Render("·"))
			}
		}
		b.WriteString("  " + cli.MutedStyle.Render(h.ID) + "\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

type HabitAddCmd struct {
	Name     string `arg:"" help:"Habit name."`
	Color    string `help:"Hex color." default:"#22c55e"`
	Week     string `help:"Any day in the target week." default:"today"`
	Reminder string `help:"Reminder time (HH:MM)."`
	Days     string `help:"Reminder days (e.g. mon,wed,fri)."`
}

func (cmd *HabitAddCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	week, err := cli.ParseWeek(cmd.Week)
	if err != nil {
		return err
	}
	days, err := cli.ParseWeekdays(cmd.Days)
	if err != nil {
		return err
	}

	h, err := habits.NewTracker(ctx.Registry).CreateHabit(ctx.Ctx, owner, models.Habit{
		Name:          cmd.Name,
		Color:         cmd.Color,
		ReminderTime:  cmd.Reminder,
		ReminderDays:  days,
		WeekStartDate: utils.FormatDate(week),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ Added habit %q to week of %s (%s)\n", h.Name, h.WeekStartDate, h.ID)
	return nil
}

type HabitToggleCmd struct {
	ID   string `arg:"" help:"Habit ID."`
	Date string `help:"Day to toggle (YYYY-MM-DD, today, yesterday)." default:"today"`
}

func (cmd *HabitToggleCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	day, err := cli.ParseDay(cmd.Date)
	if err != nil {
		return err
	}

	h := ctx.Registry.Habits.GetByID(ctx.Ctx, owner, cmd.ID)
	if h == nil {
		return fmt.Errorf("habit %s not found", cmd.ID)
	}
	if !sameWeek(h.WeekStartDate, day) {
		return fmt.Errorf("habit %s belongs to the week of %s", cmd.ID, h.WeekStartDate)
	}

	completed, err := habits.NewTracker(ctx.Registry).Toggle(ctx.Ctx, owner, cmd.ID, day)
	if err != nil {
		return err
	}
	state := "not done"
	if completed {
		state = "done"
	}
	fmt.Fprintf(ctx.Out, "✓ %s marked %s for %s\n", h.Name, state, utils.FormatDate(day))
	return nil
}

func sameWeek(weekStart string, day time.Time) bool {
	return utils.WeekKey(day) == weekStart
}

type HabitDeleteCmd struct {
	ID string `arg:"" help:"Habit ID."`
}

func (cmd *HabitDeleteCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	if err := habits.NewTracker(ctx.Registry).DeleteHabit(ctx.Ctx, owner, cmd.ID); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ Deleted habit %s\n", cmd.ID)
	return nil
}
