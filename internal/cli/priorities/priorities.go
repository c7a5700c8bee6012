package priorities

import (
	"fmt"
	"sort"

	"github.com/julianstephens/daylit-sync/internal/cli"
	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/priorities"
	"github.com/julianstephens/daylit-sync/internal/utils"
)

type PriorityCmd struct {
	Week     PriorityWeekCmd     `cmd:"" help:"Show a week's ranked priorities." default:"1"`
	Add      PriorityAddCmd      `cmd:"" help:"Create a priority."`
	Assign   PriorityAssignCmd   `cmd:"" help:"Place a priority at a rank in a week."`
	Reorder  PriorityReorderCmd  `cmd:"" help:"Rank a week's priorities in the given order."`
	Remove   PriorityRemoveCmd   `cmd:"" help:"Remove a priority from a week."`
	Calendar PriorityCalendarCmd `cmd:"" help:"Show ranked priorities across several weeks."`
	Delete   PriorityDeleteCmd   `cmd:"" help:"Delete a priority and all of its week rankings."`
}

type PriorityWeekCmd struct {
	Week string `help:"Any day in the week (YYYY-MM-DD, today, last, next)." default:"today"`
}

func (cmd *PriorityWeekCmd) Run(ctx *cli.Context) error {
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

	rows := priorities.NewLedger(ctx.Registry).GetByWeek(ctx.Ctx, owner, week)
	fmt.Fprintln(ctx.Out, cli.HeaderStyle.Render("Priorities for week of "+utils.WeekKey(week)))
	printRanked(ctx, rows)
	return nil
}

func printRanked(ctx *cli.Context, rows []models.PriorityWithRank) {
	if len(rows) == 0 {
		fmt.Fprintln(ctx.Out, cli.MutedStyle.Render("  (none)"))
		return
	}
	for _, p := range rows {
		fmt.Fprintf(ctx.Out, "  %d. %s %s %s\n", p.RankOrder, cli.Swatch(p.Color), p.Name, cli.MutedStyle.Render(p.ID))
	}
}

type PriorityAddCmd struct {
	Name  string `arg:"" help:"Priority name."`
	Color string `help:"Hex color." default:"#f97316"`
	Week  string `help:"Also rank it last in this week."`
}

func (cmd *PriorityAddCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}

	p, err := ctx.Registry.Priorities.Create(ctx.Ctx, owner, models.Priority{Name: cmd.Name, Color: cmd.Color})
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ Created priority %q (%s)\n", p.Name, p.ID)

	if cmd.Week == "" {
		return nil
	}
	week, err := cli.ParseWeek(cmd.Week)
	if err != nil {
		return err
	}
	ledger := priorities.NewLedger(ctx.Registry)
	last := len(ledger.GetByWeek(ctx.Ctx, owner, week)) + 1
	pw, err := ledger.AssignToWeek(ctx.Ctx, owner, p.ID, week, last)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ Ranked #%d in week of %s\n", pw.RankOrder, pw.WeekStartDate)
	return nil
}

type PriorityAssignCmd struct {
	ID   string `arg:"" help:"Priority ID."`
	Rank int    `help:"Rank (1 = most important). Clamped to the week's size." default:"1"`
	Week string `help:"Any day in the week." default:"today"`
}

func (cmd *PriorityAssignCmd) Run(ctx *cli.Context) error {
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
	if ctx.Registry.Priorities.GetByID(ctx.Ctx, owner, cmd.ID) == nil {
		return fmt.Errorf("priority %s not found", cmd.ID)
	}

	pw, err := priorities.NewLedger(ctx.Registry).AssignToWeek(ctx.Ctx, owner, cmd.ID, week, cmd.Rank)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ Ranked #%d in week of %s\n", pw.RankOrder, pw.WeekStartDate)
	return nil
}

type PriorityReorderCmd struct {
	IDs  []string `arg:"" help:"Priority IDs, most important first."`
	Week string   `help:"Any day in the week." default:"today"`
}

func (cmd *PriorityReorderCmd) Run(ctx *cli.Context) error {
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

	ledger := priorities.NewLedger(ctx.Registry)
	if err := ledger.Reorder(ctx.Ctx, owner, week, cmd.IDs); err != nil {
		return err
	}
	printRanked(ctx, ledger.GetByWeek(ctx.Ctx, owner, week))
	return nil
}

type PriorityRemoveCmd struct {
	ID   string `arg:"" help:"Priority ID."`
	Week string `help:"Any day in the week." default:"today"`
}

func (cmd *PriorityRemoveCmd) Run(ctx *cli.Context) error {
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

	removed, err := priorities.NewLedger(ctx.Registry).RemoveFromWeek(ctx.Ctx, owner, cmd.ID, week)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintln(ctx.Out, cli.MutedStyle.Render("Priority was not ranked that week."))
		return nil
	}
	fmt.Fprintf(ctx.Out, "✓ Removed from week of %s\n", utils.WeekKey(week))
	return nil
}

type PriorityCalendarCmd struct {
	From  string `help:"First week (any day in it)." default:"today"`
	Weeks int    `help:"Number of weeks to show." default:"4"`
}

func (cmd *PriorityCalendarCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	start, err := cli.ParseWeek(cmd.From)
	if err != nil {
		return err
	}
	if cmd.Weeks < 1 {
		return fmt.Errorf("--weeks must be at least 1")
	}
	end := utils.WeekStart(start).AddDate(0, 0, 7*(cmd.Weeks-1))

	byWeek := priorities.NewLedger(ctx.Registry).GetWeeksWithPriorities(ctx.Ctx, owner, start, end)
	keys := make([]string, 0, cmd.Weeks)
	for w := utils.WeekStart(start); !w.After(end); w = w.AddDate(0, 0, 7) {
		keys = append(keys, utils.FormatDate(w))
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintln(ctx.Out, cli.HeaderStyle.Render("Week of "+k))
		printRanked(ctx, byWeek[k])
	}
	return nil
}

type PriorityDeleteCmd struct {
	ID string `arg:"" help:"Priority ID."`
}

func (cmd *PriorityDeleteCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	if err := priorities.NewLedger(ctx.Registry).DeletePriority(ctx.Ctx, owner, cmd.ID); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ Deleted priority %s\n", cmd.ID)
	return nil
}
