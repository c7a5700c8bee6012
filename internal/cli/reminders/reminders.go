package reminders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/julianstephens/daylit-sync/internal/cli"
	"github.com/julianstephens/daylit-sync/internal/logger"
	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/notifier"
	"github.com/julianstephens/daylit-sync/internal/reminders"
	"github.com/julianstephens/daylit-sync/internal/reminders/cron"
)

type ReminderCmd struct {
	List     ReminderListCmd     `cmd:"" help:"List notification settings." default:"1"`
	Add      ReminderAddCmd      `cmd:"" help:"Create a notification setting."`
	Schedule ReminderScheduleCmd `cmd:"" help:"Show the triggers the current settings expand to."`
	Run      ReminderRunCmd      `cmd:"" help:"Run the reminder scheduler in the foreground."`
}

type ReminderListCmd struct{}

func (cmd *ReminderListCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}

	settings := ctx.Registry.NotificationSettings.GetAll(ctx.Ctx, owner)
	if len(settings) == 0 {
		fmt.Fprintln(ctx.Out, cli.MutedStyle.Render("No reminders configured."))
		return nil
	}
	for _, s := range settings {
		state := cli.OKStyle.Render("on ")
		if !s.Enabled {
			state = cli.MutedStyle.Render("off")
		}
		fmt.Fprintf(ctx.Out, "%s %-11s %s %-16s %s\n", state, s.Type, s.Time,
			cli.FormatWeekdays(models.DistinctWeekdays(s.DaysOfWeek)), cli.MutedStyle.Render(s.ID))
	}
	return nil
}

type ReminderAddCmd struct {
	Type string `arg:"" enum:"meal,habit,priority,reflection,time_block,stretching,expense" help:"Reminder type."`
	Time string `arg:"" help:"Time of day (HH:MM)."`
	Days string `help:"Days (e.g. mon,wed,fri). Daily when omitted."`
	Text string `help:"Custom notification text."`
}

func (cmd *ReminderAddCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	days, err := cli.ParseWeekdays(cmd.Days)
	if err != nil {
		return err
	}

	s, err := ctx.Registry.NotificationSettings.Create(ctx.Ctx, owner, models.NotificationSetting{
		Type:       models.NotificationType(cmd.Type),
		Enabled:    true,
		Time:       cmd.Time,
		DaysOfWeek: days,
		CustomText: cmd.Text,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ Added %s reminder at %s (%s)\n", s.Type, s.Time, s.ID)
	return nil
}

type ReminderScheduleCmd struct{}

// Run expands every setting into a scheduler that is never started and
// prints the resulting triggers.
func (cmd *ReminderScheduleCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}

	loc, err := ctx.Config.Location()
	if err != nil {
		return err
	}
	backend := cron.New(cron.LogDeliverer{}, cron.WithLocation(loc))
	report, err := reminders.NewExpander(backend, ctx.Registry.NotificationSettings).Sync(ctx.Ctx, owner)
	if err != nil {
		fmt.Fprintln(ctx.Out, cli.WarnStyle.Render(err.Error()))
	}
	printTriggers(ctx, backend)
	fmt.Fprintf(ctx.Out, "%d settings, %d triggers\n", report.Settings, report.Scheduled)
	return nil
}

func printTriggers(ctx *cli.Context, backend *cron.Backend) {
	ids, _ := backend.ListScheduled(ctx.Ctx)
	for _, id := range ids {
		spec, _ := backend.Spec(id)
		fmt.Fprintf(ctx.Out, "  %-48s %s\n", id, cli.MutedStyle.Render(spec))
	}
}

type ReminderRunCmd struct {
	Resync time.Duration `help:"How often to reload settings." default:"15m"`
	DryRun bool          `help:"Log reminders instead of sending them to the tray."`
}

func (cmd *ReminderRunCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	if cmd.Resync <= 0 {
		return errors.New("--resync must be positive")
	}

	var deliverer cron.Deliverer = notifier.New()
	if cmd.DryRun {
		deliverer = cron.LogDeliverer{}
	}
	loc, err := ctx.Config.Location()
	if err != nil {
		return err
	}
	backend := cron.New(deliverer, cron.WithLocation(loc))
	expander := reminders.NewExpander(backend, ctx.Registry.NotificationSettings)

	if _, err := expander.Sync(ctx.Ctx, owner); err != nil {
		logger.Warn("Initial reminder sync incomplete", "error", err)
	}
	backend.Start()
	defer func() { <-backend.Stop().Done() }()

	if addr := ctx.Config.MetricsAddr; addr != "" {
		srv := serveMetrics(addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		fmt.Fprintf(ctx.Out, "Serving metrics on http://%s/metrics\n", addr)
	}

	printTriggers(ctx, backend)
	fmt.Fprintln(ctx.Out, cli.MutedStyle.Render("Running. Press Ctrl+C to stop."))

	ticker := time.NewTicker(cmd.Resync)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Ctx.Done():
			fmt.Fprintln(ctx.Out, "Stopping.")
			return nil
		case <-ticker.C:
			if _, err := expander.Sync(ctx.Ctx, owner); err != nil {
				logger.Warn("Reminder resync incomplete", "error", err)
			}
		}
	}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}
