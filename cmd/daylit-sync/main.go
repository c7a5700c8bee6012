package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/daylit-sync/internal/cli"
	"github.com/julianstephens/daylit-sync/internal/cli/habits"
	"github.com/julianstephens/daylit-sync/internal/cli/priorities"
	"github.com/julianstephens/daylit-sync/internal/cli/reminders"
	"github.com/julianstephens/daylit-sync/internal/cli/system"
	"github.com/julianstephens/daylit-sync/internal/config"
	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/errors"
	"github.com/julianstephens/daylit-sync/internal/logger"
)

var CLI struct {
	Version   kong.VersionFlag
	ConfigDir string `help:"Configuration directory." type:"string" default:"${config_dir}" env:"DAYLIT_SYNC_CONFIG_DIR"`
	Debug     bool   `help:"Enable debug logging."`
	Offline   bool   `help:"Serve reads from the local cache and refuse writes."`

	Init       system.InitCmd         `cmd:"" help:"Create the configuration file and local cache."`
	Doctor     system.DoctorCmd       `cmd:"" help:"Run health checks and diagnostics."`
	Sync       system.SyncCmd         `cmd:"" help:"Refresh every cached table from the backend."`
	Cache      system.CacheCmd        `cmd:"" help:"Inspect or clear the local cache."`
	Habits     habits.HabitCmd        `cmd:"" help:"Manage weekly habits."`
	Priorities priorities.PriorityCmd `cmd:"" help:"Manage priorities and their weekly ranking."`
	Reminders  reminders.ReminderCmd  `cmd:"" help:"Manage and run notification reminders."`
	Config     system.ConfigCmd       `cmd:"" help:"Show or change configuration."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("daylit-sync"),
		kong.Description("Offline-first sync client for daylit planning data"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":    constants.Version,
			"config_dir": constants.DefaultConfigDir,
		},
	)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(CLI.ConfigDir)
	if err != nil {
		errors.Fatal(err)
	}
	if err := logger.Init(logger.Config{Debug: CLI.Debug || cfg.Debug, ConfigDir: cfg.Dir}); err != nil {
		errors.Fatal(err)
	}

	appCtx := cli.NewContext(runCtx, cfg, CLI.Offline)
	err = kctx.Run(appCtx)
	if cerr := appCtx.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		stop()
		errors.Fatal(err)
	}
}
