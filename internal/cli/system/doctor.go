package system

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/daylit-sync/internal/cli"
	"github.com/julianstephens/daylit-sync/internal/keyring"
	"github.com/julianstephens/daylit-sync/internal/localstore"
	"github.com/julianstephens/daylit-sync/internal/notifier"
)

type DoctorCmd struct{}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	fmt.Fprintln(ctx.Out, "Running diagnostics...")
	fmt.Fprintln(ctx.Out)
	hasError := false

	configErr := ctx.Config.Validate()
	if configErr != nil {
		cli.Check(ctx.Out, cli.StatusFail, "Configuration", configErr)
		hasError = true
	} else {
		cli.Check(ctx.Out, cli.StatusOK, "Configuration", nil)
	}

	if _, err := ctx.Owner(); err != nil {
		cli.Check(ctx.Out, cli.StatusWarn, "Owner", err)
	} else {
		cli.Check(ctx.Out, cli.StatusOK, "Owner", nil)
	}

	if keyring.IsAvailable() {
		cli.Check(ctx.Out, cli.StatusOK, "OS keyring", nil)
	} else {
		cli.Check(ctx.Out, cli.StatusWarn, "OS keyring", errors.New("secrets must come from DAYLIT_SYNC_* environment variables"))
	}

	connected := false
	if configErr != nil {
		cli.Check(ctx.Out, cli.StatusSkip, "Local cache", nil)
		cli.Check(ctx.Out, cli.StatusSkip, "Remote reachable", nil)
	} else if err := ctx.Connect(); err != nil {
		cli.Check(ctx.Out, cli.StatusFail, "Connect", err)
		hasError = true
	} else {
		connected = true
	}

	if connected {
		if err := checkCache(ctx); err != nil {
			cli.Check(ctx.Out, cli.StatusFail, "Local cache", err)
			hasError = true
		} else {
			cli.Check(ctx.Out, cli.StatusOK, "Local cache", nil)
		}

		pingCtx, cancel := context.WithTimeout(ctx.Ctx, ctx.Config.RemoteTimeout)
		err := ctx.Remote.Ping(pingCtx)
		cancel()
		if err != nil {
			// Reads still work from the cache.
			cli.Check(ctx.Out, cli.StatusWarn, "Remote reachable", err)
		} else {
			cli.Check(ctx.Out, cli.StatusOK, "Remote reachable", nil)
		}
	}

	if err := checkClock(); err != nil {
		cli.Check(ctx.Out, cli.StatusFail, "Clock/timezone", err)
		hasError = true
	} else {
		cli.Check(ctx.Out, cli.StatusOK, "Clock/timezone", nil)
	}

	if err := notifier.Check(); err != nil {
		cli.Check(ctx.Out, cli.StatusWarn, "Tray notifications", err)
	} else {
		cli.Check(ctx.Out, cli.StatusOK, "Tray notifications", nil)
	}

	fmt.Fprintln(ctx.Out)
	if hasError {
		return errors.New("diagnostics found errors")
	}
	fmt.Fprintln(ctx.Out, cli.OKStyle.Render("All checks passed."))
	return nil
}

// checkCache round-trips a probe key through the local store.
func checkCache(ctx *cli.Context) error {
	key := localstore.Key("doctor", "probe")
	if _, err := ctx.Cache.Set(ctx.Ctx, key, nil); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if _, err := ctx.Cache.Get(ctx.Ctx, key); err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	return ctx.Cache.Delete(ctx.Ctx, key)
}

func checkClock() error {
	now := time.Now()
	if now.Year() < 2020 {
		return fmt.Errorf("system clock looks wrong: %s", now.Format(time.RFC3339))
	}
	if now.Location() == nil {
		return errors.New("no local timezone")
	}
	return nil
}
