package system

import (
	"fmt"

	"github.com/julianstephens/daylit-sync/internal/cli"
)

type InitCmd struct{}

// Run creates the config directory, migrates the local cache, and, for the
// postgres backend, applies the remote schema.
func (c *InitCmd) Run(ctx *cli.Context) error {
	fmt.Fprintf(ctx.Out, "Config file: %s\n", ctx.Config.Path())

	if err := ctx.Connect(); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Initialized %s cache at: %s\n", ctx.Config.CacheDriver, ctx.Config.CacheLocation())
	fmt.Fprintf(ctx.Out, "Remote backend: %s\n", ctx.Config.Backend)

	if ctx.Config.Owner == "" {
		fmt.Fprintln(ctx.Out, cli.WarnStyle.Render("No owner configured yet. Run: daylit-sync config set owner <user-id>"))
	}
	return nil
}
