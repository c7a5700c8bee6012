package system

import (
	"fmt"
	"sort"
	"strings"

	"github.com/julianstephens/daylit-sync/internal/cli"
	"github.com/julianstephens/daylit-sync/internal/localstore"
)

type SyncCmd struct{}

// Run refreshes every entity's cache from the remote.
func (cmd *SyncCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range ctx.Registry.SyncAll(ctx.Ctx, owner) {
		if r.Err != nil {
			failed++
			fmt.Fprintf(ctx.Out, "%s %-24s %s\n", cli.FailStyle.Render("✗"), r.Entity, cli.MutedStyle.Render(r.Err.Error()))
			continue
		}
		fmt.Fprintf(ctx.Out, "%s %-24s %d rows\n", cli.OKStyle.Render("✓"), r.Entity, r.Rows)
	}
	if failed > 0 {
		return fmt.Errorf("%d entities could not be refreshed; cached rows are unchanged", failed)
	}
	return nil
}

type CacheCmd struct {
	Show  CacheShowCmd  `cmd:"" help:"Show cached entries." default:"1"`
	Clear CacheClearCmd `cmd:"" help:"Drop the owner's cached rows."`
}

type CacheShowCmd struct{}

func (cmd *CacheShowCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}

	keys, err := ctx.Cache.Keys(ctx.Ctx, localstore.OwnerPrefix(owner))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Fprintln(ctx.Out, cli.MutedStyle.Render("Cache is empty. Run: daylit-sync sync"))
		return nil
	}
	sort.Strings(keys)

	fmt.Fprintln(ctx.Out, cli.HeaderStyle.Render(fmt.Sprintf("%-24s %6s %8s", "ENTITY", "ROWS", "VERSION")))
	for _, key := range keys {
		entry, err := ctx.Cache.Get(ctx.Ctx, key)
		if err != nil {
			return err
		}
		_, entity, _ := localstore.SplitKey(key)
		fmt.Fprintf(ctx.Out, "%-24s %6d %8d\n", entity, len(entry.Rows), entry.Version)
	}
	fmt.Fprintln(ctx.Out, cli.MutedStyle.Render(strings.Repeat("─", 40)))
	fmt.Fprintln(ctx.Out, cli.MutedStyle.Render(ctx.Config.CacheLocation()))
	return nil
}

type CacheClearCmd struct{}

func (cmd *CacheClearCmd) Run(ctx *cli.Context) error {
	if err := ctx.Connect(); err != nil {
		return err
	}
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	n, err := ctx.Registry.ClearCache(ctx.Ctx, owner)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ Cleared %d cached entities\n", n)
	return nil
}
