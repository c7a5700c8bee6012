package system

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/julianstephens/daylit-sync/internal/cli"
	"github.com/julianstephens/daylit-sync/internal/config"
	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/keyring"
	"github.com/julianstephens/daylit-sync/internal/remote/postgres"
)

type ConfigCmd struct {
	Show         ConfigShowCmd         `cmd:"" help:"Show the effective configuration." default:"1"`
	Set          ConfigSetCmd          `cmd:"" help:"Write a setting to config.yaml."`
	SetSecret    ConfigSetSecretCmd    `cmd:"" help:"Store a secret in the OS keyring."`
	DeleteSecret ConfigDeleteSecretCmd `cmd:"" help:"Remove a secret from the OS keyring."`
}

type ConfigShowCmd struct{}

func (cmd *ConfigShowCmd) Run(ctx *cli.Context) error {
	c := ctx.Config
	fmt.Fprintln(ctx.Out, cli.HeaderStyle.Render(c.Path()))
	rows := [][2]string{
		{constants.SettingBackend, c.Backend},
		{constants.SettingRemoteURL, c.RemoteURL},
		{constants.SettingOwner, c.Owner},
		{constants.SettingRemoteTimeout, c.RemoteTimeout.String()},
		{constants.SettingCacheDriver, c.CacheDriver},
		{constants.SettingCachePath, c.CacheLocation()},
		{constants.SettingMetricsAddr, c.MetricsAddr},
		{constants.SettingRateLimit, fmt.Sprint(c.RequestsPerSecond)},
		{constants.SettingTimezone, c.Timezone},
		{constants.SettingDebug, fmt.Sprint(c.Debug)},
	}
	for _, r := range rows {
		fmt.Fprintf(ctx.Out, "  %-20s %s\n", r[0], r[1])
	}
	for _, name := range keyring.Secrets {
		state := cli.OKStyle.Render("set")
		if _, err := c.Secret(name); err != nil {
			state = cli.MutedStyle.Render("not set")
		}
		fmt.Fprintf(ctx.Out, "  %-20s %s\n", name, state)
	}
	return nil
}

type ConfigSetCmd struct {
	Key   string `arg:"" help:"Setting name."`
	Value string `arg:"" help:"New value."`
}

func (cmd *ConfigSetCmd) Run(ctx *cli.Context) error {
	if err := ctx.Config.Set(cmd.Key, cmd.Value); err != nil {
		if errors.Is(err, config.ErrUnknownKey) {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.Keys, ", "))
		}
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ %s = %s\n", cmd.Key, cmd.Value)
	return nil
}

type ConfigSetSecretCmd struct {
	Name  string `arg:"" enum:"api_key,access_token,postgres_dsn" help:"Secret name (api_key, access_token, postgres_dsn)."`
	Value string `arg:"" optional:"" help:"Secret value. Read from stdin when omitted."`
}

func (cmd *ConfigSetSecretCmd) Run(ctx *cli.Context) error {
	value := cmd.Value
	if value == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read secret from stdin: %w", err)
		}
		value = strings.TrimSpace(line)
	}

	if cmd.Name == constants.SecretPostgresDSN {
		if _, err := postgres.ValidateConnString(value); err != nil {
			if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return fmt.Errorf("invalid connection string: %w", err)
			}
			fmt.Fprintln(ctx.Out, cli.WarnStyle.Render("Connection string contains a password; it is stored as-is in the encrypted OS keyring."))
		}
	}

	if err := keyring.Set(cmd.Name, value); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ %s stored in OS keyring\n", cmd.Name)
	return nil
}

type ConfigDeleteSecretCmd struct {
	Name string `arg:"" enum:"api_key,access_token,postgres_dsn" help:"Secret name."`
}

func (cmd *ConfigDeleteSecretCmd) Run(ctx *cli.Context) error {
	if err := keyring.Delete(cmd.Name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("no %s found in keyring", cmd.Name)
		}
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ %s removed from OS keyring\n", cmd.Name)
	return nil
}
