package system

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/julianstephens/daylit-sync/internal/cli"
	"github.com/julianstephens/daylit-sync/internal/config"
	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/keyring"
	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/remote/memory"
)

func setupContext(t *testing.T) (*cli.Context, *bytes.Buffer) {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg.Backend = constants.BackendMemory
	cfg.Owner = "user-1"

	var out bytes.Buffer
	ctx := cli.NewContext(context.Background(), cfg, false)
	ctx.Out = &out
	t.Cleanup(func() { ctx.Close() })
	return ctx, &out
}

func TestInitCmd(t *testing.T) {
	ctx, out := setupContext(t)
	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatalf("InitCmd.Run() failed: %v", err)
	}
	if !strings.Contains(out.String(), ctx.Config.CacheLocation()) {
		t.Errorf("expected cache location in output, got:\n%s", out.String())
	}
}

func TestInitCmdRejectsBadConfig(t *testing.T) {
	ctx, _ := setupContext(t)
	ctx.Config.Backend = "mongo"
	if err := (&InitCmd{}).Run(ctx); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

func TestSyncAndCacheCommands(t *testing.T) {
	ctx, out := setupContext(t)
	if err := ctx.Connect(); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Registry.Priorities.Create(ctx.Ctx, "user-1", models.Priority{Name: "Health"}); err != nil {
		t.Fatal(err)
	}

	if err := (&SyncCmd{}).Run(ctx); err != nil {
		t.Fatalf("SyncCmd.Run() failed: %v", err)
	}
	if !strings.Contains(out.String(), constants.TablePriorities) {
		t.Errorf("expected priorities in sync output, got:\n%s", out.String())
	}

	out.Reset()
	if err := (&CacheShowCmd{}).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), constants.TableStretchingExercises) {
		t.Errorf("expected every entity cached, got:\n%s", out.String())
	}

	out.Reset()
	if err := (&CacheClearCmd{}).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Cleared 13") {
		t.Errorf("unexpected clear output:\n%s", out.String())
	}
}

func TestSyncReportsFailures(t *testing.T) {
	ctx, out := setupContext(t)
	if err := ctx.Connect(); err != nil {
		t.Fatal(err)
	}
	ctx.Remote.(*memory.Store).SetOffline(true)

	if err := (&SyncCmd{}).Run(ctx); err == nil {
		t.Error("expected error when the remote is down")
	}
	if !strings.Contains(out.String(), "✗") {
		t.Errorf("expected failure markers, got:\n%s", out.String())
	}
}

func TestSyncRequiresOwner(t *testing.T) {
	ctx, _ := setupContext(t)
	ctx.Config.Owner = ""
	if err := (&SyncCmd{}).Run(ctx); !errors.Is(err, cli.ErrNoOwner) {
		t.Errorf("expected ErrNoOwner, got %v", err)
	}
}

func TestConfigSetCmd(t *testing.T) {
	ctx, _ := setupContext(t)
	if err := (&ConfigSetCmd{Key: constants.SettingOwner, Value: "user-9"}).Run(ctx); err != nil {
		t.Fatal(err)
	}
	reloaded, err := config.Load(ctx.Config.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Owner != "user-9" {
		t.Errorf("owner = %q, want user-9", reloaded.Owner)
	}

	err = (&ConfigSetCmd{Key: "nope", Value: "x"}).Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "valid keys") {
		t.Errorf("expected valid key hint, got %v", err)
	}
}

func TestSecretCommands(t *testing.T) {
	gokeyring.MockInit()
	ctx, _ := setupContext(t)

	if err := (&ConfigSetSecretCmd{Name: constants.SecretAPIKey, Value: "anon-key"}).Run(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := keyring.Get(constants.SecretAPIKey)
	if err != nil || got != "anon-key" {
		t.Fatalf("keyring.Get() = %q, %v", got, err)
	}

	if err := (&ConfigSetSecretCmd{Name: constants.SecretPostgresDSN, Value: "not a dsn ="}).Run(ctx); err == nil {
		t.Error("expected error for invalid DSN")
	}

	if err := (&ConfigDeleteSecretCmd{Name: constants.SecretAPIKey}).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if err := (&ConfigDeleteSecretCmd{Name: constants.SecretAPIKey}).Run(ctx); err == nil {
		t.Error("expected error deleting a missing secret")
	}
}

func TestDoctorCmd(t *testing.T) {
	gokeyring.MockInit()
	ctx, out := setupContext(t)
	if err := (&DoctorCmd{}).Run(ctx); err != nil {
		t.Fatalf("DoctorCmd.Run() failed: %v\n%s", err, out.String())
	}
	for _, want := range []string{"Configuration: OK", "Local cache: OK", "Remote reachable: OK"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in output:\n%s", want, out.String())
		}
	}
}

func TestDoctorCmdBadConfig(t *testing.T) {
	gokeyring.MockInit()
	ctx, out := setupContext(t)
	ctx.Config.CacheDriver = "redis"
	if err := (&DoctorCmd{}).Run(ctx); err == nil {
		t.Error("expected doctor to fail")
	}
	if !strings.Contains(out.String(), "Local cache: SKIPPED") {
		t.Errorf("expected cache check skipped:\n%s", out.String())
	}
}
