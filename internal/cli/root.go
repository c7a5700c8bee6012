// Package cli holds the state shared by every daylit-sync command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/daylit-sync/internal/config"
	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/localstore"
	"github.com/julianstephens/daylit-sync/internal/localstore/jsonfile"
	"github.com/julianstephens/daylit-sync/internal/localstore/sqlite"
	"github.com/julianstephens/daylit-sync/internal/logger"
	"github.com/julianstephens/daylit-sync/internal/remote"
	"github.com/julianstephens/daylit-sync/internal/remote/memory"
	"github.com/julianstephens/daylit-sync/internal/remote/postgres"
	"github.com/julianstephens/daylit-sync/internal/remote/postgrest"
	"github.com/julianstephens/daylit-sync/internal/repository"
	"github.com/julianstephens/daylit-sync/internal/utils"
)

// ErrNoOwner is returned by commands that need a signed-in owner.
var ErrNoOwner = errors.New("no owner configured (set owner in config.yaml or DAYLIT_SYNC_OWNER)")

type Context struct {
	Ctx     context.Context
	Config  *config.Config
	Offline bool
	Out     io.Writer

	Remote   remote.Store
	Cache    localstore.Store
	Registry *repository.Registry

	closers []io.Closer
}

func NewContext(ctx context.Context, cfg *config.Config, offline bool) *Context {
	return &Context{
		Ctx:     ctx,
		Config:  cfg,
		Offline: offline,
		Out:     os.Stdout,
	}
}

// Connect opens the local cache and the remote backend and builds the
// repository registry. Calling it again is a no-op.
func (c *Context) Connect() error {
	if c.Registry != nil {
		return nil
	}
	if err := c.Config.Validate(); err != nil {
		return err
	}

	cache, err := OpenCache(c.Ctx, c.Config)
	if err != nil {
		return err
	}
	c.Cache = cache
	c.closers = append(c.closers, cache)

	rs, err := c.openRemote()
	if err != nil {
		return err
	}
	c.Remote = rs

	c.Registry = repository.NewRegistry(repository.Deps{
		Remote:  rs,
		Cache:   cache,
		Timeout: c.Config.RemoteTimeout,
	})
	logger.Debug("Connected", "backend", c.Config.Backend, "cache", c.Config.CacheLocation(), "offline", c.Offline)
	return nil
}

// OpenCache opens and migrates the configured local cache.
func OpenCache(ctx context.Context, cfg *config.Config) (localstore.Store, error) {
	switch cfg.CacheDriver {
	case constants.CacheDriverJSONFile:
		store := jsonfile.NewStore(cfg.CacheLocation())
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		return store, nil
	default:
		store := sqlite.NewStore(cfg.CacheLocation())
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		return store, nil
	}
}

func (c *Context) openRemote() (remote.Store, error) {
	if c.Offline {
		// Every remote call fails, so reads come from the cache and writes
		// are refused.
		rs := memory.NewStore()
		rs.SetOffline(true)
		return rs, nil
	}

	switch c.Config.Backend {
	case constants.BackendMemory:
		return memory.NewStore(), nil

	case constants.BackendPostgres:
		dsn, err := c.Config.PostgresDSN()
		if err != nil {
			return nil, err
		}
		store := postgres.New(dsn)
		if err := store.Init(c.Ctx); err != nil {
			return nil, err
		}
		c.closers = append(c.closers, store)
		return store, nil

	default:
		apiKey, err := c.Config.Secret(constants.SecretAPIKey)
		if err != nil {
			return nil, err
		}
		token, err := c.Config.Secret(constants.SecretAccessToken)
		if err != nil && !errors.Is(err, config.ErrSecretNotFound) {
			return nil, err
		}
		return postgrest.New(postgrest.Config{
			URL:               c.Config.RemoteURL,
			APIKey:            apiKey,
			AccessToken:       token,
			RequestsPerSecond: c.Config.RequestsPerSecond,
		})
	}
}

// Owner returns the configured owner or ErrNoOwner.
func (c *Context) Owner() (string, error) {
	if c.Config.Owner == "" {
		return "", ErrNoOwner
	}
	return c.Config.Owner, nil
}

func (c *Context) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// ParseDay parses YYYY-MM-DD, "today", "yesterday", or "tomorrow". An
// empty string means today.
func ParseDay(s string) (time.Time, error) {
	today := time.Now()
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}
	return utils.ParseDate(s)
}

// ParseWeek is ParseDay plus "last" and "next" for the neighbouring weeks.
func ParseWeek(s string) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "last":
		return time.Now().AddDate(0, 0, -constants.DaysPerWeek), nil
	case "next":
		return time.Now().AddDate(0, 0, constants.DaysPerWeek), nil
	}
	return ParseDay(s)
}

var dayNames = map[string]int{
	"sun": 0, "sunday": 0,
	"mon": 1, "monday": 1,
	"tue": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
}

// ParseWeekdays parses a comma-separated list of day names or 0=Sunday..6
// indices.
func ParseWeekdays(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var days []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if d, ok := dayNames[part]; ok {
			days = append(days, d)
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("invalid weekday: %s", part)
		}
		days = append(days, n)
	}
	return days, nil
}

// FormatWeekdays renders weekday indices as short names; nil means daily.
func FormatWeekdays(days []int) string {
	if len(days) == 0 || len(days) == constants.DaysPerWeek {
		return "daily"
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = time.Weekday(d).String()[:3]
	}
	return strings.Join(names, ",")
}
