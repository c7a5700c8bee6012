// Package config loads daylit-sync settings from <config dir>/config.yaml
// and DAYLIT_SYNC_* environment variables. Secrets are never read from the
// file; they come from the environment or the OS keyring.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/keyring"
	"github.com/julianstephens/daylit-sync/internal/remote/postgres"
	"github.com/julianstephens/daylit-sync/internal/utils"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
)

const defaultConfigYAML = `# daylit-sync configuration
# Environment variables (DAYLIT_SYNC_<KEY>) override these values.
# Secrets (api_key, access_token, postgres_dsn) are read from the
# environment or the OS keyring, never from this file.

# Remote backend: postgrest, postgres, or memory
backend: postgrest

# PostgREST base URL, e.g. https://<project>.supabase.co
# remote_url:

# Signed-in user id that scopes every row
# owner:

remote_timeout: 10s

# Local cache: sqlite or jsonfile
cache_driver: sqlite
# cache_path:

# Address for the Prometheus /metrics endpoint served by "reminders run"
# metrics_addr: 127.0.0.1:9464

# IANA timezone reminders fire in ("Local" uses the system zone)
timezone: Local
`

var (
	ErrSecretInFile   = errors.New("secrets must not be stored in config.yaml")
	ErrSecretNotFound = errors.New("secret not configured")
	ErrUnknownKey     = errors.New("unknown config key")
)

// secretLookup resolves secrets missing from the environment.
var secretLookup = keyring.Get

// Keys lists the settings that may be written to config.yaml.
var Keys = []string{
	constants.SettingBackend,
	constants.SettingRemoteURL,
	constants.SettingOwner,
	constants.SettingRemoteTimeout,
	constants.SettingCacheDriver,
	constants.SettingCachePath,
	constants.SettingMetricsAddr,
	constants.SettingRateLimit,
	constants.SettingTimezone,
	constants.SettingDebug,
}

type Config struct {
	Dir               string
	Backend           string
	RemoteURL         string
	Owner             string
	RemoteTimeout     time.Duration
	CacheDriver       string
	CachePath         string
	MetricsAddr       string
	RequestsPerSecond float64
	Timezone          string
	Debug             bool

	v *viper.Viper
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Load reads the config in dir, creating the directory and a default
// config.yaml on first run.
func Load(dir string) (*Config, error) {
	dir, err := ExpandPath(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(dir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(constants.SettingBackend, constants.DefaultBackend)
	v.SetDefault(constants.SettingRemoteTimeout, constants.DefaultRemoteTimeout)
	v.SetDefault(constants.SettingCacheDriver, constants.DefaultCacheDriver)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for _, name := range keyring.Secrets {
		if v.InConfig(name) {
			return nil, fmt.Errorf("%w: remove %q and use \"config set-secret\"", ErrSecretInFile, name)
		}
	}

	cfg := &Config{
		Dir:               dir,
		Backend:           strings.ToLower(v.GetString(constants.SettingBackend)),
		RemoteURL:         v.GetString(constants.SettingRemoteURL),
		Owner:             v.GetString(constants.SettingOwner),
		RemoteTimeout:     v.GetDuration(constants.SettingRemoteTimeout),
		CacheDriver:       strings.ToLower(v.GetString(constants.SettingCacheDriver)),
		CachePath:         v.GetString(constants.SettingCachePath),
		MetricsAddr:       v.GetString(constants.SettingMetricsAddr),
		RequestsPerSecond: v.GetFloat64(constants.SettingRateLimit),
		Timezone:          v.GetString(constants.SettingTimezone),
		Debug:             v.GetBool(constants.SettingDebug),
		v:                 v,
	}
	if cfg.CachePath, err = ExpandPath(cfg.CachePath); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ensureDefaultConfigFile(dir string) error {
	path := filepath.Join(dir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o600)
}

// Path returns the config file location.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, configFileExt)
}

// CacheLocation is the sqlite database file or the jsonfile directory.
func (c *Config) CacheLocation() string {
	if c.CachePath != "" {
		return c.CachePath
	}
	if c.CacheDriver == constants.CacheDriverJSONFile {
		return filepath.Join(c.Dir, constants.CacheDirName)
	}
	return filepath.Join(c.Dir, constants.CacheFileName)
}

func (c *Config) Validate() error {
	switch c.Backend {
	case constants.BackendPostgREST:
		if c.RemoteURL == "" {
			return fmt.Errorf("%s is required for the %s backend", constants.SettingRemoteURL, c.Backend)
		}
	case constants.BackendPostgres, constants.BackendMemory:
	default:
		return fmt.Errorf("unsupported backend %q (expected %s, %s, or %s)", c.Backend,
			constants.BackendPostgREST, constants.BackendPostgres, constants.BackendMemory)
	}

	switch c.CacheDriver {
	case constants.CacheDriverSQLite, constants.CacheDriverJSONFile:
	default:
		return fmt.Errorf("unsupported cache driver %q (expected %s or %s)", c.CacheDriver,
			constants.CacheDriverSQLite, constants.CacheDriverJSONFile)
	}

	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", constants.SettingRemoteTimeout, c.RemoteTimeout)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%s cannot be negative", constants.SettingRateLimit)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the timezone setting. Empty means the system zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := utils.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", constants.SettingTimezone, c.Timezone, err)
	}
	return loc, nil
}

// Secret returns the named secret from DAYLIT_SYNC_<NAME> or the keyring.
func (c *Config) Secret(name string) (string, error) {
	if value := c.v.GetString(name); value != "" {
		return value, nil
	}
	value, err := secretLookup(name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w: %s (set %s_%s or run \"config set-secret %s\")",
			ErrSecretNotFound, name, constants.EnvPrefix, strings.ToUpper(name), name)
	}
	return value, err
}

// PostgresDSN returns the postgres connection string. A DSN set through the
// environment must not embed a password; the keyring may hold one.
func (c *Config) PostgresDSN() (string, error) {
	if env := c.v.GetString(constants.SecretPostgresDSN); env != "" {
		if _, err := postgres.ValidateConnString(env); err != nil {
			return "", err
		}
		return env, nil
	}
	return c.Secret(constants.SecretPostgresDSN)
}

// Set writes one setting to config.yaml.
func (c *Config) Set(key, value string) error {
	if slices.Contains(keyring.Secrets, key) {
		return fmt.Errorf("%w: use \"config set-secret %s\"", ErrSecretInFile, key)
	}
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("%w %q", ErrUnknownKey, key)
	}

	file := viper.New()
	file.SetConfigFile(c.Path())
	if err := file.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	file.Set(key, value)
	if err := file.WriteConfig(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	c.v.Set(key, value)
	return nil
}
