package constants

const (
	// Config keys
	SettingBackend       = "backend"
	SettingRemoteURL     = "remote_url"
	SettingOwner         = "owner"
	SettingRemoteTimeout = "remote_timeout"
	SettingCacheDriver   = "cache_driver"
	SettingCachePath     = "cache_path"
	SettingMetricsAddr   = "metrics_addr"
	SettingDebug         = "debug"
	SettingRateLimit     = "requests_per_second"
	SettingTimezone      = "timezone"

	// Secret keys (environment or keyring only)
	SecretAPIKey      = "api_key"
	SecretAccessToken = "access_token"
	SecretPostgresDSN = "postgres_dsn"

	// EnvPrefix is prepended to every environment override (DAYLIT_SYNC_OWNER, ...)
	EnvPrefix = "DAYLIT_SYNC"

	// Backends
	BackendPostgREST = "postgrest"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"

	// Cache drivers
	CacheDriverSQLite   = "sqlite"
	CacheDriverJSONFile = "jsonfile"
)
