package constants

import "time"

const (
	AppName          = "daylit-sync"
	KeyringService   = "daylit-sync"
	DefaultConfigDir = "~/.config/daylit-sync"
	Version          = "v0.1.0"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used throughout the application (HH:MM)
	TimeFormat = "15:04"

	// CacheKeyPrefix namespaces every local cache key
	CacheKeyPrefix = "daylit"

	// Remote constants
	PostgresSchema       = "daylit_sync"
	DefaultRemoteTimeout = 10 * time.Second
	DefaultBackend       = "postgrest"
	DefaultCacheDriver   = "sqlite"
	CacheFileName        = "cache.db"
	CacheDirName         = "cache"

	// Notify constants
	NotifyMaxRetries       = 3
	NotifyRetryDelay       = 100 * time.Millisecond
	NotifierLockfileName   = "daylit-notifier.lock"
	NotificationDurationMs = 5000
	TrayAppIdentifier      = "com.julianstephens.daylit"

	// DaysPerWeek is the number of distinct weekdays a reminder may select
	DaysPerWeek = 7
)
