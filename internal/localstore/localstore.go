// Package localstore defines the durable key/value cache that backs every
// repository. Each key holds one JSON array of rows plus a version stamp.
package localstore

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/logger"
)

// Entry is the cached array under one key. Version is 0 for a key that has
// never been written and increases by one on every successful write.
type Entry struct {
	Rows    []json.RawMessage
	Version uint64
}

// Store is a keyed durable cache. Reads of missing or corrupt keys return
// an empty Entry rather than an error.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	// Set overwrites the key unconditionally and returns the new version.
	Set(ctx context.Context, key string, rows []json.RawMessage) (uint64, error)
	// CompareAndSet writes only if the stored version equals version.
	// It reports whether the write happened and the version now stored.
	CompareAndSet(ctx context.Context, key string, rows []json.RawMessage, version uint64) (bool, uint64, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Delete empties key and drops it from Keys. The version keeps counting
	// up, so a CompareAndSet prepared before the delete still fails.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key returns the cache key for one owner's rows of one entity.
func Key(owner, entity string) string {
	return OwnerPrefix(owner) + entity
}

// OwnerPrefix returns the prefix shared by every key of owner.
func OwnerPrefix(owner string) string {
	return constants.CacheKeyPrefix + "/" + owner + "/"
}

// SplitKey returns the owner and entity encoded in key.
func SplitKey(key string) (owner, entity string, ok bool) {
	rest, found := strings.CutPrefix(key, constants.CacheKeyPrefix+"/")
	if !found {
		return "", "", false
	}
	owner, entity, ok = strings.Cut(rest, "/")
	return owner, entity, ok
}

// DecodeRows parses a stored payload. A payload that is not a JSON array is
// logged and treated as empty.
func DecodeRows(key string, payload []byte) []json.RawMessage {
	if len(payload) == 0 {
		return nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(payload, &rows); err != nil {
		logger.Warn("Discarding corrupt cache entry", "key", key, "error", err)
		return nil
	}
	return rows
}

// EncodeRows serializes rows as a JSON array, never null.
func EncodeRows(rows []json.RawMessage) ([]byte, error) {
	if rows == nil {
		rows = []json.RawMessage{}
	}
	return json.Marshal(rows)
}
