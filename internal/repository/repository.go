// Package repository implements the cache-aside access path shared by every
// entity. Reads go to the remote first and fall back to the local cache on
// any failure; writes go to the remote only and patch the cache on success.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/localstore"
	"github.com/julianstephens/daylit-sync/internal/logger"
	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/observability"
	"github.com/julianstephens/daylit-sync/internal/remote"
)

var (
	// ErrWriteFailed is wrapped by every failed create, update, or delete,
	// whatever the underlying cause.
	ErrWriteFailed = errors.New("write failed")
	// ErrUnauthenticated is returned for writes without an owner.
	ErrUnauthenticated = fmt.Errorf("%w: no signed-in owner", ErrWriteFailed)
)

// maxCacheRetries bounds the read-modify-write loop used to patch a cache
// entry that other goroutines are writing at the same time.
const maxCacheRetries = 5

// Table describes one remote table and how its lists are ordered.
type Table struct {
	Name  string
	Order []remote.Order
}

// Deps are the collaborators shared by every repository.
type Deps struct {
	Remote  remote.Store
	Cache   localstore.Store
	Timeout time.Duration
}

// Repository is the cache-aside access path for one row type.
type Repository[T models.Row] struct {
	table   Table
	remote  remote.Store
	cache   localstore.Store
	timeout time.Duration
}

func New[T models.Row](table Table, deps Deps) *Repository[T] {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultRemoteTimeout
	}
	return &Repository[T]{
		table:   table,
		remote:  deps.Remote,
		cache:   deps.Cache,
		timeout: timeout,
	}
}

func (r *Repository[T]) Table() Table {
	return r.table
}

// GetAll returns every row of owner. On success the cache is replaced with
// the remote list unless a write landed on the key while the list was in
// flight. On failure the cached rows are returned.
func (r *Repository[T]) GetAll(ctx context.Context, owner string) []T {
	if owner == "" {
		return []T{}
	}
	rows, err := r.Refresh(ctx, owner)
	if err != nil {
		r.fallback("get_all", owner, err)
		return r.Cached(ctx, owner)
	}
	return rows
}

// Refresh is GetAll without the fallback: it reports the remote error so
// callers that need to know whether they are online (sync, doctor) can.
func (r *Repository[T]) Refresh(ctx context.Context, owner string) ([]T, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	key := r.key(owner)
	before, err := r.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("Failed to read cache version", "key", key, "error", err)
	}

	raws, err := r.list(ctx, "get_all", owner, nil)
	if err != nil {
		return nil, err
	}

	ok, _, err := r.cache.CompareAndSet(context.WithoutCancel(ctx), key, raws, before.Version)
	switch {
	case err != nil:
		logger.Error("Failed to write cache", "key", key, "error", err)
	case !ok:
		observability.RecordStaleListDiscarded(r.table.Name)
		logger.Debug("Discarding stale list, cache changed during fetch", "key", key)
	}
	return decodeRows[T](r.table.Name, raws), nil
}

// GetByFilter returns the owner's rows matching f. On success the cached rows
// matching f are replaced with the remote result and all other cached rows
// are kept. On failure the cache is filtered locally with the same filter.
func (r *Repository[T]) GetByFilter(ctx context.Context, owner string, f remote.Filter) []T {
	if owner == "" {
		return []T{}
	}
	if err := f.Validate(); err != nil {
		logger.Error("Rejected invalid filter", "entity", r.table.Name, "error", err)
		return []T{}
	}

	key := r.key(owner)
	before, err := r.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("Failed to read cache version", "key", key, "error", err)
	}

	raws, err := r.list(ctx, "get_by_filter", owner, f)
	if err != nil {
		r.fallback("get_by_filter", owner, err)
		return decodeRows[T](r.table.Name, f.Apply(r.cachedRaw(ctx, owner)))
	}

	merged := make([]json.RawMessage, 0, len(before.Rows)+len(raws))
	for _, row := range before.Rows {
		if !f.Match(row) {
			merged = append(merged, row)
		}
	}
	merged = append(merged, raws...)

	ok, _, err := r.cache.CompareAndSet(context.WithoutCancel(ctx), key, merged, before.Version)
	switch {
	case err != nil:
		logger.Error("Failed to write cache", "key", key, "error", err)
	case !ok:
		observability.RecordStaleListDiscarded(r.table.Name)
		logger.Debug("Discarding stale filtered list, cache changed during fetch", "key", key)
	}
	return decodeRows[T](r.table.Name, raws)
}

// GetByID returns one row, from the remote when reachable and from the
// cache otherwise. nil means the row is unknown.
func (r *Repository[T]) GetByID(ctx context.Context, owner, id string) *T {
	if owner == "" || id == "" {
		return nil
	}

	raw, err := r.call(ctx, "get_by_id", func(ctx context.Context) (json.RawMessage, error) {
		return r.remote.Get(ctx, r.table.Name, owner, id)
	})
	if err != nil {
		r.fallback("get_by_id", owner, err)
		for _, row := range r.cachedRaw(ctx, owner) {
			if rowID(row) == id {
				return decodeRow[T](r.table.Name, row)
			}
		}
		return nil
	}

	row := decodeRow[T](r.table.Name, raw)
	if row != nil {
		r.patchCache(ctx, owner, upsertRow(raw))
	}
	return row
}

// Create inserts row for owner. Server-assigned fields on row are ignored.
// On success the returned row is appended to the cache.
func (r *Repository[T]) Create(ctx context.Context, owner string, row T) (*T, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	if v, ok := any(&row).(models.Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("create %s: %w: %v", r.table.Name, ErrWriteFailed, err)
		}
	}
	fields, err := remote.FieldsFromRow(row)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w: %v", r.table.Name, ErrWriteFailed, err)
	}

	raw, err := r.call(ctx, "create", func(ctx context.Context) (json.RawMessage, error) {
		return r.remote.Insert(ctx, r.table.Name, owner, fields)
	})
	if err != nil {
		return nil, r.writeFailed("create", err)
	}
	return r.applyWrite(ctx, owner, "create", raw)
}

// Update applies a partial update. On success the cached row is replaced by
// id; on failure the cache is untouched.
func (r *Repository[T]) Update(ctx context.Context, owner, id string, fields remote.Fields) (*T, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	patch := make(remote.Fields, len(fields))
	for k, v := range fields {
		patch[k] = v
	}
	patch.StripServerFields()

	raw, err := r.call(ctx, "update", func(ctx context.Context) (json.RawMessage, error) {
		return r.remote.Update(ctx, r.table.Name, owner, id, patch)
	})
	if err != nil {
		return nil, r.writeFailed("update", err)
	}
	return r.applyWrite(ctx, owner, "update", raw)
}

// Delete removes one row. On success it is dropped from the cache.
func (r *Repository[T]) Delete(ctx context.Context, owner, id string) error {
	if owner == "" {
		return ErrUnauthenticated
	}
	_, err := r.call(ctx, "delete", func(ctx context.Context) (json.RawMessage, error) {
		return nil, r.remote.Delete(ctx, r.table.Name, owner, id)
	})
	if err != nil {
		return r.writeFailed("delete", err)
	}
	r.patchCache(ctx, owner, func(rows []json.RawMessage) []json.RawMessage {
		return removeRows(rows, func(row json.RawMessage) bool { return rowID(row) == id })
	})
	return nil
}

// DeleteWhere removes every owner row matching f, remotely and then from
// the cache.
func (r *Repository[T]) DeleteWhere(ctx context.Context, owner string, f remote.Filter) error {
	if owner == "" {
		return ErrUnauthenticated
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("delete_where %s: %w: %v", r.table.Name, ErrWriteFailed, err)
	}
	_, err := r.call(ctx, "delete_where", func(ctx context.Context) (json.RawMessage, error) {
		_, err := r.remote.DeleteWhere(ctx, r.table.Name, owner, f)
		return nil, err
	})
	if err != nil {
		return r.writeFailed("delete_where", err)
	}
	r.patchCache(ctx, owner, func(rows []json.RawMessage) []json.RawMessage {
		return removeRows(rows, f.Match)
	})
	return nil
}

// Cached returns the owner's cached rows without contacting the remote.
func (r *Repository[T]) Cached(ctx context.Context, owner string) []T {
	if owner == "" {
		return []T{}
	}
	return decodeRows[T](r.table.Name, r.cachedRaw(ctx, owner))
}

func (r *Repository[T]) key(owner string) string {
	return localstore.Key(owner, r.table.Name)
}

func (r *Repository[T]) cachedRaw(ctx context.Context, owner string) []json.RawMessage {
	entry, err := r.cache.Get(ctx, r.key(owner))
	if err != nil {
		logger.Warn("Failed to read cache", "key", r.key(owner), "error", err)
		return nil
	}
	return entry.Rows
}

func (r *Repository[T]) list(ctx context.Context, op, owner string, f remote.Filter) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	_, err := r.call(ctx, op, func(ctx context.Context) (json.RawMessage, error) {
		var err error
		rows, err = r.remote.List(ctx, r.table.Name, owner, f, r.table.Order)
		return nil, err
	})
	return rows, err
}

// call runs one remote operation under the repository timeout.
func (r *Repository[T]) call(ctx context.Context, op string, fn func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := fn(ctx)
	observability.RecordRemoteCall(r.table.Name, op, err)
	return raw, err
}

func (r *Repository[T]) fallback(op, owner string, err error) {
	observability.RecordCacheFallback(r.table.Name, op)
	logger.Warn("Remote read failed, serving cache", "entity", r.table.Name, "op", op, "owner", owner, "error", err)
}

func (r *Repository[T]) writeFailed(op string, err error) error {
	logger.Warn("Remote write failed", "entity", r.table.Name, "op", op, "error", err)
	return fmt.Errorf("%s %s: %w: %w", op, r.table.Name, ErrWriteFailed, err)
}

func (r *Repository[T]) applyWrite(ctx context.Context, owner, op string, raw json.RawMessage) (*T, error) {
	row := decodeRow[T](r.table.Name, raw)
	if row == nil {
		return nil, fmt.Errorf("%s %s: %w: undecodable response", op, r.table.Name, ErrWriteFailed)
	}
	r.patchCache(ctx, owner, upsertRow(raw))
	return row, nil
}

// patchCache applies fn to the cached rows with optimistic concurrency.
// Every successful patch bumps the entry version, which makes any list
// fetched before the patch lose its compare-and-set.
func (r *Repository[T]) patchCache(ctx context.Context, owner string, fn func([]json.RawMessage) []json.RawMessage) {
	ctx = context.WithoutCancel(ctx)
	key := r.key(owner)
	for attempt := 0; attempt < maxCacheRetries; attempt++ {
		entry, err := r.cache.Get(ctx, key)
		if err != nil {
			logger.Error("Failed to read cache for patch", "key", key, "error", err)
			return
		}
		ok, _, err := r.cache.CompareAndSet(ctx, key, fn(entry.Rows), entry.Version)
		if err != nil {
			logger.Error("Failed to patch cache", "key", key, "error", err)
			return
		}
		if ok {
			return
		}
	}
	logger.Warn("Gave up patching cache after concurrent writes", "key", key)
}

func upsertRow(raw json.RawMessage) func([]json.RawMessage) []json.RawMessage {
	id := rowID(raw)
	return func(rows []json.RawMessage) []json.RawMessage {
		out := make([]json.RawMessage, 0, len(rows)+1)
		replaced := false
		for _, row := range rows {
			if rowID(row) != id {
				out = append(out, row)
				continue
			}
			if !replaced {
				out = append(out, raw)
				replaced = true
			}
		}
		if !replaced {
			out = append(out, raw)
		}
		return out
	}
}

func removeRows(rows []json.RawMessage, match func(json.RawMessage) bool) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		if !match(row) {
			out = append(out, row)
		}
	}
	return out
}

func rowID(raw json.RawMessage) string {
	return gjson.GetBytes(raw, "id").String()
}

func decodeRow[T any](entity string, raw json.RawMessage) *T {
	var row T
	if err := json.Unmarshal(raw, &row); err != nil {
		logger.Warn("Skipping undecodable row", "entity", entity, "error", err)
		return nil
	}
	return &row
}

func decodeRows[T any](entity string, raws []json.RawMessage) []T {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		if row := decodeRow[T](entity, raw); row != nil {
			out = append(out, *row)
		}
	}
	return out
}
