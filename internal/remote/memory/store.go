// Package memory is an in-process remote store. It enforces the same unique
// constraints as the postgres schema and supports failure injection, which
// makes it the remote used by tests and by offline mode.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/remote"
)

// Operation names passed to hooks and failure injection.
const (
	OpList        = "list"
	OpGet         = "get"
	OpInsert      = "insert"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpDeleteWhere = "delete_where"
	OpCopyHabits  = "copy_habits"
	OpPing        = "ping"
)

// Hook runs before every call. Returning an error fails the call; blocking
// inside the hook holds the call open (tests use this to stage races).
type Hook func(ctx context.Context, op, table string) error

// uniqueKeys mirrors the unique constraints of the postgres schema.
var uniqueKeys = map[string][]string{
	constants.TableHabits:           {"user_id", "week_start_date", "name"},
	constants.TableHabitCompletions: {"habit_id", "date"},
	constants.TablePriorityWeeks:    {"priority_id", "week_start_date"},
}

type Store struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
	hook   Hook
	down   bool
	calls  map[string]int
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		tables: make(map[string][]map[string]any),
		calls:  make(map[string]int),
		now:    time.Now,
	}
}

// SetHook installs h, replacing any previous hook. nil removes it.
func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

// SetOffline makes every call fail with remote.ErrUnavailable.
func (s *Store) SetOffline(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// Calls returns how many times op was invoked on table.
func (s *Store) Calls(op, table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op+":"+table]
}

// Rows returns a snapshot of every row in table regardless of owner.
func (s *Store) Rows(table string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]json.RawMessage, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, encode(r))
	}
	return out
}

func (s *Store) enter(ctx context.Context, op, table string) error {
	s.mu.Lock()
	s.calls[op+":"+table]++
	hook, down := s.hook, s.down
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, op, table); err != nil {
			return err
		}
	}
	if down {
		return fmt.Errorf("%s %s: %w", op, table, remote.ErrUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s %s: %w: %v", op, table, remote.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, table, owner string, f remote.Filter, order []remote.Order) ([]json.RawMessage, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", remote.ErrRejected, err)
	}
	if err := s.enter(ctx, OpList, table); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []json.RawMessage{}
	for _, r := range s.tables[table] {
		if r["user_id"] != owner {
			continue
		}
		raw := encode(r)
		if f.Match(raw) {
			out = append(out, raw)
		}
	}
	remote.SortRows(out, order)
	return out, nil
}

func (s *Store) Get(ctx context.Context, table, owner, id string) (json.RawMessage, error) {
	if err := s.enter(ctx, OpGet, table); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(table, owner, id)
	if i < 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, remote.ErrNotFound)
	}
	return encode(s.tables[table][i]), nil
}

func (s *Store) Insert(ctx context.Context, table, owner string, fields remote.Fields) (json.RawMessage, error) {
	if err := s.enter(ctx, OpInsert, table); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row := normalize(fields)
	row["id"] = uuid.NewString()
	row["user_id"] = owner
	ts := s.now().UTC().Format(time.RFC3339Nano)
	row["created_at"] = ts
	row["updated_at"] = ts

	if s.conflicts(table, row, "") {
		return nil, fmt.Errorf("insert %s: duplicate key: %w", table, remote.ErrRejected)
	}
	s.tables[table] = append(s.tables[table], row)
	return encode(row), nil
}

func (s *Store) Update(ctx context.Context, table, owner, id string, fields remote.Fields) (json.RawMessage, error) {
	if err := s.enter(ctx, OpUpdate, table); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(table, owner, id)
	if i < 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, remote.ErrNotFound)
	}

	updated := make(map[string]any, len(s.tables[table][i]))
	for k, v := range s.tables[table][i] {
		updated[k] = v
	}
	patch := normalize(fields)
	patch.StripServerFields()
	for k, v := range patch {
		updated[k] = v
	}
	updated["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)

	if s.conflicts(table, updated, id) {
		return nil, fmt.Errorf("update %s: duplicate key: %w", table, remote.ErrRejected)
	}
	s.tables[table][i] = updated
	return encode(updated), nil
}

func (s *Store) Delete(ctx context.Context, table, owner, id string) error {
	if err := s.enter(ctx, OpDelete, table); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(table, owner, id)
	if i < 0 {
		return fmt.Errorf("%s %s: %w", table, id, remote.ErrNotFound)
	}
	rows := s.tables[table]
	s.tables[table] = append(rows[:i:i], rows[i+1:]...)
	return nil
}

func (s *Store) DeleteWhere(ctx context.Context, table, owner string, f remote.Filter) (int, error) {
	if err := f.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", remote.ErrRejected, err)
	}
	if err := s.enter(ctx, OpDeleteWhere, table); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tables[table][:0:0]
	removed := 0
	for _, r := range s.tables[table] {
		if r["user_id"] == owner && f.Match(encode(r)) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.tables[table] = kept
	return removed, nil
}

func (s *Store) CopyHabitsToWeek(ctx context.Context, owner, fromWeek, toWeek string) (int, error) {
	if err := s.enter(ctx, OpCopyHabits, constants.TableHabits); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var source []map[string]any
	for _, r := range s.tables[constants.TableHabits] {
		if r["user_id"] == owner && r["week_start_date"] == fromWeek {
			source = append(source, r)
		}
	}

	inserted := 0
	ts := s.now().UTC().Format(time.RFC3339Nano)
	for _, src := range source {
		row := make(map[string]any, len(src))
		for k, v := range src {
			row[k] = v
		}
		row["id"] = uuid.NewString()
		row["week_start_date"] = toWeek
		row["created_at"] = ts
		row["updated_at"] = ts
		if s.conflicts(constants.TableHabits, row, "") {
			continue
		}
		s.tables[constants.TableHabits] = append(s.tables[constants.TableHabits], row)
		inserted++
	}
	return inserted, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.enter(ctx, OpPing, "")
}

func (s *Store) find(table, owner, id string) int {
	for i, r := range s.tables[table] {
		if r["id"] == id && r["user_id"] == owner {
			return i
		}
	}
	return -1
}

func (s *Store) conflicts(table string, row map[string]any, selfID string) bool {
	cols, ok := uniqueKeys[table]
	if !ok {
		return false
	}
	want := uniqueValue(row, cols)
	for _, r := range s.tables[table] {
		if r["id"] == selfID {
			continue
		}
		if uniqueValue(r, cols) == want {
			return true
		}
	}
	return false
}

func uniqueValue(row map[string]any, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(row[c])
	}
	return strings.Join(parts, "\x00")
}

// normalize round-trips fields through JSON so stored values have the same
// shapes (float64, []any, string) a decoded row has.
func normalize(fields remote.Fields) remote.Fields {
	out := remote.Fields{}
	data, err := json.Marshal(fields)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}

func encode(row map[string]any) json.RawMessage {
	data, _ := json.Marshal(row)
	return data
}
