package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/daylit-sync/internal/remote"
)

func TestInsertStampsServerFields(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	raw, err := s.Insert(ctx, "notes", "alice", remote.Fields{"id": "client", "user_id": "mallory", "title": "t"})
	require.NoError(t, err)

	var row map[string]any
	require.NoError(t, json.Unmarshal(raw, &row))
	assert.NotEqual(t, "client", row["id"])
	assert.Equal(t, "alice", row["user_id"])
	assert.NotEmpty(t, row["created_at"])
}

func TestOwnerScoping(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	raw, err := s.Insert(ctx, "notes", "alice", remote.Fields{"title": "a"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "notes", "bob", remote.Fields{"title": "b"})
	require.NoError(t, err)

	rows, err := s.List(ctx, "notes", "alice", nil, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	var row struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &row))
	_, err = s.Get(ctx, "notes", "bob", row.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "notes", "bob", row.ID), remote.ErrNotFound)
}

func TestUniqueHabitPerWeek(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	habit := remote.Fields{"name": "Read", "week_start_date": "2024-01-08"}
	_, err := s.Insert(ctx, "habits", "alice", habit)
	require.NoError(t, err)
	_, err = s.Insert(ctx, "habits", "alice", habit)
	assert.ErrorIs(t, err, remote.ErrRejected)

	_, err = s.Insert(ctx, "habits", "bob", habit)
	assert.NoError(t, err, "different owners may share a name")
}

func TestCopyHabitsToWeekIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for _, name := range []string{"Read", "Run"} {
		_, err := s.Insert(ctx, "habits", "alice", remote.Fields{"name": name, "color": "red", "week_start_date": "2024-01-01"})
		require.NoError(t, err)
	}

	n, err := s.CopyHabitsToWeek(ctx, "alice", "2024-01-01", "2024-01-08")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CopyHabitsToWeek(ctx, "alice", "2024-01-01", "2024-01-08")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rows, err := s.List(ctx, "habits", "alice", remote.Filter{remote.Eq("week_start_date", "2024-01-08")}, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestConcurrentCopiesNeverDuplicate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.Insert(ctx, "habits", "alice", remote.Fields{"name": "Read", "week_start_date": "2024-01-01"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.CopyHabitsToWeek(ctx, "alice", "2024-01-01", "2024-01-08")
		}()
	}
	wg.Wait()

	rows, err := s.List(ctx, "habits", "alice", remote.Filter{remote.Eq("week_start_date", "2024-01-08")}, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFailureInjection(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	s.SetOffline(true)
	_, err := s.List(ctx, "notes", "alice", nil, nil)
	assert.ErrorIs(t, err, remote.ErrUnavailable)
	s.SetOffline(false)

	boom := errors.New("boom")
	s.SetHook(func(ctx context.Context, op, table string) error {
		if op == OpInsert {
			return boom
		}
		return nil
	})
	_, err = s.Insert(ctx, "notes", "alice", remote.Fields{"title": "x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.Calls(OpInsert, "notes"))
}

func TestUpdateAndDeleteWhere(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	raw, err := s.Insert(ctx, "priority_weeks", "alice", remote.Fields{"priority_id": "p1", "week_start_date": "2024-01-08", "rank_order": 1})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "priority_weeks", "alice", remote.Fields{"priority_id": "p1", "week_start_date": "2024-01-15", "rank_order": 1})
	require.NoError(t, err)

	var row struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &row))

	updated, err := s.Update(ctx, "priority_weeks", "alice", row.ID, remote.Fields{"rank_order": 3, "id": "hijack"})
	require.NoError(t, err)
	assert.JSONEq(t, `3`, gjsonRank(t, updated))

	n, err := s.DeleteWhere(ctx, "priority_weeks", "alice", remote.Filter{remote.Eq("priority_id", "p1")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, s.Rows("priority_weeks"))
}

func gjsonRank(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var row map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &row))
	return string(row["rank_order"])
}
