package postgres

import (
	"errors"
	"testing"

	pq "github.com/lib/pq"

	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/remote"
)

func TestBuildList(t *testing.T) {
	tests := []struct {
		name      string
		filter    remote.Filter
		order     []remote.Order
		wantQuery string
		wantArgs  int
	}{
		{
			name:      "owner only",
			wantQuery: `SELECT row_to_json(t) FROM "habits" t WHERE t."user_id" = $1`,
			wantArgs:  1,
		},
		{
			name:      "week range ordered",
			filter:    remote.Filter{remote.Gte("week_start_date", "2024-01-01"), remote.Lte("week_start_date", "2024-01-29")},
			order:     []remote.Order{remote.Asc("week_start_date"), remote.Desc("name")},
			wantQuery: `SELECT row_to_json(t) FROM "habits" t WHERE t."user_id" = $1 AND t."week_start_date" >= $2 AND t."week_start_date" <= $3 ORDER BY t."week_start_date" ASC NULLS LAST, t."name" DESC NULLS LAST`,
			wantArgs:  3,
		},
		{
			name:      "in and null checks",
			filter:    remote.Filter{remote.In("id", "a", "b"), remote.IsNull("color"), remote.NotNull("name"), remote.Neq("name", "x")},
			wantQuery: `SELECT row_to_json(t) FROM "habits" t WHERE t."user_id" = $1 AND t."id" IN ($2, $3) AND t."color" IS NULL AND t."name" IS NOT NULL AND t."name" <> $4`,
			wantArgs:  4,
		},
		{
			name:      "empty in matches nothing",
			filter:    remote.Filter{remote.In[string]("id")},
			wantQuery: `SELECT row_to_json(t) FROM "habits" t WHERE t."user_id" = $1 AND FALSE`,
			wantArgs:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := buildList("habits", "alice", tt.filter, tt.order)
			if err != nil {
				t.Fatalf("buildList error: %v", err)
			}
			if query != tt.wantQuery {
				t.Errorf("query mismatch\n got: %s\nwant: %s", query, tt.wantQuery)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("expected %d args, got %d", tt.wantArgs, len(args))
			}
			if args[0] != "alice" {
				t.Errorf("expected owner as first arg, got %v", args[0])
			}
		})
	}
}

func TestBuildRejectsUnsafeInput(t *testing.T) {
	if _, _, err := buildList("users; drop", "a", nil, nil); !errors.Is(err, remote.ErrRejected) {
		t.Errorf("expected unknown table to be rejected, got %v", err)
	}
	if _, _, err := buildList("notes", "a", remote.Filter{remote.Eq(`title" OR 1=1 --`, "x")}, nil); !errors.Is(err, remote.ErrRejected) {
		t.Errorf("expected bad column to be rejected, got %v", err)
	}
	if _, _, err := buildInsert("notes", "a", remote.Fields{"Title": "x"}); !errors.Is(err, remote.ErrRejected) {
		t.Errorf("expected bad insert column to be rejected, got %v", err)
	}
	if _, _, err := buildUpdate("notes", "a", "id", remote.Fields{"id": "x"}); !errors.Is(err, remote.ErrRejected) {
		t.Errorf("expected update with only server fields to be rejected, got %v", err)
	}
}

func TestBuildInsert(t *testing.T) {
	query, args, err := buildInsert("habits", "alice", remote.Fields{
		"user_id":         "mallory",
		"name":            "Read",
		"week_start_date": "2024-01-08",
		"reminder_days":   []any{float64(1), float64(3)},
	})
	if err != nil {
		t.Fatalf("buildInsert error: %v", err)
	}

	want := `INSERT INTO "habits" AS t ("id", "user_id", "name", "reminder_days", "week_start_date") VALUES (gen_random_uuid()::text, $1, $2, $3, $4) RETURNING row_to_json(t)`
	if query != want {
		t.Errorf("query mismatch\n got: %s\nwant: %s", query, want)
	}
	if args[0] != "alice" {
		t.Errorf("owner must come from the caller, got %v", args[0])
	}
	if _, ok := args[2].(pq.Float64Array); !ok {
		t.Errorf("expected numeric array to map to pq.Float64Array, got %T", args[2])
	}
}

func TestBuildUpdate(t *testing.T) {
	query, args, err := buildUpdate("priority_weeks", "alice", "pw1", remote.Fields{"rank_order": 2})
	if err != nil {
		t.Fatalf("buildUpdate error: %v", err)
	}
	want := `UPDATE "priority_weeks" AS t SET "rank_order" = $1, "updated_at" = now() WHERE t."id" = $2 AND t."user_id" = $3 RETURNING row_to_json(t)`
	if query != want {
		t.Errorf("query mismatch\n got: %s\nwant: %s", query, want)
	}
	if len(args) != 3 || args[1] != "pw1" || args[2] != "alice" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestSQLValue(t *testing.T) {
	if _, ok := sqlValue([]any{"a", "b"}).(pq.StringArray); !ok {
		t.Error("expected string array")
	}
	if v := sqlValue(map[string]any{"k": 1}); v != `{"k":1}` {
		t.Errorf("expected JSON text, got %v", v)
	}
	if v := sqlValue("plain"); v != "plain" {
		t.Errorf("expected passthrough, got %v", v)
	}
}

func TestSortedColumnsSkipsServerFields(t *testing.T) {
	fields := remote.Fields{"title": "x", "content": "y"}
	for _, k := range models.ServerFields {
		fields[k] = "client value"
	}

	cols, err := sortedColumns(fields)
	if err != nil {
		t.Fatalf("sortedColumns() error = %v", err)
	}
	if len(cols) != 2 || cols[0] != "content" || cols[1] != "title" {
		t.Errorf("sortedColumns() = %v, want [content title]", cols)
	}
}
