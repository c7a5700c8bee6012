package postgrest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/daylit-sync/internal/remote"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{URL: srv.URL + "/", APIKey: "anon", AccessToken: "jwt"})
	require.NoError(t, err)
	return c
}

func TestNewRequiresURLAndKey(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(Config{URL: "http://x"})
	assert.Error(t, err)
}

func TestListEncodesFiltersAndHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/habits", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "eq.alice", q.Get("user_id"))
		assert.Equal(t, []string{"gte.2024-01-01", "lte.2024-01-29"}, q["week_start_date"])
		assert.Equal(t, `in.(a,"b,c")`, q.Get("id"))
		assert.Equal(t, "not.is.null", q.Get("color"))
		assert.Equal(t, "week_start_date.asc.nullslast", q.Get("order"))

		_, _ = io.WriteString(w, `[{"id":"a"},{"id":"b,c"}]`)
	})

	rows, err := c.List(context.Background(), "habits", "alice", remote.Filter{
		remote.Gte("week_start_date", "2024-01-01"),
		remote.Lte("week_start_date", "2024-01-29"),
		remote.In("id", "a", "b,c"),
		remote.NotNull("color"),
	}, []remote.Order{remote.Asc("week_start_date")})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestInsertStampsOwnerAndStripsServerFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["user_id"])
		assert.NotContains(t, body, "id")
		assert.Equal(t, "Read", body["name"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `[{"id":"h1","user_id":"alice","name":"Read"}]`)
	})

	row, err := c.Insert(context.Background(), "habits", "alice", remote.Fields{"id": "client", "name": "Read"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"h1","user_id":"alice","name":"Read"}`, string(row))
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"conflict", http.StatusConflict, `{"code":"23505","message":"duplicate key"}`, remote.ErrRejected},
		{"unauthorized", http.StatusUnauthorized, `{"message":"JWT expired"}`, remote.ErrRejected},
		{"server error", http.StatusBadGateway, ``, remote.ErrUnavailable},
		{"rate limited", http.StatusTooManyRequests, ``, remote.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.Insert(context.Background(), "notes", "alice", remote.Fields{"title": "x"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateAndDeleteOfMissingRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.n1", r.URL.Query().Get("id"))
		_, _ = io.WriteString(w, `[]`)
	})

	_, err := c.Update(context.Background(), "notes", "alice", "n1", remote.Fields{"title": "x"})
	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.ErrorIs(t, c.Delete(context.Background(), "notes", "alice", "n1"), remote.ErrNotFound)
}

func TestDeleteWhereCountsReturnedRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "eq.p1", r.URL.Query().Get("priority_id"))
		_, _ = io.WriteString(w, `[{"id":"1"},{"id":"2"}]`)
	})

	n, err := c.DeleteWhere(context.Background(), "priority_weeks", "alice", remote.Filter{remote.Eq("priority_id", "p1")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCopyHabitsCallsRPC(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/copy_habits_to_week", r.URL.Path)
		var params map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, map[string]string{
			"p_user_id":   "alice",
			"p_from_week": "2024-01-01",
			"p_to_week":   "2024-01-08",
		}, params)
		_, _ = io.WriteString(w, `3`)
	})

	n, err := c.CopyHabitsToWeek(context.Background(), "alice", "2024-01-01", "2024-01-08")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestTimeoutIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.List(ctx, "notes", "alice", nil, nil)
	assert.ErrorIs(t, err, remote.ErrUnavailable)
}
