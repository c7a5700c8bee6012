package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"slices"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/logger"
	"github.com/julianstephens/daylit-sync/internal/migration"
	"github.com/julianstephens/daylit-sync/internal/remote"
	"github.com/julianstephens/daylit-sync/migrations"
)

// Store talks to a PostgreSQL database directly. Every statement is scoped
// by user_id and returns rows as row_to_json so the JSON shape matches the
// REST backend.
type Store struct {
	connStr string
	db      *sql.DB
}

var (
	ErrInvalidConnectionString = errors.New("invalid PostgreSQL connection string")
	ErrEmbeddedCredentials     = errors.New("connection string must not contain a password")
)

func New(connStr string) *Store {
	s := &Store{
		connStr: connStr,
	}
	s.ensureSearchPath()
	return s
}

// NewWithDB wraps an already opened database. Migrations are not run.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ensureSearchPath() {
	if strings.HasPrefix(s.connStr, "postgres://") || strings.HasPrefix(s.connStr, "postgresql://") {
		u, err := url.Parse(s.connStr)
		if err != nil {
			logger.Warn("Failed to parse Postgres connection string", "error", err)
			return
		}
		q := u.Query()
		if q.Get("search_path") == "" {
			q.Set("search_path", constants.PostgresSchema)
			u.RawQuery = q.Encode()
			s.connStr = u.String()
		}
	} else if !hasParam(s.connStr, "search_path") {
		s.connStr = strings.TrimSpace(s.connStr) + " search_path=" + constants.PostgresSchema
	}
}

// hasParam reports whether a DSN-style or URL-style connection string
// carries the given key (case-insensitive).
func hasParam(connStr, key string) bool {
	if u, err := url.Parse(connStr); err == nil && u.Scheme != "" {
		for k := range u.Query() {
			if strings.EqualFold(k, key) {
				return true
			}
		}
	}
	for _, part := range strings.Fields(connStr) {
		k, _, ok := strings.Cut(part, "=")
		if ok && strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// ValidateConnString checks that connStr is a valid PostgreSQL URI or DSN
// and does not embed a password. Passwords belong in the keyring or in
// PGPASSWORD/.pgpass.
func ValidateConnString(connStr string) (bool, error) {
	if strings.TrimSpace(connStr) == "" {
		return false, fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}

	if _, err := pq.NewConnector(connStr); err != nil {
		return false, fmt.Errorf("%w: invalid connection string format: %v", ErrInvalidConnectionString, err)
	}

	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		parsedURL, err := url.Parse(connStr)
		if err != nil {
			return false, fmt.Errorf("%w: failed to parse connection URL: %v", ErrInvalidConnectionString, err)
		}
		if _, isSet := parsedURL.User.Password(); isSet {
			return false, ErrEmbeddedCredentials
		}
		if parsedURL.Host == "" && parsedURL.User == nil && (parsedURL.Path == "" || parsedURL.Path == "/") {
			return false, fmt.Errorf("%w: connection URL is incomplete", ErrInvalidConnectionString)
		}
	} else {
		for _, pair := range strings.Fields(connStr) {
			k, _, ok := strings.Cut(pair, "=")
			if ok && strings.EqualFold(strings.TrimSpace(k), "password") {
				return false, ErrEmbeddedCredentials
			}
		}
	}

	return true, nil
}

// Init opens the connection, creates the schema, and applies migrations.
func (s *Store) Init(ctx context.Context) error {
	db, err := sql.Open("postgres", s.connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(constants.PostgresSchema)); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasParam(s.connStr, "sslmode") {
			return fmt.Errorf("failed to connect to database: %w (hint: try adding ?sslmode=disable to your connection string)", err)
		}
		return fmt.Errorf("failed to create schema: %w", err)
	}
	s.db = db

	subFS, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		return fmt.Errorf("failed to access postgres migrations: %w", err)
	}
	runner := migration.NewRunner(s.db, subFS, migration.Postgres)
	if _, err := runner.Apply(ctx, func(msg string) {
		logger.Info(msg, "store", "postgres")
	}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify("ping", "", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, table, owner string, f remote.Filter, order []remote.Order) ([]json.RawMessage, error) {
	query, args, err := buildList(table, owner, f, order)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list", table, err)
	}
	defer rows.Close()

	out := []json.RawMessage{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, classify("list", table, err)
		}
		out = append(out, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list", table, err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, table, owner, id string) (json.RawMessage, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT row_to_json(t) FROM %s t WHERE t."id" = $1 AND t."user_id" = $2`, pq.QuoteIdentifier(table))
	return s.queryRow(ctx, "get", table, query, id, owner)
}

func (s *Store) Insert(ctx context.Context, table, owner string, fields remote.Fields) (json.RawMessage, error) {
	query, args, err := buildInsert(table, owner, fields)
	if err != nil {
		return nil, err
	}
	return s.queryRow(ctx, "insert", table, query, args...)
}

func (s *Store) Update(ctx context.Context, table, owner, id string, fields remote.Fields) (json.RawMessage, error) {
	query, args, err := buildUpdate(table, owner, id, fields)
	if err != nil {
		return nil, err
	}
	return s.queryRow(ctx, "update", table, query, args...)
}

func (s *Store) Delete(ctx context.Context, table, owner, id string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE "id" = $1 AND "user_id" = $2`, pq.QuoteIdentifier(table))
	res, err := s.db.ExecContext(ctx, query, id, owner)
	if err != nil {
		return classify("delete", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete %s %s: %w", table, id, remote.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteWhere(ctx context.Context, table, owner string, f remote.Filter) (int, error) {
	query, args, err := buildDeleteWhere(table, owner, f)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify("delete_where", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("delete_where", table, err)
	}
	return int(n), nil
}

const copyHabitsQuery = `INSERT INTO "habits" ("id", "user_id", "name", "color", "reminder_time", "reminder_days", "week_start_date")
SELECT gen_random_uuid()::text, h."user_id", h."name", h."color", h."reminder_time", h."reminder_days", $3::date
FROM "habits" h
WHERE h."user_id" = $1 AND h."week_start_date" = $2::date
ON CONFLICT ("user_id", "week_start_date", "name") DO NOTHING`

func (s *Store) CopyHabitsToWeek(ctx context.Context, owner, fromWeek, toWeek string) (int, error) {
	res, err := s.db.ExecContext(ctx, copyHabitsQuery, owner, fromWeek, toWeek)
	if err != nil {
		return 0, classify("copy_habits", constants.TableHabits, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("copy_habits", constants.TableHabits, err)
	}
	return int(n), nil
}

func (s *Store) queryRow(ctx context.Context, op, table, query string, args ...any) (json.RawMessage, error) {
	var raw []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		return nil, classify(op, table, err)
	}
	return json.RawMessage(raw), nil
}

// classify maps driver errors onto the remote sentinels.
func classify(op, table string, err error) error {
	var pqErr *pq.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s %s: %w", op, table, remote.ErrNotFound)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s %s: %w: %v", op, table, remote.ErrUnavailable, err)
	case errors.As(err, &pqErr):
		// Class 08 is connection exceptions; 53 and 57 are resource and operator
		// interventions. Everything else is a statement the server refused.
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return fmt.Errorf("%s %s: %w: %v", op, table, remote.ErrUnavailable, err)
		}
		return fmt.Errorf("%s %s: %w: %v", op, table, remote.ErrRejected, err)
	}
	return fmt.Errorf("%s %s: %w: %v", op, table, remote.ErrUnavailable, err)
}

func checkTable(table string) error {
	if !slices.Contains(constants.AllTables, table) {
		return fmt.Errorf("%w: unknown table %q", remote.ErrRejected, table)
	}
	return nil
}
