// Package remote defines the contract of the authoritative row store the
// repositories talk to. Every call is scoped to an owner: implementations
// stamp user_id on inserts and only ever see or touch the owner's rows.
package remote

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/julianstephens/daylit-sync/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist for the owner.
	ErrNotFound = errors.New("remote: not found")
	// ErrRejected is returned when the remote refuses a request
	// (constraint violation, bad input, authorization).
	ErrRejected = errors.New("remote: rejected")
	// ErrUnavailable is returned for transport failures and timeouts.
	ErrUnavailable = errors.New("remote: unavailable")
)

// Store is the remote collaborator used by every repository.
type Store interface {
	List(ctx context.Context, table, owner string, f Filter, order []Order) ([]json.RawMessage, error)
	Get(ctx context.Context, table, owner, id string) (json.RawMessage, error)
	Insert(ctx context.Context, table, owner string, fields Fields) (json.RawMessage, error)
	Update(ctx context.Context, table, owner, id string, fields Fields) (json.RawMessage, error)
	Delete(ctx context.Context, table, owner, id string) error
	// DeleteWhere removes every owner row matching f and returns the count.
	DeleteWhere(ctx context.Context, table, owner string, f Filter) (int, error)
	// CopyHabitsToWeek clones the owner's habits from one week to another.
	// Rows already present in the target week (by name) are left alone, so
	// the call is idempotent and safe under concurrency.
	CopyHabitsToWeek(ctx context.Context, owner, fromWeek, toWeek string) (int, error)
	Ping(ctx context.Context) error
}

// Fields is a partial row keyed by JSON column name.
type Fields map[string]any

// FieldsFromRow converts a row value into insertable fields, dropping the
// server-assigned columns.
func FieldsFromRow(row any) (Fields, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	fields.StripServerFields()
	return fields, nil
}

// StripServerFields removes id, user_id, and timestamps in place.
func (f Fields) StripServerFields() {
	for _, k := range models.ServerFields {
		delete(f, k)
	}
}

// Order sorts a list by one column.
type Order struct {
	Field string
	Desc  bool
}

func Asc(field string) Order  { return Order{Field: field} }
func Desc(field string) Order { return Order{Field: field, Desc: true} }
