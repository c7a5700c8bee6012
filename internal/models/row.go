package models

import "time"

// Row is implemented by every entity stored remotely and cached locally.
// Cache entries are located and replaced by RowID, never by position.
type Row interface {
	RowID() string
}

// Validator is implemented by rows that can reject invalid field values
// before a write reaches the remote store.
type Validator interface {
	Validate() error
}

// Base carries the fields the remote store owns for every row.
// Clients never choose these values; they are stripped before inserts.
type Base struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b Base) RowID() string {
	return b.ID
}

// ServerFields are the JSON keys assigned by the remote store.
var ServerFields = []string{"id", "user_id", "created_at", "updated_at"}
