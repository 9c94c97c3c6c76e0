package store

import (
	"database/sql"
	"errors"
	"time"
)

const defaultPageSize = 200

var (
	// ErrNotFound is returned when no row matches a lookup.
	ErrNotFound = errors.New("store: not found")

	// ErrStaleWrite is returned by compare-and-swap updates when the row no
	// longer holds the status that was read. Callers should re-read and retry.
	ErrStaleWrite = errors.New("store: stale write")
)

// Store provides database-backed accessors for bookings, subscriptions,
// organizations and the webhook event ledger.
type Store struct {
	db *sql.DB
}

// New creates a Store using the provided sql.DB connection.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &Store{db: db}, nil
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

// affectedOrStale converts a zero-row update into ErrStaleWrite.
func affectedOrStale(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleWrite
	}
	return nil
}
