// Package store is the pgx-backed storage port for sources and imported data
// rows. It owns the physical schema: a sources table plus a fixed wide
// data_rows table whose typed slot columns are named {type}_{slot}.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store provides keyed CRUD for sources and replace/query access to data
// rows. All methods are safe for concurrent use; the pool handles connection
// management.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on top of an established connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }
