package postgres

import (
	"context"
	"database/sql"
)

// DBTX is the query surface the repositories need. Both *sql.DB and the
// circuit-breaker wrapper satisfy it, so the binaries choose whether reads
// and writes go through breaker protection.
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
