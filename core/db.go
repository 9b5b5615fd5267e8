package core

import (
	"context"
	"database/sql"
)

type (
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	// Session is one request's unit-of-work: a transaction pinned to at most
	// one tenant for its whole lifetime. All repository calls go through it so
	// the storage engine's row-filtering policies see the bound tenant on
	// every statement.
	Session interface {
		DBExecutor

		// TenantID returns the school bound to this session, or "" when the
		// session is unscoped (registration, admin tooling).
		TenantID() string

		// SetTenant binds the session to a tenant mid-transaction. Unscoped
		// callers must do this before any tenant-owned read/write, inside the
		// same transaction as the writes that follow.
		SetTenant(ctx context.Context, tenantID string) error

		// Commit makes the unit-of-work durable. Further Commit/Rollback
		// calls are no-ops, so deferred cleanup is always safe.
		Commit() error
		Rollback() error
	}

	// SessionStore opens tenant-scoped sessions. Implemented by the Postgres
	// store and by the in-memory dummy used in tests.
	SessionStore interface {
		Begin(ctx context.Context, tenantID string) (Session, error)
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
