// Package tx lets a PostgreSQL store hand its open transaction down the call
// chain. Nested RunInTx calls on the same *sql.DB join the outer transaction;
// a store over another pool starts its own.
package tx

import (
	"context"
	"database/sql"
)

type scopeKey struct{}

type scope struct {
	db *sql.DB
	tx *sql.Tx
}

// WithTx records that tx is open on db for the rest of the call chain.
func WithTx(ctx context.Context, db *sql.DB, tx *sql.Tx) context.Context {
	if db == nil || tx == nil {
		return ctx
	}
	return context.WithValue(ctx, scopeKey{}, scope{db: db, tx: tx})
}

// From returns the transaction open on db, if any.
func From(ctx context.Context, db *sql.DB) (*sql.Tx, bool) {
	s, ok := ctx.Value(scopeKey{}).(scope)
	if !ok || s.db != db {
		return nil, false
	}
	return s.tx, true
}
