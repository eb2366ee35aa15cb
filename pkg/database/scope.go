package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Scope is a connection held for the duration of one request or job. While a
// transaction is open on it, queries go through the transaction.
type Scope struct {
	Conn *pgxpool.Conn
	tx   pgx.Tx
}

// Querier returns the transaction if one is open, otherwise the connection.
func (s *Scope) Querier() Querier {
	if s.tx != nil {
		return s.tx
	}
	return s.Conn
}

// InTx reports whether queries run inside a transaction.
func (s *Scope) InTx() bool {
	return s.tx != nil
}

// Close releases the connection to the pool.
// This MUST be called, typically with defer scope.Close().
func (s *Scope) Close() {
	if s.Conn == nil || s.tx != nil {
		return
	}
	s.Conn.Release()
}

// Acquire takes a connection from the pool as a Scope.
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn}, nil
}

// Transactor runs fn atomically. Repositories called with the ctx passed to
// fn take part in the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ScopeTransactor opens transactions on the Scope found in the context.
type ScopeTransactor struct{}

var _ Transactor = ScopeTransactor{}

// NewTransactor returns a Transactor backed by request scopes.
func NewTransactor() Transactor {
	return ScopeTransactor{}
}

// InTx begins a transaction on the context's scope, commits when fn returns
// nil and rolls back otherwise. Nested calls join the outer transaction.
func (ScopeTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	scope, ok := GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}
	if scope.InTx() {
		return fn(ctx)
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := SetScope(ctx, &Scope{Conn: scope.Conn, tx: tx})
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
