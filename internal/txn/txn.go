// Package txn provides the failure-atomic unit of work shared by the escrow
// store and the token ledger.
//
// A unit either commits every write made through it or none of them. The SQL
// runner carries a read-committed *sql.Tx in the context and relies on row
// locks (FOR UPDATE, conditional updates, upserts) for correctness; the memory
// runner carries an undo journal and holds an exclusive lock for the unit's
// lifetime.
package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
)

// Runner executes fn as one failure-atomic unit. Nested calls join the
// enclosing unit.
type Runner interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

// Execer is the subset of *sql.DB and *sql.Tx used by stores.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// SQL runs units inside a database transaction.
type SQL struct {
	db         *sql.DB
	newBackOff func() backoff.BackOff
}

// NewSQL creates a runner over db.
func NewSQL(db *sql.DB) *SQL {
	return &SQL{
		db: db,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 200 * time.Millisecond
			return backoff.WithMaxRetries(b, MaxAttempts-1)
		},
	}
}

// MaxAttempts bounds how often a unit is run when the database aborts it
// with a serialization failure or deadlock.
const MaxAttempts = 5

// Atomic begins a transaction, runs fn with it in the context and commits.
// Any error from fn rolls the transaction back. Units aborted by the
// database with a serialization failure or deadlock are run again, so fn
// must confine its side effects to the transaction and its own locals.
func (s *SQL) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFrom(ctx) != nil {
		return fn(ctx)
	}

	op := func() error {
		err := s.attempt(ctx, fn)
		if err != nil && !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(s.newBackOff(), ctx))
}

func (s *SQL) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("txn: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("txn: commit: %w", err)
	}
	return nil
}

// Postgres error codes that abort a unit without any fault in its inputs.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Retryable reports whether err aborted a unit that may succeed if run again.
func Retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
}

// Exec returns the transaction in ctx, or db when ctx carries none.
func (s *SQL) Exec(ctx context.Context) Execer {
	if tx := TxFrom(ctx); tx != nil {
		return tx
	}
	return s.db
}

// DB exposes the underlying pool.
func (s *SQL) DB() *sql.DB {
	return s.db
}

// TxFrom returns the transaction carried by ctx, if any.
func TxFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// Journal records compensating steps for writes made during a memory unit.
type Journal struct {
	undo []func()
}

// OnRollback registers fn to run if the unit fails. Steps run in reverse order.
func (j *Journal) OnRollback(fn func()) {
	j.undo = append(j.undo, fn)
}

func (j *Journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

type journalKey struct{}

// JournalFrom returns the memory journal carried by ctx, if any.
func JournalFrom(ctx context.Context) *Journal {
	j, _ := ctx.Value(journalKey{}).(*Journal)
	return j
}

// Memory serializes units over in-memory state. Stores sharing one Memory
// see each other's writes as part of the same unit.
type Memory struct {
	mu sync.RWMutex
}

// NewMemory creates a memory runner.
func NewMemory() *Memory {
	return &Memory{}
}

// Atomic runs fn under the exclusive lock. If fn fails, every step recorded
// on the journal is undone before the lock is released.
func (m *Memory) Atomic(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if JournalFrom(ctx) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	j := &Journal{}
	defer func() {
		if r := recover(); r != nil {
			j.rollback()
			panic(r)
		}
	}()
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		j.rollback()
		return err
	}
	return nil
}

// Write runs fn as a unit and hands it the journal.
func (m *Memory) Write(ctx context.Context, fn func(j *Journal) error) error {
	return m.Atomic(ctx, func(ctx context.Context) error {
		return fn(JournalFrom(ctx))
	})
}

// Read runs fn with a consistent view. Inside a unit the exclusive lock is
// already held, so fn runs directly.
func (m *Memory) Read(ctx context.Context, fn func()) {
	if JournalFrom(ctx) != nil {
		fn()
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn()
}

var (
	_ Runner = (*SQL)(nil)
	_ Runner = (*Memory)(nil)
)
