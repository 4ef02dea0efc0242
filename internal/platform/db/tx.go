package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// SQLSTATE codes surfaced as retryable contention.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// TxRunner opens transactions with a consistent isolation level and lock wait policy.
type TxRunner struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewTxRunner builds a TxRunner. A zero lockTimeout keeps the server default.
func NewTxRunner(pool *pgxpool.Pool, lockTimeout time.Duration) *TxRunner {
	return &TxRunner{pool: pool, lockTimeout: lockTimeout}
}

// Pool exposes the underlying pool for non-transactional reads.
func (r *TxRunner) Pool() *pgxpool.Pool {
	if r == nil {
		return nil
	}
	return r.pool
}

// WithTx executes fn within a RepeatableRead transaction. Contention errors are
// translated to shared.ErrConcurrentModification.
func (r *TxRunner) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if r == nil || r.pool == nil {
		return errors.New("platform/db: tx runner not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if r.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("platform/db: set lock timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return TranslateError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return TranslateError(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

// TranslateError wraps storage contention errors with shared.ErrConcurrentModification
// and leaves everything else untouched.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %s", shared.ErrConcurrentModification, pgErr.Message)
		}
	}
	return err
}
