package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	databaseBreakerName    = "document-store"
	databaseBreakerService = "database-client"
)

// DatabaseWrapper wraps sqlx operations with a circuit breaker.
// sql.ErrNoRows and caller cancellation do not count as failures.
type DatabaseWrapper struct {
	db     *sqlx.DB
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewDatabaseWrapper creates a database wrapper with circuit breaker
func NewDatabaseWrapper(db *sqlx.DB, settings Settings, logger *zap.Logger) *DatabaseWrapper {
	config := settings.ToConfig(DatabaseSettings())
	config.IsFailure = isDatabaseFailure
	cb := NewCircuitBreaker(databaseBreakerName, config, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(databaseBreakerName, databaseBreakerService, cb)

	return &DatabaseWrapper{
		db:     db,
		cb:     cb,
		logger: logger,
	}
}

func isDatabaseFailure(err error) bool {
	return !errors.Is(err, sql.ErrNoRows) && !errors.Is(err, context.Canceled)
}

func (dw *DatabaseWrapper) execute(ctx context.Context, fn func() error) error {
	err := dw.cb.Execute(ctx, fn)
	GlobalMetricsCollector.RecordRequest(databaseBreakerName, databaseBreakerService, dw.cb.State(), err == nil || !isDatabaseFailure(err))
	return err
}

// PingContext wraps database ping with circuit breaker
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	return dw.execute(ctx, func() error {
		return dw.db.PingContext(ctx)
	})
}

// GetContext scans a single row into dest
func (dw *DatabaseWrapper) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return dw.execute(ctx, func() error {
		return dw.db.GetContext(ctx, dest, query, args...)
	})
}

// SelectContext scans all rows into dest
func (dw *DatabaseWrapper) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return dw.execute(ctx, func() error {
		return dw.db.SelectContext(ctx, dest, query, args...)
	})
}

// ExecContext wraps database exec with circuit breaker
func (dw *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	err := dw.execute(ctx, func() error {
		var err error
		result, err = dw.db.ExecContext(ctx, query, args...)
		return err
	})
	return result, err
}

// TxWrapper wraps sqlx.Tx with circuit breaker protection
type TxWrapper struct {
	tx *sqlx.Tx
	dw *DatabaseWrapper
}

// BeginTxx starts a transaction through the circuit breaker
func (dw *DatabaseWrapper) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*TxWrapper, error) {
	var tx *sqlx.Tx
	err := dw.execute(ctx, func() error {
		var err error
		tx, err = dw.db.BeginTxx(ctx, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &TxWrapper{tx: tx, dw: dw}, nil
}

// ExecContext executes within the transaction
func (tw *TxWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	err := tw.dw.execute(ctx, func() error {
		var err error
		result, err = tw.tx.ExecContext(ctx, query, args...)
		return err
	})
	return result, err
}

// SelectContext scans all rows within the transaction into dest
func (tw *TxWrapper) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return tw.dw.execute(ctx, func() error {
		return tw.tx.SelectContext(ctx, dest, query, args...)
	})
}

// Commit commits the transaction
func (tw *TxWrapper) Commit() error {
	return tw.dw.execute(context.Background(), tw.tx.Commit)
}

// Rollback aborts the transaction. It is safe to call after Commit.
func (tw *TxWrapper) Rollback() error {
	err := tw.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// Rebind converts '?' placeholders to the driver's bindvar type
func (dw *DatabaseWrapper) Rebind(query string) string {
	return dw.db.Rebind(query)
}

// DriverName returns the driver the wrapped handle was opened with
func (dw *DatabaseWrapper) DriverName() string {
	return dw.db.DriverName()
}

// Stats returns database statistics
func (dw *DatabaseWrapper) Stats() sql.DBStats {
	return dw.db.Stats()
}

// Close closes the database connection
func (dw *DatabaseWrapper) Close() error {
	return dw.db.Close()
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (dw *DatabaseWrapper) IsCircuitBreakerOpen() bool {
	return dw.cb.State() == StateOpen
}
