// Package repository хранит пользователей, интересы и предложения в PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const connectTimeout = 10 * time.Second

// PgxPool описывает часть пула соединений, нужную репозиторию.
// Ему удовлетворяют *pgxpool.Pool и pgxmock.PgxPoolIface.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type scanner interface {
	Scan(dest ...any) error
}

// PostgresRepository реализует хранилище сервиса поверх пула pgx.
type PostgresRepository struct {
	pool        PgxPool
	retryDelays []time.Duration
}

// NewPostgresRepository подключается к БД по dsn и применяет миграции.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err = pool.Ping(connectCtx); err == nil {
		err = migrate(connectCtx, pool)
	}
	if err != nil {
		pool.Close()
		return nil, err
	}

	return NewPostgresRepositoryWithPool(pool), nil
}

// NewPostgresRepositoryWithPool оборачивает готовый пул. Миграции не запускаются.
func NewPostgresRepositoryWithPool(pool PgxPool) *PostgresRepository {
	return &PostgresRepository{
		pool:        pool,
		retryDelays: []time.Duration{time.Second, 3 * time.Second, 5 * time.Second},
	}
}

// Close освобождает соединения пула.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// withRetry вызывает fn повторно, пока ошибка временная и не исчерпаны задержки.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	for _, delay := range r.retryDelays {
		if err == nil || !transient(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		err = fn()
	}
	return err
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.SerializationFailure,
			pgErr.Code == pgerrcode.DeadlockDetected,
			pgerrcode.IsConnectionException(pgErr.Code):
			return true
		}
		return false
	}

	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr) || pgconn.SafeToRetry(err)
}

func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// inTx выполняет fn в транзакции: откатывает её при ошибке и фиксирует иначе.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
