package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/irsalhamdi/storefront/config"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

var (
	ErrDBNotFound        = sql.ErrNoRows
	ErrDBDuplicatedEntry = errors.New("duplicated entry")
	ErrDBMissingRef      = errors.New("referenced row does not exist")
	ErrDBCheckViolation  = errors.New("check constraint violated")
)

func Open(cfg config.DB) (*sqlx.DB, error) {
	sslMode := "require"
	if cfg.DisableTLS {
		sslMode = "disable"
	}

	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host,
		Path:     cfg.Name,
		RawQuery: q.Encode(),
	}

	db, err := sqlx.Open("postgres", u.String())
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	return db, nil
}

func StatusCheck(ctx context.Context, db *sqlx.DB) error {
	var tmp bool
	return db.QueryRowContext(ctx, `SELECT true`).Scan(&tmp)
}

// Transaction runs fn inside a transaction, committing when fn returns nil
// and rolling back otherwise.
func Transaction(ctx context.Context, db *sqlx.DB, fn func(sqlx.ExtContext) error) error {
	return TransactionOpts(ctx, db, nil, fn)
}

func TransactionOpts(ctx context.Context, db *sqlx.DB, opts *sql.TxOptions, fn func(sqlx.ExtContext) error) error {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("rollback: %v: %w", rerr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Snapshot runs fn inside a read only repeatable read transaction so every
// query observes the same state.
func Snapshot(ctx context.Context, db *sqlx.DB, fn func(sqlx.ExtContext) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	return TransactionOpts(ctx, db, opts, fn)
}

// NamedExecContext executes a named query and translates postgres
// constraint violations into the package errors.
func NamedExecContext(ctx context.Context, db sqlx.ExtContext, query string, data any) (sql.Result, error) {
	res, err := sqlx.NamedExecContext(ctx, db, query, data)
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}

func ExecContext(ctx context.Context, db sqlx.ExtContext, query string, args ...any) (sql.Result, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}

// NamedReturning executes an INSERT .. RETURNING named query and scans the
// single returned column into dest.
func NamedReturning(ctx context.Context, db sqlx.ExtContext, query string, data any, dest any) error {
	q, args, err := db.BindNamed(query, data)
	if err != nil {
		return fmt.Errorf("binding named query: %w", err)
	}

	if err := db.QueryRowxContext(ctx, q, args...).Scan(dest); err != nil {
		return translate(err)
	}
	return nil
}

func GetContext(ctx context.Context, db sqlx.ExtContext, dest any, query string, args ...any) error {
	if err := sqlx.GetContext(ctx, db, dest, query, args...); err != nil {
		return translate(err)
	}
	return nil
}

func SelectContext(ctx context.Context, db sqlx.ExtContext, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, db, dest, query, args...)
}

func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDBNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", pqErr.Constraint, ErrDBDuplicatedEntry)
		case foreignKeyViolation:
			return fmt.Errorf("%s: %w", pqErr.Constraint, ErrDBMissingRef)
		case checkViolation:
			return fmt.Errorf("%s: %w", pqErr.Constraint, ErrDBCheckViolation)
		}
	}
	return err
}
