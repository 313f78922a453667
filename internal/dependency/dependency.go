package dependency

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pharmadash/pharmadash-manager/internal/entity"
	"github.com/pharmadash/pharmadash-manager/internal/query"
)

type (
	// Analytics executes the engine's parameterized queries against the
	// relational store.
	Analytics interface {
		// ExecuteAggregate runs one aggregate query and returns its
		// period-tagged metric values, NULLs defaulted to zero.
		ExecuteAggregate(ctx context.Context, q query.ParameterizedQuery) (entity.AggregateResult, error)
		// SalesRows runs a per-product sell-out row query.
		SalesRows(ctx context.Context, q query.ParameterizedQuery) ([]entity.Row, error)
		// StockRows runs a per-product stock row query.
		StockRows(ctx context.Context, q query.ParameterizedQuery) ([]entity.Row, error)
		// StockViewRows runs the sales and stock row queries of one stock
		// view inside a single transaction, so coverage is derived from one
		// consistent snapshot.
		StockViewRows(ctx context.Context, salesQ, stockQ query.ParameterizedQuery) (sales, stock []entity.Row, err error)
		// Pharmacies lists the known pharmacy ids, used to validate filter
		// input at the boundary.
		Pharmacies(ctx context.Context) ([]entity.Pharmacy, error)
	}

	Repository interface {
		Analytics() Analytics
		Tx(ctx context.Context, f func(context.Context, Repository) error) error
		TxBegin(ctx context.Context) (Repository, error)
		TxCommit(ctx context.Context) error
		TxRollback(ctx context.Context) error
		Now() time.Time
		InTx() bool
		Close()
		Ping(ctx context.Context) error
		DB() DB
	}

	// DB represents database interface.
	DB interface {
		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

		// sqlx methods
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
		QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}
)
