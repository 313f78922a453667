package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pharmadash/pharmadash-manager/internal/dependency"
	"github.com/pharmadash/pharmadash-manager/internal/entity"
	gerr "github.com/pharmadash/pharmadash-manager/internal/errors"
	"github.com/pharmadash/pharmadash-manager/internal/query"
)

type analyticsStore struct {
	*MYSQLStore
}

// Analytics returns an object implementing the Analytics interface
func (ms *MYSQLStore) Analytics() dependency.Analytics {
	return &analyticsStore{
		MYSQLStore: ms,
	}
}

// ExecuteAggregate runs one builder-produced aggregate query. The result row
// carries one column per metric; NULL and missing columns read as zero.
func (ms *analyticsStore) ExecuteAggregate(ctx context.Context, q query.ParameterizedQuery) (entity.AggregateResult, error) {
	sqlStr, args, err := q.Expand()
	if err != nil {
		return entity.AggregateResult{}, fmt.Errorf("expand: %w", err)
	}

	row := ms.DB().QueryRowxContext(ctx, sqlStr, args...)
	values := map[string]any{}
	if err := row.MapScan(values); err != nil {
		return entity.AggregateResult{}, gerr.ExecutionFailed("aggregate", err)
	}

	res := entity.NewAggregateResult(q.Period)
	for _, name := range q.Metrics {
		v, err := toDecimal(values[name])
		if err != nil {
			return entity.AggregateResult{}, fmt.Errorf("metric %q: %w", name, err)
		}
		res.Set(name, v)
	}
	return res, nil
}

// salesRowRecord matches the column aliases of query.BuildSalesRows.
type salesRowRecord struct {
	Code13         string          `db:"code13"`
	Name           string          `db:"name"`
	Quantity       decimal.Decimal `db:"quantity"`
	Revenue        decimal.Decimal `db:"revenue"`
	Margin         decimal.Decimal `db:"margin"`
	MarginPct      decimal.Decimal `db:"margin_pct"`
	UnitPrice      decimal.Decimal `db:"unit_price"`
	ReferencePrice decimal.Decimal `db:"reference_price"`
}

func (ms *analyticsStore) SalesRows(ctx context.Context, q query.ParameterizedQuery) ([]entity.Row, error) {
	records, err := queryRows[salesRowRecord](ctx, ms.DB(), q)
	if err != nil {
		return nil, gerr.ExecutionFailed("sales rows", err)
	}

	rows := make([]entity.Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, entity.Row{
			Code13:         r.Code13,
			Name:           r.Name,
			Quantity:       r.Quantity,
			Revenue:        r.Revenue,
			Margin:         r.Margin,
			MarginPct:      r.MarginPct,
			UnitPrice:      r.UnitPrice,
			ReferencePrice: r.ReferencePrice,
			HasSales:       r.Quantity.GreaterThan(decimal.Zero),
		})
	}
	return rows, nil
}

type stockRowRecord struct {
	Code13        string          `db:"code13"`
	Name          string          `db:"name"`
	StockQuantity decimal.Decimal `db:"stock_quantity"`
	StockValue    decimal.Decimal `db:"stock_value"`
}

func (ms *analyticsStore) StockRows(ctx context.Context, q query.ParameterizedQuery) ([]entity.Row, error) {
	records, err := queryRows[stockRowRecord](ctx, ms.DB(), q)
	if err != nil {
		return nil, gerr.ExecutionFailed("stock rows", err)
	}

	rows := make([]entity.Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, entity.Row{
			Code13:        r.Code13,
			Name:          r.Name,
			StockQuantity: r.StockQuantity,
			StockValue:    r.StockValue,
		})
	}
	return rows, nil
}

// StockViewRows reads both row sets of the stock view in one serializable
// transaction. Deadlock retries rerun the whole pair, never half of it.
func (ms *analyticsStore) StockViewRows(ctx context.Context, salesQ, stockQ query.ParameterizedQuery) (sales, stock []entity.Row, err error) {
	err = ms.Tx(ctx, func(ctx context.Context, rep dependency.Repository) error {
		var txErr error
		sales, txErr = rep.Analytics().SalesRows(ctx, salesQ)
		if txErr != nil {
			return txErr
		}
		stock, txErr = rep.Analytics().StockRows(ctx, stockQ)
		return txErr
	})
	if err != nil {
		return nil, nil, err
	}
	return sales, stock, nil
}

func (ms *analyticsStore) Pharmacies(ctx context.Context) ([]entity.Pharmacy, error) {
	pharmacies, err := QueryListNamed[entity.Pharmacy](ctx, ms.DB(), `SELECT id, name FROM pharmacy ORDER BY name`, map[string]any{})
	if err != nil {
		return nil, gerr.ExecutionFailed("pharmacies", err)
	}
	return pharmacies, nil
}

// queryRows expands a builder query and scans every row into T. The rows
// handle is released on every exit path.
func queryRows[T any](ctx context.Context, conn dependency.DB, q query.ParameterizedQuery) ([]T, error) {
	sqlStr, args, err := q.Expand()
	if err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}

	rows, err := conn.QueryxContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query context: %w", err)
	}
	defer rows.Close()

	var target []T
	for rows.Next() {
		var t T
		if err := rows.StructScan(&t); err != nil {
			return nil, fmt.Errorf("struct scan: %w", err)
		}
		target = append(target, t)
	}
	return target, rows.Err()
}

// toDecimal converts the loosely-typed values MapScan yields for aggregate
// columns. NULL reads as zero, never as an error.
func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, nil
	case []byte:
		d, err := decimal.NewFromString(string(t))
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse %q: %w", string(t), err)
		}
		return d, nil
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse %q: %w", t, err)
		}
		return d, nil
	case int64:
		return decimal.NewFromInt(t), nil
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported aggregate type %T", v)
	}
}
