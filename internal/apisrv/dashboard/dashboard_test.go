package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmadash/pharmadash-manager/internal/entity"
	"github.com/pharmadash/pharmadash-manager/internal/lifecycle"
	"github.com/pharmadash/pharmadash-manager/internal/query"
)

var (
	periodCurrent = entity.Period{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	periodCompare = entity.Period{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC),
	}
)

// fakeAnalytics serves canned rows and aggregates, optionally blocking every
// call until its context is cancelled to simulate slow queries.
type fakeAnalytics struct {
	blocking  atomic.Bool
	calls     atomic.Int32
	snapshots atomic.Int32

	aggErr error
	agg    map[time.Time]map[string]decimal.Decimal
	sales  map[time.Time][]entity.Row
	stock  []entity.Row
}

func (f *fakeAnalytics) gate(ctx context.Context) error {
	f.calls.Add(1)
	if f.blocking.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeAnalytics) ExecuteAggregate(ctx context.Context, q query.ParameterizedQuery) (entity.AggregateResult, error) {
	if err := f.gate(ctx); err != nil {
		return entity.AggregateResult{}, err
	}
	if f.aggErr != nil {
		return entity.AggregateResult{}, f.aggErr
	}
	res := entity.NewAggregateResult(q.Period)
	for _, name := range q.Metrics {
		res.Set(name, f.agg[q.Period.Start][name])
	}
	return res, nil
}

func (f *fakeAnalytics) SalesRows(ctx context.Context, q query.ParameterizedQuery) ([]entity.Row, error) {
	if err := f.gate(ctx); err != nil {
		return nil, err
	}
	return f.sales[q.Period.Start], nil
}

func (f *fakeAnalytics) StockRows(ctx context.Context, q query.ParameterizedQuery) ([]entity.Row, error) {
	if err := f.gate(ctx); err != nil {
		return nil, err
	}
	return f.stock, nil
}

func (f *fakeAnalytics) StockViewRows(ctx context.Context, salesQ, stockQ query.ParameterizedQuery) ([]entity.Row, []entity.Row, error) {
	f.snapshots.Add(1)
	sales, err := f.SalesRows(ctx, salesQ)
	if err != nil {
		return nil, nil, err
	}
	stock, err := f.StockRows(ctx, stockQ)
	if err != nil {
		return nil, nil, err
	}
	return sales, stock, nil
}

func (f *fakeAnalytics) Pharmacies(ctx context.Context) ([]entity.Pharmacy, error) {
	return []entity.Pharmacy{{ID: "ph-1", Name: "Pharmacie du Centre"}}, nil
}

func salesRow(code string, qty, revenue float64) entity.Row {
	return entity.Row{
		Code13:   code,
		Quantity: decimal.NewFromFloat(qty),
		Revenue:  decimal.NewFromFloat(revenue),
		HasSales: true,
	}
}

func testFake() *fakeAnalytics {
	return &fakeAnalytics{
		agg: map[time.Time]map[string]decimal.Decimal{
			periodCurrent.Start: {
				"revenue":    decimal.NewFromInt(1000),
				"quantity":   decimal.NewFromInt(120),
				"margin":     decimal.NewFromInt(325),
				"margin_pct": decimal.NewFromFloat(32.5),
			},
			periodCompare.Start: {
				"revenue":    decimal.NewFromInt(800),
				"quantity":   decimal.NewFromInt(100),
				"margin":     decimal.NewFromInt(230),
				"margin_pct": decimal.NewFromFloat(28.7),
			},
		},
		sales: map[time.Time][]entity.Row{
			periodCurrent.Start: {salesRow("3400900000001", 31, 1000)},
			periodCompare.Start: {salesRow("3400900000001", 28, 800)},
		},
		stock: []entity.Row{
			{
				Code13:        "3400900000001",
				StockQuantity: decimal.NewFromInt(25),
				StockValue:    decimal.NewFromFloat(180.5),
			},
		},
	}
}

func comparedCriteria(t *testing.T) entity.FilterCriteria {
	t.Helper()
	criteria, err := entity.NewFilterCriteria(periodCurrent, &periodCompare, nil, nil)
	require.NoError(t, err)
	return criteria
}

func primaryOnlyCriteria(t *testing.T) entity.FilterCriteria {
	t.Helper()
	criteria, err := entity.NewFilterCriteria(periodCurrent, nil, nil, nil)
	require.NoError(t, err)
	return criteria
}

func TestRefresh_AllWidgets(t *testing.T) {
	coord := lifecycle.NewCoordinator(lifecycle.Config{})
	srv := New(testFake(), coord)

	d, err := srv.Refresh(context.Background(), comparedCriteria(t))
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.NotEmpty(t, d.RunID)
	assert.Empty(t, d.Errors)

	require.NotNil(t, d.Summary)
	assert.Equal(t, 1000.0, d.Summary.Current["revenue"])
	require.NotNil(t, d.Summary.Comparison)
	rev := d.Summary.Comparison.Evolution["revenue"]
	assert.Equal(t, "+25.0%", rev.DisplayValue)

	assert.Len(t, d.Stock, 5)
	assert.Len(t, d.Margins, 5)
	assert.Len(t, d.PriceDeviation, 5)
	assert.Len(t, d.Evolution, 5)

	assert.Equal(t, lifecycle.Idle, coord.State())
	assert.Equal(t, 0, coord.ActiveCount())
}

func TestRefresh_WidgetErrorDoesNotStallRun(t *testing.T) {
	fake := testFake()
	fake.aggErr = errors.New("connection refused")
	coord := lifecycle.NewCoordinator(lifecycle.Config{})
	srv := New(fake, coord)

	d, err := srv.Refresh(context.Background(), comparedCriteria(t))
	require.NoError(t, err, "one failing widget must not fail the run")
	require.NotNil(t, d)

	assert.Nil(t, d.Summary, "no fabricated values for the failed widget")
	assert.Equal(t, "data unavailable", d.Errors["summary"])

	assert.Len(t, d.Stock, 5)
	assert.Len(t, d.Evolution, 5)

	assert.Equal(t, lifecycle.Idle, coord.State())
	assert.Equal(t, 0, coord.ActiveCount())
}

func TestRefresh_SupersededBySecondTrigger(t *testing.T) {
	fake := testFake()
	fake.blocking.Store(true)
	coord := lifecycle.NewCoordinator(lifecycle.Config{})
	srv := New(fake, coord)

	type outcome struct {
		d   *Dashboard
		err error
	}
	firstDone := make(chan outcome, 1)
	go func() {
		d, err := srv.Refresh(context.Background(), comparedCriteria(t))
		firstDone <- outcome{d, err}
	}()

	require.Eventually(t, func() bool {
		return fake.calls.Load() > 0
	}, time.Second, time.Millisecond, "first run never reached the store")

	fake.blocking.Store(false)
	second, err := srv.Refresh(context.Background(), comparedCriteria(t))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Empty(t, second.Errors)

	first := <-firstDone
	assert.ErrorIs(t, first.err, context.Canceled, "superseded run ends silently")
	assert.Nil(t, first.d, "no partial result from a superseded run")

	assert.NotEqual(t, lifecycle.Running, coord.State())
}

func TestStockTiers_CoverageMonths(t *testing.T) {
	// 31 units over a 31 day period is one unit a day; 25 in stock is under a
	// month of coverage
	fake := testFake()
	srv := New(fake, lifecycle.NewCoordinator(lifecycle.Config{}))

	out, err := srv.StockTiers(context.Background(), primaryOnlyCriteria(t))
	require.NoError(t, err)

	require.Len(t, out["critical-low"], 1)
	row := out["critical-low"][0]
	assert.Equal(t, "3400900000001", row.Code13)
	require.NotNil(t, row.StockMonths)
	assert.InDelta(t, 0.82, *row.StockMonths, 0.01)
	assert.Equal(t, 180.5, row.StockValue, "stock valuation carried into the view")

	assert.Equal(t, int32(1), fake.snapshots.Load(),
		"sales and stock rows come from one snapshot read, not two independent queries")
}

func TestStockTiers_DormantStockDefaultsToOverstock(t *testing.T) {
	fake := testFake()
	fake.stock = append(fake.stock, entity.Row{
		Code13:        "3400900000002",
		StockQuantity: decimal.NewFromInt(40),
	})
	srv := New(fake, lifecycle.NewCoordinator(lifecycle.Config{}))

	out, err := srv.StockTiers(context.Background(), primaryOnlyCriteria(t))
	require.NoError(t, err)

	require.Len(t, out["overstock"], 1)
	assert.Equal(t, "3400900000002", out["overstock"][0].Code13)
	assert.Nil(t, out["overstock"][0].StockMonths, "coverage undefined without sales")
}

func TestMarginTiers_ExcludesZeroRevenue(t *testing.T) {
	fake := testFake()
	fake.sales[periodCurrent.Start] = []entity.Row{
		{
			Code13:    "3400900000001",
			Quantity:  decimal.NewFromInt(10),
			Revenue:   decimal.NewFromInt(100),
			MarginPct: decimal.NewFromFloat(28.0),
			HasSales:  true,
		},
		{Code13: "3400900000003", HasSales: true},
	}
	srv := New(fake, lifecycle.NewCoordinator(lifecycle.Config{}))

	out, err := srv.MarginTiers(context.Background(), primaryOnlyCriteria(t))
	require.NoError(t, err)

	require.Len(t, out["good"], 1)
	assert.Equal(t, "3400900000001", out["good"][0].Code13)

	total := 0
	for _, rows := range out {
		total += len(rows)
	}
	assert.Equal(t, 1, total, "no margin ratio without revenue")
}

func TestPriceDeviationTiers(t *testing.T) {
	fake := testFake()
	fake.sales[periodCurrent.Start] = []entity.Row{
		{
			Code13:         "3400900000001",
			UnitPrice:      decimal.NewFromFloat(10.4),
			ReferencePrice: decimal.NewFromInt(10),
			HasSales:       true,
		},
		{
			Code13:    "3400900000004",
			UnitPrice: decimal.NewFromFloat(9.9),
			HasSales:  true,
		},
	}
	srv := New(fake, lifecycle.NewCoordinator(lifecycle.Config{}))

	out, err := srv.PriceDeviationTiers(context.Background(), primaryOnlyCriteria(t))
	require.NoError(t, err)

	require.Len(t, out["high"], 1)
	row := out["high"][0]
	assert.Equal(t, "3400900000001", row.Code13)
	require.NotNil(t, row.PriceDeviationPct)
	assert.InDelta(t, 4.0, *row.PriceDeviationPct, 0.001)

	total := 0
	for _, rows := range out {
		total += len(rows)
	}
	assert.Equal(t, 1, total, "no deviation without a reference price")
}

func TestEvolutionTiers(t *testing.T) {
	fake := testFake()
	fake.sales = map[time.Time][]entity.Row{
		periodCurrent.Start: {
			salesRow("3400900000001", 31, 1000),
			salesRow("3400900000005", 5, 50),
		},
		periodCompare.Start: {
			salesRow("3400900000001", 28, 800),
			salesRow("3400900000006", 12, 120),
		},
	}
	srv := New(fake, lifecycle.NewCoordinator(lifecycle.Config{}))

	out, err := srv.EvolutionTiers(context.Background(), comparedCriteria(t))
	require.NoError(t, err)

	require.Len(t, out["strong-increase"], 1)
	assert.Equal(t, "3400900000001", out["strong-increase"][0].Code13)

	// a product new in the current period has no base to grow from; the
	// zero-denominator policy reads its evolution as 0, hence stable
	require.Len(t, out["stable"], 1)
	assert.Equal(t, "3400900000005", out["stable"][0].Code13)

	require.Len(t, out["strong-decrease"], 1)
	assert.Equal(t, "3400900000006", out["strong-decrease"][0].Code13)
	require.NotNil(t, out["strong-decrease"][0].EvolutionPct)
	assert.Equal(t, -100.0, *out["strong-decrease"][0].EvolutionPct)
}

func TestEvolutionTiers_NoComparisonPeriod(t *testing.T) {
	srv := New(testFake(), lifecycle.NewCoordinator(lifecycle.Config{}))

	out, err := srv.EvolutionTiers(context.Background(), primaryOnlyCriteria(t))
	require.NoError(t, err)

	require.Len(t, out, 5, "every tier key present, honestly empty")
	for name, rows := range out {
		assert.Empty(t, rows, "tier %s", name)
	}
}
