package dashboard

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/pharmadash/pharmadash-manager/internal/buckets"
	"github.com/pharmadash/pharmadash-manager/internal/comparison"
	"github.com/pharmadash/pharmadash-manager/internal/dependency"
	"github.com/pharmadash/pharmadash-manager/internal/dto"
	"github.com/pharmadash/pharmadash-manager/internal/entity"
	"github.com/pharmadash/pharmadash-manager/internal/lifecycle"
	"github.com/pharmadash/pharmadash-manager/internal/query"
)

// ratioMetrics marks the summary metrics whose evolution is a point
// difference rather than a percentage.
var ratioMetrics = map[string]bool{
	query.MetricMarginPct.Name: true,
}

// Server implements the dashboard widgets on top of the analytics store, the
// comparison engine and the run lifecycle coordinator.
type Server struct {
	analytics dependency.Analytics
	engine    *comparison.Engine
	coord     *lifecycle.Coordinator
}

func New(analytics dependency.Analytics, coord *lifecycle.Coordinator) *Server {
	return &Server{
		analytics: analytics,
		engine:    comparison.New(analytics),
		coord:     coord,
	}
}

// Summary computes the KPI header: revenue, quantity, margin and margin %
// for the primary period, with evolutions against the comparison period.
func (s *Server) Summary(ctx context.Context, criteria entity.FilterCriteria) (*dto.SummaryResponse, error) {
	res, err := s.engine.Compare(ctx, query.SummaryMetrics, criteria)
	if err != nil {
		return nil, fmt.Errorf("compare summary: %w", err)
	}
	out := dto.ConvertComparisonResult(res, ratioMetrics)
	return &out, nil
}

// StockTiers joins the period's sell-out rates with the stock snapshots and
// tiers each product by months of coverage. Products with stock but no sales
// in the period have an undefined coverage and fall into the spec's default
// bucket.
func (s *Server) StockTiers(ctx context.Context, criteria entity.FilterCriteria) (dto.BucketedResponse, error) {
	salesQ, err := query.BuildSalesRows(criteria, nil, false)
	if err != nil {
		return nil, fmt.Errorf("build sales rows: %w", err)
	}
	stockQ, err := query.BuildStockRows(criteria)
	if err != nil {
		return nil, fmt.Errorf("build stock rows: %w", err)
	}

	salesRows, stockRows, err := s.analytics.StockViewRows(ctx, salesQ, stockQ)
	if err != nil {
		return nil, err
	}

	rows := joinStock(salesRows, stockRows, criteria.Primary().Months())
	result := buckets.StockMonths.Classify(rows, func(r entity.Row) (float64, bool) {
		if !r.HasSales {
			return 0, false
		}
		v, _ := r.StockMonths.Float64()
		return v, true
	})
	return dto.ConvertBuckets(result.ToMap()), nil
}

// MarginTiers tiers the period's products by margin percentage. Products
// without revenue have no margin ratio and are excluded.
func (s *Server) MarginTiers(ctx context.Context, criteria entity.FilterCriteria) (dto.BucketedResponse, error) {
	q, err := query.BuildSalesRows(criteria, nil, false)
	if err != nil {
		return nil, fmt.Errorf("build sales rows: %w", err)
	}
	rows, err := s.analytics.SalesRows(ctx, q)
	if err != nil {
		return nil, err
	}
	result := buckets.Margin.Classify(rows, func(r entity.Row) (float64, bool) {
		if !r.HasSales || r.Revenue.IsZero() {
			return 0, false
		}
		v, _ := r.MarginPct.Float64()
		return v, true
	})
	return dto.ConvertBuckets(result.ToMap()), nil
}

// PriceDeviationTiers tiers products by the deviation of their average
// selling price from the catalog reference price. Products without a
// reference price are excluded.
func (s *Server) PriceDeviationTiers(ctx context.Context, criteria entity.FilterCriteria) (dto.BucketedResponse, error) {
	q, err := query.BuildSalesRows(criteria, nil, true)
	if err != nil {
		return nil, fmt.Errorf("build sales rows: %w", err)
	}
	rows, err := s.analytics.SalesRows(ctx, q)
	if err != nil {
		return nil, err
	}

	hundred := decimal.NewFromInt(100)
	for i := range rows {
		if rows[i].ReferencePrice.IsZero() {
			continue
		}
		rows[i].PriceDeviationPct = rows[i].UnitPrice.Sub(rows[i].ReferencePrice).
			Div(rows[i].ReferencePrice).Mul(hundred)
	}

	result := buckets.PriceDeviation.Classify(rows, func(r entity.Row) (float64, bool) {
		if r.ReferencePrice.IsZero() {
			return 0, false
		}
		v, _ := r.PriceDeviationPct.Float64()
		return v, true
	})
	return dto.ConvertBuckets(result.ToMap()), nil
}

// EvolutionTiers tiers products by their revenue evolution between the two
// periods. Without a comparison period every key is undefined and the tiers
// come back honestly empty.
func (s *Server) EvolutionTiers(ctx context.Context, criteria entity.FilterCriteria) (dto.BucketedResponse, error) {
	currentQ, err := query.BuildSalesRows(criteria, nil, false)
	if err != nil {
		return nil, fmt.Errorf("build current rows: %w", err)
	}
	current, err := s.analytics.SalesRows(ctx, currentQ)
	if err != nil {
		return nil, err
	}

	comparePeriod, ok := criteria.Comparison()
	if !ok {
		empty := buckets.Evolution.Classify(nil, func(entity.Row) (float64, bool) { return 0, false })
		return dto.ConvertBuckets(empty.ToMap()), nil
	}

	compareQ, err := query.BuildSalesRows(criteria, &comparePeriod, false)
	if err != nil {
		return nil, fmt.Errorf("build comparison rows: %w", err)
	}
	compare, err := s.analytics.SalesRows(ctx, compareQ)
	if err != nil {
		return nil, err
	}

	rows := evolutionRows(current, compare)
	result := buckets.Evolution.Classify(rows, func(r entity.Row) (float64, bool) {
		if !r.HasSales {
			return 0, false
		}
		v, _ := r.EvolutionPct.Float64()
		return v, true
	})
	return dto.ConvertBuckets(result.ToMap()), nil
}

// joinStock merges per-product sales and stock rows and derives stock-months
// from the extrapolated monthly sales rate.
func joinStock(sales, stock []entity.Row, months float64) []entity.Row {
	byCode := make(map[string]int, len(sales))
	out := make([]entity.Row, 0, len(sales)+len(stock))
	for _, r := range sales {
		byCode[r.Code13] = len(out)
		out = append(out, r)
	}
	for _, st := range stock {
		if i, ok := byCode[st.Code13]; ok {
			out[i].StockQuantity = st.StockQuantity
			out[i].StockValue = st.StockValue
			continue
		}
		out = append(out, st)
	}

	if months <= 0 {
		return out
	}
	m := decimal.NewFromFloat(months)
	for i := range out {
		if !out[i].HasSales || out[i].Quantity.IsZero() {
			continue
		}
		monthlyRate := out[i].Quantity.Div(m)
		out[i].StockMonths = out[i].StockQuantity.Div(monthlyRate)
	}
	return out
}

// evolutionRows unions the two period row sets by product code and derives
// the revenue evolution with the engine's zero-denominator policy.
func evolutionRows(current, compare []entity.Row) []entity.Row {
	compareByCode := make(map[string]entity.Row, len(compare))
	for _, r := range compare {
		compareByCode[r.Code13] = r
	}

	seen := make(map[string]struct{}, len(current))
	out := make([]entity.Row, 0, len(current)+len(compare))
	for _, r := range current {
		seen[r.Code13] = struct{}{}
		prev := compareByCode[r.Code13]
		ev := comparison.Evolve(entity.MetricKindAdditive, r.Revenue, prev.Revenue)
		r.EvolutionPct = ev.Percentage
		r.HasSales = true
		out = append(out, r)
	}
	// products sold only in the comparison period register a full decrease
	for _, r := range compare {
		if _, ok := seen[r.Code13]; ok {
			continue
		}
		ev := comparison.Evolve(entity.MetricKindAdditive, decimal.Zero, r.Revenue)
		out = append(out, entity.Row{
			Code13:       r.Code13,
			Name:         r.Name,
			EvolutionPct: ev.Percentage,
			HasSales:     true,
		})
	}
	return out
}

// widget names used for per-widget error reporting.
const (
	widgetSummary        = "summary"
	widgetStock          = "stock"
	widgetMargins        = "margins"
	widgetPriceDeviation = "priceDeviation"
	widgetEvolution      = "evolution"
)

// Dashboard is the result of one full refresh run. Widgets that failed carry
// a "data unavailable" message in Errors instead of fabricated values.
type Dashboard struct {
	RunID          string               `json:"runId"`
	Summary        *dto.SummaryResponse `json:"summary,omitempty"`
	Stock          dto.BucketedResponse `json:"stock,omitempty"`
	Margins        dto.BucketedResponse `json:"margins,omitempty"`
	PriceDeviation dto.BucketedResponse `json:"priceDeviation,omitempty"`
	Evolution      dto.BucketedResponse `json:"evolution,omitempty"`
	Errors         map[string]string    `json:"errors,omitempty"`
}

// Refresh runs every widget concurrently under one freshly triggered run.
// Triggering supersedes any previous in-flight run: its fetches observe
// cancellation and commit nothing. A refresh that is itself superseded
// returns context.Canceled with no result.
func (s *Server) Refresh(ctx context.Context, criteria entity.FilterCriteria) (*Dashboard, error) {
	token := s.coord.TriggerRun(ctx)
	run := newRunState(token)

	run.fetch(s.coord, widgetSummary, func(fctx context.Context) (any, error) {
		return s.Summary(fctx, criteria)
	})
	run.fetch(s.coord, widgetStock, func(fctx context.Context) (any, error) {
		return s.StockTiers(fctx, criteria)
	})
	run.fetch(s.coord, widgetMargins, func(fctx context.Context) (any, error) {
		return s.MarginTiers(fctx, criteria)
	})
	run.fetch(s.coord, widgetPriceDeviation, func(fctx context.Context) (any, error) {
		return s.PriceDeviationTiers(fctx, criteria)
	})
	run.fetch(s.coord, widgetEvolution, func(fctx context.Context) (any, error) {
		return s.EvolutionTiers(fctx, criteria)
	})

	return run.wait(s.coord)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func logWidgetError(ctx context.Context, widget string, err error) {
	slog.Default().ErrorContext(ctx, "widget fetch failed",
		slog.String("widget", widget),
		slog.String("err", err.Error()),
	)
}
