package comparison

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pharmadash/pharmadash-manager/internal/entity"
	"github.com/pharmadash/pharmadash-manager/internal/query"
)

// Executor runs one parameterized aggregate query against the store and
// returns its period-tagged result.
type Executor interface {
	ExecuteAggregate(ctx context.Context, q query.ParameterizedQuery) (entity.AggregateResult, error)
}

// Engine computes current-vs-comparison aggregates. The two period
// executions are independent and share every predicate except the date
// bounds, so the results differ only by time.
type Engine struct {
	exec Executor
}

func New(exec Executor) *Engine {
	return &Engine{exec: exec}
}

// Compare executes metrics over the criteria's primary period and, when a
// comparison period is present, over that period as well, then derives the
// evolution per metric. Without a comparison period the evolution map holds
// neutral zero values; a comparison period is never fabricated.
func (e *Engine) Compare(ctx context.Context, metrics []query.MetricDefinition, criteria entity.FilterCriteria) (*entity.ComparisonResult, error) {
	current, err := e.aggregate(ctx, metrics, criteria, nil)
	if err != nil {
		return nil, fmt.Errorf("current period: %w", err)
	}

	res := &entity.ComparisonResult{
		Current:   current,
		Evolution: map[string]entity.Evolution{},
	}

	comparePeriod, ok := criteria.Comparison()
	if !ok {
		for _, m := range metrics {
			res.Evolution[m.Name] = neutralEvolution(m.Kind)
		}
		return res, nil
	}

	compare, err := e.aggregate(ctx, metrics, criteria, &comparePeriod)
	if err != nil {
		return nil, fmt.Errorf("comparison period: %w", err)
	}
	res.Comparison = &compare

	for _, m := range metrics {
		res.Evolution[m.Name] = Evolve(m.Kind, current.Get(m.Name), compare.Get(m.Name))
	}
	return res, nil
}

// aggregate builds the (possibly several, join-incompatible) queries for one
// period and executes them concurrently, merging into a single result.
func (e *Engine) aggregate(ctx context.Context, metrics []query.MetricDefinition, criteria entity.FilterCriteria, periodOverride *entity.Period) (entity.AggregateResult, error) {
	queries, err := query.Build(metrics, criteria, periodOverride)
	if err != nil {
		return entity.AggregateResult{}, fmt.Errorf("build: %w", err)
	}

	period := criteria.Primary()
	if periodOverride != nil {
		period = *periodOverride
	}
	merged := entity.NewAggregateResult(period)

	partials := make([]entity.AggregateResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			r, err := e.exec.ExecuteAggregate(gctx, q)
			if err != nil {
				return err
			}
			partials[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return entity.AggregateResult{}, err
	}
	for _, p := range partials {
		merged.Merge(p)
	}
	return merged, nil
}

// Evolve derives the evolution of one metric between two period values.
//
// Additive metrics: percentage change of the comparison value, with the
// zero-denominator policy percentage == 0 (never NaN or Inf) and
// isPositive == current > 0.
// Ratio metrics: raw point difference, never a percentage of a percentage.
func Evolve(kind entity.MetricKind, current, compare decimal.Decimal) entity.Evolution {
	if kind == entity.MetricKindRatio {
		points := current.Sub(compare)
		return entity.Evolution{
			Points:     points,
			IsPositive: points.GreaterThanOrEqual(decimal.Zero),
			Display:    signedFixed(points, 1) + " pts",
		}
	}

	abs := current.Sub(compare)
	ev := entity.Evolution{Absolute: abs}
	if compare.IsZero() {
		ev.Percentage = decimal.Zero
		ev.IsPositive = current.GreaterThan(decimal.Zero)
	} else {
		ev.Percentage = abs.Div(compare).Mul(decimal.NewFromInt(100))
		ev.IsPositive = ev.Percentage.GreaterThanOrEqual(decimal.Zero)
	}
	ev.Display = signedFixed(ev.Percentage, 1) + "%"
	return ev
}

func neutralEvolution(kind entity.MetricKind) entity.Evolution {
	if kind == entity.MetricKindRatio {
		return entity.Evolution{Display: "+0.0 pts", IsPositive: true}
	}
	return entity.Evolution{Display: "+0.0%", IsPositive: true}
}

// signedFixed renders v with an explicit leading sign and fixed decimals,
// "+25.0" / "-3.2".
func signedFixed(v decimal.Decimal, places int32) string {
	s := v.StringFixed(places)
	if v.GreaterThanOrEqual(decimal.Zero) {
		return "+" + s
	}
	return s
}
