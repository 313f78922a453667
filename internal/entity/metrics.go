package entity

import (
	"github.com/shopspring/decimal"
)

// MetricKind controls how an evolution between two periods is expressed.
type MetricKind int

const (
	// MetricKindAdditive metrics (revenue, quantity) evolve as a percentage
	// of the comparison value.
	MetricKindAdditive MetricKind = iota
	// MetricKindRatio metrics (margin %) evolve as a raw point difference,
	// never a percentage of a percentage.
	MetricKindRatio
)

// AggregateResult maps metric names to values computed over one period.
// Missing or NULL aggregates read as zero.
type AggregateResult struct {
	Period Period
	Values map[string]decimal.Decimal
}

func NewAggregateResult(period Period) AggregateResult {
	return AggregateResult{
		Period: period,
		Values: map[string]decimal.Decimal{},
	}
}

// Get returns the value of metric name, defaulting to zero.
func (r AggregateResult) Get(name string) decimal.Decimal {
	if r.Values == nil {
		return decimal.Zero
	}
	return r.Values[name]
}

func (r AggregateResult) Set(name string, v decimal.Decimal) {
	r.Values[name] = v
}

// Merge copies all values of other into r. Used to combine the independent
// per-join-group queries of one period into a single result.
func (r AggregateResult) Merge(other AggregateResult) {
	for k, v := range other.Values {
		r.Values[k] = v
	}
}

// Evolution describes the current-vs-comparison change of one metric.
// Additive metrics populate Absolute and Percentage, ratio metrics Points.
type Evolution struct {
	Absolute   decimal.Decimal
	Percentage decimal.Decimal
	Points     decimal.Decimal
	IsPositive bool
	Display    string
}

// ComparisonResult bundles the two period aggregates with the derived
// evolution per metric. Comparison is nil when no comparison period was
// requested; Evolution then holds neutral zero values.
type ComparisonResult struct {
	Current    AggregateResult
	Comparison *AggregateResult
	Evolution  map[string]Evolution
}
