package buckets

import "math"

// Standard tier tables used across the dashboard. Each scheme is one
// declarative table consumed by the one classifier; thresholds live here and
// nowhere else.

var negInf = math.Inf(-1)
var posInf = math.Inf(1)

// StockMonths tiers stock coverage in months of extrapolated sales.
// Products without sales in the period have an undefined coverage and land
// in "overstock": stock that does not move is the no-stockout-risk end of
// this scheme.
var StockMonths = MustSpec("stock_months", []Bucket{
	{Name: "critical-low", Lower: negInf, Upper: 1},
	{Name: "low", Lower: 1, Upper: 3},
	{Name: "balanced", Lower: 3, Upper: 6},
	{Name: "high", Lower: 6, Upper: 12},
	{Name: "overstock", Lower: 12, Upper: posInf},
}, "overstock")

// Margin tiers margin percentage. Products without sales have no margin and
// are excluded rather than guessed.
var Margin = MustSpec("margin", []Bucket{
	{Name: "negative", Lower: negInf, Upper: 0},
	{Name: "low", Lower: 0, Upper: 15},
	{Name: "medium", Lower: 15, Upper: 25},
	{Name: "good", Lower: 25, Upper: 35},
	{Name: "excellent", Lower: 35, Upper: posInf},
}, "")

// PriceDeviation tiers the deviation of the pharmacy selling price from the
// catalog reference price, in percent. Products without a reference price
// are excluded.
var PriceDeviation = MustSpec("price_deviation", []Bucket{
	{Name: "very-low", Lower: negInf, Upper: -10},
	{Name: "low", Lower: -10, Upper: -3},
	{Name: "aligned", Lower: -3, Upper: 3},
	{Name: "high", Lower: 3, Upper: 10},
	{Name: "very-high", Lower: 10, Upper: posInf},
}, "")

// Evolution tiers the sales evolution percentage. "stable" owns both of its
// boundaries so the scheme stays symmetric: -5 and +5 are stable, -15 falls
// in slight-decrease and +15 in slight-increase.
var Evolution = MustSpec("evolution", []Bucket{
	{Name: "strong-decrease", Lower: negInf, Upper: -15},
	{Name: "slight-decrease", Lower: -15, Upper: -5},
	{Name: "stable", Lower: -5, Upper: 5, IncludeUpper: true},
	{Name: "slight-increase", Lower: 5, Upper: 15, IncludeUpper: true},
	{Name: "strong-increase", Lower: 15, Upper: posInf},
}, "")
