package entity

import "github.com/shopspring/decimal"

// Row is one per-product line of a bucketed dashboard view. Which numeric
// fields are populated depends on the view; the classification key is always
// derived through a key function, so unused fields stay zero.
type Row struct {
	Code13 string
	Name   string

	Quantity decimal.Decimal
	Revenue  decimal.Decimal
	Margin   decimal.Decimal

	MarginPct     decimal.Decimal
	StockQuantity decimal.Decimal
	StockValue    decimal.Decimal
	StockMonths   decimal.Decimal

	UnitPrice      decimal.Decimal
	ReferencePrice decimal.Decimal
	// PriceDeviationPct is the pharmacy price deviation from the catalog
	// reference price, in percent.
	PriceDeviationPct decimal.Decimal

	EvolutionPct decimal.Decimal

	// HasSales distinguishes "sold zero in period" from "never sold": rows
	// without sales have undefined stock-months and evolution keys.
	HasSales bool
}
