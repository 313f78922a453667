package query

import (
	"fmt"

	"github.com/pharmadash/pharmadash-manager/internal/entity"
	gerr "github.com/pharmadash/pharmadash-manager/internal/errors"
)

// Source is the base table an aggregate reads from. Sell-out metrics come
// from sale, stock metrics from inventory_snapshot, sell-in metrics from
// purchase. Metrics on different sources never share a query.
type Source int

const (
	SourceSales Source = iota
	SourceStock
	SourcePurchases
)

// Join names one optional join of the supported schema. The join graph is
// fixed: sale -> inventory_snapshot -> product -> global_product.
type Join int

const (
	JoinInventory Join = iota
	JoinProduct
	JoinGlobalProduct
)

// MetricDefinition declares one aggregate: the SQL expression to compute and
// the joins it needs. Expressions reference the fixed table aliases
// s (sale), inv (inventory_snapshot), p (product), gp (global_product),
// pur (purchase).
type MetricDefinition struct {
	Name  string
	Kind  entity.MetricKind
	Expr  string
	Src   Source
	Joins []Join
}

// Canonical metric registry. The margin cost side is the tax-adjusted
// weighted average price; see DESIGN.md for the business-rule decision.
var (
	MetricRevenue = MetricDefinition{
		Name: "revenue",
		Kind: entity.MetricKindAdditive,
		Expr: "COALESCE(SUM(s.quantity * s.unit_price), 0)",
		Src:  SourceSales,
	}

	MetricQuantity = MetricDefinition{
		Name: "quantity",
		Kind: entity.MetricKindAdditive,
		Expr: "COALESCE(SUM(s.quantity), 0)",
		Src:  SourceSales,
	}

	MetricMargin = MetricDefinition{
		Name:  "margin",
		Kind:  entity.MetricKindAdditive,
		Expr:  "COALESCE(SUM(s.quantity * (s.unit_price - inv.weighted_average_price * (1 + p.tva_rate / 100))), 0)",
		Src:   SourceSales,
		Joins: []Join{JoinInventory, JoinProduct},
	}

	MetricMarginPct = MetricDefinition{
		Name: "margin_pct",
		Kind: entity.MetricKindRatio,
		Expr: "COALESCE(100 * SUM(s.quantity * (s.unit_price - inv.weighted_average_price * (1 + p.tva_rate / 100))) / NULLIF(SUM(s.quantity * s.unit_price), 0), 0)",
		Src:  SourceSales,
		Joins: []Join{JoinInventory, JoinProduct},
	}

	MetricStockQuantity = MetricDefinition{
		Name: "stock_quantity",
		Kind: entity.MetricKindAdditive,
		Expr: "COALESCE(SUM(inv.quantity), 0)",
		Src:  SourceStock,
	}

	MetricStockValue = MetricDefinition{
		Name: "stock_value",
		Kind: entity.MetricKindAdditive,
		Expr: "COALESCE(SUM(inv.quantity * inv.weighted_average_price), 0)",
		Src:  SourceStock,
	}

	MetricSellInAmount = MetricDefinition{
		Name: "sell_in_amount",
		Kind: entity.MetricKindAdditive,
		Expr: "COALESCE(SUM(pur.quantity * pur.unit_cost), 0)",
		Src:  SourcePurchases,
	}
)

// SummaryMetrics is the default KPI set of the dashboard header.
var SummaryMetrics = []MetricDefinition{
	MetricRevenue,
	MetricQuantity,
	MetricMargin,
	MetricMarginPct,
}

type sourceSchema struct {
	table       string
	dateCol     string
	pharmacyCol string
	// joins maps each supported join to its SQL clause and its prerequisite
	// join, in dependency order.
	joins map[Join]joinClause
	// productCodeCol is the code13 column once the required joins are in
	// place; productCodeJoin names the join that makes it available.
	productCodeCol  string
	productCodeJoin *Join
}

type joinClause struct {
	sql      string
	requires *Join
}

func joinPtr(j Join) *Join { return &j }

var schemas = map[Source]sourceSchema{
	SourceSales: {
		table:       "sale s",
		dateCol:     "s.sold_at",
		pharmacyCol: "s.pharmacy_id",
		joins: map[Join]joinClause{
			JoinInventory: {
				sql: "JOIN inventory_snapshot inv ON s.inventory_id = inv.id",
			},
			JoinProduct: {
				sql:      "JOIN product p ON inv.product_id = p.id",
				requires: joinPtr(JoinInventory),
			},
			JoinGlobalProduct: {
				sql:      "LEFT JOIN global_product gp ON p.code13 = gp.code13",
				requires: joinPtr(JoinProduct),
			},
		},
		productCodeCol:  "p.code13",
		productCodeJoin: joinPtr(JoinProduct),
	},
	SourceStock: {
		table:       "inventory_snapshot inv",
		dateCol:     "inv.snapshot_date",
		pharmacyCol: "inv.pharmacy_id",
		joins: map[Join]joinClause{
			JoinProduct: {
				sql: "JOIN product p ON inv.product_id = p.id",
			},
			JoinGlobalProduct: {
				sql:      "LEFT JOIN global_product gp ON p.code13 = gp.code13",
				requires: joinPtr(JoinProduct),
			},
		},
		productCodeCol:  "p.code13",
		productCodeJoin: joinPtr(JoinProduct),
	},
	SourcePurchases: {
		table:       "purchase pur",
		dateCol:     "pur.received_at",
		pharmacyCol: "pur.pharmacy_id",
		joins: map[Join]joinClause{
			JoinProduct: {
				sql: "JOIN product p ON pur.product_id = p.id",
			},
			JoinGlobalProduct: {
				sql:      "LEFT JOIN global_product gp ON p.code13 = gp.code13",
				requires: joinPtr(JoinProduct),
			},
		},
		productCodeCol:  "p.code13",
		productCodeJoin: joinPtr(JoinProduct),
	},
}

// validate checks the metric against the supported schema.
func (m MetricDefinition) validate() error {
	schema, ok := schemas[m.Src]
	if !ok {
		return fmt.Errorf("%w: metric %q has unknown source %d", gerr.ErrUnsupportedMetric, m.Name, m.Src)
	}
	for _, j := range m.Joins {
		if _, ok := schema.joins[j]; !ok {
			return fmt.Errorf("%w: metric %q requires join %d not supported by its source", gerr.ErrUnsupportedMetric, m.Name, j)
		}
	}
	if m.Name == "" || m.Expr == "" {
		return fmt.Errorf("%w: metric name and expression are required", gerr.ErrUnsupportedMetric)
	}
	return nil
}
