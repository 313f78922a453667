package query

import (
	"fmt"
	"strings"

	"github.com/pharmadash/pharmadash-manager/internal/entity"
)

// Row queries back the bucketed dashboard views: one line per product code,
// same predicate rules as the aggregate queries.

// BuildSalesRows builds the per-product sell-out query. withReferencePrice
// adds the global catalog price (for the price-deviation view), which pulls
// in the global_product join. periodOverride serves the comparison-period
// pass of the evolution view.
func BuildSalesRows(criteria entity.FilterCriteria, periodOverride *entity.Period, withReferencePrice bool) (ParameterizedQuery, error) {
	period := criteria.Primary()
	if periodOverride != nil {
		p, err := entity.NewPeriod(periodOverride.Start, periodOverride.End)
		if err != nil {
			return ParameterizedQuery{}, err
		}
		period = p
	}

	schema := schemas[SourceSales]
	ps := newParamSet()

	cols := []string{
		"p.code13 AS code13",
		"p.name AS name",
		"COALESCE(SUM(s.quantity), 0) AS quantity",
		"COALESCE(SUM(s.quantity * s.unit_price), 0) AS revenue",
		"COALESCE(SUM(s.quantity * (s.unit_price - inv.weighted_average_price * (1 + p.tva_rate / 100))), 0) AS margin",
		"COALESCE(100 * SUM(s.quantity * (s.unit_price - inv.weighted_average_price * (1 + p.tva_rate / 100))) / NULLIF(SUM(s.quantity * s.unit_price), 0), 0) AS margin_pct",
		"COALESCE(AVG(s.unit_price), 0) AS unit_price",
	}
	joins := []Join{JoinInventory, JoinProduct}
	if withReferencePrice {
		cols = append(cols, "COALESCE(MAX(gp.reference_price), 0) AS reference_price")
		joins = append(joins, JoinGlobalProduct)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ",\n\t"))
	sb.WriteString("\nFROM ")
	sb.WriteString(schema.table)
	for _, j := range joins {
		sb.WriteString("\n")
		sb.WriteString(schema.joins[j].sql)
	}
	sb.WriteString("\nWHERE ")
	sb.WriteString(strings.Join(buildPredicates(ps, schema, criteria, period), " AND "))
	sb.WriteString("\nGROUP BY p.code13, p.name")
	sb.WriteString("\nORDER BY p.code13")

	return ParameterizedQuery{
		SQL:    sb.String(),
		Params: ps.values,
		Period: period,
	}, nil
}

// BuildStockRows builds the per-product stock query over the inventory
// snapshots of the period.
func BuildStockRows(criteria entity.FilterCriteria) (ParameterizedQuery, error) {
	period := criteria.Primary()
	schema := schemas[SourceStock]
	ps := newParamSet()

	var sb strings.Builder
	sb.WriteString("SELECT p.code13 AS code13,\n\tp.name AS name,\n\t")
	sb.WriteString("COALESCE(SUM(inv.quantity), 0) AS stock_quantity,\n\t")
	sb.WriteString("COALESCE(SUM(inv.quantity * inv.weighted_average_price), 0) AS stock_value")
	sb.WriteString("\nFROM ")
	sb.WriteString(schema.table)
	sb.WriteString("\n")
	sb.WriteString(schema.joins[JoinProduct].sql)
	sb.WriteString("\nWHERE ")
	sb.WriteString(strings.Join(buildPredicates(ps, schema, criteria, period), " AND "))
	sb.WriteString("\nGROUP BY p.code13, p.name")
	sb.WriteString("\nORDER BY p.code13")

	return ParameterizedQuery{
		SQL:    sb.String(),
		Params: ps.values,
		Period: period,
	}, nil
}

// PlaceholderCount reports how many positional placeholders the expanded
// query carries. Diagnostic helper used by tests and query logging.
func (q ParameterizedQuery) PlaceholderCount() (int, error) {
	sqlStr, _, err := q.Expand()
	if err != nil {
		return 0, fmt.Errorf("expand: %w", err)
	}
	return strings.Count(sqlStr, "?"), nil
}
