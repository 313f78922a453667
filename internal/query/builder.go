package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Knetic/go-namedParameterQuery"
	"github.com/jmoiron/sqlx"

	"github.com/pharmadash/pharmadash-manager/internal/entity"
	gerr "github.com/pharmadash/pharmadash-manager/internal/errors"
)

// ParameterizedQuery is a named-parameter query plus its bound values. The
// builder allocates every parameter name internally; callers never see or
// manage placeholder indices.
type ParameterizedQuery struct {
	SQL     string
	Params  map[string]any
	Metrics []string
	Period  entity.Period
}

// Expand resolves named parameters to positional ones and expands each list
// value into exactly one placeholder per element. List values never touch the
// query text.
func (q ParameterizedQuery) Expand() (string, []any, error) {
	named := namedParameterQuery.NewNamedParameterQuery(q.SQL)
	named.SetValuesFromMap(q.Params)
	sqlStr, args, err := sqlx.In(named.GetParsedQuery(), named.GetParsedParameters()...)
	if err != nil {
		return "", nil, fmt.Errorf("in: %w", err)
	}
	return sqlStr, args, nil
}

// paramSet owns parameter-name allocation for one query. Names are appended
// monotonically so reordering predicates can never shift another predicate's
// binding.
type paramSet struct {
	values map[string]any
	n      int
}

func newParamSet() *paramSet {
	return &paramSet{values: map[string]any{}}
}

// add binds v under a fresh name and returns its placeholder.
func (ps *paramSet) add(v any) string {
	ps.n++
	name := fmt.Sprintf("p%d", ps.n)
	ps.values[name] = v
	return ":" + name
}

// Build constructs the aggregate queries for metrics against criteria.
// Metrics sharing a source and join set are composed into one query with
// multiple select expressions; incompatible metrics yield independent
// queries the caller may execute in parallel. periodOverride, when non-nil,
// replaces the criteria's primary period (used for comparison-period runs
// with otherwise identical predicates).
func Build(metrics []MetricDefinition, criteria entity.FilterCriteria, periodOverride *entity.Period) ([]ParameterizedQuery, error) {
	if len(metrics) == 0 {
		return nil, nil
	}
	period := criteria.Primary()
	if periodOverride != nil {
		p, err := entity.NewPeriod(periodOverride.Start, periodOverride.End)
		if err != nil {
			return nil, err
		}
		period = p
	}

	groups, order, err := groupBySignature(metrics, criteria)
	if err != nil {
		return nil, err
	}

	out := make([]ParameterizedQuery, 0, len(groups))
	for _, sig := range order {
		g := groups[sig]
		q, err := buildAggregate(g, criteria, period)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

type metricGroup struct {
	src     Source
	joins   []Join
	metrics []MetricDefinition
}

// groupBySignature partitions metrics by source plus resolved join set. The
// product-code predicate needs the product join, so an active product filter
// is folded into every group's signature up front.
func groupBySignature(metrics []MetricDefinition, criteria entity.FilterCriteria) (map[string]metricGroup, []string, error) {
	groups := map[string]metricGroup{}
	var order []string
	for _, m := range metrics {
		if err := m.validate(); err != nil {
			return nil, nil, err
		}
		joins, err := resolveJoins(m, criteria)
		if err != nil {
			return nil, nil, err
		}
		sig := signature(m.Src, joins)
		g, ok := groups[sig]
		if !ok {
			g = metricGroup{src: m.Src, joins: joins}
			order = append(order, sig)
		}
		g.metrics = append(g.metrics, m)
		groups[sig] = g
	}
	return groups, order, nil
}

// resolveJoins expands a metric's join list with transitive prerequisites
// and the product join when the criteria carries a product filter.
func resolveJoins(m MetricDefinition, criteria entity.FilterCriteria) ([]Join, error) {
	schema := schemas[m.Src]
	need := map[Join]struct{}{}
	var require func(j Join) error
	require = func(j Join) error {
		if _, ok := need[j]; ok {
			return nil
		}
		clause, ok := schema.joins[j]
		if !ok {
			return fmt.Errorf("%w: join %d not supported for metric %q", gerr.ErrUnsupportedMetric, j, m.Name)
		}
		need[j] = struct{}{}
		if clause.requires != nil {
			return require(*clause.requires)
		}
		return nil
	}
	for _, j := range m.Joins {
		if err := require(j); err != nil {
			return nil, err
		}
	}
	if criteria.HasProductFilter() && schema.productCodeJoin != nil {
		if err := require(*schema.productCodeJoin); err != nil {
			return nil, err
		}
	}
	joins := make([]Join, 0, len(need))
	for j := range need {
		joins = append(joins, j)
	}
	sort.Slice(joins, func(i, k int) bool { return joins[i] < joins[k] })
	return joins, nil
}

func signature(src Source, joins []Join) string {
	var b strings.Builder
	fmt.Fprintf(&b, "src:%d", src)
	for _, j := range joins {
		fmt.Fprintf(&b, "|j:%d", j)
	}
	return b.String()
}

func buildAggregate(g metricGroup, criteria entity.FilterCriteria, period entity.Period) (ParameterizedQuery, error) {
	schema := schemas[g.src]
	ps := newParamSet()

	selects := make([]string, 0, len(g.metrics))
	names := make([]string, 0, len(g.metrics))
	for _, m := range g.metrics {
		selects = append(selects, fmt.Sprintf("%s AS %s", m.Expr, m.Name))
		names = append(names, m.Name)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString("\nFROM ")
	sb.WriteString(schema.table)
	for _, j := range g.joins {
		sb.WriteString("\n")
		sb.WriteString(schema.joins[j].sql)
	}

	where := buildPredicates(ps, schema, criteria, period)
	sb.WriteString("\nWHERE ")
	sb.WriteString(strings.Join(where, " AND "))

	return ParameterizedQuery{
		SQL:     sb.String(),
		Params:  ps.values,
		Metrics: names,
		Period:  period,
	}, nil
}

// buildPredicates emits the date bound always, and the pharmacy/product set
// predicates only when the corresponding filter is non-empty. An empty set is
// "unfiltered": no predicate at all, never IN ().
func buildPredicates(ps *paramSet, schema sourceSchema, criteria entity.FilterCriteria, period entity.Period) []string {
	where := []string{
		fmt.Sprintf("%s BETWEEN %s AND %s", schema.dateCol, ps.add(period.Start), ps.add(period.End)),
	}
	if criteria.HasPharmacyFilter() {
		where = append(where, fmt.Sprintf("%s IN (%s)", schema.pharmacyCol, ps.add(criteria.PharmacyIDs())))
	}
	if criteria.HasProductFilter() {
		where = append(where, fmt.Sprintf("%s IN (%s)", schema.productCodeCol, ps.add(criteria.ProductCodes())))
	}
	return where
}
