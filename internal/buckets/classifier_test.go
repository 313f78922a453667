package buckets

import (
	"fmt"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmadash/pharmadash-manager/internal/entity"
	gerr "github.com/pharmadash/pharmadash-manager/internal/errors"
)

func rowWithMonths(code string, months float64) entity.Row {
	return entity.Row{Code13: code, StockMonths: decimal.NewFromFloat(months), HasSales: true}
}

func keyStockMonths(r entity.Row) (float64, bool) {
	f, _ := r.StockMonths.Float64()
	return f, r.HasSales
}

func TestClassify_ExactlyOneBucketPerRow(t *testing.T) {
	rows := []entity.Row{
		rowWithMonths("a", 0.8),
		rowWithMonths("b", 1),
		rowWithMonths("c", 2.9),
		rowWithMonths("d", 3),
		rowWithMonths("e", 11.99),
		rowWithMonths("f", 12),
		rowWithMonths("g", 250),
	}

	res := StockMonths.Classify(rows, keyStockMonths)

	total := 0
	seen := map[string]string{}
	for _, br := range res.Buckets() {
		total += len(br.Rows)
		for _, r := range br.Rows {
			prev, dup := seen[r.Code13]
			require.False(t, dup, "row %s in both %s and %s", r.Code13, prev, br.Bucket.Name)
			seen[r.Code13] = br.Bucket.Name
		}
	}
	assert.Equal(t, len(rows), total)

	assert.Equal(t, "critical-low", seen["a"])
	assert.Equal(t, "low", seen["b"], "boundary belongs to the bucket it opens")
	assert.Equal(t, "low", seen["c"])
	assert.Equal(t, "balanced", seen["d"])
	assert.Equal(t, "high", seen["e"])
	assert.Equal(t, "overstock", seen["f"])
	assert.Equal(t, "overstock", seen["g"])
}

func TestClassify_AllBucketsPresentWhenEmpty(t *testing.T) {
	res := StockMonths.Classify(nil, keyStockMonths)

	m := res.ToMap()
	require.Len(t, m, 5)
	for _, name := range StockMonths.BucketNames() {
		rows, ok := m[name]
		require.True(t, ok, "bucket %s missing from response", name)
		assert.Empty(t, rows)
		assert.NotNil(t, res.Rows(name))
	}
}

func TestClassify_UndefinedKeyDefaultBucket(t *testing.T) {
	noSales := entity.Row{Code13: "dormant", StockQuantity: decimal.NewFromInt(40)}

	res := StockMonths.Classify([]entity.Row{noSales}, keyStockMonths)
	rows := res.Rows("overstock")
	require.Len(t, rows, 1)
	assert.Equal(t, "dormant", rows[0].Code13)
}

func TestClassify_UndefinedKeyExcluded(t *testing.T) {
	noSales := entity.Row{Code13: "dormant"}

	res := Margin.Classify([]entity.Row{noSales}, func(r entity.Row) (float64, bool) {
		f, _ := r.MarginPct.Float64()
		return f, r.HasSales
	})
	for _, br := range res.Buckets() {
		assert.Empty(t, br.Rows, "bucket %s", br.Bucket.Name)
	}
}

func TestClassify_NaNKeyTreatedAsUndefined(t *testing.T) {
	res := Margin.Classify([]entity.Row{{Code13: "x", HasSales: true}}, func(entity.Row) (float64, bool) {
		return math.NaN(), true
	})
	for _, br := range res.Buckets() {
		assert.Empty(t, br.Rows)
	}
}

func TestEvolutionTiers_SymmetricStable(t *testing.T) {
	cases := map[float64]string{
		-20:   "strong-decrease",
		-15:   "slight-decrease",
		-5.01: "slight-decrease",
		-5:    "stable",
		0:     "stable",
		5:     "stable",
		5.01:  "slight-increase",
		15:    "slight-increase",
		15.01: "strong-increase",
	}
	for v, want := range cases {
		row := entity.Row{Code13: "x", EvolutionPct: decimal.NewFromFloat(v), HasSales: true}
		res := Evolution.Classify([]entity.Row{row}, func(r entity.Row) (float64, bool) {
			f, _ := r.EvolutionPct.Float64()
			return f, r.HasSales
		})
		assert.Len(t, res.Rows(want), 1, "value %v should land in %s", v, want)
	}
}

func TestPriceDeviationTiers(t *testing.T) {
	cases := map[float64]string{
		-12: "very-low",
		-10: "low",
		-3:  "aligned",
		0:   "aligned",
		2.9: "aligned",
		3:   "high",
		10:  "very-high",
	}
	for v, want := range cases {
		row := entity.Row{
			Code13:            "x",
			PriceDeviationPct: decimal.NewFromFloat(v),
			ReferencePrice:    decimal.NewFromInt(10),
		}
		res := PriceDeviation.Classify([]entity.Row{row}, func(r entity.Row) (float64, bool) {
			f, _ := r.PriceDeviationPct.Float64()
			return f, !r.ReferencePrice.IsZero()
		})
		assert.Len(t, res.Rows(want), 1, "value %v should land in %s", v, want)
	}
}

func TestNewSpec_Validation(t *testing.T) {
	negInf, posInf := math.Inf(-1), math.Inf(1)

	cases := []struct {
		name    string
		buckets []Bucket
		def     string
	}{
		{name: "empty", buckets: nil},
		{
			name: "gap",
			buckets: []Bucket{
				{Name: "a", Lower: negInf, Upper: 1},
				{Name: "b", Lower: 2, Upper: posInf},
			},
		},
		{
			name: "overlap",
			buckets: []Bucket{
				{Name: "a", Lower: negInf, Upper: 3},
				{Name: "b", Lower: 2, Upper: posInf},
			},
		},
		{
			name: "no neg inf start",
			buckets: []Bucket{
				{Name: "a", Lower: 0, Upper: 1},
				{Name: "b", Lower: 1, Upper: posInf},
			},
		},
		{
			name: "no pos inf end",
			buckets: []Bucket{
				{Name: "a", Lower: negInf, Upper: 1},
				{Name: "b", Lower: 1, Upper: 2},
			},
		},
		{
			name: "duplicate name",
			buckets: []Bucket{
				{Name: "a", Lower: negInf, Upper: 1},
				{Name: "a", Lower: 1, Upper: posInf},
			},
		},
		{
			name: "inverted bounds",
			buckets: []Bucket{
				{Name: "a", Lower: negInf, Upper: 1},
				{Name: "b", Lower: 1, Upper: 0},
			},
		},
		{
			name: "unknown default",
			buckets: []Bucket{
				{Name: "a", Lower: negInf, Upper: posInf},
			},
			def: "missing",
		},
	}
	for i, tc := range cases {
		_, err := NewSpec(fmt.Sprintf("case-%d-%s", i, tc.name), tc.buckets, tc.def)
		assert.ErrorIs(t, err, gerr.ErrInvalidBucketSpec, tc.name)
	}
}

func TestNewSpec_Valid(t *testing.T) {
	s, err := NewSpec("two", []Bucket{
		{Name: "below", Lower: math.Inf(-1), Upper: 0},
		{Name: "above", Lower: 0, Upper: math.Inf(1)},
	}, "below")
	require.NoError(t, err)
	assert.Equal(t, []string{"below", "above"}, s.BucketNames())
}

func TestStandardSpecs_CoverEverything(t *testing.T) {
	probes := []float64{-1e9, -42.5, 0, 0.0001, 17, 1e9}
	for _, spec := range []*Spec{StockMonths, Margin, PriceDeviation, Evolution} {
		for _, v := range probes {
			res := spec.Classify([]entity.Row{{Code13: "p"}}, func(entity.Row) (float64, bool) {
				return v, true
			})
			total := 0
			for _, br := range res.Buckets() {
				total += len(br.Rows)
			}
			assert.Equal(t, 1, total, "%s: value %v unassigned", spec.Name(), v)
		}
	}
}
