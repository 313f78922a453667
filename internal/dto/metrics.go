package dto

import (
	"encoding/json"

	"github.com/pharmadash/pharmadash-manager/internal/entity"
)

// EvolutionResponse is the transport shape of one metric's evolution.
// Additive metrics carry percentage, ratio metrics carry points.
type EvolutionResponse struct {
	Percentage   *float64 `json:"percentage,omitempty"`
	Points       *float64 `json:"points,omitempty"`
	IsPositive   bool     `json:"isPositive"`
	DisplayValue string   `json:"displayValue"`
}

// SummaryResponse is the aggregate response shape:
// {current: {metric: number}, comparison?: {metric: number, evolution: {...}}}.
type SummaryResponse struct {
	Current    map[string]float64 `json:"current"`
	Comparison *ComparisonBlock   `json:"comparison,omitempty"`
}

// ComparisonBlock flattens the comparison values next to the evolution map,
// matching the documented wire shape.
type ComparisonBlock struct {
	Values    map[string]float64
	Evolution map[string]EvolutionResponse
}

func (b ComparisonBlock) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Values)+1)
	for k, v := range b.Values {
		out[k] = v
	}
	out["evolution"] = b.Evolution
	return json.Marshal(out)
}

// ConvertComparisonResult maps the engine result to the transport shape.
// ratioNames lists the metrics whose evolution is a point difference.
func ConvertComparisonResult(res *entity.ComparisonResult, ratioNames map[string]bool) SummaryResponse {
	out := SummaryResponse{Current: map[string]float64{}}
	for name, v := range res.Current.Values {
		f, _ := v.Float64()
		out.Current[name] = f
	}
	if res.Comparison == nil {
		return out
	}

	block := &ComparisonBlock{
		Values:    map[string]float64{},
		Evolution: map[string]EvolutionResponse{},
	}
	for name, v := range res.Comparison.Values {
		f, _ := v.Float64()
		block.Values[name] = f
	}
	for name, ev := range res.Evolution {
		er := EvolutionResponse{
			IsPositive:   ev.IsPositive,
			DisplayValue: ev.Display,
		}
		if ratioNames[name] {
			pts, _ := ev.Points.Float64()
			er.Points = &pts
		} else {
			pct, _ := ev.Percentage.Float64()
			er.Percentage = &pct
		}
		block.Evolution[name] = er
	}
	out.Comparison = block
	return out
}

// RowResponse is one product line of a bucketed view.
type RowResponse struct {
	Code13            string   `json:"code13"`
	Name              string   `json:"name"`
	Quantity          float64  `json:"quantity"`
	Revenue           float64  `json:"revenue"`
	Margin            float64  `json:"margin"`
	MarginPct         float64  `json:"marginPct"`
	StockQuantity     float64  `json:"stockQuantity"`
	StockValue        float64  `json:"stockValue"`
	StockMonths       *float64 `json:"stockMonths,omitempty"`
	PriceDeviationPct *float64 `json:"priceDeviationPct,omitempty"`
	EvolutionPct      *float64 `json:"evolutionPct,omitempty"`
}

// BucketedResponse maps every bucket name of the active spec to its rows,
// present even when empty.
type BucketedResponse map[string][]RowResponse

func ConvertRow(r entity.Row) RowResponse {
	qty, _ := r.Quantity.Float64()
	rev, _ := r.Revenue.Float64()
	margin, _ := r.Margin.Float64()
	marginPct, _ := r.MarginPct.Float64()
	stockQty, _ := r.StockQuantity.Float64()
	stockVal, _ := r.StockValue.Float64()

	out := RowResponse{
		Code13:        r.Code13,
		Name:          r.Name,
		Quantity:      qty,
		Revenue:       rev,
		Margin:        margin,
		MarginPct:     marginPct,
		StockQuantity: stockQty,
		StockValue:    stockVal,
	}
	if r.HasSales {
		sm, _ := r.StockMonths.Float64()
		out.StockMonths = &sm
		ev, _ := r.EvolutionPct.Float64()
		out.EvolutionPct = &ev
	}
	if !r.ReferencePrice.IsZero() {
		pd, _ := r.PriceDeviationPct.Float64()
		out.PriceDeviationPct = &pd
	}
	return out
}

// ConvertBuckets produces the bucketed wire shape from a classification,
// keeping every bucket key.
func ConvertBuckets(byName map[string][]entity.Row) BucketedResponse {
	out := make(BucketedResponse, len(byName))
	for name, rows := range byName {
		converted := make([]RowResponse, 0, len(rows))
		for _, r := range rows {
			converted = append(converted, ConvertRow(r))
		}
		out[name] = converted
	}
	return out
}
