package entity

import (
	"fmt"
	"sort"
	"time"

	gerr "github.com/pharmadash/pharmadash-manager/internal/errors"
)

// Period is a closed date interval used to bound aggregate queries.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod validates that both bounds are set and ordered.
func NewPeriod(start, end time.Time) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, fmt.Errorf("%w: period bounds are required", gerr.ErrInvalidCriteria)
	}
	if start.After(end) {
		return Period{}, fmt.Errorf("%w: period start %s after end %s",
			gerr.ErrInvalidCriteria, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return Period{Start: start, End: end}, nil
}

// Months returns the period length expressed in months, based on a 30.44 day
// average month. Used to extrapolate a monthly sales rate for stock-months.
func (p Period) Months() float64 {
	days := p.End.Sub(p.Start).Hours()/24 + 1
	if days <= 0 {
		return 0
	}
	return days / 30.44
}

func (p Period) IsZero() bool {
	return p.Start.IsZero() && p.End.IsZero()
}

// FilterCriteria is the immutable analysis scope shared by every query of one
// dashboard run. An empty pharmacy or product set means "unfiltered", never
// "no matches".
type FilterCriteria struct {
	primary      Period
	comparison   *Period
	pharmacyIDs  []string
	productCodes []string
}

// NewFilterCriteria copies both id sets so later caller mutations cannot leak
// into in-flight queries. comparison may be nil to disable period comparison.
func NewFilterCriteria(primary Period, comparison *Period, pharmacyIDs, productCodes []string) (FilterCriteria, error) {
	if _, err := NewPeriod(primary.Start, primary.End); err != nil {
		return FilterCriteria{}, err
	}
	fc := FilterCriteria{
		primary:      primary,
		pharmacyIDs:  dedupSorted(pharmacyIDs),
		productCodes: dedupSorted(productCodes),
	}
	if comparison != nil {
		cp, err := NewPeriod(comparison.Start, comparison.End)
		if err != nil {
			return FilterCriteria{}, fmt.Errorf("comparison period: %w", err)
		}
		fc.comparison = &cp
	}
	return fc, nil
}

func (fc FilterCriteria) Primary() Period {
	return fc.primary
}

// Comparison returns the comparison period and whether one was requested.
func (fc FilterCriteria) Comparison() (Period, bool) {
	if fc.comparison == nil {
		return Period{}, false
	}
	return *fc.comparison, true
}

func (fc FilterCriteria) PharmacyIDs() []string {
	out := make([]string, len(fc.pharmacyIDs))
	copy(out, fc.pharmacyIDs)
	return out
}

func (fc FilterCriteria) ProductCodes() []string {
	out := make([]string, len(fc.productCodes))
	copy(out, fc.productCodes)
	return out
}

func (fc FilterCriteria) HasPharmacyFilter() bool {
	return len(fc.pharmacyIDs) > 0
}

func (fc FilterCriteria) HasProductFilter() bool {
	return len(fc.productCodes) > 0
}

func dedupSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
