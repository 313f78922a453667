package dto

import (
	"fmt"
	"time"

	"github.com/pharmadash/pharmadash-manager/internal/entity"
	gerr "github.com/pharmadash/pharmadash-manager/internal/errors"
)

// FilterRequest is the transport shape of the analysis scope. Missing start
// or end date is a validation error; missing comparison dates simply disable
// comparison; empty id lists mean unfiltered.
type FilterRequest struct {
	StartDate           string   `json:"startDate"`
	EndDate             string   `json:"endDate"`
	ComparisonStartDate string   `json:"comparisonStartDate,omitempty"`
	ComparisonEndDate   string   `json:"comparisonEndDate,omitempty"`
	PharmacyIDs         []string `json:"pharmacyIds,omitempty"`
	Code13Refs          []string `json:"code13refs,omitempty"`
}

// ToCriteria validates the request and converts it into the immutable
// criteria value. Validation happens here, at the boundary closest to the
// filter input, before any query is constructed.
func (r FilterRequest) ToCriteria() (entity.FilterCriteria, error) {
	if r.StartDate == "" || r.EndDate == "" {
		return entity.FilterCriteria{}, fmt.Errorf("%w: startDate and endDate are required", gerr.ErrInvalidCriteria)
	}
	start, err := parseDate(r.StartDate)
	if err != nil {
		return entity.FilterCriteria{}, fmt.Errorf("%w: startDate: %v", gerr.ErrInvalidCriteria, err)
	}
	end, err := parseDate(r.EndDate)
	if err != nil {
		return entity.FilterCriteria{}, fmt.Errorf("%w: endDate: %v", gerr.ErrInvalidCriteria, err)
	}

	var comparison *entity.Period
	switch {
	case r.ComparisonStartDate == "" && r.ComparisonEndDate == "":
		// comparison disabled
	case r.ComparisonStartDate == "" || r.ComparisonEndDate == "":
		return entity.FilterCriteria{}, fmt.Errorf("%w: comparison period requires both dates", gerr.ErrInvalidCriteria)
	default:
		cs, err := parseDate(r.ComparisonStartDate)
		if err != nil {
			return entity.FilterCriteria{}, fmt.Errorf("%w: comparisonStartDate: %v", gerr.ErrInvalidCriteria, err)
		}
		ce, err := parseDate(r.ComparisonEndDate)
		if err != nil {
			return entity.FilterCriteria{}, fmt.Errorf("%w: comparisonEndDate: %v", gerr.ErrInvalidCriteria, err)
		}
		comparison = &entity.Period{Start: cs, End: ce}
	}

	return entity.NewFilterCriteria(
		entity.Period{Start: start, End: end},
		comparison,
		r.PharmacyIDs,
		r.Code13Refs,
	)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}
