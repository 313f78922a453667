package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerr "github.com/pharmadash/pharmadash-manager/internal/errors"
)

func TestToCriteria_Valid(t *testing.T) {
	req := FilterRequest{
		StartDate:           "2024-01-01",
		EndDate:             "2024-01-31",
		ComparisonStartDate: "2023-01-01",
		ComparisonEndDate:   "2023-01-31",
		PharmacyIDs:         []string{"ph-2", "ph-1", "ph-1"},
		Code13Refs:          []string{"3400912345678"},
	}

	criteria, err := req.ToCriteria()
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), criteria.Primary().Start)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), criteria.Primary().End)

	cp, ok := criteria.Comparison()
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), cp.Start)

	assert.Equal(t, []string{"ph-1", "ph-2"}, criteria.PharmacyIDs(), "ids are deduped and sorted")
	assert.True(t, criteria.HasProductFilter())
}

func TestToCriteria_NoComparison(t *testing.T) {
	req := FilterRequest{StartDate: "2024-01-01", EndDate: "2024-01-31"}

	criteria, err := req.ToCriteria()
	require.NoError(t, err)

	_, ok := criteria.Comparison()
	assert.False(t, ok)
	assert.False(t, criteria.HasPharmacyFilter())
	assert.False(t, criteria.HasProductFilter())
}

func TestToCriteria_Invalid(t *testing.T) {
	cases := map[string]FilterRequest{
		"missing start":        {EndDate: "2024-01-31"},
		"missing end":          {StartDate: "2024-01-01"},
		"start after end":      {StartDate: "2024-02-01", EndDate: "2024-01-01"},
		"bad date format":      {StartDate: "01/01/2024", EndDate: "2024-01-31"},
		"half comparison":      {StartDate: "2024-01-01", EndDate: "2024-01-31", ComparisonStartDate: "2023-01-01"},
		"comparison inverted":  {StartDate: "2024-01-01", EndDate: "2024-01-31", ComparisonStartDate: "2023-02-01", ComparisonEndDate: "2023-01-01"},
		"comparison bad format": {StartDate: "2024-01-01", EndDate: "2024-01-31", ComparisonStartDate: "2023-01-01", ComparisonEndDate: "yesterday"},
	}
	for name, req := range cases {
		_, err := req.ToCriteria()
		assert.ErrorIs(t, err, gerr.ErrInvalidCriteria, name)
	}
}
