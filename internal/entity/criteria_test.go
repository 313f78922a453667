package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerr "github.com/pharmadash/pharmadash-manager/internal/errors"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewPeriod(t *testing.T) {
	_, err := NewPeriod(day(2024, 2, 1), day(2024, 1, 1))
	assert.ErrorIs(t, err, gerr.ErrInvalidCriteria)

	_, err = NewPeriod(time.Time{}, day(2024, 1, 1))
	assert.ErrorIs(t, err, gerr.ErrInvalidCriteria)

	p, err := NewPeriod(day(2024, 1, 5), day(2024, 1, 5))
	require.NoError(t, err, "a single day period is valid")
	assert.InDelta(t, 1.0/30.44, p.Months(), 1e-9)
}

func TestPeriodMonths(t *testing.T) {
	p, err := NewPeriod(day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	assert.InDelta(t, 31.0/30.44, p.Months(), 1e-9)
}

func TestNewFilterCriteria_CopiesAndDedupes(t *testing.T) {
	ids := []string{"ph-2", "ph-1", "ph-2", ""}
	criteria, err := NewFilterCriteria(
		Period{Start: day(2024, 1, 1), End: day(2024, 1, 31)},
		nil, ids, nil,
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"ph-1", "ph-2"}, criteria.PharmacyIDs())

	// later caller mutations must not leak into the criteria
	ids[0] = "mutated"
	assert.Equal(t, []string{"ph-1", "ph-2"}, criteria.PharmacyIDs())

	got := criteria.PharmacyIDs()
	got[0] = "mutated"
	assert.Equal(t, []string{"ph-1", "ph-2"}, criteria.PharmacyIDs())
}

func TestNewFilterCriteria_InvalidComparison(t *testing.T) {
	cp := Period{Start: day(2023, 2, 1), End: day(2023, 1, 1)}
	_, err := NewFilterCriteria(
		Period{Start: day(2024, 1, 1), End: day(2024, 1, 31)},
		&cp, nil, nil,
	)
	assert.ErrorIs(t, err, gerr.ErrInvalidCriteria)
}

func TestFilterCriteria_EmptyMeansUnfiltered(t *testing.T) {
	criteria, err := NewFilterCriteria(
		Period{Start: day(2024, 1, 1), End: day(2024, 1, 31)},
		nil, []string{""}, nil,
	)
	require.NoError(t, err)
	assert.False(t, criteria.HasPharmacyFilter())
	assert.False(t, criteria.HasProductFilter())
	assert.Empty(t, criteria.PharmacyIDs())
}
