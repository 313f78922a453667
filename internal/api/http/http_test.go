package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	gerr "github.com/pharmadash/pharmadash-manager/internal/errors"
)

func TestRespondError_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "superseded run is silent", err: context.Canceled, want: 204},
		{name: "invalid criteria", err: fmt.Errorf("%w: startDate missing", gerr.ErrInvalidCriteria), want: 400},
		{name: "store failure", err: gerr.ExecutionFailed("aggregate", errors.New("timeout")), want: 503},
		{name: "wrapped store failure", err: fmt.Errorf("summary: %w", gerr.ExecutionFailed("aggregate", errors.New("timeout"))), want: 503},
		{name: "unexpected", err: errors.New("boom"), want: 500},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/dashboard/summary", nil)
		respondError(w, r, tc.err)
		assert.Equal(t, tc.want, w.Code, tc.name)
	}
}

func TestRespondError_ExecutionErrorBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/dashboard/summary", nil)
	respondError(w, r, gerr.ExecutionFailed("aggregate", errors.New("connection refused")))

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "data unavailable")
}
