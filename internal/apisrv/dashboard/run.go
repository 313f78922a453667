package dashboard

import (
	"context"
	"sync"

	"github.com/pharmadash/pharmadash-manager/internal/dto"
	"github.com/pharmadash/pharmadash-manager/internal/lifecycle"
)

// runState owns the result slots of one refresh run. Slots are only written
// after a final cancellation check, so a slow stale fetch can never
// overwrite a fresher run's data.
type runState struct {
	token *lifecycle.RunToken
	wg    sync.WaitGroup

	mu        sync.Mutex
	dashboard Dashboard
}

func newRunState(token *lifecycle.RunToken) *runState {
	return &runState{
		token: token,
		dashboard: Dashboard{
			RunID:  token.ID().String(),
			Errors: map[string]string{},
		},
	}
}

// fetch starts one widget fetch under the run's token. A stale token means
// the run was superseded before this fetch could start; it then does
// nothing. Errors other than cancellation are recorded against the widget
// and never stall the run: the fetch-end registration is deferred.
func (r *runState) fetch(coord *lifecycle.Coordinator, widget string, fn func(ctx context.Context) (any, error)) {
	if !coord.RegisterFetchStart(r.token) {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer coord.RegisterFetchEnd(r.token)

		res, err := fn(r.token.Context())

		// the decisive check: nothing is committed after cancellation
		if coord.IsCancelled(r.token) {
			return
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			if !isCancellation(err) {
				logWidgetError(r.token.Context(), widget, err)
				r.dashboard.Errors[widget] = "data unavailable"
			}
			return
		}
		r.commitLocked(widget, res)
	}()
}

func (r *runState) commitLocked(widget string, res any) {
	switch widget {
	case widgetSummary:
		r.dashboard.Summary = res.(*dto.SummaryResponse)
	case widgetStock:
		r.dashboard.Stock = res.(dto.BucketedResponse)
	case widgetMargins:
		r.dashboard.Margins = res.(dto.BucketedResponse)
	case widgetPriceDeviation:
		r.dashboard.PriceDeviation = res.(dto.BucketedResponse)
	case widgetEvolution:
		r.dashboard.Evolution = res.(dto.BucketedResponse)
	}
}

// wait blocks until every fetch of this run settled. A superseded run
// returns context.Canceled: silent, no partial result.
func (r *runState) wait(coord *lifecycle.Coordinator) (*Dashboard, error) {
	r.wg.Wait()
	if coord.IsCancelled(r.token) {
		return nil, context.Canceled
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.dashboard
	return &d, nil
}
