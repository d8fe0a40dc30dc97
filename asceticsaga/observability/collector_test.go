package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/approval"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/saga"
)

func TestCollector_ObservesSagaRuns(t *testing.T) {
	c := NewCollector("test")
	executor := saga.NewExecutor("checkout", nil, saga.WithObserver(c))

	_, err := executor.Execute(context.Background(), []*saga.Activity{
		saga.NewActivity("reserve", 1,
			func(context.Context) (saga.WorkResult, error) { return nil, nil },
			func(context.Context, saga.WorkLog) error { return errors.New("release failed") },
		),
		saga.NewActivity("charge", 2,
			func(context.Context) (saga.WorkResult, error) { return nil, saga.Reject("card declined") },
			nil,
		),
	})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.SagaRuns.WithLabelValues("checkout", "COMPENSATED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ActivityAttempts.WithLabelValues("checkout", "reserve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ActivityAttempts.WithLabelValues("checkout", "charge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Compensations.WithLabelValues("checkout", "reserve", "failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.SagaDuration))
}

func TestCollector_ObservesApprovalTransitions(t *testing.T) {
	c := NewCollector("test")

	require.NoError(t, c.ObserveTransition(approval.Transition{To: approval.StatusWaitingSupervisor}))
	require.NoError(t, c.ObserveTransition(approval.Transition{To: approval.StatusApproved}))
	require.NoError(t, c.ObserveTransition(approval.Transition{To: approval.StatusApproved}))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ApprovalTransitions.WithLabelValues("APPROVED")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("test")
	c.ApprovalTransitions.WithLabelValues("TIMEOUT").Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_approval_transitions_total{status="TIMEOUT"} 1`)
}
