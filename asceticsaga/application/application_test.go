package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/approval"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/mediator"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/ordering"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/saga"
)

type testApp struct {
	app       *Application
	orders    *ordering.MemoryOrderStore
	inventory *ordering.MemoryInventory
	ledger    *ordering.MemoryLedger
	host      *approval.LocalHost
	clock     *approval.ManualClock
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ta := &testApp{
		orders:    ordering.NewMemoryOrderStore(),
		inventory: ordering.NewMemoryInventory(),
		ledger:    ordering.NewMemoryLedger(),
		clock:     approval.NewManualClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)),
	}
	ta.inventory.SetStock("acme", "widget", 10)
	ta.ledger.SetBalance("acme", "alice", 5000)

	orderSaga := ordering.NewOrderCreationSaga(ta.orders, ta.inventory, ta.ledger, nil,
		ordering.WithRetryPolicy(saga.RetryPolicy{MaxAttempts: 1}),
	)
	ta.host = approval.NewLocalHost(nil, approval.NewMemoryStateStore(),
		approval.WithClock(ta.clock),
		approval.WithRecorder(ta.orders),
	)
	ta.app = New(orderSaga, ta.host, nil)
	t.Cleanup(ta.host.Wait)
	return ta
}

func order(amount float64) ordering.Request {
	return ordering.Request{UserID: "alice", ProductID: "widget", Quantity: 1, Amount: amount, TenantID: "acme"}
}

func TestApplication_SubmitOrderPublishesOutcome(t *testing.T) {
	ta := newTestApp(t)
	var finished []OrderSagaFinished
	mediator.Subscribe(ta.app.Mediator(), func(_ context.Context, e OrderSagaFinished) error {
		finished = append(finished, e)
		return nil
	})

	result, err := ta.app.SubmitOrder(context.Background(), order(40))

	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, finished, 1)
	assert.Equal(t, result, finished[0].Result)
	assert.Equal(t, 9, ta.inventory.Stock("acme", "widget"))
}

func TestApplication_FailedOrderIsReportedNotReturnedAsError(t *testing.T) {
	ta := newTestApp(t)
	req := order(40)
	req.Quantity = 50

	result, err := ta.app.SubmitOrder(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, saga.StatusCompensated, result.Status)
	assert.Contains(t, result.Message, "insufficient stock")
	order, ok := ta.orders.Get(result.OrderID.Unwrap())
	require.True(t, ok)
	assert.Equal(t, ordering.OrderCancelled, order.Status)
}

func TestApplication_CompletedOrderGoesThroughApproval(t *testing.T) {
	ta := newTestApp(t)
	ta.app.ApproveCompletedOrders()
	ctx := context.Background()

	result, err := ta.app.SubmitOrder(ctx, order(500))
	require.NoError(t, err)
	require.True(t, result.Success)
	orderID := result.OrderID.Unwrap()

	require.Eventually(t, func() bool {
		status, err := ta.app.GetApprovalStatus(ctx, orderID)
		return err == nil && status.Status == approval.StatusWaitingSupervisor
	}, time.Second, time.Millisecond)

	status, err := ta.app.GetApprovalStatus(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, approval.RoleSupervisor, status.CurrentApprover.Unwrap())

	require.NoError(t, ta.app.SubmitDecision(ctx, orderID, approval.Decision{ApproverID: "sup-1", Approved: true}))

	state, err := ta.app.AwaitApprovalResult(ctx, orderID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, state.Status)

	status, err = ta.app.GetApprovalStatus(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, status.CurrentApprover.IsNothing())
	assert.Equal(t, "sup-1", status.DecidedBy)

	ta.host.Wait()
	stored, _ := ta.orders.Get(orderID)
	assert.Equal(t, "APPROVED", stored.ApprovalStatus.Unwrap())
	assert.Equal(t, "sup-1", stored.ApprovedBy.Unwrap())
}

func TestApplication_SmallOrderIsApprovedBySystem(t *testing.T) {
	ta := newTestApp(t)
	ta.app.ApproveCompletedOrders()
	ctx := context.Background()

	result, err := ta.app.SubmitOrder(ctx, order(50))
	require.NoError(t, err)

	state, err := ta.app.AwaitApprovalResult(ctx, result.OrderID.Unwrap(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, state.Status)
	assert.Equal(t, approval.ActorSystem, state.DecidedBy)
}

func TestApplication_AwaitTimesOut(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	started, err := ta.app.StartApproval(ctx, "", approval.Request{OrderID: "o-1", Amount: 2000})
	require.NoError(t, err)

	_, err = ta.app.AwaitApprovalResult(ctx, started.WorkflowID, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, ta.app.SubmitDecision(ctx, started.WorkflowID, approval.Decision{ApproverID: "sup", Approved: false}))
	state, err := ta.app.AwaitApprovalResult(ctx, started.WorkflowID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusRejected, state.Status)
}

func TestApplication_UnknownWorkflow(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	err := ta.app.SubmitDecision(ctx, "missing", approval.Decision{ApproverID: "a"})
	assert.ErrorIs(t, err, approval.ErrWorkflowNotFound)

	_, err = ta.app.GetApprovalStatus(ctx, "missing")
	assert.ErrorIs(t, err, approval.ErrWorkflowNotFound)
}

func TestApplication_InvalidApprovalRequest(t *testing.T) {
	ta := newTestApp(t)

	_, err := ta.app.StartApproval(context.Background(), "", approval.Request{Amount: 10})

	assert.ErrorIs(t, err, approval.ErrInvalidRequest)
}
