// Package application exposes the caller-facing entry points of the saga
// engine and the approval workflow as mediator requests.
package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/approval"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/disposable"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/mediator"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/ordering"
)

type Application struct {
	mediator  *mediator.Mediator[context.Context]
	orderSaga *ordering.OrderCreationSaga
	host      *approval.LocalHost
	logger    *zap.Logger
}

func New(orderSaga *ordering.OrderCreationSaga, host *approval.LocalHost, logger *zap.Logger) *Application {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Application{
		mediator:  mediator.NewMediator[context.Context](),
		orderSaga: orderSaga,
		host:      host,
		logger:    logger,
	}
	mediator.AddBroadcastPipeline(a.mediator, a.logRequest)
	mediator.Register(a.mediator, a.submitOrder)
	mediator.Register(a.mediator, a.startApproval)
	mediator.Register(a.mediator, a.submitDecision)
	mediator.Register(a.mediator, a.getApprovalStatus)
	mediator.Register(a.mediator, a.awaitApprovalResult)
	return a
}

func (a *Application) Mediator() *mediator.Mediator[context.Context] {
	return a.mediator
}

func (a *Application) SubmitOrder(ctx context.Context, req ordering.Request) (ordering.Result, error) {
	return mediator.Send(a.mediator, ctx, SubmitOrder{Order: req})
}

func (a *Application) StartApproval(ctx context.Context, workflowID string, req approval.Request) (ApprovalStarted, error) {
	return mediator.Send(a.mediator, ctx, StartApproval{WorkflowID: workflowID, Request: req})
}

func (a *Application) SubmitDecision(ctx context.Context, workflowID string, decision approval.Decision) error {
	_, err := mediator.Send(a.mediator, ctx, SubmitDecision{WorkflowID: workflowID, Decision: decision})
	return err
}

func (a *Application) GetApprovalStatus(ctx context.Context, workflowID string) (ApprovalStatus, error) {
	return mediator.Send(a.mediator, ctx, GetApprovalStatus{WorkflowID: workflowID})
}

func (a *Application) AwaitApprovalResult(ctx context.Context, workflowID string, timeout time.Duration) (approval.State, error) {
	return mediator.Send(a.mediator, ctx, AwaitApprovalResult{WorkflowID: workflowID, Timeout: timeout})
}

// ApproveCompletedOrders starts an approval workflow, keyed by order id, for
// every order saga that completes.
func (a *Application) ApproveCompletedOrders() disposable.Disposable {
	return mediator.Subscribe(a.mediator, func(ctx context.Context, e OrderSagaFinished) error {
		if !e.Result.Success {
			return nil
		}
		orderID := e.Result.OrderID.Unwrap()
		_, err := a.StartApproval(ctx, orderID, approval.Request{
			OrderID:  orderID,
			Amount:   e.Request.Amount,
			TenantID: e.Request.TenantID,
		})
		return err
	})
}

func (a *Application) submitOrder(ctx context.Context, req SubmitOrder) (ordering.Result, error) {
	result := a.orderSaga.Execute(ctx, req.Order)
	if err := mediator.Publish(a.mediator, ctx, OrderSagaFinished{Request: req.Order, Result: result}); err != nil {
		a.logger.Warn("Order saga subscriber failed",
			zap.String("saga_id", result.SagaID),
			zap.Error(err),
		)
	}
	return result, nil
}

func (a *Application) startApproval(ctx context.Context, req StartApproval) (ApprovalStarted, error) {
	handle, err := a.host.Start(ctx, req.WorkflowID, req.Request)
	if err != nil {
		return ApprovalStarted{}, errors.Wrap(err, "start approval")
	}
	return ApprovalStarted{WorkflowID: handle.WorkflowID()}, nil
}

func (a *Application) submitDecision(_ context.Context, req SubmitDecision) (DecisionAccepted, error) {
	if err := a.host.Signal(req.WorkflowID, req.Decision); err != nil {
		return DecisionAccepted{}, err
	}
	return DecisionAccepted{WorkflowID: req.WorkflowID}, nil
}

func (a *Application) getApprovalStatus(ctx context.Context, req GetApprovalStatus) (ApprovalStatus, error) {
	state, err := a.host.Query(ctx, req.WorkflowID)
	if err != nil {
		return ApprovalStatus{}, err
	}
	return ApprovalStatus{
		WorkflowID:      state.WorkflowID,
		OrderID:         state.OrderID,
		Status:          state.Status,
		CurrentApprover: state.AwaitedApprover(),
		DecidedBy:       state.DecidedBy,
	}, nil
}

func (a *Application) awaitApprovalResult(ctx context.Context, req AwaitApprovalResult) (approval.State, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	return a.host.Await(ctx, req.WorkflowID)
}

func (a *Application) logRequest(ctx context.Context, request any, next func(context.Context, any) (any, error)) (any, error) {
	started := time.Now()
	result, err := next(ctx, request)
	fields := []zap.Field{
		zap.String("request", requestName(request)),
		zap.Duration("duration", time.Since(started)),
	}
	if err != nil {
		a.logger.Warn("Request failed", append(fields, zap.Error(err))...)
		return result, err
	}
	a.logger.Debug("Request handled", fields...)
	return result, nil
}

func requestName(request any) string {
	switch request.(type) {
	case SubmitOrder:
		return "SubmitOrder"
	case StartApproval:
		return "StartApproval"
	case SubmitDecision:
		return "SubmitDecision"
	case GetApprovalStatus:
		return "GetApprovalStatus"
	case AwaitApprovalResult:
		return "AwaitApprovalResult"
	}
	return "unknown"
}
