package application

import (
	"time"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/approval"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/mediator"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/option"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/ordering"
)

// SubmitOrder runs the order creation saga synchronously.
type SubmitOrder struct {
	mediator.RequestBase[ordering.Result]
	Order ordering.Request
}

// StartApproval starts an approval workflow and returns without waiting for it.
type StartApproval struct {
	mediator.RequestBase[ApprovalStarted]
	WorkflowID string
	Request    approval.Request
}

type ApprovalStarted struct {
	WorkflowID string
}

// SubmitDecision delivers an approver decision to a running workflow. A
// decision without an approver id fails with approval.ErrInvalidDecision.
type SubmitDecision struct {
	mediator.RequestBase[DecisionAccepted]
	WorkflowID string
	Decision   approval.Decision
}

type DecisionAccepted struct {
	WorkflowID string
}

// GetApprovalStatus reads the live status of a workflow.
type GetApprovalStatus struct {
	mediator.RequestBase[ApprovalStatus]
	WorkflowID string
}

type ApprovalStatus struct {
	WorkflowID      string
	OrderID         string
	Status          approval.Status
	CurrentApprover option.Option[approval.Role]
	DecidedBy       string
}

// AwaitApprovalResult blocks until the workflow is terminal or Timeout elapses.
// A zero Timeout waits for as long as the caller's context allows.
type AwaitApprovalResult struct {
	mediator.RequestBase[approval.State]
	WorkflowID string
	Timeout    time.Duration
}

// OrderSagaFinished is published after every SubmitOrder.
type OrderSagaFinished struct {
	Request ordering.Request
	Result  ordering.Result
}
