// Package approval implements the long-running approval workflow: a request
// escalates through an ordered chain of approver roles, each level waits a
// bounded time for a human decision, and the outcome is recorded once.
package approval

import (
	"time"

	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/option"
)

type Status string

const (
	StatusPending           Status = "PENDING"
	StatusWaitingSupervisor Status = "WAITING_SUPERVISOR"
	StatusWaitingManager    Status = "WAITING_MANAGER"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusTimeout           Status = "TIMEOUT"
)

// IsTerminal reports whether the status is absorbing.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusTimeout:
		return true
	}
	return false
}

// Role is an approver level. Chains are ordered by ascending authority.
type Role string

const (
	RoleSupervisor Role = "SUPERVISOR"
	RoleManager    Role = "MANAGER"
)

// WaitingStatus is the status of a workflow parked at this role.
func (r Role) WaitingStatus() Status {
	return Status("WAITING_" + string(r))
}

// ActorSystem decides requests that need no human approval.
const ActorSystem = "SYSTEM"

var (
	ErrInvalidRequest   = errors.New("invalid approval request")
	ErrWorkflowNotFound = errors.New("approval workflow not found")
	// ErrWorkflowExists is returned when starting a workflow id that is already running.
	ErrWorkflowExists = errors.New("approval workflow already exists")
)

// Request is the immutable input of a workflow.
type Request struct {
	OrderID  string  `json:"orderId"`
	Amount   float64 `json:"amount"`
	TenantID string  `json:"tenantId"`
}

func (r Request) Validate() error {
	if r.OrderID == "" {
		return errors.WithMessage(ErrInvalidRequest, "order id is required")
	}
	if r.Amount < 0 {
		return errors.WithMessagef(ErrInvalidRequest, "amount must not be negative, got %.2f", r.Amount)
	}
	return nil
}

// Decision is the payload of a decision signal.
type Decision struct {
	ApproverID string `json:"approverId"`
	Approved   bool   `json:"approved"`
	Comment    string `json:"comment"`
}

// State is a snapshot of a workflow. Only the workflow itself mutates it.
type State struct {
	WorkflowID           string                  `json:"workflowId"`
	OrderID              string                  `json:"orderId"`
	TenantID             string                  `json:"tenantId"`
	Amount               float64                 `json:"amount"`
	Status               Status                  `json:"status"`
	CurrentApproverIndex int                     `json:"currentApproverIndex"`
	ApprovalChain        []Role                  `json:"approvalChain"`
	CurrentApprover      option.Option[Role]     `json:"currentApprover"`
	LatestDecision       option.Option[Decision] `json:"latestDecision"`
	DecidedBy            string                  `json:"decidedBy,omitempty"`
	Comment              string                  `json:"comment,omitempty"`
	IgnoredDecisions     int                     `json:"ignoredDecisions"`
	StartedAt            time.Time               `json:"startedAt"`
	UpdatedAt            time.Time               `json:"updatedAt"`
}

// AwaitedApprover is the role whose decision is currently awaited.
// Nothing before the first escalation and once the workflow is terminal.
func (s State) AwaitedApprover() option.Option[Role] {
	if s.Status == StatusPending || s.Status.IsTerminal() {
		return option.Nothing[Role]()
	}
	return s.CurrentApprover
}

func (s State) clone() State {
	c := s
	if s.ApprovalChain != nil {
		c.ApprovalChain = append([]Role(nil), s.ApprovalChain...)
	}
	return c
}

// Transition is published on every status change of a workflow.
type Transition struct {
	WorkflowID string
	OrderID    string
	From       Status
	To         Status
	Actor      string
	At         time.Time
}
