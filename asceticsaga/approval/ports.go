package approval

import "context"

// Notifier tells an approver that a request waits for them.
// Failures are logged and never abort the workflow.
type Notifier interface {
	Notify(ctx context.Context, role Role, orderID string, amount float64) error
}

// Recorder stores the approval outcome on the owning order.
// It is called exactly once per workflow, on the terminal transition.
type Recorder interface {
	RecordApproval(ctx context.Context, orderID, status, actor string) error
}

// StateStore persists workflow snapshots so finished workflows stay queryable.
type StateStore interface {
	SaveState(ctx context.Context, state State) error
	LoadState(ctx context.Context, workflowID string) (State, error)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Role, string, float64) error { return nil }

type nopRecorder struct{}

func (nopRecorder) RecordApproval(context.Context, string, string, string) error { return nil }
