package approval

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/signals"
)

// LocalHost runs workflows as goroutines of the current process and routes
// signals and queries to them by workflow id. It is not crash-recoverable:
// finished workflows stay queryable through the StateStore, running ones are
// lost with the process. With a StateStore, a workflow is dropped from memory
// once it returns; without one, every workflow stays in memory for the life of
// the host.
type LocalHost struct {
	opts        []Option
	store       StateStore
	logger      *zap.Logger
	transitions *signals.SignalImp[Transition]

	mu        sync.RWMutex
	workflows map[string]*Workflow
	wg        sync.WaitGroup
}

// NewLocalHost creates a host; opts are applied to every workflow it starts.
func NewLocalHost(logger *zap.Logger, store StateStore, opts ...Option) *LocalHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	hostOpts := append([]Option{WithLogger(logger), WithStateStore(store)}, opts...)
	return &LocalHost{
		opts:        hostOpts,
		store:       store,
		logger:      logger,
		transitions: signals.NewSignal[Transition](),
		workflows:   make(map[string]*Workflow),
	}
}

// Handle refers to a workflow started on a LocalHost.
type Handle struct {
	host       *LocalHost
	workflowID string
}

func (h Handle) WorkflowID() string {
	return h.workflowID
}

func (h Handle) Signal(decision Decision) error {
	return h.host.Signal(h.workflowID, decision)
}

func (h Handle) Query(ctx context.Context) (State, error) {
	return h.host.Query(ctx, h.workflowID)
}

func (h Handle) Await(ctx context.Context) (State, error) {
	return h.host.Await(ctx, h.workflowID)
}

// Start launches a workflow for req and returns without waiting for a decision.
// An empty workflowID is generated.
func (h *LocalHost) Start(ctx context.Context, workflowID string, req Request) (Handle, error) {
	wf, err := NewWorkflow(workflowID, req, h.opts...)
	if err != nil {
		return Handle{}, err
	}

	if err := h.checkNotStored(ctx, wf.ID()); err != nil {
		return Handle{}, err
	}

	h.mu.Lock()
	if _, exists := h.workflows[wf.ID()]; exists {
		h.mu.Unlock()
		return Handle{}, errors.Wrapf(ErrWorkflowExists, "workflow %s", wf.ID())
	}
	h.workflows[wf.ID()] = wf
	h.mu.Unlock()

	wf.Transitions().Attach(h.transitions.Notify, h)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := wf.Run(ctx); err != nil {
			h.logger.Error("Approval workflow failed",
				zap.String("workflow_id", wf.ID()),
				zap.Error(err),
			)
		}
		h.evict(wf.ID())
	}()

	return Handle{host: h, workflowID: wf.ID()}, nil
}

// checkNotStored rejects an id that a finished, evicted workflow already used.
func (h *LocalHost) checkNotStored(ctx context.Context, workflowID string) error {
	if h.store == nil {
		return nil
	}
	_, err := h.store.LoadState(ctx, workflowID)
	switch {
	case err == nil:
		return errors.Wrapf(ErrWorkflowExists, "workflow %s", workflowID)
	case errors.Is(err, ErrWorkflowNotFound):
		return nil
	default:
		return errors.Wrapf(err, "load workflow %s", workflowID)
	}
}

func (h *LocalHost) evict(workflowID string) {
	if h.store == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.workflows, workflowID)
}

func (h *LocalHost) workflow(workflowID string) (*Workflow, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	wf, ok := h.workflows[workflowID]
	return wf, ok
}

// Signal delivers a decision to a workflow of this host. A decision for a
// workflow that already finished and was evicted is ignored like any other
// late decision.
func (h *LocalHost) Signal(workflowID string, decision Decision) error {
	wf, ok := h.workflow(workflowID)
	if ok {
		return wf.Signal(decision)
	}
	if decision.ApproverID == "" {
		return errors.WithMessage(ErrInvalidDecision, "approver id is required")
	}
	if h.store != nil {
		state, err := h.store.LoadState(context.Background(), workflowID)
		if err == nil && state.Status.IsTerminal() {
			h.logger.Warn("Decision ignored",
				zap.String("workflow_id", workflowID),
				zap.String("approver", decision.ApproverID),
				zap.String("status", string(state.Status)),
			)
			return nil
		}
	}
	return errors.Wrapf(ErrWorkflowNotFound, "workflow %s", workflowID)
}

// Query returns the live state of a workflow, falling back to the state store
// for workflows this process does not run.
func (h *LocalHost) Query(ctx context.Context, workflowID string) (State, error) {
	if wf, ok := h.workflow(workflowID); ok {
		return wf.State(), nil
	}
	if h.store == nil {
		return State{}, errors.Wrapf(ErrWorkflowNotFound, "workflow %s", workflowID)
	}
	state, err := h.store.LoadState(ctx, workflowID)
	if err != nil {
		return State{}, errors.Wrapf(err, "load workflow %s", workflowID)
	}
	return state, nil
}

// Await blocks until the workflow is terminal or ctx is done.
func (h *LocalHost) Await(ctx context.Context, workflowID string) (State, error) {
	wf, ok := h.workflow(workflowID)
	if !ok {
		state, err := h.Query(ctx, workflowID)
		if err != nil {
			return State{}, err
		}
		if !state.Status.IsTerminal() {
			return state, errors.Wrapf(ErrWorkflowNotFound, "workflow %s is not running here", workflowID)
		}
		return state, nil
	}
	return wf.Wait(ctx)
}

// Transitions publishes the status changes of every workflow of this host.
func (h *LocalHost) Transitions() signals.Signal[Transition] {
	return h.transitions
}

// Wait blocks until every started workflow has returned.
func (h *LocalHost) Wait() {
	h.wg.Wait()
}
